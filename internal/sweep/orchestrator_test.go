package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gsi-monitoring/piezosync/internal/config"
	"github.com/gsi-monitoring/piezosync/internal/eagleio"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

func testDevice(name string) config.Device {
	return config.Device{
		Name:        name,
		SensorRef:   "/loadsensing/27990/node/dynamic/86313/device/vw1/sensor",
		R0:          8964.40,
		T0:          3.6,
		PolyA:       -2.49100e-08,
		PolyB:       -0.01306,
		K:           -0.002295,
		GroundElev:  452.3,
		SensorDepth: 31.5,
	}
}

func testOptions() Options {
	return Options{
		Window:           30 * 24 * time.Hour,
		MaxWindowFetches: 100,
		DefaultStart:     defaultStart,
	}
}

// TestSyncDeviceUploadsRawAndDerived verifies one advancing window produces a
// raw upload and a water-elevation upload against the device-named series.
func TestSyncDeviceUploadsRawAndDerived(t *testing.T) {
	latest := "2025-01-20T00:00:00.000Z"
	dest := &fakeDest{
		resolve:  func(string) (string, error) { return "ds1", nil },
		children: map[string][]string{"ds1": {"freq"}},
		points:   map[string][]time.Time{"freq": {mustTime(t, "2025-01-01T00:00:00.000Z")}},
	}
	source := &fakeSource{
		respond: func(call int, _, _ time.Time) (*timeseries.Batch, error) {
			if call == 0 {
				return batchThrough(latest, "2025-01-10T00:00:00.000Z"), nil
			}
			return batchThrough(latest), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcome := o.SyncDevice(context.Background(), testDevice("LW-02S"))

	require.Equal(t, StatusDone, outcome.Status)
	require.NoError(t, outcome.Err)
	require.Equal(t, 1, outcome.Windows)
	require.Equal(t, 2, outcome.Records)
	require.Equal(t, mustTime(t, latest), outcome.SyncedThrough)

	require.Len(t, dest.loads, 2)

	raw := dest.loads[0]
	require.Equal(t, "LW-02S", raw.name)
	require.Equal(t, RawSchema, raw.schema)
	require.Equal(t, []string{"f", "T"}, raw.batch.FieldOrder())

	derived := dest.loads[1]
	require.Equal(t, "LW-02S", derived.name)
	require.Equal(t, ElevationSchema, derived.schema)
	require.Equal(t, raw.batch.Timestamps(), derived.batch.Timestamps())
	row, ok := derived.batch.Get(latest)
	require.True(t, ok)
	require.Contains(t, row, "water_elevation")
}

// TestSyncDeviceWatermarkDrivesFirstWindow verifies the first fetch starts a
// day behind the resolved watermark.
func TestSyncDeviceWatermarkDrivesFirstWindow(t *testing.T) {
	stored := mustTime(t, "2025-01-15T00:00:00.000Z")
	dest := &fakeDest{
		resolve:  func(string) (string, error) { return "ds1", nil },
		children: map[string][]string{"ds1": {"freq"}},
		points:   map[string][]time.Time{"freq": {stored}},
	}
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return timeseries.NewBatch(), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcome := o.SyncDevice(context.Background(), testDevice("LW-02S"))

	require.Equal(t, StatusDone, outcome.Status)
	require.Equal(t, []time.Time{stored.Add(-24 * time.Hour)}, source.starts)
}

// TestSyncDeviceUploadFailureAborts verifies a raw upload failure fails the
// device before the derived upload is attempted.
func TestSyncDeviceUploadFailureAborts(t *testing.T) {
	boom := errors.New("server rejected payload")
	dest := &fakeDest{
		resolve:  func(string) (string, error) { return "ds1", nil },
		children: map[string][]string{"ds1": {"freq"}},
		points:   map[string][]time.Time{"freq": {mustTime(t, "2025-01-01T00:00:00.000Z")}},
		loadErr: func(call loadCall) error {
			return boom
		},
	}
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return batchThrough("2025-01-20T00:00:00.000Z"), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcome := o.SyncDevice(context.Background(), testDevice("LW-02S"))

	require.Equal(t, StatusFailed, outcome.Status)
	require.ErrorIs(t, outcome.Err, boom)
	require.Empty(t, dest.loads)
	require.Zero(t, outcome.Records)
}

// TestRunIsolatesDeviceFailures verifies one device's failure does not stop
// the sweep: the next device is still processed.
func TestRunIsolatesDeviceFailures(t *testing.T) {
	dest := &fakeDest{
		resolve: func(name string) (string, error) {
			if name == "LW-02S" {
				return "", errors.New("destination unreachable")
			}
			return "ds2", nil
		},
		children: map[string][]string{"ds2": {"freq"}},
		points:   map[string][]time.Time{"freq": {mustTime(t, "2025-01-01T00:00:00.000Z")}},
	}
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return timeseries.NewBatch(), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcomes := o.Run(context.Background(), []config.Device{testDevice("LW-02S"), testDevice("LW-04D")})

	require.Len(t, outcomes, 2)
	require.Equal(t, StatusFailed, outcomes[0].Status)
	require.Error(t, outcomes[0].Err)
	require.Equal(t, StatusDone, outcomes[1].Status)
	require.NoError(t, outcomes[1].Err)
}

// TestSyncDeviceNewSeriesStartsFromDefault verifies a device whose series is
// absent from the destination syncs from the beginning of monitoring.
func TestSyncDeviceNewSeriesStartsFromDefault(t *testing.T) {
	dest := &fakeDest{} // resolve falls through to ErrNotFound
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return timeseries.NewBatch(), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcome := o.SyncDevice(context.Background(), testDevice("LW-02S"))

	require.Equal(t, StatusDone, outcome.Status)
	require.Equal(t, []time.Time{defaultStart}, source.starts)
}

// TestSyncDeviceBootstrapsChildlessDatasource verifies a freshly provisioned
// datasource (exists, no parameter nodes yet) syncs from the beginning of
// monitoring and uploads, which is what creates its parameter nodes.
func TestSyncDeviceBootstrapsChildlessDatasource(t *testing.T) {
	latest := "2022-01-20T00:00:00.000Z"
	dest := &fakeDest{
		resolve:  func(string) (string, error) { return "ds1", nil },
		children: map[string][]string{},
	}
	source := &fakeSource{
		respond: func(call int, _, _ time.Time) (*timeseries.Batch, error) {
			if call == 0 {
				return batchThrough(latest), nil
			}
			return timeseries.NewBatch(), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcome := o.SyncDevice(context.Background(), testDevice("LW-02S"))

	require.Equal(t, StatusDone, outcome.Status)
	require.Equal(t, defaultStart, source.starts[0])
	require.Len(t, dest.loads, 2)
}

// TestSyncDeviceAmbiguousSeriesFails verifies an ambiguous series name is a
// device failure, not a silent default.
func TestSyncDeviceAmbiguousSeriesFails(t *testing.T) {
	dest := &fakeDest{
		resolve: func(name string) (string, error) {
			return "", errors.Join(eagleio.ErrAmbiguous, errors.New(name))
		},
	}
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return timeseries.NewBatch(), nil
		},
	}

	o := NewOrchestrator(dest, source, testOptions())
	outcome := o.SyncDevice(context.Background(), testDevice("LW-02S"))

	require.Equal(t, StatusFailed, outcome.Status)
	require.ErrorIs(t, outcome.Err, eagleio.ErrAmbiguous)
	require.Zero(t, source.calls)
}
