package sweep

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gsi-monitoring/piezosync/internal/itwin"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

const fetcherWindow = 30 * 24 * time.Hour

// TestDrainAdvancesUntilNoProgress verifies the loop follows the newest
// fetched timestamp window by window and stops once a window no longer
// advances the cursor.
func TestDrainAdvancesUntilNoProgress(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	t1 := "2025-01-20T00:00:00.000Z"
	t2 := "2025-02-10T00:00:00.000Z"

	source := &fakeSource{
		respond: func(call int, start, end time.Time) (*timeseries.Batch, error) {
			switch call {
			case 0:
				return batchThrough(t1, "2025-01-05T00:00:00.000Z"), nil
			case 1:
				return batchThrough(t2), nil
			default:
				// Only the cursor point itself is left in the window.
				return batchThrough(t2), nil
			}
		},
	}

	var emitted []*timeseries.Batch
	f := NewWindowFetcher(source, fetcherWindow, 100)
	cursor, windows, err := f.Drain(context.Background(), "sensor-1", start, func(b *timeseries.Batch) error {
		emitted = append(emitted, b)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, windows)
	require.Len(t, emitted, 2)
	require.Equal(t, mustTime(t, t2), cursor)

	// Each window starts at the previous window's newest timestamp, and
	// the requested width is fixed.
	require.Equal(t, []time.Time{start, mustTime(t, t1), mustTime(t, t2)}, source.starts)
}

// TestDrainStopsImmediatelyWithoutProgress verifies that a first window whose
// max timestamp equals the start emits nothing.
func TestDrainStopsImmediatelyWithoutProgress(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return batchThrough("2025-01-01T00:00:00.000Z"), nil
		},
	}

	f := NewWindowFetcher(source, fetcherWindow, 100)
	cursor, windows, err := f.Drain(context.Background(), "sensor-1", start, failEmit(t))

	require.NoError(t, err)
	require.Zero(t, windows)
	require.Equal(t, start, cursor)
}

func TestDrainStopsOnEmptyBatch(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return timeseries.NewBatch(), nil
		},
	}

	f := NewWindowFetcher(source, fetcherWindow, 100)
	cursor, windows, err := f.Drain(context.Background(), "sensor-1", start, failEmit(t))

	require.NoError(t, err)
	require.Zero(t, windows)
	require.Equal(t, start, cursor)
}

// TestDrainTreatsNoDataAsCaughtUp verifies the upstream's "nothing in range"
// response ends the drain cleanly.
func TestDrainTreatsNoDataAsCaughtUp(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return nil, fmt.Errorf("%w: sensor-1", itwin.ErrNoData)
		},
	}

	f := NewWindowFetcher(source, fetcherWindow, 100)
	_, windows, err := f.Drain(context.Background(), "sensor-1", start, failEmit(t))

	require.NoError(t, err)
	require.Zero(t, windows)
}

// TestDrainPropagatesTransportErrors verifies fail-fast behaviour: no retry,
// no emit, cursor stays where the failure found it.
func TestDrainPropagatesTransportErrors(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	boom := errors.New("connection refused")
	source := &fakeSource{
		respond: func(call int, _, _ time.Time) (*timeseries.Batch, error) {
			if call == 0 {
				return batchThrough("2025-01-20T00:00:00.000Z"), nil
			}
			return nil, boom
		},
	}

	f := NewWindowFetcher(source, fetcherWindow, 100)
	cursor, windows, err := f.Drain(context.Background(), "sensor-1", start, func(*timeseries.Batch) error { return nil })

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, windows)
	require.Equal(t, mustTime(t, "2025-01-20T00:00:00.000Z"), cursor)
	require.Equal(t, 2, source.calls)
}

// TestDrainDivergenceBound verifies the iteration cap trips when upstream
// keeps producing advancing timestamps beyond any plausible history.
func TestDrainDivergenceBound(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	source := &fakeSource{
		respond: func(call int, start, _ time.Time) (*timeseries.Batch, error) {
			return batchThrough(timeseries.FormatTime(start.Add(time.Hour))), nil
		},
	}

	f := NewWindowFetcher(source, fetcherWindow, 3)
	_, windows, err := f.Drain(context.Background(), "sensor-1", start, func(*timeseries.Batch) error { return nil })

	require.ErrorIs(t, err, ErrFetchDivergence)
	require.Equal(t, 3, windows)
}

func TestDrainEmitErrorAborts(t *testing.T) {
	start := mustTime(t, "2025-01-01T00:00:00.000Z")
	boom := errors.New("upload failed")
	source := &fakeSource{
		respond: func(int, time.Time, time.Time) (*timeseries.Batch, error) {
			return batchThrough("2025-01-20T00:00:00.000Z"), nil
		},
	}

	f := NewWindowFetcher(source, fetcherWindow, 100)
	cursor, windows, err := f.Drain(context.Background(), "sensor-1", start, func(*timeseries.Batch) error { return boom })

	require.ErrorIs(t, err, boom)
	require.Zero(t, windows)
	require.Equal(t, start, cursor)
}

// failEmit returns an emit callback that fails the test if invoked.
func failEmit(t *testing.T) func(*timeseries.Batch) error {
	return func(*timeseries.Batch) error {
		t.Fatal("emit should not be called")
		return nil
	}
}
