// Package sweep implements the incremental time-series synchronization sweep:
// per device, resolve the destination watermark, drain the upstream history
// in bounded windows, calibrate, and upload raw and derived readings.
package sweep

import (
	"context"
	"time"

	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// Source is the upstream sensor platform the sweep reads from.
type Source interface {
	// Observations returns readings in [start, end); the start bound is
	// inclusive upstream.
	Observations(ctx context.Context, sensorRef string, start, end time.Time) (*timeseries.Batch, error)
}

// Destination is the time-series store the sweep writes to.
type Destination interface {
	DatasourceIDByName(ctx context.Context, name string) (string, error)
	ChildNodeIDs(ctx context.Context, datasourceID string) ([]string, error)
	LatestPointTimes(ctx context.Context, nodeID string, limit int, end time.Time) ([]time.Time, error)
	LoadData(ctx context.Context, name string, batch *timeseries.Batch, schema timeseries.Schema) error
}

// RawSchema labels the upstream reading fields for upload.
var RawSchema = timeseries.Schema{
	Names: map[string]string{"f": "Frequency (digits)", "T": "Temperature (C)"},
	Units: map[string]string{"f": "digits", "T": "C"},
}

// ElevationSchema labels the derived water elevation field for upload.
var ElevationSchema = timeseries.Schema{
	Names: map[string]string{"water_elevation": "Water Elevation (ft)"},
	Units: map[string]string{"water_elevation": "ft"},
}

// LoadChunked uploads a batch in fixed-size pieces, preserving record order.
// The destination caps upload sizes well above this, but chunking keeps
// request bodies small for the multi-year manual imports.
func LoadChunked(ctx context.Context, dest Destination, name string, batch *timeseries.Batch, schema timeseries.Schema, size int) error {
	keys := batch.Timestamps()
	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}
		if err := dest.LoadData(ctx, name, batch.Slice(keys[i:end]), schema); err != nil {
			return err
		}
	}
	return nil
}
