package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gsi-monitoring/piezosync/internal/itwin"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// ErrFetchDivergence indicates the window loop exceeded its iteration bound
// without draining the sensor's history, which points at an upstream anomaly
// (timestamps not advancing) rather than data volume.
var ErrFetchDivergence = errors.New("window fetch did not converge")

// WindowFetcher pages through a sensor's history in bounded time windows.
// The upstream API caps result sizes, and windowing also checkpoints each
// upload before the next fetch.
type WindowFetcher struct {
	source     Source
	window     time.Duration
	maxFetches int
}

// NewWindowFetcher builds a fetcher with a fixed window width and an
// iteration safety bound.
func NewWindowFetcher(source Source, window time.Duration, maxFetches int) *WindowFetcher {
	return &WindowFetcher{source: source, window: window, maxFetches: maxFetches}
}

// Drain repeatedly queries [cursor, cursor+window) starting at start and
// hands each batch that advances the cursor to emit. It stops when a window
// comes back empty or fails to advance the cursor: either the sensor is
// caught up or the remainder of the window holds nothing. A window that is
// empty while later windows have data stops the drain early; the rule cannot
// tell a gap from the end of history.
//
// Returns the final cursor and the number of emitted windows. Transport
// errors propagate un-retried: nothing was committed for the failed window,
// so the next run resumes from the same watermark.
func (f *WindowFetcher) Drain(ctx context.Context, sensorRef string, start time.Time, emit func(*timeseries.Batch) error) (time.Time, int, error) {
	cursor := start
	windows := 0

	for i := 0; ; i++ {
		if i >= f.maxFetches {
			return cursor, windows, fmt.Errorf("%w: sensor %s exceeded %d window fetches", ErrFetchDivergence, sensorRef, f.maxFetches)
		}

		batch, err := f.source.Observations(ctx, sensorRef, cursor, cursor.Add(f.window))
		if err != nil {
			if errors.Is(err, itwin.ErrNoData) {
				return cursor, windows, nil
			}
			return cursor, windows, err
		}
		if batch.Len() == 0 {
			return cursor, windows, nil
		}

		latest, err := batch.Latest()
		if err != nil {
			return cursor, windows, err
		}
		if !latest.After(cursor) {
			// No progress: the only reading left in the window is the
			// cursor point itself, re-fetched because the start bound
			// is inclusive.
			return cursor, windows, nil
		}

		if err := emit(batch); err != nil {
			return cursor, windows, err
		}

		cursor = latest
		windows++
	}
}
