package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gsi-monitoring/piezosync/internal/calib"
	"github.com/gsi-monitoring/piezosync/internal/config"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// Status is a device's terminal sweep state.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Outcome reports one device's sweep result. Partial success across a
// multi-device run is expected and not itself an error.
type Outcome struct {
	Device        string
	Status        Status
	SyncedThrough time.Time
	Windows       int
	Records       int
	Err           error
}

// Options configures an Orchestrator.
type Options struct {
	// Window is the fetch window width.
	Window time.Duration
	// MaxWindowFetches bounds the fetch loop per device.
	MaxWindowFetches int
	// DefaultStart is the fetch start for series new to the destination.
	DefaultStart time.Time
}

// Orchestrator runs the per-device sync state machine: resolve watermark,
// fetch window, calibrate, upload raw, upload derived, loop until caught up.
// Devices are processed one at a time; each device's history is a hard
// sequential dependency (window N+1 starts at window N's newest timestamp),
// so there is nothing to parallelize within a device.
type Orchestrator struct {
	dest     Destination
	resolver *WatermarkResolver
	fetcher  *WindowFetcher
}

// NewOrchestrator wires a sweep over the given source and destination.
func NewOrchestrator(dest Destination, source Source, opts Options) *Orchestrator {
	return &Orchestrator{
		dest:     dest,
		resolver: NewWatermarkResolver(dest, opts.DefaultStart),
		fetcher:  NewWindowFetcher(source, opts.Window, opts.MaxWindowFetches),
	}
}

// Resolver exposes the orchestrator's watermark resolver for callers that
// ingest non-windowed sources against the same destination.
func (o *Orchestrator) Resolver() *WatermarkResolver {
	return o.resolver
}

// SyncDevice drains one device. Every emitted window uploads the raw
// readings and, derived from them, the computed water elevations, both to
// the device-named series. A failure leaves the destination watermark where
// it was: the failed window was never committed, so the next run re-fetches
// it.
func (o *Orchestrator) SyncDevice(ctx context.Context, dev config.Device) Outcome {
	outcome := Outcome{Device: dev.Name}

	log.Printf("processing device %s", dev.Name)
	start, err := o.resolver.Resolve(ctx, dev.Name)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("resolve watermark: %w", err)
		return outcome
	}
	log.Printf("%s: syncing from %s", dev.Name, timeseries.FormatTime(start))

	sensor := calib.Sensor{
		Coefficients: calib.Coefficients{
			R0:    dev.R0,
			T0:    dev.T0,
			PolyA: dev.PolyA,
			PolyB: dev.PolyB,
			K:     dev.K,
		},
		GroundElev:  dev.GroundElev,
		SensorDepth: dev.SensorDepth,
	}

	cursor, windows, err := o.fetcher.Drain(ctx, dev.SensorRef, start, func(batch *timeseries.Batch) error {
		if err := o.dest.LoadData(ctx, dev.Name, batch, RawSchema); err != nil {
			return fmt.Errorf("upload raw readings: %w", err)
		}

		derived, err := calib.WaterElevations(batch, sensor)
		if err != nil {
			return fmt.Errorf("compute water elevation: %w", err)
		}
		if err := o.dest.LoadData(ctx, dev.Name, derived, ElevationSchema); err != nil {
			return fmt.Errorf("upload water elevation: %w", err)
		}

		outcome.Records += batch.Len()
		log.Printf("%s: loaded %d readings through %s", dev.Name, batch.Len(), latestLabel(batch))
		return nil
	})

	outcome.SyncedThrough = cursor
	outcome.Windows = windows
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusDone
	return outcome
}

// Run sweeps all devices sequentially. Device failures are isolated: one
// device's failure is reported in its outcome and the sweep moves on.
func (o *Orchestrator) Run(ctx context.Context, devices []config.Device) []Outcome {
	outcomes := make([]Outcome, 0, len(devices))
	for _, dev := range devices {
		outcome := o.SyncDevice(ctx, dev)
		if outcome.Err != nil {
			log.Printf("%s: sync failed: %v", dev.Name, outcome.Err)
		} else {
			log.Printf("%s: done, %d records in %d windows, synced through %s",
				dev.Name, outcome.Records, outcome.Windows, timeseries.FormatTime(outcome.SyncedThrough))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func latestLabel(batch *timeseries.Batch) string {
	latest, err := batch.Latest()
	if err != nil {
		return "?"
	}
	return timeseries.FormatTime(latest)
}
