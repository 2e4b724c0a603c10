package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gsi-monitoring/piezosync/internal/config"
	"github.com/gsi-monitoring/piezosync/internal/eagleio"
	"github.com/gsi-monitoring/piezosync/internal/itwin"
	"github.com/gsi-monitoring/piezosync/internal/logging"
	"github.com/gsi-monitoring/piezosync/internal/manual"
	"github.com/gsi-monitoring/piezosync/internal/nwps"
	"github.com/gsi-monitoring/piezosync/internal/sweep"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("piezosync failed: %v", err)
	}
}

// run performs one synchronization sweep: every registered piezometer, then
// the river gauge, then the manual transducer wells. Shared-setup failures
// (config, token) are fatal; per-device and per-source failures are reported
// and the sweep continues.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Setup("piezosync", cfg.LogDirectory); err != nil {
		return err
	}

	devices, err := config.LoadDevices(cfg.DevicesPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log.Printf("starting sweep %s (%d devices)", runID, len(devices))

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	token, err := itwin.FetchToken(ctx, httpClient, cfg.ITwinTokenURL, cfg.ITwinClientID, cfg.ITwinClientSecret)
	if err != nil {
		return fmt.Errorf("acquire upstream token: %w", err)
	}

	source := itwin.NewClient(httpClient, cfg.ITwinBaseURL, token, cfg.ITwinAssetID)
	dest := eagleio.NewClient(httpClient, cfg.EagleBaseURL, cfg.EagleAPIKey)

	orch := sweep.NewOrchestrator(dest, source, sweep.Options{
		Window:           time.Duration(cfg.WindowDays) * 24 * time.Hour,
		MaxWindowFetches: cfg.MaxWindowFetches,
		DefaultStart:     cfg.DefaultStart,
	})

	outcomes := orch.Run(ctx, devices)

	syncRiver(ctx, cfg, dest)
	syncManualWells(ctx, cfg, dest, orch.Resolver())

	failed := 0
	for _, oc := range outcomes {
		if oc.Status == sweep.StatusFailed {
			failed++
		}
	}
	log.Printf("sweep %s complete: %d devices ok, %d failed", runID, len(outcomes)-failed, failed)
	return nil
}

// syncRiver loads the gauge's observed stage and, when configured, the
// historical flat file the public API does not serve.
func syncRiver(ctx context.Context, cfg *config.AppConfig, dest *eagleio.Client) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	gauge := nwps.NewClient(httpClient, cfg.NWPSBaseURL)

	stage, err := gauge.ObservedStage(ctx, cfg.NWPSGaugeID)
	switch {
	case err != nil:
		log.Printf("river gauge %s: fetch failed: %v", cfg.NWPSGaugeID, err)
	case stage.Len() == 0:
		log.Printf("river gauge %s: no valid stage points", cfg.NWPSGaugeID)
	default:
		if err := dest.LoadData(ctx, cfg.RiverSeriesName, stage, sweep.ElevationSchema); err != nil {
			log.Printf("river gauge %s: upload failed: %v", cfg.NWPSGaugeID, err)
		} else {
			log.Printf("river gauge %s: loaded %d stage points", cfg.NWPSGaugeID, stage.Len())
		}
	}

	if cfg.RiverFilePath == "" {
		return
	}
	history, err := nwps.ReadManualFile(cfg.RiverFilePath)
	if err != nil {
		log.Printf("river history file: %v", err)
		return
	}
	if history.Len() == 0 {
		return
	}
	if err := dest.LoadData(ctx, cfg.RiverSeriesName, history, sweep.ElevationSchema); err != nil {
		log.Printf("river history upload failed: %v", err)
		return
	}
	log.Printf("loaded %d historical river points", history.Len())
}

// syncManualWells imports each configured well sheet from the transducer
// workbook, filtered to records past the well's destination watermark, and
// uploads in chunks.
func syncManualWells(ctx context.Context, cfg *config.AppConfig, dest *eagleio.Client, resolver *sweep.WatermarkResolver) {
	if cfg.ManualWorkbookPath == "" {
		return
	}

	for _, well := range cfg.ManualWells {
		start, err := resolver.Resolve(ctx, well)
		if err != nil {
			log.Printf("%s: resolve watermark failed: %v", well, err)
			continue
		}

		batch, err := manual.ReadTransducerSheet(cfg.ManualWorkbookPath, well, start)
		if err != nil {
			log.Printf("%s: read workbook failed: %v", well, err)
			continue
		}
		if batch.Len() == 0 {
			log.Printf("%s: no new manual records", well)
			continue
		}

		if err := sweep.LoadChunked(ctx, dest, well, batch, manual.Schema, cfg.UploadChunkSize); err != nil {
			log.Printf("%s: manual upload failed: %v", well, err)
			continue
		}
		log.Printf("%s: loaded %d manual records", well, batch.Len())
	}
}
