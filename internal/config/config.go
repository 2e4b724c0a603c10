package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

const (
	// DefaultStart is the beginning of monitoring: where a device syncs
	// from when its series does not exist in the destination yet.
	DefaultStart = "2022-01-01T00:00:00.000Z"

	defaultWindowDays       = 30
	defaultMaxWindowFetches = 100
	defaultRequestTimeout   = 30 * time.Second
	defaultUploadChunkSize  = 5000
	defaultGaugeID          = "KYTK2"
	defaultDevicesPath      = "devices.json"
	defaultLogDirectory     = "logs"
)

// AppConfig holds runtime configuration for one sweep.
type AppConfig struct {
	// Destination workspace.
	EagleAPIKey  string
	EagleBaseURL string

	// Upstream sensor platform.
	ITwinClientID     string
	ITwinClientSecret string
	ITwinAssetID      string
	ITwinBaseURL      string
	ITwinTokenURL     string

	// River gauge.
	NWPSBaseURL     string
	NWPSGaugeID     string
	RiverSeriesName string
	RiverFilePath   string

	// Manual transducer workbook.
	ManualWorkbookPath string
	ManualWells        []string

	// Sweep behaviour.
	DevicesPath      string
	WindowDays       int
	MaxWindowFetches int
	RequestTimeout   time.Duration
	UploadChunkSize  int
	DefaultStart     time.Time

	LogDirectory string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.EagleAPIKey = strings.TrimSpace(os.Getenv("EAGLEIO_API_KEY"))
	if cfg.EagleAPIKey == "" {
		return nil, fmt.Errorf("EAGLEIO_API_KEY is required")
	}
	cfg.EagleBaseURL = strings.TrimSpace(os.Getenv("EAGLEIO_BASE_URL"))

	cfg.ITwinClientID = strings.TrimSpace(os.Getenv("ITWIN_CLIENT_ID"))
	cfg.ITwinClientSecret = strings.TrimSpace(os.Getenv("ITWIN_CLIENT_SECRET"))
	if cfg.ITwinClientID == "" || cfg.ITwinClientSecret == "" {
		return nil, fmt.Errorf("ITWIN_CLIENT_ID and ITWIN_CLIENT_SECRET are required")
	}
	cfg.ITwinAssetID = strings.TrimSpace(os.Getenv("ITWIN_ASSET_ID"))
	cfg.ITwinBaseURL = strings.TrimSpace(os.Getenv("ITWIN_BASE_URL"))
	cfg.ITwinTokenURL = strings.TrimSpace(os.Getenv("ITWIN_TOKEN_URL"))

	cfg.NWPSBaseURL = strings.TrimSpace(os.Getenv("NWPS_BASE_URL"))
	cfg.NWPSGaugeID = getenvDefault("NWPS_GAUGE_ID", defaultGaugeID)
	cfg.RiverSeriesName = getenvDefault("RIVER_SERIES_NAME", "River Elevation")
	cfg.RiverFilePath = strings.TrimSpace(os.Getenv("RIVER_FILE_PATH"))

	cfg.ManualWorkbookPath = strings.TrimSpace(os.Getenv("MANUAL_WORKBOOK_PATH"))
	cfg.ManualWells = splitList(getenvDefault("MANUAL_WELLS", "Stilling Well"))

	cfg.DevicesPath = getenvDefault("DEVICES_PATH", defaultDevicesPath)
	cfg.WindowDays = getenvInt("SYNC_WINDOW_DAYS", defaultWindowDays)
	cfg.MaxWindowFetches = getenvInt("SYNC_MAX_WINDOW_FETCHES", defaultMaxWindowFetches)
	cfg.UploadChunkSize = getenvInt("SYNC_UPLOAD_CHUNK_SIZE", defaultUploadChunkSize)
	cfg.LogDirectory = getenvDefault("LOG_DIR", defaultLogDirectory)

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("SYNC_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	start := getenvDefault("SYNC_DEFAULT_START", DefaultStart)
	t, err := timeseries.ParseTime(start)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_DEFAULT_START: %w", err)
	}
	cfg.DefaultStart = t

	if cfg.WindowDays <= 0 {
		return nil, fmt.Errorf("SYNC_WINDOW_DAYS must be positive")
	}
	if cfg.MaxWindowFetches <= 0 {
		return nil, fmt.Errorf("SYNC_MAX_WINDOW_FETCHES must be positive")
	}
	if cfg.UploadChunkSize <= 0 {
		return nil, fmt.Errorf("SYNC_UPLOAD_CHUNK_SIZE must be positive")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
