package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Device describes one piezometer: its upstream sensor reference and the
// calibration needed to derive water elevation from its readings. The
// registry is loaded once per run and treated as read-only.
type Device struct {
	Name        string
	SensorRef   string
	R0          float64
	T0          float64
	PolyA       float64
	PolyB       float64
	K           float64
	GroundElev  float64
	SensorDepth float64
}

// deviceRecord is the registry file shape. Coefficient fields are pointers
// so that a missing key is distinguishable from a legitimate zero.
type deviceRecord struct {
	ID          *string  `json:"id" validate:"required"`
	R0          *float64 `json:"r0" validate:"required"`
	T0          *float64 `json:"t0" validate:"required"`
	PolyA       *float64 `json:"poly_a" validate:"required"`
	PolyB       *float64 `json:"poly_b" validate:"required"`
	K           *float64 `json:"k" validate:"required"`
	GroundElev  *float64 `json:"ground_elev" validate:"required"`
	SensorDepth *float64 `json:"sensor_depth" validate:"required"`
}

// LoadDevices reads the device registry JSON file, keyed by device name.
// Every device must carry a complete coefficient set; a missing key is a
// registry error, not a runtime default. Devices are returned sorted by name
// so the sweep order is stable.
func LoadDevices(path string) ([]Device, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device registry: %w", err)
	}

	var records map[string]deviceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse device registry %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("device registry %s is empty", path)
	}

	devices := make([]Device, 0, len(records))
	for name, rec := range records {
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("device %q has invalid calibration info: %w", name, err)
		}
		devices = append(devices, Device{
			Name:        name,
			SensorRef:   *rec.ID,
			R0:          *rec.R0,
			T0:          *rec.T0,
			PolyA:       *rec.PolyA,
			PolyB:       *rec.PolyB,
			K:           *rec.K,
			GroundElev:  *rec.GroundElev,
			SensorDepth: *rec.SensorDepth,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}
