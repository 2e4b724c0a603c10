// Package calib converts raw vibrating-wire piezometer readings into physical
// units using the Geokon polynomial calibration.
package calib

import (
	"fmt"

	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// psi to feet of water column, using 62.4 lb/ft³ unit weight of water.
const psiToFeet = 144.0 / 62.4

// Coefficients holds a transducer's factory calibration constants.
type Coefficients struct {
	R0    float64 // initial field zero vibrating wire reading, digits
	T0    float64 // initial field zero temperature, degrees C
	PolyA float64 // polynomial correction coefficient for psi
	PolyB float64 // polynomial correction coefficient for psi
	K     float64 // thermal factor, psi per degree C
}

// Sensor couples calibration coefficients with the transducer's installed
// position.
type Sensor struct {
	Coefficients
	GroundElev  float64 // ground surface elevation, ft
	SensorDepth float64 // transducer depth below ground surface, ft
}

// PressurePSI calculates pressure in psi from a single reading.
//
// P = A*R1^2 + B*R1 + C + K*(T - T0), where C solves the polynomial for
// P=0 at the initial field zero reading.
func PressurePSI(frequency, temperature float64, c Coefficients) float64 {
	zeroOffset := -c.PolyA*c.R0*c.R0 - c.PolyB*c.R0
	thermal := (temperature - c.T0) * c.K
	return c.PolyA*frequency*frequency + c.PolyB*frequency + zeroOffset + thermal
}

// HeadFeet calculates head in feet of water from a single reading.
func HeadFeet(frequency, temperature float64, c Coefficients) float64 {
	return PressurePSI(frequency, temperature, c) * psiToFeet
}

// WaterElevation calculates the water surface elevation in feet for a single
// reading, referenced to the sensor's installed elevation.
func WaterElevation(frequency, temperature float64, s Sensor) float64 {
	return HeadFeet(frequency, temperature, s.Coefficients) + (s.GroundElev - s.SensorDepth)
}

// WaterElevations derives a water_elevation batch from a raw batch of "f"
// (frequency, digits) and "T" (temperature, C) readings. It is element-wise
// and side-effect free; the output carries the input's timestamps in the same
// order.
func WaterElevations(raw *timeseries.Batch, s Sensor) (*timeseries.Batch, error) {
	if raw.Len() == 0 {
		return nil, timeseries.ErrEmptyBatch
	}

	out := timeseries.NewBatch()
	for _, ts := range raw.Timestamps() {
		row, _ := raw.Get(ts)
		freq, ok := row["f"]
		if !ok {
			return nil, fmt.Errorf("reading at %s has no frequency field", ts)
		}
		temp, ok := row["T"]
		if !ok {
			return nil, fmt.Errorf("reading at %s has no temperature field", ts)
		}
		out.SetValue(ts, "water_elevation", WaterElevation(freq, temp, s))
	}
	return out, nil
}
