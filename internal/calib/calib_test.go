package calib

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// First row of the LW-02S field sheet, checked against the manual
// calculation.
var lw02s = Coefficients{
	R0:    8964.40,
	T0:    3.6,
	PolyA: -2.49100e-08,
	PolyB: -0.01306,
	K:     -0.002295,
}

func TestPressurePSI(t *testing.T) {
	p := PressurePSI(7950.10, 17.6, lw02s)
	require.InDelta(t, 13.6420, p, 0.001)
}

func TestHeadFeet(t *testing.T) {
	h := HeadFeet(7950.10, 17.6, lw02s)
	require.InDelta(t, 31.481523, h, 0.0001)
}

// TestZeroReadingYieldsZeroPressure verifies the zero-offset construction: at
// the initial field zero reading and temperature, the polynomial collapses to
// zero pressure.
func TestZeroReadingYieldsZeroPressure(t *testing.T) {
	p := PressurePSI(lw02s.R0, lw02s.T0, lw02s)
	require.InDelta(t, 0, p, 1e-9)
}

// TestHeadIsConstantFactorOfPressure verifies the psi to feet-of-water
// conversion is exactly 144/62.4.
func TestHeadIsConstantFactorOfPressure(t *testing.T) {
	p := PressurePSI(7711, 17, lw02s)
	h := HeadFeet(7711, 17, lw02s)
	require.Equal(t, p*144/62.4, h)
}

func TestWaterElevations(t *testing.T) {
	sensor := Sensor{Coefficients: lw02s, GroundElev: 452.3, SensorDepth: 31.5}

	raw := timeseries.NewBatch()
	timestamps := []string{
		"2025-02-05T17:00:00.000Z",
		"2025-02-05T18:00:00.000Z",
		"2025-02-05T19:00:00.000Z",
	}
	frequencies := []float64{7711, 7712, 7713}
	temperatures := []float64{17, 18, 19}
	for i, ts := range timestamps {
		raw.SetValue(ts, "f", frequencies[i])
		raw.SetValue(ts, "T", temperatures[i])
	}

	derived, err := WaterElevations(raw, sensor)
	require.NoError(t, err)
	require.Equal(t, timestamps, derived.Timestamps())

	for i, ts := range timestamps {
		row, ok := derived.Get(ts)
		require.True(t, ok)
		want := HeadFeet(frequencies[i], temperatures[i], lw02s) + (452.3 - 31.5)
		require.Equal(t, want, row["water_elevation"])
	}
}

func TestWaterElevationsEmptyBatch(t *testing.T) {
	_, err := WaterElevations(timeseries.NewBatch(), Sensor{Coefficients: lw02s})
	require.ErrorIs(t, err, timeseries.ErrEmptyBatch)
}

func TestWaterElevationsMissingField(t *testing.T) {
	raw := timeseries.NewBatch()
	raw.SetValue("2025-02-05T17:00:00.000Z", "f", 7711)

	_, err := WaterElevations(raw, Sensor{Coefficients: lw02s})
	require.Error(t, err)
	require.Contains(t, err.Error(), "temperature")
}
