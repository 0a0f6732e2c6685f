// Package cal computes the rig's composite two-stage RTD calibration.
//
// Stage A relates the reference thermometer to the bath's internal sensor
// (reference → actual), stage B relates the external cuvette RTD to the
// reference (external → reference). Each stage is fit from sweep logs as one
// ordinary least-squares line per sweep direction, the two directions averaged
// to cancel thermal hysteresis, and the two stages are then composed into a
// single external → actual affine map.
package cal

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for the three stage failure kinds.
var (
	// ErrLoad marks an unreadable sweep file or one lacking a required column.
	ErrLoad = errors.New("sweep data load failed")
	// ErrInsufficientData marks fewer than two matched points in every sweep
	// direction.
	ErrInsufficientData = errors.New("insufficient data for regression")
	// ErrInvalidCalibration marks a non-finite fitted or composed coefficient.
	ErrInvalidCalibration = errors.New("non-finite calibration coefficient")
)

// Pair is one affine calibration y = Slope*x + Intercept.
type Pair struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

// Identity returns the unity calibration that maps every value to itself.
func Identity() Pair {
	return Pair{Intercept: 0, Slope: 1}
}

// At evaluates the map at x (reference → actual on a bath trim).
func (p Pair) At(x float64) float64 {
	return p.Slope*x + p.Intercept
}

// Inverse evaluates the inverse map at y (actual → reference on a bath trim).
func (p Pair) Inverse(y float64) float64 {
	return (y - p.Intercept) / p.Slope
}

// Finite reports whether both coefficients are finite numbers.
func (p Pair) Finite() bool {
	return !math.IsNaN(p.Intercept) && !math.IsInf(p.Intercept, 0) &&
		!math.IsNaN(p.Slope) && !math.IsInf(p.Slope, 0)
}

func (p Pair) String() string {
	return fmt.Sprintf("(intercept=%.6f, slope=%.6f)", p.Intercept, p.Slope)
}

// Compose chains two affine stages into one: the result applies inner first,
// then outer, so Compose(a, b).At(x) == a.At(b.At(x)). For the rig this turns
// stage A (reference→actual) over stage B (external→reference) into the
// composite external→actual map.
func Compose(outer, inner Pair) (Pair, error) {
	if !outer.Finite() || !inner.Finite() {
		return Pair{}, fmt.Errorf("compose: %w", ErrInvalidCalibration)
	}
	c := Pair{
		Slope:     outer.Slope * inner.Slope,
		Intercept: outer.Slope*inner.Intercept + outer.Intercept,
	}
	if !c.Finite() {
		return Pair{}, fmt.Errorf("compose: %w", ErrInvalidCalibration)
	}
	return c, nil
}
