package cal

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Match is one time-point where both sensors of a stage have a usable,
// direction-consistent reading. Matches are built by joining the two tagged
// series on the clock key; points where either side is untagged or the tags
// disagree never reach the regression.
type Match struct {
	Clock     time.Time
	Predictor float64
	Response  float64
	Dir       Direction
}

// MatchSeries joins a predictor and a response series on the wall clock.
// When a sensor logged twice in the same clock second the later sample wins.
func MatchSeries(pred, resp Series) []Match {
	predByClock := make(map[int64]Sample, len(pred.Samples))
	for _, s := range pred.Samples {
		predByClock[s.Clock.Unix()] = s
	}
	respByClock := make(map[int64]Sample, len(resp.Samples))
	for _, s := range resp.Samples {
		respByClock[s.Clock.Unix()] = s
	}

	keys := make([]int64, 0, len(predByClock))
	for k := range predByClock {
		if _, ok := respByClock[k]; ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var matches []Match
	for _, k := range keys {
		p, r := predByClock[k], respByClock[k]
		if p.Dir == DirUndefined || r.Dir == DirUndefined || p.Dir != r.Dir {
			continue
		}
		matches = append(matches, Match{
			Clock:     p.Clock,
			Predictor: p.Temp,
			Response:  r.Temp,
			Dir:       p.Dir,
		})
	}
	return matches
}

// DirectionFit is the least-squares line for one sweep direction.
type DirectionFit struct {
	Dir Direction `json:"direction"`
	N   int       `json:"n"`
	Cal Pair      `json:"cal"`
}

// fitOLS runs ordinary least squares of response on predictor.
func fitOLS(matches []Match) (Pair, error) {
	xs := make([]float64, len(matches))
	ys := make([]float64, len(matches))
	for i, m := range matches {
		xs[i] = m.Predictor
		ys[i] = m.Response
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	p := Pair{Intercept: intercept, Slope: slope}
	if !p.Finite() {
		return Pair{}, fmt.Errorf("fit over %d points: %w", len(matches), ErrInvalidCalibration)
	}
	return p, nil
}

// Fit partitions matches by sweep direction, fits each direction with at
// least two points, and averages the per-direction (intercept, slope) pairs
// element-wise with equal weight. Averaging the two independently fit lines
// cancels the first-order hysteresis bias between heating and cooling sweeps;
// weighting by group size would change published numbers and is intentionally
// not done. A direction with fewer than two points is omitted; when neither
// direction has enough points the fit fails with ErrInsufficientData.
func Fit(matches []Match) (Pair, []DirectionFit, error) {
	var fits []DirectionFit
	for _, dir := range []Direction{DirAscending, DirDescending} {
		var group []Match
		for _, m := range matches {
			if m.Dir == dir {
				group = append(group, m)
			}
		}
		if len(group) < 2 {
			continue
		}
		p, err := fitOLS(group)
		if err != nil {
			return Pair{}, nil, fmt.Errorf("%s: %w", dir, err)
		}
		fits = append(fits, DirectionFit{Dir: dir, N: len(group), Cal: p})
	}

	if len(fits) == 0 {
		return Pair{}, nil, fmt.Errorf("%d matched points: %w", len(matches), ErrInsufficientData)
	}

	var avg Pair
	for _, f := range fits {
		avg.Intercept += f.Cal.Intercept
		avg.Slope += f.Cal.Slope
	}
	avg.Intercept /= float64(len(fits))
	avg.Slope /= float64(len(fits))
	return avg, fits, nil
}
