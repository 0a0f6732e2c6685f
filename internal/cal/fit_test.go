package cal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchAt(sec int, x, y float64, dir Direction) Match {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return Match{
		Clock:     base.Add(time.Duration(sec) * time.Second),
		Predictor: x,
		Response:  y,
		Dir:       dir,
	}
}

func TestMatchSeriesJoinsOnClock(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

	pred := Series{Sensor: "T_ref", Samples: []Sample{
		{Clock: at(0), Temp: 10, Dir: DirUndefined},
		{Clock: at(1), Temp: 11, Dir: DirAscending},
		{Clock: at(2), Temp: 12, Dir: DirAscending},
		{Clock: at(3), Temp: 11, Dir: DirDescending},
		{Clock: at(5), Temp: 9, Dir: DirDescending}, // no response at t=5
	}}
	resp := Series{Sensor: "T_int", Samples: []Sample{
		{Clock: at(0), Temp: 20, Dir: DirUndefined},
		{Clock: at(1), Temp: 21, Dir: DirAscending},
		{Clock: at(2), Temp: 22, Dir: DirDescending}, // tags disagree at t=2
		{Clock: at(3), Temp: 21, Dir: DirDescending},
		{Clock: at(4), Temp: 20, Dir: DirDescending}, // no predictor at t=4
	}}

	matches := MatchSeries(pred, resp)

	require.Len(t, matches, 2)
	assert.Equal(t, at(1), matches[0].Clock)
	assert.Equal(t, 11.0, matches[0].Predictor)
	assert.Equal(t, 21.0, matches[0].Response)
	assert.Equal(t, DirAscending, matches[0].Dir)
	assert.Equal(t, at(3), matches[1].Clock)
	assert.Equal(t, DirDescending, matches[1].Dir)
}

func TestMatchSeriesLastSampleWinsPerSecond(t *testing.T) {
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	pred := Series{Samples: []Sample{
		{Clock: clock, Temp: 10, Dir: DirAscending},
		{Clock: clock, Temp: 10.5, Dir: DirAscending},
	}}
	resp := Series{Samples: []Sample{
		{Clock: clock, Temp: 20, Dir: DirAscending},
	}}

	matches := MatchSeries(pred, resp)
	require.Len(t, matches, 1)
	assert.Equal(t, 10.5, matches[0].Predictor)
}

func TestFitRecoversExactLine(t *testing.T) {
	// y = 2x + 3 in both directions: each direction fits the same line and
	// so does the average
	var matches []Match
	for i, x := range []float64{10, 15, 20, 25} {
		matches = append(matches, matchAt(i, x, 2*x+3, DirAscending))
	}
	for i, x := range []float64{25, 20, 15, 10} {
		matches = append(matches, matchAt(10+i, x, 2*x+3, DirDescending))
	}

	avg, fits, err := Fit(matches)
	require.NoError(t, err)
	require.Len(t, fits, 2)

	assert.Equal(t, DirAscending, fits[0].Dir)
	assert.Equal(t, 4, fits[0].N)
	assert.Equal(t, DirDescending, fits[1].Dir)
	assert.InDelta(t, 2.0, avg.Slope, 1e-9)
	assert.InDelta(t, 3.0, avg.Intercept, 1e-9)
}

func TestFitAveragesDirectionsEqually(t *testing.T) {
	// ascending fits y = x, descending fits y = x + 1, with more descending
	// points; the average must still split the difference evenly
	matches := []Match{
		matchAt(0, 10, 10, DirAscending),
		matchAt(1, 20, 20, DirAscending),
		matchAt(2, 20, 21, DirDescending),
		matchAt(3, 15, 16, DirDescending),
		matchAt(4, 10, 11, DirDescending),
		matchAt(5, 5, 6, DirDescending),
	}

	avg, fits, err := Fit(matches)
	require.NoError(t, err)
	require.Len(t, fits, 2)
	assert.InDelta(t, 1.0, avg.Slope, 1e-9)
	assert.InDelta(t, 0.5, avg.Intercept, 1e-9)
}

func TestFitSingleDirection(t *testing.T) {
	// one descending point is not enough to fit; the result degrades to the
	// ascending line alone
	matches := []Match{
		matchAt(0, 10, 23, DirAscending),
		matchAt(1, 20, 43, DirAscending),
		matchAt(2, 15, 33, DirAscending),
		matchAt(3, 14, 31, DirDescending),
	}

	avg, fits, err := Fit(matches)
	require.NoError(t, err)
	require.Len(t, fits, 1)
	assert.Equal(t, DirAscending, fits[0].Dir)
	assert.InDelta(t, 2.0, avg.Slope, 1e-9)
	assert.InDelta(t, 3.0, avg.Intercept, 1e-9)
}

func TestFitInsufficientData(t *testing.T) {
	testCases := []struct {
		name    string
		matches []Match
	}{
		{"no matches", nil},
		{"one point per direction", []Match{
			matchAt(0, 10, 20, DirAscending),
			matchAt(1, 10, 20, DirDescending),
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Fit(tc.matches)
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}
}

func TestFitZeroVariancePredictor(t *testing.T) {
	// a stuck reference probe reports one value all sweep; the regression
	// is degenerate and must fail as an invalid calibration, not produce
	// NaN coefficients
	matches := []Match{
		matchAt(0, 25, 24.1, DirAscending),
		matchAt(1, 25, 24.3, DirAscending),
		matchAt(2, 25, 24.2, DirDescending),
		matchAt(3, 25, 24.0, DirDescending),
	}

	_, _, err := Fit(matches)
	assert.ErrorIs(t, err, ErrInvalidCalibration)
}

func TestOscillatingSweepEndToEnd(t *testing.T) {
	// reference oscillates 10 -> 20 -> 10 -> 20; the response reads
	// 2*ref - 1. Tagging, matching, and fitting must recover (-1, 2).
	ref := []float64{10, 12, 14, 16, 18, 20, 18, 16, 14, 12, 10, 12, 14, 16, 18, 20}
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	pred := Series{Sensor: "T_ref"}
	resp := Series{Sensor: "T_int"}
	for i, x := range ref {
		clock := base.Add(time.Duration(i) * time.Second)
		pred.Samples = append(pred.Samples, Sample{Clock: clock, Watch: float64(i), Temp: x})
		resp.Samples = append(resp.Samples, Sample{Clock: clock, Watch: float64(i), Temp: 2*x - 1})
	}

	matches := MatchSeries(Tag(pred), Tag(resp))
	require.NotEmpty(t, matches)

	avg, fits, err := Fit(matches)
	require.NoError(t, err)
	require.Len(t, fits, 2)
	assert.InDelta(t, 2.0, avg.Slope, 1e-9)
	assert.InDelta(t, -1.0, avg.Intercept, 1e-9)
}
