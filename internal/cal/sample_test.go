package cal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesOf(temps ...float64) Series {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := Series{Sensor: "T_ref"}
	for i, temp := range temps {
		s.Samples = append(s.Samples, Sample{
			Clock: base.Add(time.Duration(i) * time.Second),
			Watch: float64(i),
			Temp:  temp,
		})
	}
	return s
}

func TestTagDirections(t *testing.T) {
	tagged := Tag(seriesOf(10, 12, 12, 11, 15))

	want := []Direction{DirUndefined, DirAscending, DirDescending, DirDescending, DirAscending}
	require.Len(t, tagged.Samples, len(want))
	for i, dir := range want {
		assert.Equal(t, dir, tagged.Samples[i].Dir, "sample %d", i)
	}
}

func TestTagTieIsDescending(t *testing.T) {
	// a repeated temp during a heating sweep still tags descending; this
	// tie-break is load-bearing for reproducing published calibrations
	tagged := Tag(seriesOf(20, 21, 21, 22))
	assert.Equal(t, DirDescending, tagged.Samples[2].Dir)
}

func TestTagLeavesInputAlone(t *testing.T) {
	in := seriesOf(1, 2, 3)
	_ = Tag(in)
	for _, s := range in.Samples {
		assert.Equal(t, DirUndefined, s.Dir)
	}
}

func TestWindowFilter(t *testing.T) {
	s := seriesOf(5, 90.6, 15, 25, 35) // 90.6 is a probe-fault code

	w := Window{WatchMin: 1, WatchMax: 4, TempMin: 0, TempMax: 50}
	got := w.Filter(s)

	require.Len(t, got.Samples, 3)
	assert.Equal(t, 15.0, got.Samples[0].Temp)
	assert.Equal(t, 25.0, got.Samples[1].Temp)
	assert.Equal(t, 35.0, got.Samples[2].Temp)
	assert.Equal(t, "T_ref", got.Sensor)

	// filtering an already-windowed series changes nothing
	again := w.Filter(got)
	assert.Equal(t, got, again)
}

func TestOpenWindowKeepsEverything(t *testing.T) {
	s := seriesOf(-40, 0, 150)
	got := OpenWindow().Filter(s)
	assert.Equal(t, s.Samples, got.Samples)
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	s := seriesOf(10, 20, 30)
	w := Window{WatchMin: 0, WatchMax: 2, TempMin: 10, TempMax: 30}
	got := w.Filter(s)
	assert.Len(t, got.Samples, 3)
}
