package cal

import (
	"encoding/json"
	"math"
	"slices"
	"time"
)

// Direction classifies a sample within its sensor's sweep.
type Direction int

const (
	// DirUndefined is reserved for the first sample of a series, which has no
	// predecessor to compare against.
	DirUndefined Direction = iota
	DirAscending
	DirDescending
)

func (d Direction) String() string {
	switch d {
	case DirAscending:
		return "ascending"
	case DirDescending:
		return "descending"
	default:
		return "undefined"
	}
}

// MarshalJSON writes the direction by name; the numeric values are an
// implementation detail.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Sample is one reading of one sensor. Clock orders samples across files;
// Watch is the file-local stopwatch and is never used for cross-file ordering.
type Sample struct {
	Clock time.Time
	Watch float64
	Temp  float64
	Dir   Direction
}

// Series is one sensor's samples in clock order.
type Series struct {
	Sensor  string
	Samples []Sample
}

// sortByClock orders samples by wall clock, keeping file order for ties.
func (s *Series) sortByClock() {
	slices.SortStableFunc(s.Samples, func(a, b Sample) int {
		return a.Clock.Compare(b.Clock)
	})
}

// Tag returns a copy of s with sweep directions assigned: ascending when a
// sample's temp is strictly greater than its predecessor's, descending
// otherwise. Equal temps deliberately tag descending; changing that tie-break
// would shift results against previously published calibrations. The first
// sample stays DirUndefined.
func Tag(s Series) Series {
	out := Series{Sensor: s.Sensor, Samples: slices.Clone(s.Samples)}
	for i := range out.Samples {
		if i == 0 {
			out.Samples[i].Dir = DirUndefined
			continue
		}
		if out.Samples[i].Temp > out.Samples[i-1].Temp {
			out.Samples[i].Dir = DirAscending
		} else {
			out.Samples[i].Dir = DirDescending
		}
	}
	return out
}

// Window crops a series to inclusive watch and temp bounds. The temp bounds
// discard sensor-fault readings such as disconnected-probe codes.
type Window struct {
	WatchMin, WatchMax float64
	TempMin, TempMax   float64
}

// OpenWindow returns a window that keeps everything.
func OpenWindow() Window {
	return Window{
		WatchMin: math.Inf(-1), WatchMax: math.Inf(1),
		TempMin: math.Inf(-1), TempMax: math.Inf(1),
	}
}

// Filter returns the subsequence of s inside the window, preserving order.
// An empty result is valid; it surfaces downstream at the regression step.
func (w Window) Filter(s Series) Series {
	out := Series{Sensor: s.Sensor}
	for _, smp := range s.Samples {
		if smp.Watch < w.WatchMin || smp.Watch > w.WatchMax {
			continue
		}
		if smp.Temp < w.TempMin || smp.Temp > w.TempMax {
			continue
		}
		out.Samples = append(out.Samples, smp)
	}
	return out
}
