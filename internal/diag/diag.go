// Package diag renders diagnostic plots for calibration stage results. The
// calibration core itself stays plot-free; everything here works from the
// StageResult a caller already has.
package diag

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/viscotheque/spectackler/internal/cal"
)

// FitPlot draws the matched predictor/response points split by sweep
// direction, overlays the per-direction least-squares lines and the averaged
// calibration, and saves the result as a PNG.
func FitPlot(res *cal.StageResult, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("stage %s: %s vs %s",
		res.Config.Name, res.Config.Response, res.Config.Predictor)
	p.X.Label.Text = res.Config.Predictor + " (deg C)"
	p.Y.Label.Text = res.Config.Response + " (deg C)"
	p.Add(plotter.NewGrid())

	var asc, desc plotter.XYs
	for _, m := range res.Matches {
		pt := plotter.XY{X: m.Predictor, Y: m.Response}
		if m.Dir == cal.DirAscending {
			asc = append(asc, pt)
		} else {
			desc = append(desc, pt)
		}
	}
	if err := plotutil.AddScatters(p, "ascending", asc, "descending", desc); err != nil {
		return fmt.Errorf("stage %s plot: %w", res.Config.Name, err)
	}

	for i, f := range res.Fits {
		line := plotter.NewFunction(f.Cal.At)
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s fit (n=%d)", f.Dir, f.N), line)
	}
	avg := plotter.NewFunction(res.Cal.At)
	avg.Width = vg.Points(2)
	p.Add(avg)
	p.Legend.Add(fmt.Sprintf("averaged %s", res.Cal), avg)
	p.Legend.Top = true

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

// TracePlot draws the stage's two windowed sensor traces against the watch
// clock and saves the result as a PNG.
func TracePlot(res *cal.StageResult, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("stage %s raw traces", res.Config.Name)
	p.X.Label.Text = "watch (s)"
	p.Y.Label.Text = "temp (deg C)"
	p.Add(plotter.NewGrid())

	toXYs := func(s cal.Series) plotter.XYs {
		xys := make(plotter.XYs, len(s.Samples))
		for i, smp := range s.Samples {
			xys[i] = plotter.XY{X: smp.Watch, Y: smp.Temp}
		}
		return xys
	}
	err := plotutil.AddScatters(p,
		res.Predictor.Sensor, toXYs(res.Predictor),
		res.Response.Sensor, toXYs(res.Response))
	if err != nil {
		return fmt.Errorf("stage %s trace plot: %w", res.Config.Name, err)
	}

	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}
