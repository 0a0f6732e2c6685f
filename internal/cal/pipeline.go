package cal

import (
	"errors"
	"fmt"
	"log/slog"
)

// StageConfig describes one calibration stage: which sweep logs to read,
// which column predicts which, and the crop window. It is handed to Run
// explicitly; nothing here is read from global state.
type StageConfig struct {
	Name      string
	Files     []string
	Predictor string
	Response  string
	Window    Window
}

func (c StageConfig) validate() error {
	if c.Name == "" {
		return errors.New("stage has no name")
	}
	if len(c.Files) == 0 {
		return errors.New("no sweep files configured")
	}
	if c.Predictor == "" || c.Response == "" {
		return errors.New("predictor and response columns must be set")
	}
	if c.Predictor == c.Response {
		return fmt.Errorf("predictor and response are both %q", c.Predictor)
	}
	return nil
}

// StageResult is everything Run derives for one stage: the windowed, tagged
// input series, the matched points, the per-direction fits, and the averaged
// calibration. Callers print, plot, and compose from here.
type StageResult struct {
	Config      StageConfig
	Predictor   Series
	Response    Series
	Matches     []Match
	Fits        []DirectionFit
	Cal         Pair
	SkippedRows int
}

// Run executes one stage: load, window, tag, match, fit. Errors carry the
// stage name and match the package sentinels via errors.Is. Stages are
// independent; a caller running both calibration stages should report a
// failure and still run the other.
func Run(cfg StageConfig, logger *slog.Logger) (*StageResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("stage %s: %w", cfg.Name, err)
	}

	series, skipped, err := LoadSeries(cfg.Files, []string{cfg.Predictor, cfg.Response})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w: %w", cfg.Name, ErrLoad, err)
	}
	if skipped > 0 {
		logger.Warn("skipped unusable rows", "stage", cfg.Name, "rows", skipped)
	}
	logger.Info("loaded sweep data",
		"stage", cfg.Name,
		"files", len(cfg.Files),
		cfg.Predictor, len(series[cfg.Predictor].Samples),
		cfg.Response, len(series[cfg.Response].Samples))

	pred := Tag(cfg.Window.Filter(series[cfg.Predictor]))
	resp := Tag(cfg.Window.Filter(series[cfg.Response]))
	logger.Debug("windowed",
		"stage", cfg.Name,
		cfg.Predictor, len(pred.Samples),
		cfg.Response, len(resp.Samples))

	matches := MatchSeries(pred, resp)
	nAsc, nDesc := 0, 0
	for _, m := range matches {
		if m.Dir == DirAscending {
			nAsc++
		} else {
			nDesc++
		}
	}
	logger.Info("matched sensor pairs",
		"stage", cfg.Name,
		"matches", len(matches),
		"ascending", nAsc,
		"descending", nDesc)

	cal, fits, err := Fit(matches)
	if err != nil {
		return nil, fmt.Errorf("stage %s (%s -> %s): %w", cfg.Name, cfg.Predictor, cfg.Response, err)
	}
	for _, f := range fits {
		logger.Info("direction fit",
			"stage", cfg.Name,
			"direction", f.Dir.String(),
			"n", f.N,
			"intercept", f.Cal.Intercept,
			"slope", f.Cal.Slope)
	}

	return &StageResult{
		Config:      cfg,
		Predictor:   pred,
		Response:    resp,
		Matches:     matches,
		Fits:        fits,
		Cal:         cal,
		SkippedRows: skipped,
	}, nil
}
