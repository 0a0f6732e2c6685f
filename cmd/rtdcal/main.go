// ./cmd/rtdcal/main.go
//
// Composite two-stage RTD calibration for the rig's temperature chain.
//
// Stage A relates the QTI reference probe to the bath's internal RTD
// (reference -> actual), stage B relates the external cuvette RTD to the
// reference (external -> reference). Each stage is fit from calsweep logs as
// one least-squares line per sweep direction, averaged to cancel hysteresis;
// the two averaged stages compose into the single external -> actual map
// that collectors feed back to the bath via the BATH_*_CAL config keys.
//
// Run:
//
//	go run ./cmd/rtdcal -config spectackler_config.txt -out rtd_calibration.json -plots plots/
//
// The two stages are independent: a failed stage is reported and the other
// still runs; composition happens only when both succeed.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/viscotheque/spectackler/internal/cal"
	"github.com/viscotheque/spectackler/internal/config"
	"github.com/viscotheque/spectackler/internal/diag"
)

// stageResultJSON is one stage's slice of the result file.
type stageResultJSON struct {
	Predictor string             `json:"predictor"`
	Response  string             `json:"response"`
	Matches   int                `json:"matches"`
	Fits      []cal.DirectionFit `json:"fits"`
	Cal       cal.Pair           `json:"cal"`
}

type resultJSON struct {
	GeneratedAt time.Time        `json:"generated_at"`
	StageA      *stageResultJSON `json:"stage_a,omitempty"`
	StageB      *stageResultJSON `json:"stage_b,omitempty"`
	Composite   *cal.Pair        `json:"composite,omitempty"`
}

func main() {
	configPath := flag.String("config", "spectackler_config.txt", "rig configuration file")
	outPath := flag.String("out", "", "write the calibration result as JSON to this path")
	plotsDir := flag.String("plots", "", "write diagnostic PNGs into this directory")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	resA := runStage(cfg.CalStageA, logger, *plotsDir)
	resB := runStage(cfg.CalStageB, logger, *plotsDir)

	result := resultJSON{GeneratedAt: time.Now()}
	if resA != nil {
		result.StageA = stageJSON(resA)
	}
	if resB != nil {
		result.StageB = stageJSON(resB)
	}

	if resA != nil && resB != nil {
		composite, err := cal.Compose(resA.Cal, resB.Cal)
		if err != nil {
			log.Fatalf("composition failed: %v", err)
		}
		result.Composite = &composite

		fmt.Println("\n=== Composite calibration ===")
		fmt.Printf("%s -> %s: %s\n", cfg.CalStageB.Predictor, cfg.CalStageA.Response, composite)
		fmt.Println("\nspot check (composite vs stage A over stage B):")
		for _, x := range []float64{0, 5, 10, 20, 30, 40} {
			fmt.Printf("  %6.1f -> %10.4f  (chained %10.4f)\n",
				x, composite.At(x), resA.Cal.At(resB.Cal.At(x)))
		}
	}

	if *outPath != "" {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("result marshal error: %v", err)
		}
		if err := os.WriteFile(*outPath, payload, 0644); err != nil {
			log.Fatalf("failed to write %s: %v", *outPath, err)
		}
		fmt.Printf("\nresult written to %s\n", *outPath)
	}

	if resA == nil || resB == nil {
		os.Exit(1)
	}
}

// runStage runs one calibration stage, prints its fits, and renders its
// plots. A failed stage returns nil so the caller can continue with the
// other.
func runStage(cfg cal.StageConfig, logger *slog.Logger, plotsDir string) *cal.StageResult {
	fmt.Printf("=== Stage %s: %s -> %s ===\n", cfg.Name, cfg.Predictor, cfg.Response)
	res, err := cal.Run(cfg, logger)
	if err != nil {
		switch {
		case errors.Is(err, cal.ErrLoad):
			log.Printf("stage %s: sweep data unusable: %v", cfg.Name, err)
		case errors.Is(err, cal.ErrInsufficientData):
			log.Printf("stage %s: not enough matched points to fit: %v", cfg.Name, err)
		default:
			log.Printf("stage %s failed: %v", cfg.Name, err)
		}
		return nil
	}

	for _, f := range res.Fits {
		fmt.Printf("  %-10s n=%-5d %s\n", f.Dir, f.N, f.Cal)
	}
	fmt.Printf("  %-10s        %s\n", "averaged", res.Cal)

	if plotsDir != "" {
		if err := os.MkdirAll(plotsDir, 0755); err != nil {
			log.Printf("stage %s: cannot create plot dir: %v", cfg.Name, err)
			return res
		}
		fit := filepath.Join(plotsDir, fmt.Sprintf("stage_%s_fit.png", cfg.Name))
		if err := diag.FitPlot(res, fit); err != nil {
			log.Printf("stage %s: fit plot: %v", cfg.Name, err)
		}
		traces := filepath.Join(plotsDir, fmt.Sprintf("stage_%s_traces.png", cfg.Name))
		if err := diag.TracePlot(res, traces); err != nil {
			log.Printf("stage %s: trace plot: %v", cfg.Name, err)
		}
	}
	return res
}

func stageJSON(res *cal.StageResult) *stageResultJSON {
	return &stageResultJSON{
		Predictor: res.Config.Predictor,
		Response:  res.Config.Response,
		Matches:   len(res.Matches),
		Fits:      res.Fits,
		Cal:       res.Cal,
	}
}
