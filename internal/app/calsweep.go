package app

import (
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viscotheque/spectackler/internal/config"
	"github.com/viscotheque/spectackler/internal/isotemp"
	"github.com/viscotheque/spectackler/internal/qti"
	"github.com/viscotheque/spectackler/internal/trace"
)

// persistTries bounds the retry loops around setpoint writes; the circulator
// sometimes drops a command while its display is busy.
const persistTries = 10

// persist retries op until it reports success. A hard error aborts
// immediately; op that keeps reporting not-done exhausts the attempts.
func persist(what string, op func() (bool, error)) error {
	for try := 0; try < persistTries; try++ {
		done, err := op()
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts", what, persistTries)
}

// RunCalSweep is the data collector behind the RTD calibration: it bounces
// the Isotemp bath between the configured low and high setpoints while
// logging the bath's internal and external probes and the QTI reference
// probe once per poll. Each leg dwells for the configured time after the
// reference probe crosses the setpoint, so both sweep directions get fully
// equilibrated tails. The resulting log feeds rtdcal.
func RunCalSweep(logPath string) error {
	cfg := config.Get()

	bath, err := isotemp.Open(cfg.BathPort, cfg.BathBaud)
	if err != nil {
		return fmt.Errorf("bath: %w", err)
	}
	defer bath.Close()
	log.Printf("calsweep: bath on %s", cfg.BathPort)

	ref, err := qti.Open(cfg.QTIPort, cfg.QTIBaud)
	if err != nil {
		return fmt.Errorf("reference probe: %w", err)
	}
	defer ref.Close()
	log.Printf("calsweep: reference probe on %s", cfg.QTIPort)

	w, err := trace.Create(logPath, []string{"T_int", "T_ext", "T_ref"})
	if err != nil {
		return err
	}
	defer w.Close()

	client, err := connectMQTT("calsweep")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// start the circulator with fine display resolution and a slow
	// proportional-only action, so the sweep creeps through the range
	// instead of overshooting
	err = persist("start circulator", func() (bool, error) {
		if err := bath.SetOn(true); err != nil {
			return false, err
		}
		return bath.On()
	})
	if err != nil {
		return err
	}
	if err := bath.SetResolution(2); err != nil {
		return err
	}
	for _, drive := range []isotemp.Drive{isotemp.Heat, isotemp.Cool} {
		if err := bath.SetPID(drive, cfg.SweepPBand, 0, 0); err != nil {
			return err
		}
	}

	start := time.Now()
	ticker := time.NewTicker(time.Duration(cfg.PollInterval) * time.Millisecond)
	defer ticker.Stop()
	dwell := time.Duration(cfg.SweepDwell) * time.Second

	for cyc := 0; cyc < cfg.SweepCycles; cyc++ {
		for _, target := range []float64{cfg.SweepTempLo, cfg.SweepTempHi} {
			log.Printf("calsweep: cycle %d/%d, setpoint %g C", cyc+1, cfg.SweepCycles, target)
			err := persist("set setpoint", func() (bool, error) {
				sp, err := bath.Setpoint()
				if err != nil {
					return false, err
				}
				if math.Abs(sp-target) < 0.01 {
					return true, nil
				}
				return false, bath.SetSetpoint(target)
			})
			if err != nil {
				return err
			}
			falling := target == cfg.SweepTempLo

			var reached time.Time
			for done := false; !done; {
				select {
				case <-sigCh:
					log.Println("calsweep: interrupted, shutting the bath down")
					return bath.SetOn(false)
				case <-ticker.C:
				}

				tInt, err := bath.TempInternal()
				if err != nil {
					return err
				}
				tExt, err := bath.TempExternal()
				if err != nil {
					return err
				}
				tRef, err := ref.Temp()
				if err != nil {
					return err
				}

				watch := time.Since(start).Seconds()
				if err := w.Append(time.Now(), watch, []float64{tInt, tExt, tRef}); err != nil {
					return err
				}
				publishReading(client, "calsweep", watch, map[string]float64{
					"T_int": tInt,
					"T_ext": tExt,
					"T_ref": tRef,
					"T_set": target,
				})

				crossed := tRef >= target
				if falling {
					crossed = tRef <= target
				}
				if reached.IsZero() && crossed {
					reached = time.Now()
					log.Printf("calsweep: reference crossed %g C, dwelling %s", target, dwell)
				}
				done = !reached.IsZero() && time.Since(reached) >= dwell
			}
		}
	}

	log.Println("calsweep: done, shutting the bath down")
	return bath.SetOn(false)
}
