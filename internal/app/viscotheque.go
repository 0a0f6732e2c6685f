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
	"github.com/viscotheque/spectackler/internal/isco"
	"github.com/viscotheque/spectackler/internal/isotemp"
	"github.com/viscotheque/spectackler/internal/rf5301"
	"github.com/viscotheque/spectackler/internal/statetab"
	"github.com/viscotheque/spectackler/internal/trace"
)

// trailPoint is one poll in the trailing equilibration window.
type trailPoint struct {
	watch float64
	tInt  float64
	tExt  float64
	pAct  float64
}

// trail keeps the last window seconds of polls.
type trail struct {
	window float64
	points []trailPoint
}

func (t *trail) add(p trailPoint) {
	t.points = append(t.points, p)
	cutoff := p.watch - t.window
	i := 0
	for i < len(t.points) && t.points[i].watch < cutoff {
		i++
	}
	t.points = t.points[i:]
}

// spans reports whether the window covers its full length yet.
func (t *trail) spans() bool {
	return len(t.points) >= 2 &&
		t.points[len(t.points)-1].watch-t.points[0].watch >= t.window
}

// stable reports whether every point in the window has tInt within tolT of
// tSet and pAct within tolP of pSet.
func (t *trail) stable(tSet, tolT, pSet, tolP float64) bool {
	if !t.spans() {
		return false
	}
	for _, p := range t.points {
		if math.Abs(p.tInt-tSet) > tolT || math.Abs(p.pAct-pSet) > tolP {
			return false
		}
	}
	return true
}

// slowVarsDiffer reports whether two states of a program differ in either
// slow setpoint (T_set or P_set). Indices outside the program count as
// different, so the first state always equilibrates and the last state
// closes out the shutter.
func slowVarsDiffer(states *statetab.Table, i, j int) bool {
	if i < 0 || j < 0 || i >= len(states.Rows) || j >= len(states.Rows) {
		return true
	}
	ti, _ := states.Value(i, "T_set")
	tj, _ := states.Value(j, "T_set")
	pi, _ := states.Value(i, "P_set")
	pj, _ := states.Value(j, "P_set")
	return ti != tj || pi != pj
}

// RunViscotheque collects fluorescence intensity across a
// temperature-pressure landscape: for each state in the program it sets the
// bath and pump, selects the wavelength pair, waits for a trailing window of
// stability in both temperature and pressure, then takes the configured
// number of readings. With auto-shutter enabled the excitation shutter opens
// only around readings to limit photobleaching. A pump discharge beyond the
// configured limit aborts the run; the air valve on the pump's digital
// output fights condensation whenever the cuvette is cold.
func RunViscotheque(logPath, statePath string) error {
	cfg := config.Get()

	states, err := readStates(statePath, "T_set", "P_set", "wl_ex", "wl_em")
	if err != nil {
		return err
	}
	log.Printf("viscotheque: %d states", len(states.Rows))

	bath, err := isotemp.Open(cfg.BathPort, cfg.BathBaud)
	if err != nil {
		return fmt.Errorf("bath: %w", err)
	}
	defer bath.Close()
	log.Println("viscotheque: temperature controller OK")

	pump, err := isco.Open(cfg.PumpPort, cfg.PumpBaud)
	if err != nil {
		return fmt.Errorf("pump: %w", err)
	}
	defer pump.Close()
	log.Println("viscotheque: pressure controller OK")

	spec, err := rf5301.Open(cfg.SpecPort, cfg.SpecBaud)
	if err != nil {
		return fmt.Errorf("spectrofluorometer: %w", err)
	}
	defer spec.Close()
	log.Println("viscotheque: fluorospectrometer OK")

	w, err := trace.Create(logPath, []string{
		"T_set", "P_set", "wl_ex", "wl_em", "T_int", "T_ext", "P_act", "intensity",
	})
	if err != nil {
		return err
	}
	defer w.Close()

	client, err := connectMQTT("viscotheque")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// close the shutter on any exit path; a stuck-open shutter bleaches
	// the sample
	defer spec.ShutterClose()

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
	if err := pump.Clear(); err != nil {
		return err
	}
	if err := pump.Run(); err != nil {
		return err
	}
	if !cfg.AutoShutter {
		if err := spec.ShutterOpen(); err != nil {
			return err
		}
	}

	volStart, err := pump.VolGet()
	if err != nil {
		return err
	}
	log.Printf("viscotheque: starting cylinder volume %.2f mL", volStart)

	start := time.Now()
	ticker := time.NewTicker(time.Duration(cfg.PollInterval) * time.Millisecond)
	defer ticker.Stop()

	var (
		prevEx, prevEm float64
		airOn          bool
	)

	for i := range states.Rows {
		tSet, _ := states.Value(i, "T_set")
		pSet, _ := states.Value(i, "P_set")
		wlEx, _ := states.Value(i, "wl_ex")
		wlEm, _ := states.Value(i, "wl_em")
		log.Printf("viscotheque: state %d/%d: T=%g C P=%g ex=%g nm em=%g nm",
			i+1, len(states.Rows), tSet, pSet, wlEx, wlEm)

		// slow setpoints change only when the program says so; the
		// equilibration wait is skipped when they did not
		changed := slowVarsDiffer(states, i, i-1)

		err := persist("set temperature", func() (bool, error) {
			sp, err := bath.Setpoint()
			if err != nil {
				return false, err
			}
			if math.Abs(sp-tSet) < 0.01 {
				return true, nil
			}
			return false, bath.SetSetpoint(tSet)
		})
		if err != nil {
			return err
		}
		if err := pump.PressSet(pSet); err != nil {
			return err
		}

		if wlEx != prevEx || wlEm != prevEm {
			switch {
			case wlEx == rf5301.LaurdanEx && wlEm == rf5301.LaurdanBlue:
				log.Println("viscotheque: wavelengths to Laurdan blue")
				err = spec.SetLaurdanBlue()
			case wlEx == rf5301.LaurdanEx && wlEm == rf5301.LaurdanRed:
				log.Println("viscotheque: wavelengths to Laurdan red")
				err = spec.SetLaurdanRed()
			default:
				err = spec.SetWavelengths(wlEx, wlEm)
			}
			if err != nil {
				return err
			}
			prevEx, prevEm = wlEx, wlEm
		}

		trails := trail{window: float64(cfg.EquilWindow)}
		readings := 0

		for readings <= cfg.ReadsPerState {
			select {
			case <-sigCh:
				log.Println("viscotheque: interrupted")
				pump.Clear()
				return bath.SetOn(false)
			case <-ticker.C:
			}

			// safety first: a discharging cylinder means a leak
			vol, err := pump.VolGet()
			if err != nil {
				return err
			}
			if volStart-vol > cfg.MaxDischarge {
				pump.Stop()
				return fmt.Errorf("pump has discharged %.1f mL (limit %g): aborting",
					volStart-vol, cfg.MaxDischarge)
			}

			tInt, err := bath.TempInternal()
			if err != nil {
				return err
			}
			tExt, err := bath.TempExternal()
			if err != nil {
				return err
			}
			pAct, err := pump.PressGet()
			if err != nil {
				return err
			}
			intensity, err := spec.Intensity()
			if err != nil {
				return err
			}

			watch := time.Since(start).Seconds()
			row := []float64{tSet, pSet, wlEx, wlEm, tInt, tExt, pAct, intensity}
			if err := w.Append(time.Now(), watch, row); err != nil {
				return err
			}
			publishReading(client, "viscotheque", watch, map[string]float64{
				"T_set": tSet, "P_set": pSet, "wl_ex": wlEx, "wl_em": wlEm,
				"T_int": tInt, "T_ext": tExt, "P_act": pAct, "intensity": intensity,
			})

			// air valve fights condensation on a cold cuvette
			wantAir := tExt < cfg.CondenseTemp
			if wantAir != airOn {
				log.Printf("viscotheque: air valve %v", wantAir)
				if err := pump.SetDigital(0, wantAir); err != nil {
					return err
				}
				airOn = wantAir
			}

			trails.add(trailPoint{watch: watch, tInt: tInt, tExt: tExt, pAct: pAct})
			if changed && !trails.stable(tSet, cfg.TempTolerance, pSet, cfg.PressTolerance) {
				continue
			}

			if readings == 0 && cfg.AutoShutter && changed {
				if err := spec.ShutterOpen(); err != nil {
					return err
				}
			}
			if readings > 0 {
				log.Printf("viscotheque: reading %d/%d: %.3f AU", readings, cfg.ReadsPerState, intensity)
			}
			readings++
		}

		// the shutter stays open across wavelength-only transitions (the
		// blue/red alternation); it closes only ahead of the next
		// equilibration wait, which is also what reopens it
		if cfg.AutoShutter && slowVarsDiffer(states, i, i+1) {
			if err := spec.ShutterClose(); err != nil {
				return err
			}
		}
	}

	log.Println("viscotheque: landscape done, shutting down")
	if err := pump.Clear(); err != nil {
		return err
	}
	return bath.SetOn(false)
}
