package app

import (
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viscotheque/spectackler/internal/auxmcu"
	"github.com/viscotheque/spectackler/internal/config"
	"github.com/viscotheque/spectackler/internal/neslab"
	"github.com/viscotheque/spectackler/internal/statetab"
	"github.com/viscotheque/spectackler/internal/trace"
)

// readStates loads a state program from a file path, or from stdin when the
// path is "-".
func readStates(path string, required ...string) (*statetab.Table, error) {
	if path == "-" {
		return statetab.Read(os.Stdin, required...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := statetab.Read(f, required...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// RunBathScan drives the NESLAB bath through a temperature program, holding
// each state for its hold time while logging both bath probes once per poll.
// When the aux MCU is configured the chamber's ambient temperature, humidity
// and derived dew point are logged too.
func RunBathScan(logPath, statePath string) error {
	cfg := config.Get()

	states, err := readStates(statePath, "T_set", statetab.HoldColumn)
	if err != nil {
		return err
	}
	log.Printf("bathscan: %d states", len(states.Rows))

	bath, err := neslab.Open(cfg.NeslabPort, cfg.NeslabBaud)
	if err != nil {
		return fmt.Errorf("bath: %w", err)
	}
	defer bath.Close()
	bath.CalInt = cfg.BathIntCal
	bath.CalExt = cfg.BathExtCal
	log.Printf("bathscan: bath on %s", cfg.NeslabPort)

	var ambient *auxmcu.MCU
	columns := []string{"state", "T_set", "T_int", "T_ext"}
	if cfg.AuxMCUPort != "" {
		ambient, err = auxmcu.Open(cfg.AuxMCUPort, cfg.AuxMCUBaud)
		if err != nil {
			return fmt.Errorf("aux MCU: %w", err)
		}
		defer ambient.Close()
		columns = append(columns, "temp_dht", "hum_dht", "dewpt")
		log.Printf("bathscan: aux MCU on %s", cfg.AuxMCUPort)
	}

	w, err := trace.Create(logPath, columns)
	if err != nil {
		return err
	}
	defer w.Close()

	client, err := connectMQTT("bathscan")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := bath.SetOn(true); err != nil {
		return err
	}

	start := time.Now()
	ticker := time.NewTicker(time.Duration(cfg.PollInterval) * time.Millisecond)
	defer ticker.Stop()

	for i := range states.Rows {
		tSet, _ := states.Value(i, "T_set")
		hold, _ := states.Value(i, statetab.HoldColumn)
		log.Printf("bathscan: state %d/%d, %g C for %g s", i+1, len(states.Rows), tSet, hold)

		err := persist("set setpoint", func() (bool, error) {
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

		stateEnd := time.Now().Add(time.Duration(hold * float64(time.Second)))
		for time.Now().Before(stateEnd) {
			select {
			case <-sigCh:
				log.Println("bathscan: interrupted, shutting the bath down")
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
			values := []float64{float64(i), tSet, tInt, tExt}
			published := map[string]float64{
				"state": float64(i), "T_set": tSet, "T_int": tInt, "T_ext": tExt,
			}

			if ambient != nil {
				temp, err := ambient.Temp()
				if err != nil {
					return err
				}
				rh, err := ambient.Humidity()
				if err != nil {
					return err
				}
				dew := auxmcu.DewPoint(temp, rh)
				values = append(values, temp, rh, dew)
				published["temp_dht"], published["hum_dht"], published["dewpt"] = temp, rh, dew
			}

			watch := time.Since(start).Seconds()
			if err := w.Append(time.Now(), watch, values); err != nil {
				return err
			}
			publishReading(client, "bathscan", watch, published)
		}
	}

	log.Println("bathscan: program done, shutting the bath down")
	return bath.SetOn(false)
}
