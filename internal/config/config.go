// Package config loads the rig configuration from a KEY=VALUE text file.
//
// One file covers every tool: serial ports for the six instruments, the MQTT
// broker the collectors publish to, sweep parameters, and the two calibration
// stage blocks consumed by rtdcal. Tools read what they need and ignore the
// rest.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/viscotheque/spectackler/internal/cal"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker       string
	MQTTClientPrefix string
	MQTTTopicRoot    string

	// Monitor web server
	MonitorAddr string

	// Serial ports
	BathPort   string // Isotemp 6200 circulator
	BathBaud   uint
	NeslabPort string // NESLAB RTE circulator
	NeslabBaud uint
	PumpPort   string // ISCO 260D syringe pump
	PumpBaud   uint
	SpecPort   string // Shimadzu RF-5301
	SpecBaud   uint
	AuxMCUPort string // filter wheel / DHT microcontroller, empty disables
	AuxMCUBaud uint
	QTIPort    string // QTI reference thermometer
	QTIBaud    uint

	// Timing
	PollInterval int // milliseconds between instrument polls

	// Calibration sweep (calsweep)
	SweepTempLo float64 // low setpoint, degrees C
	SweepTempHi float64 // high setpoint, degrees C
	SweepDwell  int     // seconds to hold after the reference probe crosses
	SweepCycles int     // lo/hi bounces before shutdown
	SweepPBand  float64 // proportional band for the slow sweep, percent

	// Landscape collection (viscotheque)
	EquilWindow    int     // trailing stability window, seconds
	TempTolerance  float64 // degrees C
	PressTolerance float64 // bar
	ReadsPerState  int
	AutoShutter    bool    // open the shutter only around readings
	MaxDischarge   float64 // abort when the pump discharges more than this, mL
	CondenseTemp   float64 // switch the air valve below this external temp, degrees C

	// Bath probe trims: reference -> actual affine maps applied by the
	// NESLAB driver. A finished composite calibration from rtdcal is fed
	// back into collection through these keys.
	BathIntCal cal.Pair
	BathExtCal cal.Pair

	// Calibration stages for rtdcal
	CalStageA cal.StageConfig // reference -> internal
	CalStageB cal.StageConfig // external -> reference
}

// Global config instance protected for concurrent access. External code must
// use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config prefilled with the values that hold unless the
// file overrides them.
func defaults() *Config {
	return &Config{
		MQTTClientPrefix: "spectackler",
		MQTTTopicRoot:    "spectackler",
		MonitorAddr:      ":8080",
		BathBaud:         9600,
		NeslabBaud:       19200,
		PumpBaud:         9600,
		SpecBaud:         9600,
		AuxMCUBaud:       9600,
		QTIBaud:          9600,
		PollInterval:     1000,
		SweepTempLo:      5,
		SweepTempHi:      30,
		SweepDwell:       1200,
		SweepCycles:      3,
		SweepPBand:       0.1,
		EquilWindow:      60,
		TempTolerance:    0.1,
		PressTolerance:   1,
		ReadsPerState:    3,
		AutoShutter:      true,
		MaxDischarge:     20,
		CondenseTemp:     24,
		BathIntCal:       cal.Identity(),
		BathExtCal:       cal.Identity(),
		CalStageA: cal.StageConfig{
			Name:      "A",
			Predictor: "T_ref",
			Response:  "T_int",
			Window:    cal.OpenWindow(),
		},
		CalStageB: cal.StageConfig{
			Name:      "B",
			Predictor: "T_ext",
			Response:  "T_ref",
			Window:    cal.OpenWindow(),
		},
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_PREFIX":
		c.MQTTClientPrefix = value
	case "MQTT_TOPIC_ROOT":
		c.MQTTTopicRoot = value

	// Monitor
	case "MONITOR_HTTP_ADDR":
		c.MonitorAddr = value

	// Serial ports
	case "BATH_PORT":
		c.BathPort = value
	case "BATH_BAUD":
		return setBaud(&c.BathBaud, key, value)
	case "NESLAB_PORT":
		c.NeslabPort = value
	case "NESLAB_BAUD":
		return setBaud(&c.NeslabBaud, key, value)
	case "PUMP_PORT":
		c.PumpPort = value
	case "PUMP_BAUD":
		return setBaud(&c.PumpBaud, key, value)
	case "SPEC_PORT":
		c.SpecPort = value
	case "SPEC_BAUD":
		return setBaud(&c.SpecBaud, key, value)
	case "AUXMCU_PORT":
		c.AuxMCUPort = value
	case "AUXMCU_BAUD":
		return setBaud(&c.AuxMCUBaud, key, value)
	case "QTI_PORT":
		c.QTIPort = value
	case "QTI_BAUD":
		return setBaud(&c.QTIBaud, key, value)

	// Timing
	case "POLL_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL_MS %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", interval)
		}
		c.PollInterval = interval

	// Calibration sweep
	case "SWEEP_TEMP_LO":
		return setFloat(&c.SweepTempLo, key, value)
	case "SWEEP_TEMP_HI":
		return setFloat(&c.SweepTempHi, key, value)
	case "SWEEP_DWELL_SEC":
		dwell, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_DWELL_SEC %q: %w", value, err)
		}
		if dwell < 0 {
			return fmt.Errorf("SWEEP_DWELL_SEC must not be negative, got %d", dwell)
		}
		c.SweepDwell = dwell
	case "SWEEP_CYCLES":
		cycles, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_CYCLES %q: %w", value, err)
		}
		if cycles < 1 {
			return fmt.Errorf("SWEEP_CYCLES must be at least 1, got %d", cycles)
		}
		c.SweepCycles = cycles
	case "SWEEP_P_BAND":
		return setFloat(&c.SweepPBand, key, value)

	// Landscape collection
	case "EQUIL_WINDOW_SEC":
		window, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid EQUIL_WINDOW_SEC %q: %w", value, err)
		}
		if window < 1 {
			return fmt.Errorf("EQUIL_WINDOW_SEC must be at least 1, got %d", window)
		}
		c.EquilWindow = window
	case "TEMP_TOLERANCE":
		return setFloat(&c.TempTolerance, key, value)
	case "PRESS_TOLERANCE":
		return setFloat(&c.PressTolerance, key, value)
	case "READS_PER_STATE":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid READS_PER_STATE %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("READS_PER_STATE must be at least 1, got %d", n)
		}
		c.ReadsPerState = n
	case "AUTO_SHUTTER":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid AUTO_SHUTTER %q: %w", value, err)
		}
		c.AutoShutter = b
	case "MAX_DISCHARGE_ML":
		return setFloat(&c.MaxDischarge, key, value)
	case "CONDENSE_TEMP":
		return setFloat(&c.CondenseTemp, key, value)

	// Bath probe trims
	case "BATH_INT_CAL_SLOPE":
		return setFloat(&c.BathIntCal.Slope, key, value)
	case "BATH_INT_CAL_INTERCEPT":
		return setFloat(&c.BathIntCal.Intercept, key, value)
	case "BATH_EXT_CAL_SLOPE":
		return setFloat(&c.BathExtCal.Slope, key, value)
	case "BATH_EXT_CAL_INTERCEPT":
		return setFloat(&c.BathExtCal.Intercept, key, value)

	// Calibration stage A
	case "CAL_A_FILES":
		c.CalStageA.Files = splitList(value)
	case "CAL_A_PREDICTOR":
		c.CalStageA.Predictor = value
	case "CAL_A_RESPONSE":
		c.CalStageA.Response = value
	case "CAL_A_WATCH_MIN":
		return setFloat(&c.CalStageA.Window.WatchMin, key, value)
	case "CAL_A_WATCH_MAX":
		return setFloat(&c.CalStageA.Window.WatchMax, key, value)
	case "CAL_A_TEMP_MIN":
		return setFloat(&c.CalStageA.Window.TempMin, key, value)
	case "CAL_A_TEMP_MAX":
		return setFloat(&c.CalStageA.Window.TempMax, key, value)

	// Calibration stage B
	case "CAL_B_FILES":
		c.CalStageB.Files = splitList(value)
	case "CAL_B_PREDICTOR":
		c.CalStageB.Predictor = value
	case "CAL_B_RESPONSE":
		c.CalStageB.Response = value
	case "CAL_B_WATCH_MIN":
		return setFloat(&c.CalStageB.Window.WatchMin, key, value)
	case "CAL_B_WATCH_MAX":
		return setFloat(&c.CalStageB.Window.WatchMax, key, value)
	case "CAL_B_TEMP_MIN":
		return setFloat(&c.CalStageB.Window.TempMin, key, value)
	case "CAL_B_TEMP_MAX":
		return setFloat(&c.CalStageB.Window.TempMax, key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setBaud(dst *uint, key, value string) error {
	baud, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if baud == 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	*dst = uint(baud)
	return nil
}

func setFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = f
	return nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.MQTTTopicRoot == "" {
		return fmt.Errorf("MQTT_TOPIC_ROOT is required")
	}
	if c.SweepTempLo >= c.SweepTempHi {
		return fmt.Errorf("SWEEP_TEMP_LO (%g) must be below SWEEP_TEMP_HI (%g)", c.SweepTempLo, c.SweepTempHi)
	}
	if c.TempTolerance <= 0 {
		return fmt.Errorf("TEMP_TOLERANCE must be positive, got %g", c.TempTolerance)
	}
	if c.PressTolerance <= 0 {
		return fmt.Errorf("PRESS_TOLERANCE must be positive, got %g", c.PressTolerance)
	}
	if !c.BathIntCal.Finite() || c.BathIntCal.Slope == 0 {
		return fmt.Errorf("BATH_INT_CAL slope/intercept are not a usable calibration")
	}
	if !c.BathExtCal.Finite() || c.BathExtCal.Slope == 0 {
		return fmt.Errorf("BATH_EXT_CAL slope/intercept are not a usable calibration")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
