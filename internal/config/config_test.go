package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spectackler_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
# rig setup
MQTT_BROKER=tcp://localhost:1883
MQTT_TOPIC_ROOT=rig
BATH_PORT=/dev/ttyUSB0
NESLAB_PORT=/dev/ttyUSB1
NESLAB_BAUD=19200
QTI_PORT=/dev/ttyACM0
POLL_INTERVAL_MS=500

SWEEP_TEMP_LO=5
SWEEP_TEMP_HI=30
SWEEP_DWELL_SEC=1200
SWEEP_CYCLES=4

BATH_EXT_CAL_SLOPE=1.341635
BATH_EXT_CAL_INTERCEPT=-5.255324

CAL_A_FILES=sweep1.tsv, sweep2.tsv
CAL_A_PREDICTOR=T_ref
CAL_A_RESPONSE=T_int
CAL_A_WATCH_MIN=600
CAL_A_TEMP_MAX=45
CAL_B_FILES=sweep1.tsv
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "rig", cfg.MQTTTopicRoot)
	assert.Equal(t, "/dev/ttyUSB0", cfg.BathPort)
	assert.Equal(t, uint(19200), cfg.NeslabBaud)
	assert.Equal(t, 500, cfg.PollInterval)
	assert.Equal(t, 4, cfg.SweepCycles)

	assert.InDelta(t, 1.341635, cfg.BathExtCal.Slope, 1e-12)
	assert.InDelta(t, -5.255324, cfg.BathExtCal.Intercept, 1e-12)

	assert.Equal(t, []string{"sweep1.tsv", "sweep2.tsv"}, cfg.CalStageA.Files)
	assert.Equal(t, "T_ref", cfg.CalStageA.Predictor)
	assert.Equal(t, "T_int", cfg.CalStageA.Response)
	assert.Equal(t, 600.0, cfg.CalStageA.Window.WatchMin)
	assert.Equal(t, 45.0, cfg.CalStageA.Window.TempMax)
	// unset bounds stay open
	assert.True(t, math.IsInf(cfg.CalStageA.Window.WatchMax, 1))
	assert.True(t, math.IsInf(cfg.CalStageA.Window.TempMin, -1))
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=tcp://localhost:1883\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "spectackler", cfg.MQTTTopicRoot)
	assert.Equal(t, uint(9600), cfg.BathBaud)
	assert.Equal(t, 1000, cfg.PollInterval)
	assert.True(t, cfg.AutoShutter)
	// probe trims default to unity
	assert.Equal(t, 21.3, cfg.BathIntCal.At(21.3))
	// stage defaults carry the canonical sensor columns
	assert.Equal(t, "T_ref", cfg.CalStageA.Predictor)
	assert.Equal(t, "T_ext", cfg.CalStageB.Predictor)
}

func TestLoadRejectsBadInput(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"missing broker", "BATH_PORT=/dev/ttyUSB0\n"},
		{"unknown key", "MQTT_BROKER=tcp://localhost:1883\nBOGUS_KEY=1\n"},
		{"malformed line", "MQTT_BROKER=tcp://localhost:1883\nno equals sign here\n"},
		{"bad baud", "MQTT_BROKER=tcp://localhost:1883\nBATH_BAUD=fast\n"},
		{"zero poll interval", "MQTT_BROKER=tcp://localhost:1883\nPOLL_INTERVAL_MS=0\n"},
		{"inverted sweep range", "MQTT_BROKER=tcp://localhost:1883\nSWEEP_TEMP_LO=30\nSWEEP_TEMP_HI=5\n"},
		{"zero trim slope", "MQTT_BROKER=tcp://localhost:1883\nBATH_EXT_CAL_SLOPE=0\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
