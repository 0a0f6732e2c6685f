package rf5301

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Frames captured from the vendor software, trailer and checkbyte included.
func TestEnframeMatchesCapturedFrames(t *testing.T) {
	testCases := []struct {
		name string
		body []byte
		want []byte
	}{
		{"shutter open", []byte{0xCE, 0x31}, []byte{0xCE, 0x31, 0x83, 0x7C}},
		{"shutter close", []byte{0xCE, 0x32}, []byte{0xCE, 0x32, 0x83, 0x7F}},
		{"excitation query", []byte("WX"), []byte{0x57, 0x58, 0x83, 0x8C}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, enframe(tc.body))
		})
	}
}

func TestWlField(t *testing.T) {
	assert.Equal(t, "0D48", wlField(340))  // 3400 tenth-nm
	assert.Equal(t, "1130", wlField(440))  // 4400 tenth-nm
	assert.Equal(t, "1324", wlField(490))  // 4900 tenth-nm
	assert.Equal(t, "0FA0", wlField(400))
}

func TestParseIntensity(t *testing.T) {
	testCases := []struct {
		hex  string
		want float64
	}{
		{"000000", 0},
		{"0003E8", 1},        // 1000 -> 1.000 AU
		{"0F4240", 1000},     // full scale
		{"FFFC18", -1},       // -1000 -> -1.000 AU
		{"FE7960", -100},     // bottom of range
	}
	for _, tc := range testCases {
		got, err := parseIntensity(tc.hex)
		require.NoError(t, err, tc.hex)
		assert.InDelta(t, tc.want, got, 1e-9, tc.hex)
	}

	_, err := parseIntensity("XYZ")
	assert.Error(t, err)
}
