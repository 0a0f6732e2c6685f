package isco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	assert.Equal(t, "1R006REMOTE1B\r", Frame("REMOTE", 0, 1))
	assert.Equal(t, "1R002G&7E\r", Frame("G&", 0, 1))
}

func TestChecksumWrapsAtZero(t *testing.T) {
	// an empty body sums to zero; the checksum must be 00, not 100
	assert.Equal(t, "00", Checksum(""))
}

func TestParseFrameRoundTrip(t *testing.T) {
	for _, msg := range []string{"REMOTE", "RUN", "PRESS=250.0", "G&"} {
		got, err := parseFrame(Frame(msg, 0, 1))
		require.NoError(t, err, msg)
		assert.Equal(t, msg, got)
	}
}

func TestParseFrameRejectsCorruption(t *testing.T) {
	testCases := []struct {
		name  string
		frame string
	}{
		{"empty", ""},
		{"flipped byte", "1R006REMOTF1B\r"},
		{"bad checksum", "1R006REMOTE00\r"},
		{"bad length field", "1R0ZZREMOTE1B\r"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFrame(tc.frame)
			assert.Error(t, err)
		})
	}
}

func TestStatusField(t *testing.T) {
	v, err := statusField("G&=1523,0.00,STOPPED")
	require.NoError(t, err)
	assert.InDelta(t, 1523.0, v, 1e-12)

	v, err = statusField("VOLUME=102.36")
	require.NoError(t, err)
	assert.InDelta(t, 102.36, v, 1e-12)

	_, err = statusField("OK")
	assert.Error(t, err)
	_, err = statusField("G&=,")
	assert.Error(t, err)
}
