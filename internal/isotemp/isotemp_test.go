package isotemp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumeric(t *testing.T) {
	testCases := []struct {
		reply string
		want  float64
	}{
		{"25.01C", 25.01},
		{"-3.2 C", -3.2},
		{"100", 100},
		{"0.10%", 0.1},
	}
	for _, tc := range testCases {
		got, err := numeric(tc.reply)
		assert.NoError(t, err, tc.reply)
		assert.InDelta(t, tc.want, got, 1e-12, tc.reply)
	}
}

func TestNumericRejectsNonNumeric(t *testing.T) {
	for _, reply := range []string{"", "ERROR", "-.-"} {
		_, err := numeric(reply)
		assert.Error(t, err, reply)
	}
}
