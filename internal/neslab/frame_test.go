package neslab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	// sum 0x21, inverted low byte 0xDE
	assert.Equal(t, byte(0xDE), Checksum([]byte{0x00, 0x01, 0x20, 0x00}))
	assert.Equal(t, byte(0xFF), Checksum(nil))
}

func TestEnframe(t *testing.T) {
	testCases := []struct {
		name string
		cmd  byte
		dat  []byte
		want []byte
	}{
		{
			name: "read internal temp",
			cmd:  cmdReadTempInt,
			want: []byte{0xCA, 0x00, 0x01, 0x20, 0x00, 0xDE},
		},
		{
			name: "set setpoint 25.00",
			cmd:  cmdSetSetpoint,
			dat:  encodeInt16(2500),
			want: []byte{0xCA, 0x00, 0x01, 0xF0, 0x02, 0x09, 0xC4, 0x3F},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Enframe(tc.cmd, tc.dat))
		})
	}
}

func TestDecodeTemp(t *testing.T) {
	testCases := []struct {
		name string
		b    []byte
		want float64
	}{
		{"tenths qualifier", []byte{0x11, 0x00, 0xFA}, 25.0},
		{"hundredths qualifier", []byte{0x00, 0x09, 0xC4}, 25.0},
		{"negative tenths", []byte{0x10, 0xFF, 0x38}, -20.0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeTemp(tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}

	_, err := decodeTemp([]byte{0x11, 0x00})
	assert.Error(t, err)
}

func TestEncodeInt16RoundTrip(t *testing.T) {
	for _, v := range []int16{0, 1, -1, 2500, -2000, 32767, -32768} {
		b := encodeInt16(v)
		require.Len(t, b, 2)
		assert.Equal(t, v, int16(uint16(b[0])<<8|uint16(b[1])), "value %d", v)
	}
}

func TestDecodeStatus(t *testing.T) {
	s, err := DecodeStatus([]byte{0x00, 0x00, 0x00, 0x01, 0x80})
	require.NoError(t, err)
	require.Len(t, s, len(statusFlags))

	assert.True(t, s["unit_on"])
	assert.True(t, s["pump_on"])
	for name, set := range s {
		if name != "unit_on" && name != "pump_on" {
			assert.False(t, set, name)
		}
	}

	_, err = DecodeStatus([]byte{0x00})
	assert.Error(t, err)
}
