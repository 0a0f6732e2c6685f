// Package neslab drives a NESLAB RTE series circulator over its framed
// binary RS-232 protocol: lead byte 0xCA, two address bytes, command byte,
// data length, data, checksum. Temperatures travel as a three-byte quantity
// whose first byte qualifies the scaling.
package neslab

import "fmt"

// Lead character for point-to-point RS-232 frames.
const lead = 0xCA

// Checksum is the bitwise inversion of the low byte of the sum. The lead
// character is excluded from the sum.
func Checksum(b []byte) byte {
	var sum int
	for _, v := range b {
		sum += int(v)
	}
	return byte(sum) ^ 0xFF
}

// Enframe builds one command frame for the bath at the point-to-point
// address (0x00 0x01).
func Enframe(cmd byte, dat []byte) []byte {
	frame := make([]byte, 0, 6+len(dat))
	frame = append(frame, lead, 0x00, 0x01, cmd, byte(len(dat)))
	frame = append(frame, dat...)
	return append(frame, Checksum(frame[1:]))
}

// decodeTemp converts the bath's three-byte temperature format. The first
// byte is a precision qualifier: 0x10/0x11 mean tenths, anything else
// hundredths. The remaining two bytes are a big-endian signed integer.
func decodeTemp(b []byte) (float64, error) {
	if len(b) != 3 {
		return 0, fmt.Errorf("temperature reply is %d bytes, want 3", len(b))
	}
	v := float64(int16(uint16(b[1])<<8 | uint16(b[2])))
	if b[0] == 0x10 || b[0] == 0x11 {
		return v / 10, nil
	}
	return v / 100, nil
}

// encodeInt16 packs a value as a big-endian signed 16-bit quantity, the data
// format every numeric set command uses.
func encodeInt16(v int16) []byte {
	return []byte{byte(uint16(v) >> 8), byte(uint16(v))}
}

// statusFlags names the RTE-7 controller status bits in wire order, per
// Table 2 of the manual. The 5-byte array carries 40 bits; the leading three
// are unused padding.
var statusFlags = []string{
	"rtd1_open_fault",
	"rtd1_short_fault",
	"rtd1_open",
	"rtd1_short",
	"rtd3_open_fault",
	"rtd3_short_fault",
	"rtd3_open",
	"rtd3_short",
	"rtd2_open_fault",
	"rtd2_short_fault",
	"rtd2_open_warn",
	"rtd2_short_warn",
	"rtd2_open",
	"rtd2_short",
	"refrig_hi_temp",
	"htc_fault",
	"hi_fixed_temp_fault",
	"lo_fixed_temp_fault",
	"hi_temp_fault",
	"lo_temp_fault",
	"lo_level_fault",
	"hi_temp_warn",
	"lo_temp_warn",
	"lo_level_warn",
	"buzzer_on",
	"alarm_muted",
	"unit_faulted",
	"unit_stopping",
	"unit_on",
	"pump_on",
	"comp_on",
	"heat_on",
	"rtd2_controlling",
	"heat_led_flashing",
	"heat_led_on",
	"cool_led_flashing",
	"cool_led_on",
}

// Status is the decoded controller status array.
type Status map[string]bool

// DecodeStatus expands the 5-byte status array into named flags.
func DecodeStatus(b []byte) (Status, error) {
	if len(b) != 5 {
		return nil, fmt.Errorf("status reply is %d bytes, want 5", len(b))
	}
	pad := len(b)*8 - len(statusFlags)
	s := make(Status, len(statusFlags))
	for i, name := range statusFlags {
		bit := i + pad
		s[name] = b[bit/8]&(1<<(7-bit%8)) != 0
	}
	return s, nil
}
