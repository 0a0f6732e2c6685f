// Package rf5301 drives a Shimadzu RF-5301PC spectrofluorophotometer. The
// instrument runs an ENQ/ACK handshake around STX-framed messages; each
// message body ends with a 0x83 trailer byte followed by an XOR checkbyte.
package rf5301

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Control bytes.
const (
	stx     = 0x02
	eot     = 0x04
	enq     = 0x85
	ack     = 0x86
	trailer = 0x83
)

// handshakeTries bounds the ENQ/ACK loop before a transaction.
const handshakeTries = 8

// checkbyte XORs a message body with the trailer.
func checkbyte(body []byte) byte {
	ck := byte(trailer)
	for _, b := range body {
		ck ^= b
	}
	return ck
}

// enframe appends the trailer and checkbyte to a message body.
func enframe(body []byte) []byte {
	return append(append(append([]byte{}, body...), trailer), checkbyte(body))
}

// parseIntensity converts the instrument's 24-bit signed hex intensity field
// to arbitrary units (reported range -100 to 1000).
func parseIntensity(hex string) (float64, error) {
	v, err := strconv.ParseUint(hex, 16, 24)
	if err != nil {
		return 0, fmt.Errorf("bad intensity field %q", hex)
	}
	raw := int64(v&0x7FFFFF) - int64(v&0x800000)
	return float64(raw) / 1000, nil
}

// wlField formats a wavelength as the protocol's four hex digits of
// tenth-nanometers.
func wlField(nm float64) string {
	return fmt.Sprintf("%04X", int(nm*10))
}

// Spec is a connection to one spectrofluorometer. Safe for concurrent use.
type Spec struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// New wraps an open serial stream.
func New(rw io.ReadWriteCloser) *Spec {
	return &Spec{port: rw, r: bufio.NewReader(rw)}
}

// Open connects to the spectrofluorometer.
func Open(port string, baud uint) (*Spec, error) {
	p, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, err
	}
	return New(p), nil
}

// Close closes the serial port.
func (s *Spec) Close() error {
	return s.port.Close()
}

func (s *Spec) writeByte(b byte) error {
	_, err := s.port.Write([]byte{b})
	return err
}

// handshake gets the instrument's attention: answer any pending ENQ with
// ACK, then send our own ENQ and wait for the ACK back.
func (s *Spec) handshake() error {
	for try := 0; try < handshakeTries; try++ {
		if err := s.writeByte(enq); err != nil {
			return err
		}
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case ack:
			return nil
		case enq:
			if err := s.writeByte(ack); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("no ACK from spectrofluorometer after %d tries", handshakeTries)
}

// readFrame reads one framed reply, skipping leading control bytes, and
// returns the verified body.
func (s *Spec) readFrame() ([]byte, error) {
	raw, err := s.r.ReadBytes(trailer)
	if err != nil {
		return nil, err
	}
	ck, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	body := raw[:len(raw)-1]
	for len(body) > 0 && (body[0] == stx || body[0] == ack || body[0] == enq) {
		body = body[1:]
	}
	if want := checkbyte(body); ck != want {
		return nil, fmt.Errorf("reply checkbyte %#02x, want %#02x", ck, want)
	}
	return body, nil
}

// transact runs one framed exchange and returns the reply body.
func (s *Spec) transact(body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.handshake(); err != nil {
		return nil, err
	}
	msg := append([]byte{stx}, enframe(body)...)
	if _, err := s.port.Write(msg); err != nil {
		return nil, err
	}
	reply, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	if err := s.writeByte(eot); err != nil {
		return nil, err
	}
	return reply, nil
}

// ShutterOpen opens the excitation shutter.
func (s *Spec) ShutterOpen() error {
	_, err := s.transact([]byte{0xCE, 0x31})
	return err
}

// ShutterClose closes the excitation shutter.
func (s *Spec) ShutterClose() error {
	_, err := s.transact([]byte{0xCE, 0x32})
	return err
}

// Shutter opens or closes the excitation shutter.
func (s *Spec) Shutter(open bool) error {
	if open {
		return s.ShutterOpen()
	}
	return s.ShutterClose()
}

// queryWavelength reads a monochromator position via its two-letter query.
func (s *Spec) queryWavelength(cmd string) (float64, error) {
	reply, err := s.transact([]byte(cmd))
	if err != nil {
		return 0, err
	}
	if len(reply) < len(cmd)+4 {
		return 0, fmt.Errorf("%s: short reply % x", cmd, reply)
	}
	field := string(reply[len(reply)-4:])
	v, err := strconv.ParseUint(field, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: bad wavelength field %q", cmd, field)
	}
	return float64(v) / 10, nil
}

// WavelengthEx reads the excitation monochromator position in nm.
func (s *Spec) WavelengthEx() (float64, error) {
	return s.queryWavelength("WX")
}

// WavelengthEm reads the emission monochromator position in nm.
func (s *Spec) WavelengthEm() (float64, error) {
	return s.queryWavelength("WM")
}

// SetWavelengths drives both monochromators, in nm.
func (s *Spec) SetWavelengths(ex, em float64) error {
	_, err := s.transact([]byte("WA" + wlField(ex) + wlField(em)))
	return err
}

// Laurdan GP band positions used throughout this rig's experiments.
const (
	LaurdanEx   = 340
	LaurdanBlue = 440
	LaurdanRed  = 490
)

// SetLaurdanBlue selects the 340/440 nm Laurdan blue channel.
func (s *Spec) SetLaurdanBlue() error {
	return s.SetWavelengths(LaurdanEx, LaurdanBlue)
}

// SetLaurdanRed selects the 340/490 nm Laurdan red channel.
func (s *Spec) SetLaurdanRed() error {
	return s.SetWavelengths(LaurdanEx, LaurdanRed)
}

// Intensity reads the current fluorescence intensity in instrument units.
func (s *Spec) Intensity() (float64, error) {
	reply, err := s.transact([]byte("FD"))
	if err != nil {
		return 0, err
	}
	if len(reply) < 6 {
		return 0, fmt.Errorf("short intensity reply % x", reply)
	}
	return parseIntensity(string(reply[len(reply)-6:]))
}
