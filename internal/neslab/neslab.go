package neslab

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/viscotheque/spectackler/internal/cal"
)

// Read and write command bytes.
const (
	cmdReadTempInt  = 0x20
	cmdReadTempExt  = 0x21
	cmdReadSetpoint = 0x70
	cmdReadFaultLo  = 0x40
	cmdReadFaultHi  = 0x60
	cmdReadStatus   = 0x09
	cmdSetSetpoint  = 0xF0
	cmdSetFaultLo   = 0xC0
	cmdSetFaultHi   = 0xE0
	cmdSetStatus    = 0x81

	// PID registers: base command plus a 0 (heat) or 3 (cool) drive shift.
	cmdReadP = 0x71
	cmdReadI = 0x72
	cmdReadD = 0x73
	cmdSetP  = 0xF1
	cmdSetI  = 0xF2
	cmdSetD  = 0xF3
)

// Drive selects the heater or chiller PID channel.
type Drive byte

const (
	Heat Drive = 0
	Cool Drive = 3
)

// statusNoChange leaves a switch untouched in a status-set command.
const statusNoChange = 0x02

// queryTries bounds the resend loop on a corrupted reply.
const queryTries = 3

// Controller is a connection to one bath. Safe for concurrent use.
//
// CalInt and CalExt are reference-to-actual trims for the two probes, unity
// until a composite calibration from rtdcal is configured. TempActual and
// SetSetpointActual speak calibrated temperatures through them; the plain
// getters and setters speak the bath's own scale.
type Controller struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader

	CalInt cal.Pair
	CalExt cal.Pair
}

// New wraps an open serial stream with unity probe trims.
func New(rw io.ReadWriteCloser) *Controller {
	return &Controller{
		port:   rw,
		r:      bufio.NewReader(rw),
		CalInt: cal.Identity(),
		CalExt: cal.Identity(),
	}
}

// Open connects to the bath.
func Open(port string, baud uint) (*Controller, error) {
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
func (c *Controller) Close() error {
	return c.port.Close()
}

// query sends one command frame and returns the reply's data bytes. A reply
// with a mismatched leader or checksum is retried a few times; the protocol
// has no sequence numbers, so a resend is the only recovery.
func (c *Controller) query(cmd byte, dat []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := Enframe(cmd, dat)
	var lastErr error
	for try := 0; try < queryTries; try++ {
		if _, err := c.port.Write(frame); err != nil {
			return nil, fmt.Errorf("command %#02x: %w", cmd, err)
		}

		// lead, two address bytes, command, data length
		head := make([]byte, 5)
		if _, err := io.ReadFull(c.r, head); err != nil {
			return nil, fmt.Errorf("command %#02x: %w", cmd, err)
		}
		rest := make([]byte, int(head[4])+1)
		if _, err := io.ReadFull(c.r, rest); err != nil {
			return nil, fmt.Errorf("command %#02x: %w", cmd, err)
		}

		reply := append(head, rest...)
		data := reply[5 : len(reply)-1]
		ck := reply[len(reply)-1]

		if string(reply[:4]) != string(frame[:4]) {
			lastErr = fmt.Errorf("command %#02x: reply leader % x does not match", cmd, reply[:4])
			continue
		}
		if want := Checksum(reply[1 : len(reply)-1]); ck != want {
			lastErr = fmt.Errorf("command %#02x: checksum %#02x, want %#02x", cmd, ck, want)
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w after %d tries", lastErr, queryTries)
}

func (c *Controller) queryTemp(cmd byte) (float64, error) {
	data, err := c.query(cmd, nil)
	if err != nil {
		return 0, err
	}
	return decodeTemp(data)
}

// setTemp writes a scaled numeric register and confirms the echoed value.
func (c *Controller) setTemp(cmd byte, value, scale float64) error {
	data, err := c.query(cmd, encodeInt16(int16(math.Round(value*scale))))
	if err != nil {
		return err
	}
	got, err := decodeTemp(data)
	if err != nil {
		return err
	}
	if math.Abs(got-value) > 0.5/scale {
		return fmt.Errorf("command %#02x: wrote %g, bath echoed %g", cmd, value, got)
	}
	return nil
}

// TempInternal reads the internal probe in the bath's own scale.
func (c *Controller) TempInternal() (float64, error) {
	return c.queryTemp(cmdReadTempInt)
}

// TempExternal reads the external probe in the bath's own scale.
func (c *Controller) TempExternal() (float64, error) {
	return c.queryTemp(cmdReadTempExt)
}

// TempActual reads the chosen probe and applies its trim.
func (c *Controller) TempActual(ext bool) (float64, error) {
	if ext {
		t, err := c.TempExternal()
		if err != nil {
			return 0, err
		}
		return c.CalExt.At(t), nil
	}
	t, err := c.TempInternal()
	if err != nil {
		return 0, err
	}
	return c.CalInt.At(t), nil
}

// Setpoint reads the temperature setpoint.
func (c *Controller) Setpoint() (float64, error) {
	return c.queryTemp(cmdReadSetpoint)
}

// SetSetpoint writes the temperature setpoint in the bath's own scale.
func (c *Controller) SetSetpoint(t float64) error {
	return c.setTemp(cmdSetSetpoint, t, 100)
}

// SetSetpointActual writes a calibrated setpoint through the trim of the
// probe controlling the loop.
func (c *Controller) SetSetpointActual(t float64, ext bool) error {
	trim := c.CalInt
	if ext {
		trim = c.CalExt
	}
	return c.SetSetpoint(trim.Inverse(t))
}

// FaultLo reads the low-temperature fault limit.
func (c *Controller) FaultLo() (float64, error) {
	return c.queryTemp(cmdReadFaultLo)
}

// SetFaultLo writes the low-temperature fault limit.
func (c *Controller) SetFaultLo(t float64) error {
	return c.setTemp(cmdSetFaultLo, t, 10)
}

// FaultHi reads the high-temperature fault limit.
func (c *Controller) FaultHi() (float64, error) {
	return c.queryTemp(cmdReadFaultHi)
}

// SetFaultHi writes the high-temperature fault limit.
func (c *Controller) SetFaultHi(t float64) error {
	return c.setTemp(cmdSetFaultHi, t, 10)
}

// Status reads and decodes the controller status array.
func (c *Controller) Status() (Status, error) {
	data, err := c.query(cmdReadStatus, nil)
	if err != nil {
		return nil, err
	}
	return DecodeStatus(data)
}

// Switches selects controller switches for Configure. Nil fields are left
// unchanged on the hardware.
type Switches struct {
	UnitOn        *bool
	ProbeExt      *bool
	Faults        *bool
	Mute          *bool
	AutoRestart   *bool
	PrecisionHi   *bool
	FullRangeCool *bool
	Remote        *bool
}

// Configure writes the status-set command. The bath echoes the accepted
// switch bytes; a mismatch means it refused the change.
func (c *Controller) Configure(s Switches) error {
	fields := []*bool{
		s.UnitOn, s.ProbeExt, s.Faults, s.Mute,
		s.AutoRestart, s.PrecisionHi, s.FullRangeCool, s.Remote,
	}
	dat := make([]byte, len(fields))
	for i, f := range fields {
		switch {
		case f == nil:
			dat[i] = statusNoChange
		case *f:
			dat[i] = 1
		default:
			dat[i] = 0
		}
	}
	echo, err := c.query(cmdSetStatus, dat)
	if err != nil {
		return err
	}
	if string(echo) != string(dat) {
		return fmt.Errorf("status set: bath echoed % x, want % x", echo, dat)
	}
	return nil
}

// SetOn starts or stops the circulator.
func (c *Controller) SetOn(on bool) error {
	return c.Configure(Switches{UnitOn: &on})
}

// On reports whether the circulator is running.
func (c *Controller) On() (bool, error) {
	s, err := c.Status()
	if err != nil {
		return false, err
	}
	return s["unit_on"], nil
}

// ExternalProbe reports whether the external probe controls the loop.
func (c *Controller) ExternalProbe() (bool, error) {
	s, err := c.Status()
	if err != nil {
		return false, err
	}
	return s["rtd2_controlling"], nil
}

// SetExternalProbe selects the external probe (true) or the internal one for
// loop control.
func (c *Controller) SetExternalProbe(on bool) error {
	return c.Configure(Switches{ProbeExt: &on})
}

// PID reads the proportional, integral and derivative bands for one drive.
// p is in percent, i in repeats/min, d in minutes.
func (c *Controller) PID(drive Drive) (p, i, d float64, err error) {
	if p, err = c.queryTemp(cmdReadP + byte(drive)); err != nil {
		return
	}
	if i, err = c.queryTemp(cmdReadI + byte(drive)); err != nil {
		return
	}
	d, err = c.queryTemp(cmdReadD + byte(drive))
	return
}

// SetPID writes the proportional, integral and derivative bands for one
// drive.
func (c *Controller) SetPID(drive Drive, p, i, d float64) error {
	if err := c.setTemp(cmdSetP+byte(drive), p, 10); err != nil {
		return err
	}
	if err := c.setTemp(cmdSetI+byte(drive), i, 100); err != nil {
		return err
	}
	return c.setTemp(cmdSetD+byte(drive), d, 10)
}
