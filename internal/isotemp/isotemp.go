// Package isotemp drives a Fisher Isotemp 6200 circulator over its
// carriage-return terminated ASCII serial protocol (9600 8N1). Set commands
// answer "OK" on success; read commands answer the value with a unit suffix.
package isotemp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Drive selects the heater or chiller PID channel.
type Drive byte

const (
	Heat Drive = 'H'
	Cool Drive = 'C'
)

// Controller is a connection to one circulator. Safe for concurrent use;
// every command/reply exchange runs under the lock.
type Controller struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// New wraps an open serial stream.
func New(rw io.ReadWriteCloser) *Controller {
	return &Controller{port: rw, r: bufio.NewReader(rw)}
}

// Open connects to the circulator and verifies it answers the firmware
// checksum query like an Isotemp 6200 (four characters).
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
	c := New(p)
	sum, err := c.command("RSUM")
	if err != nil {
		p.Close()
		return nil, err
	}
	if len(sum) != 4 {
		p.Close()
		return nil, fmt.Errorf("%s is not behaving like an Isotemp 6200 (RSUM %q)", port, sum)
	}
	return c, nil
}

// Close closes the serial port.
func (c *Controller) Close() error {
	return c.port.Close()
}

// command sends one command and returns the trimmed reply line.
func (c *Controller) command(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.port, cmd+"\r"); err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	line, err := c.r.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	return strings.TrimSpace(line), nil
}

// set issues a set command and checks for the "OK" acknowledgement. Anything
// else is the hardware's error string.
func (c *Controller) set(cmd string) error {
	reply, err := c.command(cmd)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%s: circulator answered %q", cmd, reply)
	}
	return nil
}

// readFloat issues a read command and parses the numeric part of the reply,
// dropping the unit suffix the hardware appends.
func (c *Controller) readFloat(cmd string) (float64, error) {
	reply, err := c.command(cmd)
	if err != nil {
		return 0, err
	}
	v, err := numeric(reply)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return v, nil
}

// numeric extracts the number from a reply like "25.01C" or "-3.2 C".
func numeric(reply string) (float64, error) {
	kept := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, reply)
	if kept == "" {
		return 0, fmt.Errorf("no numeric value in reply %q", reply)
	}
	v, err := strconv.ParseFloat(kept, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable reply %q", reply)
	}
	return v, nil
}

// On reports whether the circulator is running.
func (c *Controller) On() (bool, error) {
	reply, err := c.command("RO")
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(reply, "1"), nil
}

// SetOn starts or stops the circulator.
func (c *Controller) SetOn(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return c.set(fmt.Sprintf("SO %d", v))
}

// TempInternal reads the bath's internal probe.
func (c *Controller) TempInternal() (float64, error) {
	return c.readFloat("RT")
}

// TempExternal reads the external (cuvette) probe.
func (c *Controller) TempExternal() (float64, error) {
	return c.readFloat("RT2")
}

// Setpoint reads the displayed setpoint.
func (c *Controller) Setpoint() (float64, error) {
	return c.readFloat("RS")
}

// SetSetpoint sets the displayed setpoint in the current temperature unit.
func (c *Controller) SetSetpoint(t float64) error {
	return c.set(fmt.Sprintf("SS %.2f", t))
}

// ExternalProbe reports whether the external probe controls the loop.
func (c *Controller) ExternalProbe() (bool, error) {
	reply, err := c.command("RE")
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(reply, "1"), nil
}

// SetExternalProbe selects the external probe (true) or the internal one for
// loop control.
func (c *Controller) SetExternalProbe(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return c.set(fmt.Sprintf("SE %d", v))
}

// SetResolution sets the displayed temperature resolution in decimal places.
func (c *Controller) SetResolution(places int) error {
	return c.set(fmt.Sprintf("STR %d", places))
}

// SetPumpSpeed sets the circulation pump speed (L/H on this model).
func (c *Controller) SetPumpSpeed(speed string) error {
	return c.set("SPS " + speed)
}

// PID reads the proportional, integral and derivative bands for one drive.
func (c *Controller) PID(drive Drive) (p, i, d float64, err error) {
	if p, err = c.readFloat(fmt.Sprintf("RP%c", drive)); err != nil {
		return
	}
	if i, err = c.readFloat(fmt.Sprintf("RI%c", drive)); err != nil {
		return
	}
	d, err = c.readFloat(fmt.Sprintf("RD%c", drive))
	return
}

// SetPID sets the proportional, integral and derivative bands for one drive.
// p is in percent, i in repeats/min, d in minutes.
func (c *Controller) SetPID(drive Drive, p, i, d float64) error {
	if err := c.set(fmt.Sprintf("SP%c %.1f", drive, p)); err != nil {
		return err
	}
	if err := c.set(fmt.Sprintf("SI%c %.2f", drive, i)); err != nil {
		return err
	}
	return c.set(fmt.Sprintf("SD%c %.1f", drive, d))
}
