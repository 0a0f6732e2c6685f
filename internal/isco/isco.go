// Package isco drives a Teledyne ISCO 260D syringe pump over the DASNET
// serial protocol: printable ASCII frames
//
//	dest 'R' source len(2 hex) MESSAGE checksum(2 hex) CR
//
// with checksum 256 minus the byte sum of the frame modulo 256.
package isco

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Checksum computes the two-digit hex DASNET checksum for a frame body.
func Checksum(body string) string {
	var sum int
	for _, ch := range []byte(body) {
		sum += int(ch)
	}
	return fmt.Sprintf("%02X", (256-sum%256)%256)
}

// Frame builds one DASNET frame for a message.
func Frame(msg string, source, dest int) string {
	body := strings.ToUpper(fmt.Sprintf("%dR%d%02x%s", dest, source, len(msg), msg))
	return body + Checksum(body) + "\r"
}

// parseFrame checks a received frame's checksum and extracts its message.
func parseFrame(frame string) (string, error) {
	frame = strings.TrimRight(frame, "\r")
	if len(frame) < 7 {
		return "", fmt.Errorf("short DASNET frame %q", frame)
	}
	body, ck := frame[:len(frame)-2], frame[len(frame)-2:]
	if want := Checksum(body); ck != want {
		return "", fmt.Errorf("DASNET checksum %s, want %s in %q", ck, want, frame)
	}
	n, err := strconv.ParseUint(body[3:5], 16, 8)
	if err != nil {
		return "", fmt.Errorf("bad DASNET length field in %q", frame)
	}
	if len(body) < 5+int(n) {
		return "", fmt.Errorf("truncated DASNET frame %q", frame)
	}
	return body[5 : 5+int(n)], nil
}

// Controller is a connection to one pump. Safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	r      *bufio.Reader
	source int
	dest   int
}

// New wraps an open serial stream with the given unit addresses.
func New(rw io.ReadWriteCloser, source, dest int) *Controller {
	return &Controller{port: rw, r: bufio.NewReader(rw), source: source, dest: dest}
}

// Open connects to the pump and puts it in remote mode.
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
	c := New(p, 0, 1)
	if err := c.Remote(); err != nil {
		p.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the serial port.
func (c *Controller) Close() error {
	return c.port.Close()
}

// transact sends one message and returns the reply's message field.
func (c *Controller) transact(msg string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.port, Frame(msg, c.source, c.dest)); err != nil {
		return "", fmt.Errorf("%s: %w", msg, err)
	}
	line, err := c.r.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("%s: %w", msg, err)
	}
	reply, err := parseFrame(line)
	if err != nil {
		return "", fmt.Errorf("%s: %w", msg, err)
	}
	return reply, nil
}

// command sends a message whose reply carries no data of interest.
func (c *Controller) command(msg string) error {
	reply, err := c.transact(msg)
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "E") {
		return fmt.Errorf("%s: pump answered %q", msg, reply)
	}
	return nil
}

// Remote takes control of the pump front panel.
func (c *Controller) Remote() error {
	return c.command("REMOTE")
}

// Local returns control to the front panel.
func (c *Controller) Local() error {
	return c.command("LOCAL")
}

// Clear clears pending faults.
func (c *Controller) Clear() error {
	return c.command("CLEAR")
}

// Run starts the pump.
func (c *Controller) Run() error {
	return c.command("RUN")
}

// Stop stops the pump.
func (c *Controller) Stop() error {
	return c.command("STOP")
}

// PressGet reads the current pressure in PSI via the get-all status message.
// The pump reports pressure in fifths of a PSI as the first field after the
// equals sign.
func (c *Controller) PressGet() (float64, error) {
	reply, err := c.transact("G&")
	if err != nil {
		return 0, err
	}
	raw, err := statusField(reply)
	if err != nil {
		return 0, err
	}
	return raw / 5, nil
}

// PressSet writes the pressure setpoint in PSI.
func (c *Controller) PressSet(psi float64) error {
	return c.command(fmt.Sprintf("PRESS=%.1f", psi))
}

// VolGet reads the remaining cylinder volume in mL.
func (c *Controller) VolGet() (float64, error) {
	reply, err := c.transact("VOLUME")
	if err != nil {
		return 0, err
	}
	return statusField(reply)
}

// Digital reads one digital output channel.
func (c *Controller) Digital(ch int) (bool, error) {
	reply, err := c.transact(fmt.Sprintf("DIGITAL%d", ch))
	if err != nil {
		return false, err
	}
	v, err := statusField(reply)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// SetDigital switches one digital output channel. Channel 0 drives the
// anti-condensation air valve on this rig.
func (c *Controller) SetDigital(ch int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return c.command(fmt.Sprintf("DIGITAL%d=%d", ch, v))
}

// statusField pulls the first numeric field out of a NAME=a,b,... reply.
func statusField(reply string) (float64, error) {
	_, rest, found := strings.Cut(reply, "=")
	if !found {
		return 0, fmt.Errorf("no value in pump reply %q", reply)
	}
	first, _, _ := strings.Cut(rest, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable pump reply %q", reply)
	}
	return v, nil
}
