// Package auxmcu drives the rig's auxiliary microcontroller: two filter
// wheels, the spec lamp interlock, and a DHT ambient sensor in the sample
// chamber. Commands are newline-terminated ASCII; replies are fixed width.
package auxmcu

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// MCU is a connection to the microcontroller. Safe for concurrent use.
type MCU struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// New wraps an open serial stream.
func New(rw io.ReadWriteCloser) *MCU {
	return &MCU{port: rw, r: bufio.NewReader(rw)}
}

// Open connects to the microcontroller and drops the lamp interlock so the
// spec starts dark.
func Open(port string, baud uint) (*MCU, error) {
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
	m := New(p)
	if _, err := m.Lamp(false); err != nil {
		p.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the serial port.
func (m *MCU) Close() error {
	return m.port.Close()
}

// exchange sends one command and reads the fixed-width reply.
func (m *MCU) exchange(cmd string, width int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := io.WriteString(m.port, cmd+"\n"); err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	buf := make([]byte, width)
	if _, err := io.ReadFull(m.r, buf); err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	return strings.TrimSpace(string(buf)), nil
}

// Excitation moves the excitation filter wheel and returns the position the
// wheel reports.
func (m *MCU) Excitation(pos int) (int, error) {
	return m.wheel('X', pos)
}

// Emission moves the emission filter wheel and returns the position the
// wheel reports.
func (m *MCU) Emission(pos int) (int, error) {
	return m.wheel('M', pos)
}

func (m *MCU) wheel(which byte, pos int) (int, error) {
	reply, err := m.exchange(fmt.Sprintf("%c%d", which, pos), 4)
	if err != nil {
		return 0, err
	}
	// reply echoes the wheel letter then the position digit
	if len(reply) < 2 {
		return 0, fmt.Errorf("%c wheel: short reply %q", which, reply)
	}
	got, err := strconv.Atoi(reply[1:2])
	if err != nil {
		return 0, fmt.Errorf("%c wheel: bad reply %q", which, reply)
	}
	return got, nil
}

// Lamp switches the spec lamp interlock and returns the resulting state.
func (m *MCU) Lamp(on bool) (bool, error) {
	cmd := "LOF"
	if on {
		cmd = "LON"
	}
	reply, err := m.exchange(cmd, 3)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(reply, "1"), nil
}

// Temp reads the ambient temperature in the sample chamber, degrees C.
func (m *MCU) Temp() (float64, error) {
	return m.readFloat("TEM")
}

// Humidity reads the relative humidity in the sample chamber, percent.
func (m *MCU) Humidity() (float64, error) {
	return m.readFloat("HUM")
}

func (m *MCU) readFloat(cmd string) (float64, error) {
	reply, err := m.exchange(cmd, 7)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: bad reply %q", cmd, reply)
	}
	return v, nil
}

// DewPoint approximates the dew point from temperature (degrees C) and
// relative humidity (percent), good to about one degree for RH above 50%.
func DewPoint(temp, rh float64) float64 {
	return temp - (100-rh)/5
}
