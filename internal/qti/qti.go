// Package qti reads a QTI 6001 USB reference thermometer. The probe speaks
// single-byte commands: '0' initializes, '2' answers with one temperature
// line.
package qti

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Probe is a connection to the reference thermometer. Safe for concurrent
// use.
type Probe struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// New wraps an open serial stream.
func New(rw io.ReadWriteCloser) *Probe {
	return &Probe{port: rw, r: bufio.NewReader(rw)}
}

// Open connects to the probe and initializes it.
func Open(port string, baud uint) (*Probe, error) {
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
	if _, err := p.Write([]byte{'0'}); err != nil {
		p.Close()
		return nil, fmt.Errorf("probe init: %w", err)
	}
	return New(p), nil
}

// Close closes the serial port.
func (p *Probe) Close() error {
	return p.port.Close()
}

// Temp polls the probe for one temperature reading, degrees C.
func (p *Probe) Temp() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.port.Write([]byte{'2'}); err != nil {
		return 0, fmt.Errorf("probe poll: %w", err)
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("probe poll: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("probe answered %q", strings.TrimSpace(line))
	}
	return v, nil
}
