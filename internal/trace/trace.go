// Package trace reads and writes the tab-delimited time-series logs the rig
// tools produce: a header line of column names, then one row per poll. Every
// log starts with a wall-clock column and an elapsed-seconds column; the
// remaining columns are sensor readings and state values.
package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"time"
)

// ClockLayout is the wall-clock format used in every log file.
const ClockLayout = "20060102 150405"

// Names of the two leading columns present in every log.
const (
	ClockColumn = "clock"
	WatchColumn = "watch"
)

// ErrBadRow marks a row that cannot be used: wrong field count or an
// unparseable clock/watch cell. Readers can skip it and keep going.
var ErrBadRow = errors.New("unusable trace row")

// Row is one parsed log line. Values holds the finite numeric cells keyed by
// column name; cells that failed to parse are simply absent.
type Row struct {
	Clock  time.Time
	Watch  float64
	Values map[string]float64
}

// Reading is the live-readings payload published over MQTT by the collectors
// and consumed by the monitor and console tools.
type Reading struct {
	Source string             `json:"source"`
	Clock  string             `json:"clock"`
	Watch  float64            `json:"watch"`
	Values map[string]float64 `json:"values"`
}

// ---------- Reader ----------

// Reader streams rows out of one log file.
type Reader struct {
	cr      *csv.Reader
	columns []string
	line    int
}

// NewReader reads the header from r and prepares to stream rows. The header
// must contain the clock and watch columns.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for _, required := range []string{ClockColumn, WatchColumn} {
		if !slices.Contains(header, required) {
			return nil, fmt.Errorf("header missing column %q", required)
		}
	}
	return &Reader{cr: cr, columns: header, line: 1}, nil
}

// Open opens path and returns a Reader plus the underlying file, which the
// caller owns and must close.
func Open(path string) (*Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, f, nil
}

// Columns returns the header columns in file order.
func (r *Reader) Columns() []string {
	return r.columns
}

// Read returns the next row. It returns io.EOF at end of input and an error
// wrapping ErrBadRow for ragged or unparseable rows; the reader remains usable
// after a bad row. I/O errors from the underlying file are returned as-is,
// never as ErrBadRow: a failing file must abort the caller, not be skipped
// row by row.
func (r *Reader) Read() (Row, error) {
	record, err := r.cr.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	r.line++
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Row{}, fmt.Errorf("line %d: %w: %v", r.line, ErrBadRow, err)
		}
		return Row{}, err
	}
	if len(record) != len(r.columns) {
		return Row{}, fmt.Errorf("line %d: %w: %d fields, header has %d", r.line, ErrBadRow, len(record), len(r.columns))
	}

	row := Row{Values: make(map[string]float64, len(r.columns)-2)}
	for i, col := range r.columns {
		cell := record[i]
		switch col {
		case ClockColumn:
			t, err := time.Parse(ClockLayout, cell)
			if err != nil {
				return Row{}, fmt.Errorf("line %d: %w: clock %q", r.line, ErrBadRow, cell)
			}
			row.Clock = t
		case WatchColumn:
			w, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return Row{}, fmt.Errorf("line %d: %w: watch %q", r.line, ErrBadRow, cell)
			}
			row.Watch = w
		default:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row.Values[col] = v
		}
	}
	return row, nil
}

// ---------- Writer ----------

// Writer appends rows to a new log file, flushing after every row so the file
// can be tailed live.
type Writer struct {
	f       *os.File
	cw      *csv.Writer
	sensors []string
}

// Create makes a new log at path with the given sensor columns after clock and
// watch. An existing file is never overwritten.
func Create(path string, sensors []string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	cw := csv.NewWriter(f)
	cw.Comma = '\t'

	header := append([]string{ClockColumn, WatchColumn}, sensors...)
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{f: f, cw: cw, sensors: sensors}, nil
}

// Sensors returns the sensor columns this writer was created with.
func (w *Writer) Sensors() []string {
	return w.sensors
}

// Append writes one row. values must parallel the sensor columns.
func (w *Writer) Append(clock time.Time, watch float64, values []float64) error {
	if len(values) != len(w.sensors) {
		return fmt.Errorf("append: %d values for %d sensor columns", len(values), len(w.sensors))
	}
	record := make([]string, 0, len(values)+2)
	record = append(record, clock.Format(ClockLayout), strconv.FormatFloat(watch, 'f', 3, 64))
	for _, v := range values {
		record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if err := w.cw.Write(record); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	w.cw.Flush()
	return w.cw.Error()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
