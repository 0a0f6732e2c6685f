// Package statetab builds and parses the TSV state programs the sweep
// runners consume: one row per instrument state, one column per setpoint
// variable. Programs are generated as a cartesian product with serpentine
// ordering, so slow hardware (a water bath, a syringe pump) steps through
// its range instead of jumping across it. The back-and-forth passes are
// what give the calibration core its ascending and descending sweeps.
package statetab

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// Axis is one swept variable and the values it visits.
type Axis struct {
	Name   string
	Values []float64
}

// Table is a state program: one row per state, columns in program order.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// HoldColumn is the per-state hold time column, in seconds.
const HoldColumn = "hold"

// Build computes the cartesian product of the axes with the rightmost axis
// changing fastest. Each axis serpentines: after a full pass its values
// reverse, so consecutive states differ in exactly one variable by one step.
// The whole program runs repeat times (minimum one); because the axes keep
// serpentining across cycles, each cycle continues from where the last
// ended. A positive hold appends a hold column with that many seconds per
// state.
func Build(axes []Axis, repeat int, hold float64) (*Table, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("no axes given")
	}
	for _, ax := range axes {
		if ax.Name == "" {
			return nil, fmt.Errorf("axis has no name")
		}
		if len(ax.Values) == 0 {
			return nil, fmt.Errorf("axis %s has no values", ax.Name)
		}
	}
	if repeat < 1 {
		repeat = 1
	}

	t := &Table{}
	for _, ax := range axes {
		t.Columns = append(t.Columns, ax.Name)
	}
	if hold > 0 {
		t.Columns = append(t.Columns, HoldColumn)
	}

	vals := make([][]float64, len(axes))
	for i, ax := range axes {
		vals[i] = slices.Clone(ax.Values)
	}

	row := make([]float64, len(axes))
	var walk func(level int)
	walk = func(level int) {
		if level == len(axes) {
			state := slices.Clone(row)
			if hold > 0 {
				state = append(state, hold)
			}
			t.Rows = append(t.Rows, state)
			return
		}
		for _, v := range vals[level] {
			row[level] = v
			walk(level + 1)
		}
		// the next pass over this axis runs the other way
		slices.Reverse(vals[level])
	}
	for cyc := 0; cyc < repeat; cyc++ {
		walk(0)
	}
	return t, nil
}

// Col returns the index of a named column.
func (t *Table) Col(name string) (int, bool) {
	i := slices.Index(t.Columns, name)
	return i, i >= 0
}

// Value returns one cell by row index and column name.
func (t *Table) Value(row int, name string) (float64, bool) {
	i, ok := t.Col(name)
	if !ok {
		return 0, false
	}
	return t.Rows[row][i], true
}

// Write emits the table as TSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses a TSV state program and checks that every required column is
// present.
func Read(r io.Reader, required ...string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read state table header: %w", err)
	}
	for _, name := range required {
		if !slices.Contains(header, name) {
			return nil, fmt.Errorf("state table missing column %q", name)
		}
	}

	t := &Table{Columns: header}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("state table line %d: %w", line, err)
		}
		row := make([]float64, len(record))
		for i, cell := range record {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("state table line %d, column %s: bad value %q", line, header[i], cell)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return nil, fmt.Errorf("state table has no states")
	}
	return t, nil
}
