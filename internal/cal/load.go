package cal

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/viscotheque/spectackler/internal/trace"
)

// LoadSeries reads the named sweep logs and assembles one clock-ordered
// series per requested sensor column. Rows from all files are concatenated
// and then ordered globally by wall clock; the file-local watch column is
// deliberately not used across files since it resets per run. Torn or
// unparseable rows are skipped; the count of skipped rows is returned so the
// caller can report it.
func LoadSeries(files []string, sensors []string) (map[string]Series, int, error) {
	if len(files) == 0 {
		return nil, 0, errors.New("no sweep files given")
	}

	series := make(map[string]Series, len(sensors))
	for _, name := range sensors {
		series[name] = Series{Sensor: name}
	}

	skipped := 0
	for _, path := range files {
		r, f, err := trace.Open(path)
		if err != nil {
			return nil, 0, err
		}

		cols := r.Columns()
		for _, name := range sensors {
			if !slices.Contains(cols, name) {
				f.Close()
				return nil, 0, fmt.Errorf("%s: missing column %q", path, name)
			}
		}

		for {
			row, err := r.Read()
			if err == io.EOF {
				break
			}
			if errors.Is(err, trace.ErrBadRow) {
				skipped++
				continue
			}
			if err != nil {
				f.Close()
				return nil, 0, fmt.Errorf("%s: %w", path, err)
			}

			complete := true
			for _, name := range sensors {
				if _, present := row.Values[name]; !present {
					complete = false
					break
				}
			}
			if !complete {
				skipped++
				continue
			}
			for _, name := range sensors {
				s := series[name]
				s.Samples = append(s.Samples, Sample{
					Clock: row.Clock,
					Watch: row.Watch,
					Temp:  row.Values[name],
				})
				series[name] = s
			}
		}
		f.Close()
	}

	for name, s := range series {
		s.sortByClock()
		series[name] = s
	}
	return series, skipped, nil
}
