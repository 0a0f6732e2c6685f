package trace

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderParsesRows(t *testing.T) {
	input := strings.Join([]string{
		"clock\twatch\tT_int\tT_ext\tT_ref",
		"20200713 120000\t0.000\t20.1\t19.8\t20.05",
		"20200713 120001\t1.003\t20.2\t19.9\t20.15",
	}, "\n") + "\n"

	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "watch", "T_int", "T_ext", "T_ref"}, r.Columns())

	row, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 7, 13, 12, 0, 0, 0, time.UTC), row.Clock)
	assert.Equal(t, 0.0, row.Watch)
	assert.Equal(t, 20.1, row.Values["T_int"])
	assert.Equal(t, 20.05, row.Values["T_ref"])

	row, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 1.003, row.Watch)

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestReaderSkipsBadRowsAndRecovers(t *testing.T) {
	input := strings.Join([]string{
		"clock\twatch\tT_int\tT_ext",
		"20200713 120000\t0.000\t20.1\t19.8",
		"20200713 120001\t1.000\t20.2", // torn tail line
		"not a clock\t2.000\t20.3\t20.0",
		"20200713 120003\t3.000\t20.4\t20.1",
	}, "\n") + "\n"

	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)

	var good, bad int
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrBadRow) {
			bad++
			continue
		}
		require.NoError(t, err)
		good++
		assert.NotZero(t, row.Clock)
	}
	assert.Equal(t, 2, good)
	assert.Equal(t, 2, bad)
}

// failingFile serves the header and then fails every read the way a dropped
// mount or a dying disk does.
type failingFile struct {
	header []byte
	err    error
}

func (f *failingFile) Read(p []byte) (int, error) {
	if len(f.header) > 0 {
		n := copy(p, f.header)
		f.header = f.header[n:]
		return n, nil
	}
	return 0, f.err
}

func TestReaderSurfacesIOErrors(t *testing.T) {
	ioErr := errors.New("input/output error")
	r, err := NewReader(&failingFile{
		header: []byte("clock\twatch\tT_int\n"),
		err:    ioErr,
	})
	require.NoError(t, err)

	// a persistent I/O error must abort a skip-and-continue caller, so it
	// can never come back as the skippable ErrBadRow
	for i := 0; i < 3; i++ {
		_, err := r.Read()
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBadRow)
		assert.NotEqual(t, io.EOF, err)
		assert.ErrorIs(t, err, ioErr)
	}
}

func TestReaderDropsUnparseableCells(t *testing.T) {
	input := strings.Join([]string{
		"clock\twatch\tT_int\tT_ext",
		"20200713 120000\t0.000\tNone\t19.8",
	}, "\n") + "\n"

	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)

	row, err := r.Read()
	require.NoError(t, err)
	_, ok := row.Values["T_int"]
	assert.False(t, ok, "unparseable cell should be absent")
	assert.Equal(t, 19.8, row.Values["T_ext"])
}

func TestReaderRequiresClockAndWatch(t *testing.T) {
	_, err := NewReader(strings.NewReader("clock\tT_int\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch")
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.tsv")

	w, err := Create(path, []string{"T_int", "T_ext", "T_ref"})
	require.NoError(t, err)

	clock := time.Date(2020, 7, 13, 22, 43, 57, 0, time.UTC)
	require.NoError(t, w.Append(clock, 12.345, []float64{20.1, 19.8, 20.05}))
	require.NoError(t, w.Append(clock.Add(time.Second), 13.348, []float64{20.2, 19.9, 20.15}))
	require.NoError(t, w.Close())

	r, f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	row, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, clock, row.Clock)
	assert.Equal(t, 12.345, row.Watch)
	assert.Equal(t, 20.05, row.Values["T_ref"])

	row, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 20.2, row.Values["T_int"])
}

func TestWriterRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.tsv")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0644))

	_, err := Create(path, []string{"T_int"})
	assert.Error(t, err)
}

func TestWriterRejectsValueCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.tsv")
	w, err := Create(path, []string{"T_int", "T_ext"})
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.Append(time.Now(), 0, []float64{1.0}))
}
