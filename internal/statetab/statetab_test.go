package statetab

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSerpentine(t *testing.T) {
	tab, err := Build([]Axis{
		{Name: "T_set", Values: []float64{25, 30}},
		{Name: "P_set", Values: []float64{0, 100, 200}},
	}, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"T_set", "P_set"}, tab.Columns)
	// the pressure axis reverses when the temperature steps, so no state
	// transition jumps across the pressure range
	assert.Equal(t, [][]float64{
		{25, 0}, {25, 100}, {25, 200},
		{30, 200}, {30, 100}, {30, 0},
	}, tab.Rows)
}

func TestBuildNoStepJumps(t *testing.T) {
	tab, err := Build([]Axis{
		{Name: "T_set", Values: []float64{5, 10, 15}},
		{Name: "P_set", Values: []float64{1, 2}},
	}, 2, 0)
	require.NoError(t, err)
	require.Len(t, tab.Rows, 12)

	// every transition changes exactly one variable by one step
	for i := 1; i < len(tab.Rows); i++ {
		changed := 0
		for j := range tab.Columns {
			if tab.Rows[i][j] != tab.Rows[i-1][j] {
				changed++
			}
		}
		assert.Equal(t, 1, changed, "transition %d -> %d", i-1, i)
	}
	// the second cycle continues from where the first ended
	assert.Equal(t, tab.Rows[5][0], tab.Rows[6][0])
}

func TestBuildHoldColumn(t *testing.T) {
	tab, err := Build([]Axis{{Name: "T_set", Values: []float64{5, 10}}}, 1, 600)
	require.NoError(t, err)
	assert.Equal(t, []string{"T_set", "hold"}, tab.Columns)
	for i := range tab.Rows {
		hold, ok := tab.Value(i, HoldColumn)
		require.True(t, ok)
		assert.Equal(t, 600.0, hold)
	}
}

func TestBuildRejectsBadAxes(t *testing.T) {
	_, err := Build(nil, 1, 0)
	assert.Error(t, err)
	_, err = Build([]Axis{{Name: "T_set"}}, 1, 0)
	assert.Error(t, err)
	_, err = Build([]Axis{{Values: []float64{1}}}, 1, 0)
	assert.Error(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	tab, err := Build([]Axis{
		{Name: "T_set", Values: []float64{5, 15, 25}},
		{Name: "wl_ex", Values: []float64{340}},
	}, 1, 120)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tab.Write(&buf))

	back, err := Read(&buf, "T_set", HoldColumn)
	require.NoError(t, err)
	assert.Equal(t, tab.Columns, back.Columns)
	assert.Equal(t, tab.Rows, back.Rows)
}

func TestReadMissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("T_set\thold\n5\t60\n"), "P_set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "P_set")
}

func TestReadRejectsBadCell(t *testing.T) {
	_, err := Read(strings.NewReader("T_set\n5\nwarm\n"))
	assert.Error(t, err)
}

func TestReadEmptyProgram(t *testing.T) {
	_, err := Read(strings.NewReader("T_set\n"))
	assert.Error(t, err)
}
