package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viscotheque/spectackler/internal/trace"
)

func TestFormatReading(t *testing.T) {
	r := trace.Reading{
		Source: "bathscan",
		Clock:  "20260314 090512",
		Watch:  72.5,
		Values: map[string]float64{
			"T_int": 24.91,
			"T_ext": 25.02,
			"T_set": 25,
		},
	}

	got := formatReading(r)
	assert.Equal(t, "[BATHSCAN   ] 20260314 090512      72.5s  T_ext=  25.020  T_int=  24.910  T_set=  25.000", got)
}

func TestFormatReadingNoValues(t *testing.T) {
	r := trace.Reading{Source: "qti", Clock: "20260314 090512", Watch: 0.1}
	got := formatReading(r)
	assert.Equal(t, "[QTI        ] 20260314 090512       0.1s", got)
}
