// ./cmd/stategen/main.go
//
// Generate a sweep state program on stdout, for piping into bathscan or
// viscotheque. Axes are given as comma-separated value lists and sweep with
// the rightmost flag changing fastest, serpentining so consecutive states
// never jump across a range.
//
// Example (a Laurdan GP landscape, three passes):
//
//	stategen -temps "25,30,35" -pressures "1,125,250" \
//	    -wlex "340" -wlem "440,490" -cycles 3 > landscape.tsv
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/viscotheque/spectackler/internal/statetab"
)

func parseList(flagName, value string) ([]float64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var out []float64
	for _, item := range strings.Split(value, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(item), 64)
		if err != nil {
			return nil, fmt.Errorf("-%s: bad value %q", flagName, item)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	temps := flag.String("temps", "", "T_set values, comma separated (slowest axis)")
	pressures := flag.String("pressures", "", "P_set values, comma separated")
	wlex := flag.String("wlex", "", "excitation wavelengths, comma separated")
	wlem := flag.String("wlem", "", "emission wavelengths, comma separated (fastest axis)")
	hold := flag.Float64("hold", 0, "per-state hold time in seconds (adds a hold column)")
	cycles := flag.Int("cycles", 1, "whole-program repeat count")
	flag.Parse()

	// axis order is sweep order: temperature is the slowest hardware, so
	// it changes least often
	var axes []statetab.Axis
	for _, ax := range []struct {
		name, list, flagName string
	}{
		{"T_set", *temps, "temps"},
		{"P_set", *pressures, "pressures"},
		{"wl_ex", *wlex, "wlex"},
		{"wl_em", *wlem, "wlem"},
	} {
		values, err := parseList(ax.flagName, ax.list)
		if err != nil {
			log.Fatal(err)
		}
		if len(values) > 0 {
			axes = append(axes, statetab.Axis{Name: ax.name, Values: values})
		}
	}

	table, err := statetab.Build(axes, *cycles, *hold)
	if err != nil {
		log.Fatalf("cannot build state program: %v", err)
	}
	log.Printf("%d states over %d axes", len(table.Rows), len(axes))

	if err := table.Write(os.Stdout); err != nil {
		log.Fatalf("write error: %v", err)
	}
}
