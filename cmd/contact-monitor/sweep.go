package main

import (
	"fmt"
	"math"
	"strings"
)

// sweepAmplitude is the peak joint offset of the dev mode sweep, in radians.
const sweepAmplitude = 1.2

// jointSweep builds one period of a sinusoidal sweep over the named joints in
// the feed's "name=position,..." line format. Each joint is phase shifted so
// the links pass close to each other during the period.
func jointSweep(joints []string, steps int) []string {
	if len(joints) == 0 || steps < 1 {
		return nil
	}
	lines := make([]string, 0, steps)
	for i := 0; i < steps; i++ {
		phase := 2 * math.Pi * float64(i) / float64(steps)
		fields := make([]string, len(joints))
		for j, name := range joints {
			q := sweepAmplitude * math.Sin(phase+float64(j)*math.Pi/2)
			fields[j] = fmt.Sprintf("%s=%.4f", name, q)
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return lines
}
