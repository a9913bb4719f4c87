package domain

import (
	"fmt"
	"math"
)

const (
	// ColorDomainMin and ColorDomainMax bound the colour scale in percent.
	// 20% covers roughly 95% of observed period rates.
	ColorDomainMin = 0.0
	ColorDomainMax = 20.0

	colorSteps = 256
)

// Anchor colours of the ramp.
const (
	LowColor  = "#0000ff"
	HighColor = "#ff0000"
)

// ColorFor maps a rate in percent to a hex colour on the blue-to-red ramp.
func ColorFor(rate float64) string {
	if math.IsNaN(rate) {
		rate = ColorDomainMin
	}
	x := (rate - ColorDomainMin) / (ColorDomainMax - ColorDomainMin)
	x = math.Max(0, math.Min(1, x))

	step := int(x * colorSteps)
	if step > colorSteps-1 {
		step = colorSteps - 1
	}
	// Blue fades out as red fades in; green stays at zero along the ramp.
	return fmt.Sprintf("#%02x00%02x", step, colorSteps-1-step)
}
