package tts

import (
	"fmt"
)

// EncodeRate converts a speed percentage to the signed rate string the
// synthesis service expects. Speeds at or below 100% all map to "+0%".
func EncodeRate(ratePercent int) string {
	if ratePercent > 100 {
		return fmt.Sprintf("+%d%%", ratePercent-100)
	}
	return "+0%"
}

// LengthScale converts a speed percentage to Piper's length-scale parameter.
// Piper uses inverse scaling: faster speed = smaller length-scale.
func LengthScale(ratePercent int) string {
	if ratePercent <= 0 {
		ratePercent = 100
	}
	return fmt.Sprintf("%.2f", 100.0/float64(ratePercent))
}

// ClampSpeed keeps a persisted speed inside the supported range.
func ClampSpeed(speedPercent, lo, hi int) int {
	switch {
	case speedPercent < lo:
		return lo
	case speedPercent > hi:
		return hi
	default:
		return speedPercent
	}
}
