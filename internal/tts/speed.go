package tts

import (
	"fmt"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// SpeedSteps are the speeds offered by the +/- keys, in percent.
var SpeedSteps = []int{50, 75, 100, 125, 150, 175, 200}

// StepSpeed moves speedPercent to the next step up or down.
// Values between steps snap to the nearest step in the requested direction.
func StepSpeed(speedPercent int, up bool) int {
	if up {
		for _, s := range SpeedSteps {
			if s > speedPercent {
				return s
			}
		}
		return SpeedSteps[len(SpeedSteps)-1]
	}
	for i := len(SpeedSteps) - 1; i >= 0; i-- {
		if SpeedSteps[i] < speedPercent {
			return SpeedSteps[i]
		}
	}
	return SpeedSteps[0]
}

// SpeedDisplay formats a speed percentage as a multiplier, e.g. "1.25x".
func SpeedDisplay(speedPercent int) string {
	if speedPercent%100 == 0 {
		return fmt.Sprintf("%dx", speedPercent/100)
	}
	if speedPercent%10 == 0 {
		return fmt.Sprintf("%.1fx", float64(speedPercent)/100)
	}
	return fmt.Sprintf("%.2fx", float64(speedPercent)/100)
}

// NormalizeSettings fills in defaults and clamps the speed.
func NormalizeSettings(s ttypes.Settings) ttypes.Settings {
	if s.VoiceID == "" {
		s.VoiceID = ttypes.DefaultVoiceID
	}
	if s.SpeedPercent == 0 {
		s.SpeedPercent = ttypes.DefaultSpeedPercent
	}
	s.SpeedPercent = ClampSpeed(s.SpeedPercent, ttypes.MinSpeedPercent, ttypes.MaxSpeedPercent)
	return s
}
