package automation

import (
	"time"

	"github.com/leadmill/leadmill/pkg/models"
)

// Millisecond multipliers per delay unit.
const (
	millisPerMinute = 60_000
	millisPerHour   = 3_600_000
	millisPerDay    = 86_400_000
	millisPerWeek   = 604_800_000
)

// NextStepAt computes when a delayed enrollment becomes eligible again. An
// unknown unit falls back to minutes so a typo postpones instead of stalling
// the enrollment forever.
func NextStepAt(now time.Time, config models.DelayConfig) time.Time {
	var multiplier float64

	switch config.Unit {
	case "hours":
		multiplier = millisPerHour
	case "days":
		multiplier = millisPerDay
	case "weeks":
		multiplier = millisPerWeek
	default:
		multiplier = millisPerMinute
	}

	return now.Add(time.Duration(config.Value*multiplier) * time.Millisecond)
}
