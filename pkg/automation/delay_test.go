package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leadmill/leadmill/pkg/models"
)

func TestNextStepAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		config   models.DelayConfig
		expected time.Time
	}{
		{"minutes", models.DelayConfig{Value: 30, Unit: "minutes"}, now.Add(30 * time.Minute)},
		{"hours", models.DelayConfig{Value: 2, Unit: "hours"}, now.Add(2 * time.Hour)},
		{"three days", models.DelayConfig{Value: 3, Unit: "days"}, now.Add(259_200_000 * time.Millisecond)},
		{"weeks", models.DelayConfig{Value: 1, Unit: "weeks"}, now.Add(7 * 24 * time.Hour)},
		{"fractional hours", models.DelayConfig{Value: 1.5, Unit: "hours"}, now.Add(90 * time.Minute)},
		{"unknown unit falls back to minutes", models.DelayConfig{Value: 10, Unit: "fortnights"}, now.Add(10 * time.Minute)},
		{"empty unit falls back to minutes", models.DelayConfig{Value: 5}, now.Add(5 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextStepAt(now, tt.config))
		})
	}
}
