package decision

import (
	"fmt"
	"math"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/messages"
)

const (
	highConfidenceDelta   = 5.0
	mediumConfidenceDelta = 10.0
)

// applyThresholds evaluates the moisture band in priority order; the first
// matching rule wins. A reading equal to the optimal is not "below optimal".
func applyThresholds(field model.FieldRecord, moisture float64) (messages.Decision, string) {
	switch {
	case moisture < field.MinMoisture:
		return messages.DecisionIrrigate,
			fmt.Sprintf("Moisture %.1f%% below minimum %.1f%%", moisture, field.MinMoisture)
	case moisture > field.MaxMoisture:
		return messages.DecisionDoNotIrrigate,
			fmt.Sprintf("Moisture %.1f%% above maximum %.1f%%", moisture, field.MaxMoisture)
	case moisture < field.OptimalMoisture:
		return messages.DecisionIrrigate,
			fmt.Sprintf("Moisture %.1f%% below optimal %.1f%%", moisture, field.OptimalMoisture)
	default:
		return messages.DecisionDoNotIrrigate,
			fmt.Sprintf("Moisture %.1f%% within optimal range", moisture)
	}
}

// gradeConfidence grades non-maintenance outcomes by distance from optimal.
func gradeConfidence(field model.FieldRecord, moisture float64) messages.Confidence {
	diff := math.Abs(moisture - field.OptimalMoisture)
	switch {
	case diff < highConfidenceDelta:
		return messages.ConfidenceHigh
	case diff < mediumConfidenceDelta:
		return messages.ConfidenceMedium
	default:
		return messages.ConfidenceLow
	}
}
