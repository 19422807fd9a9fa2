package decision

import (
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/messages"
)

// Stage is a node of the decision workflow.
type Stage string

const (
	StageInit        Stage = "init"
	StageFieldLookup Stage = "field_lookup"
	StageSensorFetch Stage = "sensor_fetch"
	StageValidate    Stage = "validate"
	StageMaintenance Stage = "maintenance"
	StageDone        Stage = "done"
)

// IsTerminal reports whether the workflow stops at this stage.
func (s Stage) IsTerminal() bool {
	return s == StageDone
}

// decisionState is the mutable context of one Decide call. It is created per
// call and never shared between goroutines.
type decisionState struct {
	fieldID      int
	field        *model.FieldRecord
	moisture     *float64
	attemptCount int
	retryLimit   int
	errors       []string
	stage        Stage

	decision   messages.Decision
	reason     string
	confidence messages.Confidence
}

func newDecisionState(fieldID, retryLimit int) *decisionState {
	return &decisionState{
		fieldID:    fieldID,
		retryLimit: retryLimit,
		errors:     []string{},
		stage:      StageInit,
	}
}

func (s *decisionState) fail(msg string) {
	s.errors = append(s.errors, msg)
}
