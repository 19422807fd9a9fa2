package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/messages"
)

const (
	SourceService = "irrigation-agent"

	TypeDecision    = "irrigation.decision"
	TypeMaintenance = "irrigation.maintenance"

	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// NewDecisionEvent wraps a report for publication. The report is copied so
// later changes to the event never reach the caller's value.
func NewDecisionEvent(report model.DecisionReport, now time.Time) model.IrrigationDecisionEvent {
	evt := model.IrrigationDecisionEvent{
		EventID:       uuid.NewString(),
		EventType:     TypeDecision,
		SourceService: SourceService,
		Severity:      SeverityInfo,
		Report:        copyReport(report),
		Timestamp:     now,
	}
	if report.IsMaintenance() {
		evt.EventType = TypeMaintenance
		evt.Severity = SeverityWarning
	}
	return evt
}

func copyReport(r messages.DecisionReport) messages.DecisionReport {
	out := r
	if r.CurrentMoisture != nil {
		v := *r.CurrentMoisture
		out.CurrentMoisture = &v
	}
	if r.OptimalRange != nil {
		rng := *r.OptimalRange
		out.OptimalRange = &rng
	}
	out.Errors = append([]string{}, r.Errors...)
	return out
}
