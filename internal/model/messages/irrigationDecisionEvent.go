package messages

import "time"

// IrrigationDecisionEvent is published after every decision to record WHAT was
// decided and WHY. The embedded report is never modified by the publisher.
type IrrigationDecisionEvent struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`     // irrigation.decision | irrigation.maintenance
	SourceService string         `json:"source_service"` // irrigation-agent
	Severity      string         `json:"severity"`       // info | warning
	Report        DecisionReport `json:"report"`
	Timestamp     time.Time      `json:"timestamp"`
}
