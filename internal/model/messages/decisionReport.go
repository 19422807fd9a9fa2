package messages

import "time"

// Decision is the outcome of one Decide call.
type Decision string

const (
	DecisionIrrigate            Decision = "IRRIGATE"
	DecisionDoNotIrrigate       Decision = "DO_NOT_IRRIGATE"
	DecisionMaintenanceRequired Decision = "MAINTENANCE_REQUIRED"
)

// Confidence grades how far the reading sits from the optimal moisture.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
	ConfidenceNA     Confidence = "N/A"
)

// DecisionReport is the only artifact handed back to callers. It serializes
// as a flat JSON record; optional values are null when absent.
type DecisionReport struct {
	FieldID         int         `json:"field_id"`
	Decision        Decision    `json:"decision"`
	CurrentMoisture *float64    `json:"current_moisture"`
	OptimalRange    *[2]float64 `json:"optimal_range"`
	Reason          string      `json:"reason"`
	Confidence      Confidence  `json:"confidence"`
	SensorAttempts  int         `json:"sensor_attempts"`
	Timestamp       time.Time   `json:"timestamp"`
	Errors          []string    `json:"errors"`
}

// IsMaintenance reports whether the workflow fell back to the safe state.
func (r DecisionReport) IsMaintenance() bool {
	return r.Decision == DecisionMaintenanceRequired
}
