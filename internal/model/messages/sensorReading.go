package messages

import (
	"time"
)

// SensorReading is the aggregated moisture payload published on
// sensor/aggregated/{field}. Moisture is the raw percentage, never clamped.
type SensorReading struct {
	FieldID    int       `json:"field_id"`
	SensorID   string    `json:"sensor_id"`
	Moisture   float64   `json:"moisture"`
	Aggregated bool      `json:"aggregated"`
	Timestamp  time.Time `json:"timestamp"`
}
