package entities

import "math"

// SampleKind tags the outcome of a single sensor attempt.
type SampleKind string

const (
	SampleValid      SampleKind = "valid"
	SampleNoResponse SampleKind = "no_response"
	SampleOutOfRange SampleKind = "out_of_range"
)

const (
	MinPhysicalMoisture = 0.0
	MaxPhysicalMoisture = 100.0
)

// MoistureSample is one attempt result. Value is meaningless for SampleNoResponse.
type MoistureSample struct {
	Kind  SampleKind
	Value float64
}

// ClassifyReading tags a raw percentage. Values outside [0,100] (NaN included)
// are OutOfRange and are never clamped.
func ClassifyReading(v float64) MoistureSample {
	if math.IsNaN(v) || v < MinPhysicalMoisture || v > MaxPhysicalMoisture {
		return MoistureSample{Kind: SampleOutOfRange, Value: v}
	}
	return MoistureSample{Kind: SampleValid, Value: v}
}

// NoResponse is the sample recorded when the sensor did not answer.
func NoResponse() MoistureSample {
	return MoistureSample{Kind: SampleNoResponse}
}
