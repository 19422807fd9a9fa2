package model

import (
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/messages"
)

// Aliases exposing the common types to the services.

type (
	FieldRecord             = entities.FieldRecord
	CropType                = entities.CropType
	MoistureSample          = entities.MoistureSample
	SensorReading           = messages.SensorReading
	DecisionReport          = messages.DecisionReport
	Decision                = messages.Decision
	Confidence              = messages.Confidence
	IrrigationDecisionEvent = messages.IrrigationDecisionEvent
)

const (
	DecisionIrrigate            = messages.DecisionIrrigate
	DecisionDoNotIrrigate       = messages.DecisionDoNotIrrigate
	DecisionMaintenanceRequired = messages.DecisionMaintenanceRequired
)
