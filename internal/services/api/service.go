package api

import (
	"context"
	"errors"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

// Decider produces a report for one field. *decision.Engine satisfies it.
type Decider interface {
	Decide(ctx context.Context, fieldID int) model.DecisionReport
}

// Notifier is told about every report after it is produced.
type Notifier interface {
	Notify(ctx context.Context, report model.DecisionReport) error
}

// Service is the decision entry point shared by the transports.
type Service struct {
	decider  Decider
	notifier Notifier
	log      *logger.Logger
}

// NewService wires a decider with an optional notifier.
func NewService(d Decider, n Notifier, log *logger.Logger) (*Service, error) {
	if d == nil {
		return nil, errors.New("decider is nil")
	}
	return &Service{decider: d, notifier: n, log: log}, nil
}

// Decide returns the report unchanged whether or not notification succeeds.
func (s *Service) Decide(ctx context.Context, fieldID int) model.DecisionReport {
	report := s.decider.Decide(ctx, fieldID)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, report); err != nil {
			s.log.WithFields(map[string]any{"field_id": fieldID}).Error(err, "notification failed")
		}
	}
	return report
}
