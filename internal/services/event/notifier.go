package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/rabbitmq"
)

const DefaultTopicTemplate = "event/irrigationDecision/{field}"

// Notifier publishes one event per produced report.
type Notifier struct {
	makePublisher rabbitmq.PublisherFactory
	topicTemplate string
	log           *logger.Logger
	now           func() time.Time
}

func NewNotifier(factory rabbitmq.PublisherFactory, topicTemplate string, log *logger.Logger) (*Notifier, error) {
	if factory == nil {
		return nil, errors.New("publisher factory is nil")
	}
	if strings.TrimSpace(topicTemplate) == "" {
		topicTemplate = DefaultTopicTemplate
	}
	return &Notifier{
		makePublisher: factory,
		topicTemplate: topicTemplate,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Notify publishes the report at QoS 1. A publish failure is returned but
// has no effect on the report.
func (n *Notifier) Notify(ctx context.Context, report model.DecisionReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	evt := NewDecisionEvent(report, n.now())
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode decision event: %w", err)
	}
	topic := rabbitmq.FormatTopic(n.topicTemplate, report.FieldID)
	if err := n.makePublisher(topic).PublishMessageQos(1, false, payload); err != nil {
		n.log.WithFields(map[string]any{"topic": topic, "event_id": evt.EventID}).Error(err, "decision event not published")
		return err
	}
	n.log.WithFields(map[string]any{"topic": topic, "event_id": evt.EventID, "event_type": evt.EventType}).Info("decision event published")
	return nil
}
