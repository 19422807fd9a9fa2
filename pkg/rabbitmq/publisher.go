package rabbitmq

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

const publishTimeout = 5 * time.Second

// IPublisher publishes payloads to a fixed topic.
type IPublisher interface {
	PublishMessage(payload []byte) error
	PublishMessageQos(qos byte, retained bool, payload []byte) error
	Close()
}

// PublisherFactory builds a publisher for a concrete topic.
type PublisherFactory func(topic string) IPublisher

type Publisher struct {
	client mqtt.Client
	topic  string
	log    *logger.Logger
}

func NewPublisher(client mqtt.Client, topic string, log *logger.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, log: log}
}

// NewPublisherFactory shares one client across per-topic publishers.
func NewPublisherFactory(client mqtt.Client, log *logger.Logger) PublisherFactory {
	return func(topic string) IPublisher {
		return NewPublisher(client, topic, log)
	}
}

// PublishMessage publishes with the default QoS for the topic.
func (p *Publisher) PublishMessage(payload []byte) error {
	return p.PublishMessageQos(qosFor(p.topic), false, payload)
}

func (p *Publisher) PublishMessageQos(qos byte, retained bool, payload []byte) error {
	if p.client == nil {
		return fmt.Errorf("publish to %s: mqtt client is nil", p.topic)
	}
	token := p.client.Publish(p.topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %s", p.topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.log.WithFields(map[string]any{"topic": p.topic, "qos": qos, "bytes": len(payload)}).Debug("message published")
	return nil
}

// Close is a no-op for shared clients; the connection owner disconnects.
func (p *Publisher) Close() {}

// FormatTopic expands {field} in a topic template.
func FormatTopic(tmpl string, fieldID int) string {
	return strings.NewReplacer("{field}", fmt.Sprint(fieldID)).Replace(tmpl)
}
