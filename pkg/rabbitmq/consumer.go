package rabbitmq

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

// Handler processes one delivered message.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages to a handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
	log     *logger.Logger
}

func NewConsumer(client mqtt.Client, topic string, log *logger.Logger) *Consumer {
	return &Consumer{client: client, topic: topic, log: log}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// qosFor returns 1 for topics whose messages must not be lost.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "sensor/aggregated") ||
		strings.HasPrefix(t, "event/irrigationDecision") {
		return 1
	}
	return 0
}

// ConsumeMessage subscribes and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	log := c.log.WithFields(map[string]any{"topic": c.topic})
	token := c.client.Subscribe(c.topic, qosFor(c.topic), func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			log.Warn("no handler set")
			return
		}
		if err := c.handler(message.Topic(), message); err != nil {
			log.Error(err, "error handling message")
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Error(token.Error(), "subscribe failed")
		return token.Error()
	}
	log.Info("subscribed")

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
