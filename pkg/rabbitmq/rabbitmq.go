package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

// Config describes the MQTT endpoint exposed by the RabbitMQ MQTT plugin.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,gt=0,lte=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// ClientID gets a random suffix so replicas never collide on the broker.
	ClientID string `yaml:"client_id"`
	// ConnectAttempts bounds the connect retries. Zero means 5.
	ConnectAttempts int `yaml:"connect_attempts" validate:"gte=0"`
}

func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Dialer creates an unconnected client; replaced in tests.
type Dialer func(opts *mqtt.ClientOptions) mqtt.Client

// NewRabbitMQConn connects with exponential backoff and disconnects when ctx
// is done.
func NewRabbitMQConn(ctx context.Context, cfg Config, log *logger.Logger) (mqtt.Client, error) {
	return connect(ctx, cfg, mqtt.NewClient, log)
}

func connect(ctx context.Context, cfg Config, dial Dialer, log *logger.Logger) (mqtt.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("mqtt host is empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "irrigation-agent"
	}
	clientID = clientID + "-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error(err, "mqtt connection lost")
	})

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 5
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = dial(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.WithFields(map[string]any{"broker": cfg.BrokerURL()}).Error(token.Error(), "mqtt connect failed")
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.WithFields(map[string]any{"broker": cfg.BrokerURL(), "client_id": clientID}).Info("connected to mqtt broker")

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client, log)
	}()
	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client, log *logger.Logger) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Info("mqtt connection closed")
	}
}
