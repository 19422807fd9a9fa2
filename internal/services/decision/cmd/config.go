package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/catalog"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/event"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/sensor"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/rabbitmq"
)

type Config struct {
	Retry   decision.RetryPolicy `yaml:"retry"`
	Catalog CatalogConfig        `yaml:"catalog"`
	Sensor  SensorConfig         `yaml:"sensor"`
	MQTT    rabbitmq.Config      `yaml:"mqtt"`
	Events  EventsConfig         `yaml:"events"`
	Influx  sensor.InfluxConfig  `yaml:"influx"`
	Log     LogConfig            `yaml:"log"`
	HTTP    ListenConfig         `yaml:"http"`
	GRPC    ListenConfig         `yaml:"grpc"`
}

type CatalogConfig struct {
	Source  string                `yaml:"source" validate:"oneof=static file http"`
	File    string                `yaml:"file" validate:"required_if=Source file"`
	URL     string                `yaml:"url" validate:"required_if=Source http"`
	Timeout time.Duration         `yaml:"timeout" validate:"gte=0"`
	Breaker catalog.BreakerConfig `yaml:"breaker"`
}

type SensorConfig struct {
	Source    string                 `yaml:"source" validate:"oneof=simulator mqtt influx"`
	Simulator sensor.SimulatorConfig `yaml:"simulator"`
	Topic     string                 `yaml:"topic"`
	MaxAge    time.Duration          `yaml:"max_age" validate:"gte=0"`
	// Warmup bounds how long a one-shot decision waits for the first
	// broker reading of its field. Zero disables the wait.
	Warmup    time.Duration          `yaml:"warmup" validate:"gte=0"`
}

type EventsConfig struct {
	Publish bool   `yaml:"publish"`
	Topic   string `yaml:"topic"`
}

type LogConfig struct {
	Level         string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	HumanReadable bool   `yaml:"human_readable"`
}

type ListenConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

func DefaultConfig() Config {
	return Config{
		Retry:   decision.DefaultRetryPolicy(),
		Catalog: CatalogConfig{Source: "static", Timeout: 3 * time.Second},
		Sensor: SensorConfig{
			Source:    "simulator",
			Simulator: sensor.DefaultSimulatorConfig(),
			Topic:     sensor.DefaultAggregatedTopic,
			MaxAge:    15 * time.Minute,
			Warmup:    5 * time.Second,
		},
		MQTT:   rabbitmq.Config{Host: "localhost", Port: 1883, ClientID: "irrigation-agent"},
		Events: EventsConfig{Topic: event.DefaultTopicTemplate},
		Influx: sensor.InfluxConfig{Measurement: "soil_moisture", Window: time.Hour},
		Log:    LogConfig{Level: "info"},
		HTTP:   ListenConfig{Addr: ":8080"},
		GRPC:   ListenConfig{Addr: ":50051"},
	}
}

// loadConfig layers defaults, the optional YAML file and the environment,
// then validates the result.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := entities.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	env := func(key string) (string, bool) {
		v := strings.TrimSpace(getenv(key))
		return v, v != ""
	}
	var errs []error
	envInt := func(key string, dst *int) {
		if v, ok := env(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	envStr := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}

	envInt("IRRIGATION_RETRY_LIMIT", &cfg.Retry.Limit)
	envStr("CATALOG_SOURCE", &cfg.Catalog.Source)
	envStr("CATALOG_FILE", &cfg.Catalog.File)
	envStr("CATALOG_URL", &cfg.Catalog.URL)
	envStr("SENSOR_SOURCE", &cfg.Sensor.Source)
	envStr("RABBITMQ_HOST", &cfg.MQTT.Host)
	envInt("RABBITMQ_PORT", &cfg.MQTT.Port)
	envStr("RABBITMQ_USER", &cfg.MQTT.User)
	envStr("RABBITMQ_PASSWORD", &cfg.MQTT.Password)
	envStr("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	envStr("INFLUX_URL", &cfg.Influx.URL)
	envStr("INFLUX_TOKEN", &cfg.Influx.Token)
	envStr("INFLUX_ORG", &cfg.Influx.Org)
	envStr("INFLUX_BUCKET", &cfg.Influx.Bucket)
	envStr("LOG_LEVEL", &cfg.Log.Level)
	envStr("HTTP_ADDR", &cfg.HTTP.Addr)
	envStr("GRPC_ADDR", &cfg.GRPC.Addr)

	return errors.Join(errs...)
}
