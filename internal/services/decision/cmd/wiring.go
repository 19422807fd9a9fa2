package main

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/api"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/catalog"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/event"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/sensor"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/rabbitmq"
)

// app is the assembled agent shared by the commands.
type app struct {
	cfg      Config
	log      *logger.Logger
	engine   *decision.Engine
	service  *api.Service
	catalog  decision.FieldCatalog
	registry *prometheus.Registry
	probes   []event.Probe
	stream   *sensor.MQTTSensor

	background []func(ctx context.Context) error
	closers    []func()
}

// connector opens the broker connection; swapped in tests.
var connector = rabbitmq.NewRabbitMQConn

func buildApp(ctx context.Context, cfg Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := decision.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if a.catalog, err = a.buildCatalog(); err != nil {
		return nil, err
	}

	var client mqtt.Client
	if cfg.Sensor.Source == "mqtt" || cfg.Events.Publish {
		client, err = connector(ctx, cfg.MQTT, log)
		if err != nil {
			return nil, err
		}
		a.probes = append(a.probes, event.MQTTProbe(client))
		a.closers = append(a.closers, func() { rabbitmq.CloseRabbitMQConn(client, log) })
	}

	moisture, err := a.buildSensor(client)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = decision.NewEngine(a.catalog, moisture,
		decision.WithRetryPolicy(cfg.Retry),
		decision.WithLogger(log),
		decision.WithMetrics(metrics),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	var notifier api.Notifier
	if cfg.Events.Publish {
		n, err := event.NewNotifier(rabbitmq.NewPublisherFactory(client, log), cfg.Events.Topic, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		notifier = n
	}
	if a.service, err = api.NewService(a.engine, notifier, log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildCatalog() (decision.FieldCatalog, error) {
	c := a.cfg.Catalog
	switch c.Source {
	case "file":
		return catalog.LoadFile(c.File)
	case "http":
		h, err := catalog.NewHTTP(c.URL, c.Timeout, c.Breaker, a.log)
		if err != nil {
			return nil, err
		}
		a.probes = append(a.probes, event.BreakerProbe("field_catalog", h.State))
		return h, nil
	default:
		return catalog.Default(), nil
	}
}

func (a *app) buildSensor(client mqtt.Client) (decision.MoistureSensor, error) {
	s := a.cfg.Sensor
	switch s.Source {
	case "mqtt":
		ms := sensor.NewMQTTSensor(rabbitmq.NewConsumer(client, s.Topic, a.log), s.MaxAge, a.log)
		a.background = append(a.background, ms.Start)
		a.stream = ms
		return ms, nil
	case "influx":
		is, err := sensor.NewInfluxSensor(a.cfg.Influx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, is.Close)
		return is, nil
	default:
		return sensor.NewSimulator(s.Simulator), nil
	}
}

// Start launches background consumers bound to ctx.
func (a *app) Start(ctx context.Context) {
	for _, run := range a.background {
		run := run
		go func() {
			if err := run(ctx); err != nil {
				a.log.Error(err, "background task stopped")
			}
		}()
	}
}

// awaitReading gives a broker-fed sensor up to sensor.warmup to deliver a
// reading for fieldID. A timeout is logged and the decision proceeds.
func (a *app) awaitReading(ctx context.Context, fieldID int) {
	if a.stream == nil || a.cfg.Sensor.Warmup <= 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, a.cfg.Sensor.Warmup)
	defer cancel()
	if err := a.stream.WaitFor(wctx, fieldID); err != nil {
		a.log.WithFields(map[string]any{"field_id": fieldID, "warmup": a.cfg.Sensor.Warmup.String()}).Warn("no broker reading before warmup expired")
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
