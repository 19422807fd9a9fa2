package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/dedup"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/rabbitmq"
)

const DefaultAggregatedTopic = "sensor/aggregated/#"

// MQTTSensor caches the newest aggregated reading per field as delivered by
// the broker. Readings older than maxAge count as no response.
type MQTTSensor struct {
	consumer rabbitmq.IConsumer
	deduper  *dedup.Deduper
	maxAge   time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu     sync.RWMutex
	latest map[int]model.SensorReading
	// notify is closed and replaced whenever a reading is cached.
	notify chan struct{}
}

func NewMQTTSensor(consumer rabbitmq.IConsumer, maxAge time.Duration, log *logger.Logger) *MQTTSensor {
	s := &MQTTSensor{
		consumer: consumer,
		deduper:  dedup.New(2*time.Minute, 10000),
		maxAge:   maxAge,
		log:      log,
		now:      time.Now,
		latest:   make(map[int]model.SensorReading),
		notify:   make(chan struct{}),
	}
	if consumer != nil {
		consumer.SetHandler(s.handleMessage)
	}
	return s
}

// Start consumes until ctx is cancelled.
func (s *MQTTSensor) Start(ctx context.Context) error {
	if s.consumer == nil {
		return fmt.Errorf("mqtt sensor: no consumer")
	}
	return s.consumer.ConsumeMessage(ctx)
}

func (s *MQTTSensor) Read(ctx context.Context, fieldID int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	r, ok := s.latest[fieldID]
	s.mu.RUnlock()
	if !ok {
		return 0, decision.ErrNoResponse
	}
	if s.maxAge > 0 && s.now().Sub(r.Timestamp) > s.maxAge {
		return 0, fmt.Errorf("field %d reading is %s old: %w", fieldID, s.now().Sub(r.Timestamp).Truncate(time.Second), decision.ErrNoResponse)
	}
	return r.Moisture, nil
}

// Observe records a reading unless a newer one is already cached.
func (s *MQTTSensor) Observe(r model.SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[r.FieldID]; ok && cur.Timestamp.After(r.Timestamp) {
		return
	}
	s.latest[r.FieldID] = r
	close(s.notify)
	s.notify = make(chan struct{})
}

// WaitFor blocks until a reading for fieldID is cached or ctx is done.
func (s *MQTTSensor) WaitFor(ctx context.Context, fieldID int) error {
	for {
		s.mu.RLock()
		_, ok := s.latest[fieldID]
		ch := s.notify
		s.mu.RUnlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *MQTTSensor) handleMessage(topic string, msg mqtt.Message) error {
	if !s.deduper.ShouldProcessPayload(msg.Payload()) {
		return nil
	}
	var r model.SensorReading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		s.log.WithFields(map[string]any{"topic": topic}).Error(err, "invalid sensor payload")
		return nil
	}
	if r.FieldID == 0 {
		id, ok := fieldFromTopic(topic)
		if !ok {
			s.log.WithFields(map[string]any{"topic": topic}).Warn("reading without field id")
			return nil
		}
		r.FieldID = id
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	s.Observe(r)
	s.log.WithFields(map[string]any{"field_id": r.FieldID, "sensor_id": r.SensorID, "moisture": r.Moisture}).Debug("reading cached")
	return nil
}

// fieldFromTopic parses sensor/aggregated/{field}[/...].
func fieldFromTopic(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return id, true
}
