package sensor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/rabbitmq"
)

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type fakeConsumer struct {
	handler rabbitmq.Handler
	started chan struct{}
}

func (c *fakeConsumer) SetHandler(h rabbitmq.Handler) { c.handler = h }

func (c *fakeConsumer) ConsumeMessage(ctx context.Context) error {
	close(c.started)
	<-ctx.Done()
	return nil
}

func (c *fakeConsumer) deliver(t *testing.T, topic string, v any) {
	t.Helper()
	var payload []byte
	switch p := v.(type) {
	case []byte:
		payload = p
	default:
		var err error
		payload, err = json.Marshal(v)
		require.NoError(t, err)
	}
	require.NoError(t, c.handler(topic, fakeMessage{topic: topic, payload: payload}))
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestMQTTSensor(maxAge time.Duration) (*MQTTSensor, *fakeConsumer, *time.Time) {
	c := &fakeConsumer{started: make(chan struct{})}
	s := NewMQTTSensor(c, maxAge, logger.Nop())
	now := t0
	s.now = func() time.Time { return now }
	return s, c, &now
}

func TestMQTTSensorNoReading(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestMQTTSensor(time.Minute)
	_, err := s.Read(context.Background(), 12)
	require.ErrorIs(t, err, decision.ErrNoResponse)
}

func TestMQTTSensorLatestReading(t *testing.T) {
	t.Parallel()

	s, c, _ := newTestMQTTSensor(time.Hour)
	c.deliver(t, "sensor/aggregated/12/s1", model.SensorReading{FieldID: 12, Moisture: 30, Timestamp: t0.Add(-2 * time.Minute)})
	c.deliver(t, "sensor/aggregated/12/s1", model.SensorReading{FieldID: 12, Moisture: 33.5, Timestamp: t0.Add(-time.Minute)})
	c.deliver(t, "sensor/aggregated/12/s1", model.SensorReading{FieldID: 12, Moisture: 20, Timestamp: t0.Add(-10 * time.Minute)})

	v, err := s.Read(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, 33.5, v, "older readings never replace newer ones")
}

func TestMQTTSensorStaleReading(t *testing.T) {
	t.Parallel()

	s, c, now := newTestMQTTSensor(5 * time.Minute)
	c.deliver(t, "sensor/aggregated/12", model.SensorReading{FieldID: 12, Moisture: 40, Timestamp: t0})

	*now = t0.Add(6 * time.Minute)
	_, err := s.Read(context.Background(), 12)
	require.ErrorIs(t, err, decision.ErrNoResponse)
}

func TestMQTTSensorPassesRawValues(t *testing.T) {
	t.Parallel()

	s, c, _ := newTestMQTTSensor(0)
	c.deliver(t, "sensor/aggregated/15", model.SensorReading{FieldID: 15, Moisture: 150, Timestamp: t0})

	v, err := s.Read(context.Background(), 15)
	require.NoError(t, err)
	require.Equal(t, 150.0, v)
}

func TestMQTTSensorFieldFromTopic(t *testing.T) {
	t.Parallel()

	s, c, _ := newTestMQTTSensor(time.Hour)
	c.deliver(t, "sensor/aggregated/20/probe-a", []byte(`{"sensor_id":"probe-a","moisture":52}`))
	c.deliver(t, "sensor/aggregated", []byte(`{"moisture":11}`))
	c.deliver(t, "sensor/aggregated/20", []byte(`not json`))

	v, err := s.Read(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 52.0, v)
}

func TestMQTTSensorDropsRedeliveries(t *testing.T) {
	t.Parallel()

	s, c, now := newTestMQTTSensor(time.Hour)
	first := []byte(`{"field_id":2,"moisture":30}`)
	c.deliver(t, "sensor/aggregated/2", first)

	*now = t0.Add(time.Second)
	c.deliver(t, "sensor/aggregated/2", []byte(`{"field_id":2,"moisture":41}`))

	*now = t0.Add(2 * time.Second)
	c.deliver(t, "sensor/aggregated/2", first)

	v, err := s.Read(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 41.0, v)
}

func TestMQTTSensorStart(t *testing.T) {
	t.Parallel()

	s, c, _ := newTestMQTTSensor(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	<-c.started
	cancel()
	require.NoError(t, <-done)

	require.Error(t, NewMQTTSensor(nil, 0, nil).Start(context.Background()))
}

func TestMQTTSensorWaitForReading(t *testing.T) {
	t.Parallel()

	s, c, _ := newTestMQTTSensor(time.Hour)
	done := make(chan error, 1)
	go func() { done <- s.WaitFor(context.Background(), 12) }()

	c.deliver(t, "sensor/aggregated/1", model.SensorReading{FieldID: 1, Moisture: 30, Timestamp: t0})
	c.deliver(t, "sensor/aggregated/12", model.SensorReading{FieldID: 12, Moisture: 44, Timestamp: t0})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitFor did not return after the reading arrived")
	}
	v, err := s.Read(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, 44.0, v)
}

func TestMQTTSensorWaitForTimesOut(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestMQTTSensor(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, s.WaitFor(ctx, 12), context.DeadlineExceeded)
}
