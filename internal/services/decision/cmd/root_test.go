package main

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/rabbitmq"
)

const quietConfig = `
sensor:
  simulator:
    timeout_probability: 0
    fault_probability: 0
    jitter: 0
log:
  level: error
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decodeReport(t *testing.T, out string) model.DecisionReport {
	t.Helper()
	var r model.DecisionReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestRootDefaultsToField12(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t, quietConfig))
	require.NoError(t, err)

	r := decodeReport(t, out)
	require.Equal(t, 12, r.FieldID)
	require.Equal(t, model.DecisionIrrigate, r.Decision)
	require.Equal(t, 32.1, *r.CurrentMoisture)
	require.Equal(t, "Moisture 32.1% below minimum 35.0%", r.Reason)
	require.Equal(t, 1, r.SensorAttempts)
	require.Contains(t, out, "\n  \"field_id\": 12", "report is indented")
}

func TestDecideUnknownFieldSucceeds(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t, quietConfig), "decide", "99")
	require.NoError(t, err, "maintenance is a valid outcome")

	r := decodeReport(t, out)
	require.Equal(t, model.DecisionMaintenanceRequired, r.Decision)
	require.Equal(t, 0, r.SensorAttempts)
	require.Equal(t, []string{"Field 99 not found"}, r.Errors)
	require.Nil(t, r.CurrentMoisture)
}

func TestDecideRetryLimitFlag(t *testing.T) {
	cfg := writeConfig(t, "sensor:\n  simulator:\n    timeout_probability: 1\nlog:\n  level: error\n")
	out, err := execute(t, "--config", cfg, "--retry-limit", "2", "15")
	require.NoError(t, err)

	r := decodeReport(t, out)
	require.Equal(t, model.DecisionMaintenanceRequired, r.Decision)
	require.Equal(t, 2, r.SensorAttempts)
	require.Equal(t, "Sensor timeout attempt 1; Sensor timeout after 2 attempts", r.Reason)
}

func TestUsageErrors(t *testing.T) {
	cfg := writeConfig(t, quietConfig)

	_, err := execute(t, "--config", cfg, "abc")
	require.ErrorContains(t, err, `invalid field id "abc"`)

	_, err = execute(t, "--config", cfg, "1", "2")
	require.Error(t, err)

	_, err = execute(t, "--config", cfg, "--retry-limit", "0", "12")
	require.ErrorContains(t, err, "Limit")
}

func TestVersionCommandOutputsBuildInfo(t *testing.T) {
	originalVersion, originalCommit, originalDate := version, commit, date
	t.Cleanup(func() { version, commit, date = originalVersion, originalCommit, originalDate })

	version, commit, date = "1.2.3", "abcdef1", "2025-10-03"

	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "1.2.3")
	require.Contains(t, out, "abcdef1")
	require.Contains(t, out, "2025-10-03")
}

type fakeToken struct{ mqtt.Token }

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type fakeBroker struct {
	mqtt.Client
	mu     sync.Mutex
	topics []string
	bodies [][]byte

	// retained is delivered to every subscriber shortly after it subscribes.
	retained *fakeMessage
}

func (b *fakeBroker) Subscribe(_ string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if msg := b.retained; msg != nil {
		go func() {
			time.Sleep(20 * time.Millisecond)
			callback(b, *msg)
		}()
	}
	return fakeToken{}
}

func (b *fakeBroker) Unsubscribe(...string) mqtt.Token { return fakeToken{} }

func (b *fakeBroker) IsConnected() bool      { return true }
func (b *fakeBroker) IsConnectionOpen() bool { return true }
func (b *fakeBroker) Disconnect(uint)        {}
func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.bodies = append(b.bodies, payload.([]byte))
	return fakeToken{}
}

func useBroker(t *testing.T, broker *fakeBroker) {
	t.Helper()
	original := connector
	t.Cleanup(func() { connector = original })
	connector = func(context.Context, rabbitmq.Config, *logger.Logger) (mqtt.Client, error) {
		return broker, nil
	}
}

func TestDecideWaitsForFirstBrokerReading(t *testing.T) {
	payload, err := json.Marshal(model.SensorReading{FieldID: 12, SensorID: "probe-12", Moisture: 50, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	useBroker(t, &fakeBroker{retained: &fakeMessage{topic: "sensor/aggregated/12", payload: payload}})

	cfg := writeConfig(t, "sensor:\n  source: mqtt\n  warmup: 2s\nlog:\n  level: error\n")
	out, err := execute(t, "--config", cfg, "decide", "12")
	require.NoError(t, err)

	r := decodeReport(t, out)
	require.Equal(t, model.DecisionDoNotIrrigate, r.Decision)
	require.Equal(t, 1, r.SensorAttempts)
	require.Equal(t, 50.0, *r.CurrentMoisture)
	require.Empty(t, r.Errors)
}

func TestDecideWarmupExpiryStillReports(t *testing.T) {
	useBroker(t, &fakeBroker{})

	cfg := writeConfig(t, "sensor:\n  source: mqtt\n  warmup: 20ms\nlog:\n  level: error\n")
	out, err := execute(t, "--config", cfg, "12")
	require.NoError(t, err)

	r := decodeReport(t, out)
	require.Equal(t, model.DecisionMaintenanceRequired, r.Decision)
	require.Equal(t, 3, r.SensorAttempts)
	require.Equal(t, "Sensor timeout after 3 attempts", r.Errors[len(r.Errors)-1])
}

func TestPublishFlagSendsDecisionEvent(t *testing.T) {
	broker := &fakeBroker{}
	useBroker(t, broker)

	out, err := execute(t, "--config", writeConfig(t, quietConfig), "--publish", "2")
	require.NoError(t, err)
	r := decodeReport(t, out)
	require.Equal(t, model.DecisionDoNotIrrigate, r.Decision)

	require.Equal(t, []string{"event/irrigationDecision/2"}, broker.topics)
	var evt model.IrrigationDecisionEvent
	require.NoError(t, json.Unmarshal(broker.bodies[0], &evt))
	require.Equal(t, "irrigation.decision", evt.EventType)
	require.Equal(t, r, evt.Report)
}
