package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/messages"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

var (
	// ErrFieldNotFound is returned by a FieldCatalog for unknown identifiers.
	ErrFieldNotFound = errors.New("field not found")
	// ErrNoResponse is the canonical sensor timeout. Any error returned by a
	// MoistureSensor is treated the same way.
	ErrNoResponse = errors.New("sensor did not respond")
)

// FieldCatalog resolves field metadata. Implementations must be safe for
// concurrent reads.
type FieldCatalog interface {
	Lookup(ctx context.Context, fieldID int) (model.FieldRecord, error)
}

// MoistureSensor returns the raw moisture percentage of a field. The value is
// passed through untouched; range checking belongs to the engine.
type MoistureSensor interface {
	Read(ctx context.Context, fieldID int) (float64, error)
}

// Option customises an Engine.
type Option func(*Engine)

// WithRetryPolicy sets the sensor retry limit and wait schedule.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger attaches a logger; the engine logs nothing without one.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records every produced report in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine runs the decision workflow. It holds no per-call state and is safe
// for concurrent use when its collaborators are.
type Engine struct {
	catalog FieldCatalog
	sensor  MoistureSensor
	policy  RetryPolicy
	log     *logger.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewEngine builds an engine over the given collaborators. It fails when
// either is nil or the retry policy is invalid.
func NewEngine(catalog FieldCatalog, sensor MoistureSensor, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, errors.New("field catalog is nil")
	}
	if sensor == nil {
		return nil, errors.New("moisture sensor is nil")
	}
	e := &Engine{
		catalog: catalog,
		sensor:  sensor,
		policy:  DefaultRetryPolicy(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.policy.validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	return e, nil
}

// RetryPolicy returns the policy the engine was built with.
func (e *Engine) RetryPolicy() RetryPolicy {
	return e.policy
}

// Decide runs the workflow for one field and always returns a report.
// Failures never escape: they are collected in the report errors and resolve
// to MAINTENANCE_REQUIRED.
func (e *Engine) Decide(ctx context.Context, fieldID int) messages.DecisionReport {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	st := newDecisionState(fieldID, e.policy.Limit)
	bo := e.policy.newBackOff()
	log := e.log.WithFields(map[string]any{"field_id": fieldID})

	log.Info("decision requested")
	st.stage = StageFieldLookup
	for !st.stage.IsTerminal() {
		from := st.stage
		switch st.stage {
		case StageFieldLookup:
			st.stage = e.lookupField(ctx, st, log)
		case StageSensorFetch:
			st.stage = e.fetchSensor(ctx, st, bo, log)
		case StageValidate:
			st.stage = e.validate(st)
		case StageMaintenance:
			st.stage = e.maintenance(st)
		default:
			st.fail(fmt.Sprintf("Unknown workflow stage %q", st.stage))
			st.stage = StageMaintenance
		}
		log.WithFields(map[string]any{"from": from, "to": st.stage, "attempt": st.attemptCount}).Debug("transition")
	}

	report := st.report(e.now())
	e.metrics.observe(report, time.Since(start))
	log.WithFields(map[string]any{
		"decision":        report.Decision,
		"confidence":      report.Confidence,
		"sensor_attempts": report.SensorAttempts,
	}).Info("decision produced")
	return report
}

// DecideAsync runs Decide on its own goroutine and delivers exactly one report.
func (e *Engine) DecideAsync(ctx context.Context, fieldID int) <-chan messages.DecisionReport {
	out := make(chan messages.DecisionReport, 1)
	go func() {
		defer close(out)
		out <- e.Decide(ctx, fieldID)
	}()
	return out
}

func (e *Engine) lookupField(ctx context.Context, st *decisionState, log *logger.Logger) Stage {
	rec, err := e.safeLookup(ctx, st.fieldID)
	switch {
	case errors.Is(err, ErrFieldNotFound):
		log.Warn("field not found")
		st.fail(fmt.Sprintf("Field %d not found", st.fieldID))
		return StageMaintenance
	case err != nil:
		log.Error(err, "field catalog unavailable")
		st.fail(fmt.Sprintf("Field catalog unavailable for field %d: %v", st.fieldID, err))
		return StageMaintenance
	}
	if err := rec.Validate(); err != nil {
		log.Error(err, "field record rejected")
		st.fail(fmt.Sprintf("Field %d has invalid moisture thresholds: %v", st.fieldID, err))
		return StageMaintenance
	}
	st.field = &rec
	log.WithFields(map[string]any{"crop_type": rec.CropType, "optimal": rec.OptimalMoisture}).Info("field found")
	return StageSensorFetch
}

func (e *Engine) fetchSensor(ctx context.Context, st *decisionState, bo backoff.BackOff, log *logger.Logger) Stage {
	st.attemptCount++
	sample := e.readSample(ctx, st.fieldID, log)
	alog := log.WithFields(map[string]any{"attempt": st.attemptCount, "limit": st.retryLimit})

	switch sample.Kind {
	case entities.SampleValid:
		v := sample.Value
		st.moisture = &v
		alog.WithFields(map[string]any{"moisture": v}).Info("sensor reading accepted")
		return StageValidate

	case entities.SampleOutOfRange:
		v := sample.Value
		// NaN and infinities have no JSON form; they survive only in the error.
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			st.moisture = &v
		}
		alog.WithFields(map[string]any{"moisture": formatMoisture(v)}).Warn("sensor hardware fault")
		st.fail(fmt.Sprintf("Invalid sensor value %s%%", formatMoisture(v)))
		return StageMaintenance
	}

	if st.attemptCount >= st.retryLimit {
		alog.Warn("sensor timeout, retries exhausted")
		st.fail(fmt.Sprintf("Sensor timeout after %d attempts", st.attemptCount))
		return StageMaintenance
	}

	alog.Warn("sensor timeout, retrying")
	st.fail(fmt.Sprintf("Sensor timeout attempt %d", st.attemptCount))
	if err := waitBackOff(ctx, bo); err != nil {
		st.fail(fmt.Sprintf("Decision cancelled: %v", err))
		return StageMaintenance
	}
	return StageSensorFetch
}

func (e *Engine) validate(st *decisionState) Stage {
	field, moisture := *st.field, *st.moisture
	st.decision, st.reason = applyThresholds(field, moisture)
	st.confidence = gradeConfidence(field, moisture)
	return StageDone
}

func (e *Engine) maintenance(st *decisionState) Stage {
	st.decision = messages.DecisionMaintenanceRequired
	st.reason = strings.Join(st.errors, "; ")
	st.confidence = messages.ConfidenceNA
	return StageDone
}

func (e *Engine) safeLookup(ctx context.Context, fieldID int) (rec model.FieldRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("catalog panic: %v", r)
		}
	}()
	return e.catalog.Lookup(ctx, fieldID)
}

func (e *Engine) readSample(ctx context.Context, fieldID int, log *logger.Logger) (sample model.MoistureSample) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "sensor panic")
			sample = entities.NoResponse()
		}
	}()
	v, err := e.sensor.Read(ctx, fieldID)
	if err != nil {
		if !errors.Is(err, ErrNoResponse) {
			log.Error(err, "sensor read failed")
		}
		return entities.NoResponse()
	}
	return entities.ClassifyReading(v)
}

// formatMoisture prints the reading at full precision so a rejected value
// never rounds into the valid range.
func formatMoisture(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// waitBackOff sleeps for the next scheduled interval, honouring ctx.
func waitBackOff(ctx context.Context, bo backoff.BackOff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := bo.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *decisionState) report(ts time.Time) messages.DecisionReport {
	r := messages.DecisionReport{
		FieldID:        s.fieldID,
		Decision:       s.decision,
		Reason:         s.reason,
		Confidence:     s.confidence,
		SensorAttempts: s.attemptCount,
		Timestamp:      ts,
		Errors:         append([]string{}, s.errors...),
	}
	if s.moisture != nil {
		v := *s.moisture
		r.CurrentMoisture = &v
	}
	if s.field != nil {
		rng := s.field.OptimalRange()
		r.OptimalRange = &rng
	}
	return r
}
