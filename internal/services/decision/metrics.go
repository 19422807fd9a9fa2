package decision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/messages"
)

// Metrics records decision outcomes. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	attempts  prometheus.Histogram
	duration  prometheus.Histogram
}

// NewMetrics registers the decision collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_decisions_total",
			Help: "Decisions produced, by outcome.",
		}, []string{"decision"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrigation_sensor_attempts",
			Help:    "Sensor attempts per decision.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrigation_decide_duration_seconds",
			Help:    "Wall time of one Decide call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.decisions, m.attempts, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(r messages.DecisionReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(r.Decision)).Inc()
	m.attempts.Observe(float64(r.SensorAttempts))
	m.duration.Observe(elapsed.Seconds())
}
