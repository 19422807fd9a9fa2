package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
)

// DefaultReadings are the baseline moisture values of the simulated probes.
func DefaultReadings() map[int]float64 {
	return map[int]float64{1: 28.5, 2: 45.2, 12: 32.1, 15: 35.8, 20: 55.3}
}

// FaultValues are the readings a broken probe reports.
var FaultValues = []float64{-50.0, -99.9, 150.0, 999.0}

// SimulatorConfig drives the simulated probes. Probabilities are in [0,1].
type SimulatorConfig struct {
	TimeoutProbability float64 `yaml:"timeout_probability" validate:"gte=0,lte=1"`
	FaultProbability   float64 `yaml:"fault_probability" validate:"gte=0,lte=1"`
	Jitter             float64 `yaml:"jitter" validate:"gte=0"`
	// Seed makes the sequence reproducible. Zero picks a time-based seed.
	Seed     int64           `yaml:"seed"`
	Readings map[int]float64 `yaml:"readings"`
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		TimeoutProbability: 0.2,
		FaultProbability:   0.05,
		Jitter:             1.5,
	}
}

// Simulator is a MoistureSensor that times out, faults and jitters at the
// configured rates. Safe for concurrent use.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	cfg      SimulatorConfig
	readings map[int]float64
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	readings := make(map[int]float64, len(cfg.Readings))
	src := cfg.Readings
	if len(src) == 0 {
		src = DefaultReadings()
	}
	for id, v := range src {
		readings[id] = v
	}
	return &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		cfg:      cfg,
		readings: readings,
	}
}

// Read rolls for a timeout, then for a hardware fault, then reports the
// baseline plus jitter. Fields without a probe never respond.
func (s *Simulator) Read(ctx context.Context, fieldID int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.cfg.TimeoutProbability {
		return 0, decision.ErrNoResponse
	}
	if s.rng.Float64() < s.cfg.FaultProbability {
		return FaultValues[s.rng.Intn(len(FaultValues))], nil
	}
	base, ok := s.readings[fieldID]
	if !ok {
		return 0, decision.ErrNoResponse
	}
	return base + (s.rng.Float64()*2-1)*s.cfg.Jitter, nil
}

// Set overrides the baseline of one probe.
func (s *Simulator) Set(fieldID int, moisture float64) {
	s.mu.Lock()
	s.readings[fieldID] = moisture
	s.mu.Unlock()
}
