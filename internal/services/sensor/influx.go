package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
)

// InfluxConfig points at the bucket the persistence pipeline writes to.
type InfluxConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	Window      time.Duration `yaml:"window" validate:"gte=0"`
}

// recordIterator is the subset of *api.QueryTableResult used here.
type recordIterator interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
	Close() error
}

type queryFunc func(ctx context.Context, flux string) (recordIterator, error)

// InfluxSensor returns the newest stored moisture value of a field.
type InfluxSensor struct {
	cfg    InfluxConfig
	run    queryFunc
	client influxdb2.Client
}

func NewInfluxSensor(cfg InfluxConfig) (*InfluxSensor, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	qapi := client.QueryAPI(cfg.Org)
	s := newInfluxSensor(cfg, func(ctx context.Context, flux string) (recordIterator, error) {
		res, err := qapi.Query(ctx, flux)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	s.client = client
	return s, nil
}

func newInfluxSensor(cfg InfluxConfig, run queryFunc) *InfluxSensor {
	if cfg.Measurement == "" {
		cfg.Measurement = "soil_moisture"
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &InfluxSensor{cfg: cfg, run: run}
}

func (s *InfluxSensor) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *InfluxSensor) Read(ctx context.Context, fieldID int) (float64, error) {
	res, err := s.run(ctx, s.latestQuery(fieldID))
	if err != nil {
		return 0, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	if !res.Next() {
		if err := res.Err(); err != nil {
			return 0, fmt.Errorf("influx query: %w", err)
		}
		return 0, decision.ErrNoResponse
	}
	return toFloat(res.Record().Value())
}

func (s *InfluxSensor) latestQuery(fieldID int) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q and r._field == "moisture" and r.field_id == "%d")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: 1)`, s.cfg.Bucket, int64(s.cfg.Window/time.Second), s.cfg.Measurement, fieldID)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case nil:
		return 0, decision.ErrNoResponse
	default:
		return 0, fmt.Errorf("unexpected moisture value type %T", v)
	}
}
