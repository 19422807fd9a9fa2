package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

// BreakerConfig tunes the circuit breaker in front of the remote catalog.
type BreakerConfig struct {
	Failures int           `yaml:"failures" validate:"gte=0"`
	OpenFor  time.Duration `yaml:"open_for" validate:"gte=0"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// HTTP fetches field records from `GET {base}/fields/{id}`.
type HTTP struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewHTTP(base string, timeout time.Duration, bc BreakerConfig, log *logger.Logger) (*HTTP, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, errors.New("catalog base url is empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTP{
		base:    base,
		client:  &http.Client{Timeout: timeout},
		breaker: newBreaker("field-catalog", bc, log),
		log:     log,
	}, nil
}

func newBreaker(name string, bc BreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker {
	fails := bc.Failures
	if fails < 1 {
		fails = 5
	}
	openFor := bc.OpenFor
	if openFor <= 0 {
		openFor = 10 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: bc.Interval,
		Timeout:  openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		// an unknown field is a valid answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, decision.ErrFieldNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]any{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state change")
		},
	})
}

// State exposes the breaker state for health reporting.
func (h *HTTP) State() gobreaker.State {
	return h.breaker.State()
}

func (h *HTTP) Lookup(ctx context.Context, fieldID int) (model.FieldRecord, error) {
	res, err := h.breaker.Execute(func() (any, error) {
		return h.fetch(ctx, fieldID)
	})
	if err != nil {
		return model.FieldRecord{}, err
	}
	return res.(model.FieldRecord), nil
}

func (h *HTTP) fetch(ctx context.Context, fieldID int) (model.FieldRecord, error) {
	url := fmt.Sprintf("%s/fields/%d", h.base, fieldID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.FieldRecord{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return model.FieldRecord{}, fmt.Errorf("catalog request error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.FieldRecord{}, fmt.Errorf("field %d: %w", fieldID, decision.ErrFieldNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return model.FieldRecord{}, fmt.Errorf("catalog upstream status %d", resp.StatusCode)
	}

	var rec model.FieldRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return model.FieldRecord{}, fmt.Errorf("catalog decode error: %w", err)
	}
	if rec.FieldID == 0 {
		rec.FieldID = fieldID
	}
	if rec.FieldID != fieldID {
		return model.FieldRecord{}, fmt.Errorf("catalog returned field %d for request %d", rec.FieldID, fieldID)
	}
	return rec, nil
}
