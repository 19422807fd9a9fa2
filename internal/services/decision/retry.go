package decision

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultRetryLimit = 3

// RetryPolicy bounds how many times the sensor is consulted for one decision.
// Limit counts attempts, not extra retries: Limit 1 means a single read.
// The bound applies to NoResponse only.
type RetryPolicy struct {
	Limit int `yaml:"limit" validate:"gt=0"`
	// Interval is the wait between NoResponse attempts. Zero means none.
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	// MaxInterval enables exponential growth of the wait when above Interval.
	MaxInterval time.Duration `yaml:"max_interval" validate:"gte=0"`
}

var ErrInvalidRetryLimit = errors.New("retry limit must be positive")

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Limit: DefaultRetryLimit}
}

func (p RetryPolicy) validate() error {
	if p.Limit <= 0 {
		return ErrInvalidRetryLimit
	}
	return nil
}

// newBackOff returns the wait schedule for one Decide call. It yields at most
// Limit-1 waits, one per self-loop of the sensor stage.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	var b backoff.BackOff
	switch {
	case p.Interval <= 0:
		b = &backoff.ZeroBackOff{}
	case p.MaxInterval > p.Interval:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Interval
		eb.MaxInterval = p.MaxInterval
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	default:
		b = backoff.NewConstantBackOff(p.Interval)
	}
	return backoff.WithMaxRetries(b, uint64(p.Limit-1))
}
