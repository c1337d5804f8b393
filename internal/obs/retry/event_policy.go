package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultEventPolicy guards the in-process handling of a consumed CRM
// event: short, jittered retries for transient store hiccups before the
// message is redelivered by the broker.
func DefaultEventPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "crm_event",
		Attempts: 4,
		Backoff:  ExpoJitter{Base: 150 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("event retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("event retries exhausted", zap.Error(err))
			}
		},
	}
}
