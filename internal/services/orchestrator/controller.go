package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/event"
	"github.com/voyagecrm/notify/internal/obs/retry"
	kafkax "github.com/voyagecrm/notify/internal/repository/kafka"
)

// Controller feeds CRM domain events from Kafka into the orchestrator.
// Malformed events are logged and committed; transient handling errors
// ride the retry policy before the message is left for redelivery.
type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Orchestrator
	Pol retry.Policy
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(func(ctx context.Context, _ []byte, ev *event.Event) error {
		if err := ev.Validate(); err != nil {
			c.Log.Warn("invalid event dropped", zap.Error(err))
			return nil
		}
		err := retry.Do(ctx, func() error { return c.UC.Notify(ctx, ev) }, c.Pol)
		if errors.Is(err, event.ErrInvalid) {
			return nil
		}
		return err
	})
	return c.Sub.Consume(ctx, handler)
}
