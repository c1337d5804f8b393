package kafka

import (
	"context"

	"github.com/voyagecrm/notify/internal/domain/event"
)

// CRMEventsKafka publishes domain events on the topic the orchestrator
// consumes. The CRM side uses the same envelope.
type CRMEventsKafka struct {
	p *Producer
}

func NewCRMEventsKafka(p *Producer) *CRMEventsKafka { return &CRMEventsKafka{p: p} }

var _ event.Publisher = (*CRMEventsKafka)(nil)

func (e *CRMEventsKafka) PublishEvent(ctx context.Context, ev *event.Event) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.UserID), ev)
}
