package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/event"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
	"github.com/voyagecrm/notify/internal/domain/notification"
	"github.com/voyagecrm/notify/internal/domain/preference"
	"github.com/voyagecrm/notify/internal/obs"
)

var (
	mEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_events_total", Help: "Domain events handled.",
	})
	mInApp = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_inapp_created_total", Help: "In-app notifications stored.",
	})
	mPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_pushed_total", Help: "Notifications delivered to a live stream.",
	})
	mEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_emails_enqueued_total", Help: "Email jobs enqueued.",
	})
	mErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_errors_total", Help: "Branch failures.",
	})
)

// Pusher is the registry surface the orchestrator needs.
type Pusher interface {
	Send(userID int64, n *notification.Notification) bool
}

type Orchestrator struct {
	gate        Gate
	notifs      notification.Repo
	queue       mailqueue.Repo
	push        Pusher
	maxAttempts int
	log         *zap.Logger
}

// Gate is the policy surface consulted per channel.
type Gate interface {
	ShouldShowInApp(ctx context.Context, userID int64, cat preference.Category) bool
	ShouldSendEmail(ctx context.Context, userID int64, cat preference.Category) bool
}

func New(gate Gate, notifs notification.Repo, queue mailqueue.Repo, push Pusher, maxAttempts int, log *zap.Logger) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Orchestrator{
		gate:        gate,
		notifs:      notifs,
		queue:       queue,
		push:        push,
		maxAttempts: maxAttempts,
		log:         log.With(zap.String("component", "orchestrator")),
	}
}

// Notify fans a domain event out to the permitted channels. The two
// branches are independent: a failed store write does not stop the
// email enqueue and vice versa. Email delivery itself is asynchronous;
// Notify returns as soon as the job is queued.
func (o *Orchestrator) Notify(ctx context.Context, ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	mEvents.Inc()

	tr := otel.Tracer("orchestrator")
	ctx, span := tr.Start(ctx, "orchestrator.notify")
	span.SetAttributes(
		attribute.Int64("user.id", ev.UserID),
		attribute.String("event.category", string(ev.Category)),
	)
	defer span.End()

	log := obs.WithTrace(ctx, o.log)

	var inAppErr, emailErr error

	if o.gate.ShouldShowInApp(ctx, ev.UserID, ev.Category) {
		inAppErr = o.deliverInApp(ctx, ev, log)
	}

	if ev.EmailTemplate != "" && o.gate.ShouldSendEmail(ctx, ev.UserID, ev.Category) {
		emailErr = o.enqueueEmail(ctx, ev, log)
	}

	return errors.Join(inAppErr, emailErr)
}

func (o *Orchestrator) deliverInApp(ctx context.Context, ev *event.Event, log *zap.Logger) error {
	priority := ev.Priority
	if priority == "" {
		priority = notification.PriorityInfo
	}
	n := &notification.Notification{
		UserID:    ev.UserID,
		Type:      ev.Type(),
		Priority:  priority,
		Title:     ev.Title,
		Message:   ev.Message,
		ActionURL: ev.ActionURL,
		Related:   ev.Related,
	}
	if err := o.notifs.Create(ctx, n); err != nil {
		mErrors.Inc()
		log.Error("store notification", zap.Int64("user_id", ev.UserID), zap.Error(err))
		return fmt.Errorf("store notification: %w", err)
	}
	mInApp.Inc()

	if o.push.Send(ev.UserID, n) {
		mPushed.Inc()
	}
	return nil
}

func (o *Orchestrator) enqueueEmail(ctx context.Context, ev *event.Event, log *zap.Logger) error {
	// content is rendered at send time inside the processor, so a
	// template edit reaches entries that have not been sent yet
	entry := &mailqueue.Entry{
		IdempotencyKey: uuid.NewString(),
		TemplateType:   ev.EmailTemplate,
		Variables:      ev.EmailVars,
		MaxAttempts:    o.maxAttempts,
		UserID:         ev.UserID,
		Related:        ev.Related,
	}
	if err := o.queue.Enqueue(ctx, entry); err != nil {
		mErrors.Inc()
		log.Error("enqueue email", zap.Int64("user_id", ev.UserID), zap.Error(err))
		return fmt.Errorf("enqueue email: %w", err)
	}
	mEnqueued.Inc()
	return nil
}
