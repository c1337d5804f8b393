package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/maillog"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
	"github.com/voyagecrm/notify/internal/domain/notification"
	"github.com/voyagecrm/notify/internal/domain/user"
	pgrepo "github.com/voyagecrm/notify/internal/repository/postgres"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Processor drains claimed queue entries through render and transport
// and settles each one: completed, rescheduled with backoff, or failed.
// A log row is written only on terminal outcomes.
type Processor struct {
	Queue     mailqueue.Repo
	Logs      maillog.Repo
	Users     user.Repo
	Transport mailqueue.Transport
	Renderer  mailqueue.Renderer

	From          string
	BaseBackoff   time.Duration
	MaxAttempts   int
	ProcessingTTL time.Duration
	Clock         notification.Clock
	Log           *zap.Logger
}

func NewProcessor(
	queue mailqueue.Repo,
	logs maillog.Repo,
	users user.Repo,
	transport mailqueue.Transport,
	renderer mailqueue.Renderer,
	from string,
	baseBackoff time.Duration,
	maxAttempts int,
	processingTTL time.Duration,
	log *zap.Logger,
) *Processor {
	if baseBackoff <= 0 {
		baseBackoff = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if processingTTL <= 0 {
		processingTTL = 10 * time.Minute
	}
	if log == nil {
		log = zap.L()
	}
	return &Processor{
		Queue:         queue,
		Logs:          logs,
		Users:         users,
		Transport:     transport,
		Renderer:      renderer,
		From:          from,
		BaseBackoff:   baseBackoff,
		MaxAttempts:   maxAttempts,
		ProcessingTTL: processingTTL,
		Clock:         realClock{},
		Log:           log,
	}
}

// Tick claims one batch and processes every entry in it. One bad entry
// never blocks the rest of the batch.
func (p *Processor) Tick(ctx context.Context, limit int) (claimed, sent, retried, failed int, err error) {
	if limit <= 0 {
		limit = 10
	}

	tr := otel.Tracer("email-worker.processor")
	ctxTick, span := tr.Start(ctx, "email-worker.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	batch, err := p.Queue.ClaimBatch(ctxTick, limit, p.ProcessingTTL)
	if err != nil {
		span.RecordError(err)
		return 0, 0, 0, 0, fmt.Errorf("claim batch: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.claimed", len(batch)))

	for _, e := range batch {
		ctxEntry, sp := tr.Start(ctxTick, "email-worker.process",
			trace.WithAttributes(
				attribute.Int64("entry.id", e.ID),
				attribute.String("entry.template", e.TemplateType),
				attribute.Int("entry.attempt", e.Attempts),
			),
		)
		outcome, perr := p.process(ctxEntry, e)
		if perr != nil {
			sp.RecordError(perr)
			p.Log.Warn("entry settlement failed",
				zap.Int64("entry_id", e.ID), zap.Error(perr))
		}
		sp.SetAttributes(attribute.String("entry.outcome", string(outcome)))
		sp.End()

		switch outcome {
		case outcomeSent:
			sent++
		case outcomeRetried:
			retried++
		case outcomeFailed:
			failed++
		}
	}
	return len(batch), sent, retried, failed, nil
}

type outcome string

const (
	outcomeSent    outcome = "sent"
	outcomeRetried outcome = "retried"
	outcomeFailed  outcome = "failed"
)

// process runs one claimed entry to a settled state. The returned error
// reports settlement problems (a failed status update), not delivery
// failures, which are folded into the outcome.
func (p *Processor) process(ctx context.Context, e *mailqueue.Entry) (outcome, error) {
	to, mail, derr := p.prepare(ctx, e)
	if derr == nil {
		var msgID string
		msgID, derr = p.send(ctx, to, mail)
		if derr == nil {
			return outcomeSent, p.settleSent(ctx, e, to, mail.Subject, msgID)
		}
	}

	// Attempts was already incremented by the claim.
	if derr.Transient && e.Attempts < p.entryMax(e) {
		next := p.Clock.Now().Add(mailqueue.Backoff(p.BaseBackoff, e.Attempts))
		if err := p.Queue.Reschedule(ctx, e.ID, next, derr.Error()); err != nil {
			return outcomeRetried, fmt.Errorf("reschedule entry %d: %w", e.ID, err)
		}
		return outcomeRetried, nil
	}
	return outcomeFailed, p.settleFailed(ctx, e, to, mail.Subject, derr)
}

// prepare resolves the recipient and renders the message. A missing
// recipient or a render failure is permanent; a recipient lookup that
// errors out is transient.
func (p *Processor) prepare(ctx context.Context, e *mailqueue.Entry) (string, mailqueue.RenderedMail, *mailqueue.DeliveryError) {
	to := e.To
	if to == "" {
		u, err := p.Users.GetByID(ctx, e.UserID)
		switch {
		case errors.Is(err, pgrepo.ErrNotFound):
			return "", mailqueue.RenderedMail{}, mailqueue.Permanent("recipient user %d not found", e.UserID)
		case err != nil:
			return "", mailqueue.RenderedMail{}, mailqueue.Transient("resolve recipient: %v", err)
		}
		to = u.Email
	}

	mail, err := p.Renderer.Render(e.TemplateType, e.Variables)
	if err != nil {
		return to, mailqueue.RenderedMail{}, mailqueue.Permanent("render %q: %v", e.TemplateType, err)
	}
	return to, mail, nil
}

func (p *Processor) send(ctx context.Context, to string, mail mailqueue.RenderedMail) (string, *mailqueue.DeliveryError) {
	msgID, err := p.Transport.Send(ctx, to, mail)
	if err == nil {
		return msgID, nil
	}
	var derr *mailqueue.DeliveryError
	if !errors.As(err, &derr) {
		derr = &mailqueue.DeliveryError{Transient: true, Message: err.Error(), Err: err}
	}
	return "", derr
}

func (p *Processor) settleSent(ctx context.Context, e *mailqueue.Entry, to, subject, msgID string) error {
	now := p.Clock.Now()
	rec := &maillog.Log{
		TemplateType:      e.TemplateType,
		Subject:           subject,
		To:                to,
		From:              p.From,
		Status:            maillog.StatusSent,
		SentAt:            &now,
		ProviderMessageID: &msgID,
		UserID:            e.UserID,
		Related:           e.Related,
	}
	var logID int64
	if err := p.Logs.Create(ctx, rec); err != nil {
		p.Log.Warn("sent log write failed", zap.Int64("entry_id", e.ID), zap.Error(err))
	} else {
		logID = rec.ID
	}
	if err := p.Queue.MarkCompleted(ctx, e.ID, logID); err != nil {
		return fmt.Errorf("mark completed entry %d: %w", e.ID, err)
	}
	return nil
}

func (p *Processor) settleFailed(ctx context.Context, e *mailqueue.Entry, to, subject string, derr *mailqueue.DeliveryError) error {
	now := p.Clock.Now()
	msg := derr.Error()
	rec := &maillog.Log{
		TemplateType: e.TemplateType,
		Subject:      subject,
		To:           to,
		From:         p.From,
		Status:       maillog.StatusFailed,
		FailedAt:     &now,
		ErrorMessage: &msg,
		UserID:       e.UserID,
		Related:      e.Related,
	}
	var logID int64
	if err := p.Logs.Create(ctx, rec); err != nil {
		p.Log.Warn("failed log write failed", zap.Int64("entry_id", e.ID), zap.Error(err))
	} else {
		logID = rec.ID
	}
	if err := p.Queue.MarkFailed(ctx, e.ID, logID, msg); err != nil {
		return fmt.Errorf("mark failed entry %d: %w", e.ID, err)
	}
	return nil
}

func (p *Processor) entryMax(e *mailqueue.Entry) int {
	if e.MaxAttempts > 0 {
		return e.MaxAttempts
	}
	return p.MaxAttempts
}
