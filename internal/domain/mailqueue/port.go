package mailqueue

import (
	"context"
	"time"
)

type Repo interface {
	Enqueue(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id int64) (*Entry, error)

	// ClaimBatch atomically moves up to limit due pending entries to
	// processing and increments their attempts, oldest first. Entries
	// already claimed by an overlapping run are not returned. A
	// processing entry whose claim is older than inProgressTTL was
	// abandoned by a dead worker and is claimed again, consuming
	// another attempt.
	ClaimBatch(ctx context.Context, limit int, inProgressTTL time.Duration) ([]*Entry, error)

	MarkCompleted(ctx context.Context, id int64, emailLogID int64) error
	MarkFailed(ctx context.Context, id int64, emailLogID int64, errMsg string) error

	// Reschedule returns a claimed entry to pending with a retry time.
	Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, errMsg string) error

	// Cancel is the administrative pending -> cancelled transition.
	Cancel(ctx context.Context, id int64) error

	Stats(ctx context.Context) (*Stats, error)
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}

// Transport sends one rendered message and reports the provider's id.
type Transport interface {
	Send(ctx context.Context, to string, mail RenderedMail) (providerMessageID string, err error)
}

// Renderer maps a template type plus variables to a rendered message.
// Rendering happens at send time, not enqueue time.
type Renderer interface {
	Render(templateType string, vars map[string]any) (RenderedMail, error)
}
