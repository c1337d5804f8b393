package mailqueue

import (
	"fmt"
	"time"

	"github.com/voyagecrm/notify/internal/domain/notification"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Entry is one outbound email job. Attempts is incremented when the
// processor claims the entry, before the transport call, so a crash
// mid-send can skip a retry slot but never retry forever. UpdatedAt is
// stamped on every status transition; a processing entry with a stale
// UpdatedAt is eligible for reclaim.
type Entry struct {
	ID             int64                    `json:"id"`
	IdempotencyKey string                   `json:"idempotency_key"`
	TemplateType   string                   `json:"template_type"`
	To             string                   `json:"to"`
	Variables      map[string]any           `json:"variables"`
	Status         Status                   `json:"status"`
	Attempts       int                      `json:"attempts"`
	MaxAttempts    int                      `json:"max_attempts"`
	NextAttemptAt  *time.Time               `json:"next_attempt_at,omitempty"`
	ErrorMessage   *string                  `json:"error_message,omitempty"`
	EmailLogID     *int64                   `json:"email_log_id,omitempty"`
	UserID         int64                    `json:"user_id"`
	Related        *notification.RelatedRef `json:"related,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	ProcessedAt    *time.Time               `json:"processed_at,omitempty"`
}

type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}

// Backoff returns the delay before retry attempt n (1-based): base, 2x,
// 4x and so on.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// DeliveryError is the transport boundary's error contract. Transient
// failures ride the backoff ladder; permanent ones go straight to a
// terminal failed outcome.
type DeliveryError struct {
	Transient bool
	Message   string
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "delivery error"
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func Transient(format string, args ...any) *DeliveryError {
	return &DeliveryError{Transient: true, Message: fmt.Sprintf(format, args...)}
}

func Permanent(format string, args ...any) *DeliveryError {
	return &DeliveryError{Transient: false, Message: fmt.Sprintf(format, args...)}
}

// RenderedMail is what the render layer hands to the transport.
type RenderedMail struct {
	Subject string
	HTML    string
	Text    string
}
