package maillog

import (
	"time"

	"github.com/voyagecrm/notify/internal/domain/notification"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Log is the immutable audit record of one terminal send outcome.
// Rows are written only when an attempt concludes, never for a
// retryable failure in between.
type Log struct {
	ID                int64                    `json:"id"`
	TemplateType      string                   `json:"template_type"`
	Subject           string                   `json:"subject"`
	To                string                   `json:"to"`
	From              string                   `json:"from"`
	Status            Status                   `json:"status"`
	SentAt            *time.Time               `json:"sent_at,omitempty"`
	FailedAt          *time.Time               `json:"failed_at,omitempty"`
	ProviderMessageID *string                  `json:"provider_message_id,omitempty"`
	ErrorMessage      *string                  `json:"error_message,omitempty"`
	UserID            int64                    `json:"user_id"`
	Related           *notification.RelatedRef `json:"related,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
}
