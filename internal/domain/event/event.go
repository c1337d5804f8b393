package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyagecrm/notify/internal/domain/notification"
	"github.com/voyagecrm/notify/internal/domain/preference"
)

// Event is a CRM domain event the orchestrator turns into deliveries.
// EmailTemplate is optional; without it the event is in-app only.
type Event struct {
	UserID        int64                    `json:"user_id"`
	Category      preference.Category      `json:"category"`
	Priority      notification.Priority    `json:"priority,omitempty"`
	Title         string                   `json:"title"`
	Message       string                   `json:"message"`
	ActionURL     string                   `json:"action_url,omitempty"`
	EmailTemplate string                   `json:"email_template,omitempty"`
	EmailVars     map[string]any           `json:"email_vars,omitempty"`
	Related       *notification.RelatedRef `json:"related,omitempty"`
}

var ErrInvalid = errors.New("invalid event")

func (e *Event) Validate() error {
	switch {
	case e.UserID <= 0:
		return fmt.Errorf("%w: user_id required", ErrInvalid)
	case e.Category == "":
		return fmt.Errorf("%w: category required", ErrInvalid)
	case e.Title == "":
		return fmt.Errorf("%w: title required", ErrInvalid)
	case e.Message == "":
		return fmt.Errorf("%w: message required", ErrInvalid)
	}
	return nil
}

// Type maps a preference category to the notification type it files under.
func (e *Event) Type() notification.Type {
	switch e.Category {
	case preference.CategoryTripUpcoming, preference.CategoryTripCreated:
		return notification.TypeTrip
	case preference.CategoryPaymentDue, preference.CategoryPaymentReceived:
		return notification.TypePayment
	case preference.CategoryDocumentExpiring:
		return notification.TypeDocument
	default:
		return notification.TypeSystem
	}
}

type Publisher interface {
	PublishEvent(ctx context.Context, ev *Event) error
}
