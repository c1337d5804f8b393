package preference

import "time"

// Channel is a delivery path a user can switch on or off.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

// Category names a kind of CRM event users can tune independently.
type Category string

const (
	CategoryTripUpcoming     Category = "trip_upcoming"
	CategoryTripCreated      Category = "trip_created"
	CategoryPaymentDue       Category = "payment_due"
	CategoryPaymentReceived  Category = "payment_received"
	CategoryDocumentExpiring Category = "document_expiring"
	CategorySystem           Category = "system"
)

// Preference is one row per user, created lazily on first read.
// The master switches override per-category flags for their channel.
type Preference struct {
	UserID int64 `json:"user_id"`

	InAppEnabled bool `json:"in_app_enabled"`
	EmailEnabled bool `json:"email_enabled"`

	TripUpcomingInApp     bool `json:"trip_upcoming_in_app"`
	TripUpcomingEmail     bool `json:"trip_upcoming_email"`
	TripCreatedInApp      bool `json:"trip_created_in_app"`
	TripCreatedEmail      bool `json:"trip_created_email"`
	PaymentDueInApp       bool `json:"payment_due_in_app"`
	PaymentDueEmail       bool `json:"payment_due_email"`
	PaymentReceivedInApp  bool `json:"payment_received_in_app"`
	PaymentReceivedEmail  bool `json:"payment_received_email"`
	DocumentExpiringInApp bool `json:"document_expiring_in_app"`
	DocumentExpiringEmail bool `json:"document_expiring_email"`
	SystemInApp           bool `json:"system_in_app"`
	SystemEmail           bool `json:"system_email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Defaults returns the row written on first access: everything enabled.
func Defaults(userID int64) *Preference {
	return &Preference{
		UserID:                userID,
		InAppEnabled:          true,
		EmailEnabled:          true,
		TripUpcomingInApp:     true,
		TripUpcomingEmail:     true,
		TripCreatedInApp:      true,
		TripCreatedEmail:      true,
		PaymentDueInApp:       true,
		PaymentDueEmail:       true,
		PaymentReceivedInApp:  true,
		PaymentReceivedEmail:  true,
		DocumentExpiringInApp: true,
		DocumentExpiringEmail: true,
		SystemInApp:           true,
		SystemEmail:           true,
	}
}

// Allows resolves a channel decision for a category. The master switch
// wins; unknown categories default to allowed so new event kinds are
// delivered before a toggle exists for them.
func (p *Preference) Allows(ch Channel, cat Category) bool {
	switch ch {
	case ChannelInApp:
		if !p.InAppEnabled {
			return false
		}
	case ChannelEmail:
		if !p.EmailEnabled {
			return false
		}
	default:
		return false
	}

	switch cat {
	case CategoryTripUpcoming:
		return p.flag(ch, p.TripUpcomingInApp, p.TripUpcomingEmail)
	case CategoryTripCreated:
		return p.flag(ch, p.TripCreatedInApp, p.TripCreatedEmail)
	case CategoryPaymentDue:
		return p.flag(ch, p.PaymentDueInApp, p.PaymentDueEmail)
	case CategoryPaymentReceived:
		return p.flag(ch, p.PaymentReceivedInApp, p.PaymentReceivedEmail)
	case CategoryDocumentExpiring:
		return p.flag(ch, p.DocumentExpiringInApp, p.DocumentExpiringEmail)
	case CategorySystem:
		return p.flag(ch, p.SystemInApp, p.SystemEmail)
	default:
		return true
	}
}

func (p *Preference) flag(ch Channel, inApp, email bool) bool {
	if ch == ChannelInApp {
		return inApp
	}
	return email
}

// Patch carries a partial update; nil fields keep the stored value.
type Patch struct {
	InAppEnabled *bool `json:"in_app_enabled,omitempty"`
	EmailEnabled *bool `json:"email_enabled,omitempty"`

	TripUpcomingInApp     *bool `json:"trip_upcoming_in_app,omitempty"`
	TripUpcomingEmail     *bool `json:"trip_upcoming_email,omitempty"`
	TripCreatedInApp      *bool `json:"trip_created_in_app,omitempty"`
	TripCreatedEmail      *bool `json:"trip_created_email,omitempty"`
	PaymentDueInApp       *bool `json:"payment_due_in_app,omitempty"`
	PaymentDueEmail       *bool `json:"payment_due_email,omitempty"`
	PaymentReceivedInApp  *bool `json:"payment_received_in_app,omitempty"`
	PaymentReceivedEmail  *bool `json:"payment_received_email,omitempty"`
	DocumentExpiringInApp *bool `json:"document_expiring_in_app,omitempty"`
	DocumentExpiringEmail *bool `json:"document_expiring_email,omitempty"`
	SystemInApp           *bool `json:"system_in_app,omitempty"`
	SystemEmail           *bool `json:"system_email,omitempty"`
}

// Apply merges a patch into p.
func (p *Preference) Apply(patch Patch) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.InAppEnabled, patch.InAppEnabled)
	set(&p.EmailEnabled, patch.EmailEnabled)
	set(&p.TripUpcomingInApp, patch.TripUpcomingInApp)
	set(&p.TripUpcomingEmail, patch.TripUpcomingEmail)
	set(&p.TripCreatedInApp, patch.TripCreatedInApp)
	set(&p.TripCreatedEmail, patch.TripCreatedEmail)
	set(&p.PaymentDueInApp, patch.PaymentDueInApp)
	set(&p.PaymentDueEmail, patch.PaymentDueEmail)
	set(&p.PaymentReceivedInApp, patch.PaymentReceivedInApp)
	set(&p.PaymentReceivedEmail, patch.PaymentReceivedEmail)
	set(&p.DocumentExpiringInApp, patch.DocumentExpiringInApp)
	set(&p.DocumentExpiringEmail, patch.DocumentExpiringEmail)
	set(&p.SystemInApp, patch.SystemInApp)
	set(&p.SystemEmail, patch.SystemEmail)
}
