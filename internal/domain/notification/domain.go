package notification

import "time"

type Type string

const (
	TypeTrip     Type = "trip"
	TypePayment  Type = "payment"
	TypeDocument Type = "document"
	TypeSystem   Type = "system"
)

type Priority string

const (
	PriorityInfo    Priority = "info"
	PriorityWarning Priority = "warning"
	PriorityError   Priority = "error"
)

type RelatedKind string

const (
	RelatedTrip     RelatedKind = "trip"
	RelatedPayment  RelatedKind = "payment"
	RelatedDocument RelatedKind = "document"
	RelatedCustomer RelatedKind = "customer"
)

// RelatedRef points at the CRM entity a notification is about.
type RelatedRef struct {
	Kind RelatedKind `json:"kind"`
	ID   int64       `json:"id"`
}

type Notification struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Type      Type        `json:"type"`
	Priority  Priority    `json:"priority"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	ActionURL string      `json:"action_url,omitempty"`
	Related   *RelatedRef `json:"related,omitempty"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (n *Notification) Read() bool { return n.ReadAt != nil }

type Clock interface {
	Now() time.Time
}
