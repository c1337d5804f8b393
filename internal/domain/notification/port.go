package notification

import "context"

type ListParams struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

type Page struct {
	Items []*Notification `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	ListByUser(ctx context.Context, userID int64, p ListParams) (*Page, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)

	// MarkRead sets read_at once; re-marking an already-read row is a no-op.
	MarkRead(ctx context.Context, id int64) (*Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)

	Delete(ctx context.Context, id int64) error
	DeleteRead(ctx context.Context, userID int64) (int64, error)
	DeleteReadOlderThan(ctx context.Context, days int) (int64, error)
}
