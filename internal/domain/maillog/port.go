package maillog

import "context"

type Repo interface {
	Create(ctx context.Context, l *Log) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Log, error)
}
