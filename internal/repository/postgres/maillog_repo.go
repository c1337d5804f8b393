package postgres

import (
	"context"
	"fmt"

	"github.com/voyagecrm/notify/internal/domain/maillog"
	"github.com/voyagecrm/notify/internal/domain/notification"
)

var _ maillog.Repo = (*MailLogRepo)(nil)

type MailLogRepo struct{ db *DB }

func NewMailLogRepo(db *DB) *MailLogRepo { return &MailLogRepo{db: db} }

const (
	qLogInsert = `
INSERT INTO email_logs
  (template_type, subject, recipient, sender, status, sent_at, failed_at,
   provider_message_id, error_message, user_id, related_kind, related_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, created_at;`

	qLogByUser = `
SELECT id, template_type, subject, recipient, sender, status, sent_at, failed_at,
       provider_message_id, error_message, user_id, related_kind, related_id, created_at
FROM email_logs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`
)

func (r *MailLogRepo) Create(ctx context.Context, l *maillog.Log) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	relKind, relID := relatedCols(l.Related)
	if err := r.db.Pool.QueryRow(ctx, qLogInsert,
		l.TemplateType, l.Subject, l.To, l.From, l.Status, l.SentAt, l.FailedAt,
		l.ProviderMessageID, l.ErrorMessage, l.UserID, relKind, relID,
	).Scan(&l.ID, &l.CreatedAt); err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func (r *MailLogRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*maillog.Log, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qLogByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query email logs: %w", err)
	}
	defer rows.Close()

	out := make([]*maillog.Log, 0, limit)
	for rows.Next() {
		var (
			l           maillog.Log
			relatedKind *string
			relatedID   *int64
		)
		if err := rows.Scan(
			&l.ID, &l.TemplateType, &l.Subject, &l.To, &l.From, &l.Status,
			&l.SentAt, &l.FailedAt, &l.ProviderMessageID, &l.ErrorMessage,
			&l.UserID, &relatedKind, &relatedID, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		if relatedKind != nil && relatedID != nil {
			l.Related = &notification.RelatedRef{
				Kind: notification.RelatedKind(*relatedKind),
				ID:   *relatedID,
			}
		}
		lc := l
		out = append(out, &lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
