package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voyagecrm/notify/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (user_id, type, priority, title, message, action_url, related_kind, related_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at;`

	qNotifByID = `
SELECT id, user_id, type, priority, title, message, action_url, related_kind, related_id, read_at, created_at
FROM notifications
WHERE id = $1;`

	qNotifList = `
SELECT id, user_id, type, priority, title, message, action_url, related_kind, related_id, read_at, created_at
FROM notifications
WHERE user_id = $1 AND ($2::bool IS FALSE OR read_at IS NULL)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;`

	qNotifCount = `
SELECT count(*) FROM notifications
WHERE user_id = $1 AND ($2::bool IS FALSE OR read_at IS NULL);`

	qNotifCountUnread = `
SELECT count(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL;`

	qNotifMarkRead = `
UPDATE notifications
SET read_at = now()
WHERE id = $1 AND read_at IS NULL;`

	qNotifMarkAllRead = `
UPDATE notifications
SET read_at = now()
WHERE user_id = $1 AND read_at IS NULL;`

	qNotifDelete = `DELETE FROM notifications WHERE id = $1;`

	qNotifDeleteRead = `
DELETE FROM notifications WHERE user_id = $1 AND read_at IS NOT NULL;`

	qNotifDeleteReadOld = `
DELETE FROM notifications
WHERE read_at IS NOT NULL AND created_at < now() - make_interval(days => $1);`
)

func scanNotification(row pgx.Row, n *notification.Notification) error {
	var (
		actionURL   *string
		relatedKind *string
		relatedID   *int64
	)
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Priority,
		&n.Title,
		&n.Message,
		&actionURL,
		&relatedKind,
		&relatedID,
		&n.ReadAt,
		&n.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan notification: %w", err)
	}
	if actionURL != nil {
		n.ActionURL = *actionURL
	}
	if relatedKind != nil && relatedID != nil {
		n.Related = &notification.RelatedRef{
			Kind: notification.RelatedKind(*relatedKind),
			ID:   *relatedID,
		}
	}
	return nil
}

func relatedCols(r *notification.RelatedRef) (*string, *int64) {
	if r == nil {
		return nil, nil
	}
	kind := string(r.Kind)
	id := r.ID
	return &kind, &id
}

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var actionURL *string
	if n.ActionURL != "" {
		actionURL = &n.ActionURL
	}
	relKind, relID := relatedCols(n.Related)

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qNotifInsert,
		n.UserID, n.Type, n.Priority, n.Title, n.Message, actionURL, relKind, relID,
	).Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.Pool.QueryRow(ctx, qNotifByID, id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID int64, p notification.ListParams) (*notification.Page, error) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var total int64
	if err := r.db.Pool.QueryRow(ctx, qNotifCount, userID, p.UnreadOnly).Scan(&total); err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	offset := (p.Page - 1) * p.Limit
	rows, err := r.db.Pool.Query(ctx, qNotifList, userID, p.UnreadOnly, p.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*notification.Notification, 0, p.Limit)
	for rows.Next() {
		var n notification.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		nc := n
		items = append(items, &nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return &notification.Page{Items: items, Total: total, Page: p.Page, Limit: p.Limit}, nil
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.Pool.QueryRow(ctx, qNotifCountUnread, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkRead only touches rows whose read_at is still null, so re-marking
// returns the already-read row unchanged.
func (r *NotificationRepo) MarkRead(ctx context.Context, id int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qNotifMarkRead, id); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qNotifMarkAllRead, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *NotificationRepo) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qNotifDelete, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) DeleteRead(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qNotifDeleteRead, userID)
	if err != nil {
		return 0, fmt.Errorf("delete read: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *NotificationRepo) DeleteReadOlderThan(ctx context.Context, days int) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qNotifDeleteReadOld, days)
	if err != nil {
		return 0, fmt.Errorf("delete read older than: %w", err)
	}
	return cmd.RowsAffected(), nil
}
