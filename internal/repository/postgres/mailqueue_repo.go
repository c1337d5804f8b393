package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voyagecrm/notify/internal/domain/mailqueue"
	"github.com/voyagecrm/notify/internal/domain/notification"
)

var _ mailqueue.Repo = (*MailQueueRepo)(nil)

type MailQueueRepo struct{ db *DB }

func NewMailQueueRepo(db *DB) *MailQueueRepo { return &MailQueueRepo{db: db} }

const mailQueueCols = `
id, idempotency_key, template_type, recipient, variables, status,
attempts, max_attempts, next_attempt_at, error_message, email_log_id,
user_id, related_kind, related_id, created_at, updated_at, processed_at`

const (
	qQueueInsert = `
INSERT INTO email_queue
  (idempotency_key, template_type, recipient, variables, status, max_attempts,
   user_id, related_kind, related_id)
VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id, created_at;`

	qQueueByID = `SELECT ` + mailQueueCols + ` FROM email_queue WHERE id = $1;`

	// Claim and count the attempt in one statement so an overlapping run
	// can never pick the same entry: only rows still pending pass the
	// inner filter, and the UPDATE makes the winner visible atomically.
	// A processing row whose updated_at predates the TTL was abandoned
	// by a dead worker and gets claimed again.
	qQueueClaim = `
WITH cand AS (
   SELECT id
   FROM email_queue
   WHERE (status = 'pending'
          AND (next_attempt_at IS NULL OR next_attempt_at <= now()))
      OR (status = 'processing' AND updated_at < now() - $2::interval)
   ORDER BY created_at
   LIMIT $1
   FOR UPDATE SKIP LOCKED
), upd AS (
   UPDATE email_queue q
   SET status = 'processing', attempts = q.attempts + 1, updated_at = now()
   FROM cand
   WHERE q.id = cand.id
   RETURNING ` + mailQueueColsQ + `
)
SELECT * FROM upd ORDER BY created_at;`

	qQueueComplete = `
UPDATE email_queue
SET status = 'completed', email_log_id = NULLIF($2, 0), error_message = NULL,
    updated_at = now(), processed_at = now()
WHERE id = $1 AND status = 'processing';`

	qQueueFail = `
UPDATE email_queue
SET status = 'failed', email_log_id = NULLIF($2, 0), error_message = $3,
    updated_at = now(), processed_at = now()
WHERE id = $1 AND status = 'processing';`

	qQueueReschedule = `
UPDATE email_queue
SET status = 'pending', next_attempt_at = $2, error_message = $3, updated_at = now()
WHERE id = $1 AND status = 'processing';`

	qQueueCancel = `
UPDATE email_queue
SET status = 'cancelled', updated_at = now(), processed_at = now()
WHERE id = $1 AND status = 'pending';`

	qQueueStats = `
SELECT status, count(*) FROM email_queue GROUP BY status;`

	qQueueDeleteOld = `
DELETE FROM email_queue
WHERE status IN ('completed', 'cancelled')
  AND created_at < now() - make_interval(days => $1);`
)

// qualified column list for the claim query's RETURNING clause
const mailQueueColsQ = `
q.id, q.idempotency_key, q.template_type, q.recipient, q.variables, q.status,
q.attempts, q.max_attempts, q.next_attempt_at, q.error_message, q.email_log_id,
q.user_id, q.related_kind, q.related_id, q.created_at, q.updated_at, q.processed_at`

func scanQueueEntry(row pgx.Row, e *mailqueue.Entry) error {
	var (
		vars        []byte
		relatedKind *string
		relatedID   *int64
	)
	if err := row.Scan(
		&e.ID,
		&e.IdempotencyKey,
		&e.TemplateType,
		&e.To,
		&vars,
		&e.Status,
		&e.Attempts,
		&e.MaxAttempts,
		&e.NextAttemptAt,
		&e.ErrorMessage,
		&e.EmailLogID,
		&e.UserID,
		&relatedKind,
		&relatedID,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.ProcessedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan queue entry: %w", err)
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &e.Variables); err != nil {
			return fmt.Errorf("decode variables: %w", err)
		}
	}
	if relatedKind != nil && relatedID != nil {
		e.Related = &notification.RelatedRef{
			Kind: notification.RelatedKind(*relatedKind),
			ID:   *relatedID,
		}
	}
	return nil
}

func (r *MailQueueRepo) Enqueue(ctx context.Context, e *mailqueue.Entry) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	vars, err := json.Marshal(e.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	relKind, relID := relatedCols(e.Related)

	eq := r.db.execQueryer(ctx)
	err = eq.QueryRow(ctx, qQueueInsert,
		e.IdempotencyKey, e.TemplateType, e.To, vars, e.MaxAttempts,
		e.UserID, relKind, relID,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// duplicate idempotency key; the earlier entry stands
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	e.Status = mailqueue.StatusPending
	return nil
}

func (r *MailQueueRepo) GetByID(ctx context.Context, id int64) (*mailqueue.Entry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var e mailqueue.Entry
	if err := scanQueueEntry(r.db.Pool.QueryRow(ctx, qQueueByID, id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *MailQueueRepo) ClaimBatch(ctx context.Context, limit int, inProgressTTL time.Duration) ([]*mailqueue.Entry, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	if inProgressTTL <= 0 {
		inProgressTTL = 10 * time.Minute
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", inProgressTTL.Seconds())
	rows, err := r.db.Pool.Query(ctx, qQueueClaim, limit, ttl)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var out []*mailqueue.Entry
	for rows.Next() {
		var e mailqueue.Entry
		if err := scanQueueEntry(rows, &e); err != nil {
			return nil, err
		}
		ec := e
		out = append(out, &ec)
	}
	return out, rows.Err()
}

func (r *MailQueueRepo) MarkCompleted(ctx context.Context, id int64, emailLogID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qQueueComplete, id, emailLogID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MailQueueRepo) MarkFailed(ctx context.Context, id int64, emailLogID int64, errMsg string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qQueueFail, id, emailLogID, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MailQueueRepo) Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, errMsg string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qQueueReschedule, id, nextAttemptAt, errMsg)
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MailQueueRepo) Cancel(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qQueueCancel, id)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *MailQueueRepo) Stats(ctx context.Context) (*mailqueue.Stats, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qQueueStats)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var s mailqueue.Stats
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch mailqueue.Status(status) {
		case mailqueue.StatusPending:
			s.Pending = count
		case mailqueue.StatusProcessing:
			s.Processing = count
		case mailqueue.StatusCompleted:
			s.Completed = count
		case mailqueue.StatusFailed:
			s.Failed = count
		case mailqueue.StatusCancelled:
			s.Cancelled = count
		}
	}
	return &s, rows.Err()
}

func (r *MailQueueRepo) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qQueueDeleteOld, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("delete old queue entries: %w", err)
	}
	return cmd.RowsAffected(), nil
}
