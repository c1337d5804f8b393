package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/preference"
)

var _ preference.Repo = (*PreferenceRepo)(nil)

type PreferenceRepo struct {
	db *DB
	tx Transactor
}

func NewPreferenceRepo(db *DB) *PreferenceRepo {
	return &PreferenceRepo{db: db, tx: NewTransactor(db, zap.L())}
}

const prefCols = `
user_id, in_app_enabled, email_enabled,
trip_upcoming_in_app, trip_upcoming_email,
trip_created_in_app, trip_created_email,
payment_due_in_app, payment_due_email,
payment_received_in_app, payment_received_email,
document_expiring_in_app, document_expiring_email,
system_in_app, system_email,
created_at, updated_at`

const (
	qPrefGet = `SELECT ` + prefCols + ` FROM notification_preferences WHERE user_id = $1;`

	// Insert-if-missing then read: the ON CONFLICT no-op keeps first
	// access race-safe without ever failing on a concurrent create.
	qPrefEnsure = `
INSERT INTO notification_preferences (user_id)
VALUES ($1)
ON CONFLICT (user_id) DO NOTHING;`

	qPrefUpdate = `
UPDATE notification_preferences SET
  in_app_enabled = $2, email_enabled = $3,
  trip_upcoming_in_app = $4, trip_upcoming_email = $5,
  trip_created_in_app = $6, trip_created_email = $7,
  payment_due_in_app = $8, payment_due_email = $9,
  payment_received_in_app = $10, payment_received_email = $11,
  document_expiring_in_app = $12, document_expiring_email = $13,
  system_in_app = $14, system_email = $15,
  updated_at = now()
WHERE user_id = $1
RETURNING ` + prefCols + `;`
)

func scanPreference(row pgx.Row, p *preference.Preference) error {
	if err := row.Scan(
		&p.UserID, &p.InAppEnabled, &p.EmailEnabled,
		&p.TripUpcomingInApp, &p.TripUpcomingEmail,
		&p.TripCreatedInApp, &p.TripCreatedEmail,
		&p.PaymentDueInApp, &p.PaymentDueEmail,
		&p.PaymentReceivedInApp, &p.PaymentReceivedEmail,
		&p.DocumentExpiringInApp, &p.DocumentExpiringEmail,
		&p.SystemInApp, &p.SystemEmail,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan preference: %w", err)
	}
	return nil
}

func (r *PreferenceRepo) GetOrCreate(ctx context.Context, userID int64) (*preference.Preference, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	eq := r.db.execQueryer(ctx)

	var p preference.Preference
	err := scanPreference(eq.QueryRow(ctx, qPrefGet, userID), &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := eq.Exec(ctx, qPrefEnsure, userID); err != nil {
		return nil, fmt.Errorf("ensure preference: %w", err)
	}
	if err := scanPreference(eq.QueryRow(ctx, qPrefGet, userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update is a read-modify-write merge, so both steps run in one
// transaction to keep concurrent patches from clobbering each other.
func (r *PreferenceRepo) Update(ctx context.Context, userID int64, patch preference.Patch) (*preference.Preference, error) {
	var p preference.Preference
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := r.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		cur.Apply(patch)

		ctx, cancel := r.db.withTimeout(ctx)
		defer cancel()

		return scanPreference(r.db.execQueryer(ctx).QueryRow(ctx, qPrefUpdate,
			userID,
			cur.InAppEnabled, cur.EmailEnabled,
			cur.TripUpcomingInApp, cur.TripUpcomingEmail,
			cur.TripCreatedInApp, cur.TripCreatedEmail,
			cur.PaymentDueInApp, cur.PaymentDueEmail,
			cur.PaymentReceivedInApp, cur.PaymentReceivedEmail,
			cur.DocumentExpiringInApp, cur.DocumentExpiringEmail,
			cur.SystemInApp, cur.SystemEmail,
		), &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
