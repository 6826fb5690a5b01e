package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, sub Subscription) error {
	const q = `
	INSERT INTO subscriptions (subscription_id, user_id, plan_id, provider_id, status, created_at, updated_at)
	VALUES (:subscription_id, :user_id, :plan_id, :provider_id, :status, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, sub); err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Subscription, error) {
	const q = `SELECT * FROM subscriptions WHERE subscription_id = $1`

	var sub Subscription
	if err := sqlx.GetContext(ctx, db, &sub, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("selecting subscription[%s]: %w", id, err)
	}

	return sub, nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Subscription, error) {
	const q = `SELECT * FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`

	subs := []Subscription{}
	if err := sqlx.SelectContext(ctx, db, &subs, q, userID); err != nil {
		return nil, fmt.Errorf("selecting subscriptions of user[%s]: %w", userID, err)
	}

	return subs, nil
}

// SyncStatus applies the provider's view of the subscription. Events for
// rows we do not track are ignored.
func SyncStatus(ctx context.Context, db sqlx.ExtContext, providerID string, status string) error {
	const q = `
	UPDATE subscriptions SET
		status = $2,
		updated_at = $3
	WHERE provider_id = $1`

	if _, err := db.ExecContext(ctx, q, providerID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("syncing subscription bound to provider[%s]: %w", providerID, err)
	}

	return nil
}

// PurgeIncomplete deletes subscriptions that never completed their first
// payment before the cutoff. Idempotent by construction.
func PurgeIncomplete(ctx context.Context, db sqlx.ExtContext, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM subscriptions WHERE status = $1 AND created_at < $2`

	res, err := db.ExecContext(ctx, q, Incomplete, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging incomplete subscriptions: %w", err)
	}

	return res.RowsAffected()
}

func CreatePlan(ctx context.Context, db sqlx.ExtContext, p Plan) error {
	const q = `
	INSERT INTO plans (plan_id, name, provider_price_id, amount)
	VALUES (:plan_id, :name, :provider_price_id, :amount)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}

	return nil
}

func FetchPlan(ctx context.Context, db sqlx.ExtContext, id string) (Plan, error) {
	const q = `SELECT * FROM plans WHERE plan_id = $1`

	var p Plan
	if err := sqlx.GetContext(ctx, db, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Plan{}, ErrNotFound
		}
		return Plan{}, fmt.Errorf("selecting plan[%s]: %w", id, err)
	}

	return p, nil
}

func FetchPlans(ctx context.Context, db sqlx.ExtContext) ([]Plan, error) {
	const q = `SELECT * FROM plans ORDER BY amount`

	ps := []Plan{}
	if err := sqlx.SelectContext(ctx, db, &ps, q); err != nil {
		return nil, fmt.Errorf("selecting plans: %w", err)
	}

	return ps, nil
}
