package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, ord Order) error {
	const q = `
	INSERT INTO orders (order_id, user_id, provider, provider_id, capture_id, status, subtotal, discount_code, discount_amount, total, created_at, updated_at)
	VALUES (:order_id, :user_id, :provider, :provider_id, :capture_id, :status, :subtotal, :discount_code, :discount_amount, :total, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, ord); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	return nil
}

func CreateItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO orders_items (order_id, course_id, name, price, created_at)
	VALUES (:order_id, :course_id, :name, :price, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Order, error) {
	const q = `SELECT * FROM orders WHERE order_id = $1`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order[%s]: %w", id, err)
	}

	return ord, nil
}

func FetchByProviderID(ctx context.Context, db sqlx.ExtContext, providerID string) (Order, error) {
	const q = `SELECT * FROM orders WHERE provider_id = $1`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order bound to payment[%s]: %w", providerID, err)
	}

	return ord, nil
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, orderID string) ([]Item, error) {
	const q = `SELECT * FROM orders_items WHERE order_id = $1 ORDER BY created_at`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting items of order[%s]: %w", orderID, err)
	}

	return items, nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Order, error) {
	const q = `SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	ords := []Order{}
	if err := sqlx.SelectContext(ctx, db, &ords, q, userID); err != nil {
		return nil, fmt.Errorf("selecting orders of user[%s]: %w", userID, err)
	}

	return ords, nil
}

// UpdateStatusIf transitions the order only when its current status matches
// from, reporting whether the row actually moved. This is the compare-and-set
// that keeps the webhook and the sweep from clobbering each other.
func UpdateStatusIf(ctx context.Context, db sqlx.ExtContext, id string, from Status, to Status) (bool, error) {
	const q = `
	UPDATE orders SET
		status = $3,
		updated_at = $4
	WHERE order_id = $1 AND status = $2`

	res, err := db.ExecContext(ctx, q, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transitioning order[%s] %s->%s: %w", id, from, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func UpdateCaptureID(ctx context.Context, db sqlx.ExtContext, id string, captureID string) error {
	const q = `
	UPDATE orders SET
		capture_id = $2,
		updated_at = $3
	WHERE order_id = $1`

	if _, err := db.ExecContext(ctx, q, id, captureID, time.Now().UTC()); err != nil {
		return fmt.Errorf("storing capture id on order[%s]: %w", id, err)
	}

	return nil
}

// ExpirePending flips orders stuck in pending since before the cutoff.
func ExpirePending(ctx context.Context, db sqlx.ExtContext, cutoff time.Time) (int64, error) {
	const q = `
	UPDATE orders SET
		status = $2,
		updated_at = $3
	WHERE status = $1 AND created_at < $4`

	res, err := db.ExecContext(ctx, q, Pending, Expired, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("expiring pending orders: %w", err)
	}

	return res.RowsAffected()
}

// DeleteExpired removes expired orders past the grace period. Items go via
// cascade. Running it again finds nothing to delete.
func DeleteExpired(ctx context.Context, db sqlx.ExtContext, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM orders WHERE status = $1 AND updated_at < $2`

	res, err := db.ExecContext(ctx, q, Expired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired orders: %w", err)
	}

	return res.RowsAffected()
}
