package discount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, d Discount) error {
	const q = `
	INSERT INTO discounts (discount_id, code, percent, amount, active, starts_at, ends_at, max_uses, max_uses_per_user, created_at, updated_at)
	VALUES (:discount_id, :code, :percent, :amount, :active, :starts_at, :ends_at, :max_uses, :max_uses_per_user, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, d); err != nil {
		return fmt.Errorf("inserting discount: %w", err)
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, d Discount) error {
	const q = `
	UPDATE discounts SET
		percent = :percent,
		amount = :amount,
		active = :active,
		starts_at = :starts_at,
		ends_at = :ends_at,
		max_uses = :max_uses,
		max_uses_per_user = :max_uses_per_user,
		updated_at = :updated_at,
		version = version + 1
	WHERE discount_id = :discount_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, db, q, d)
	if err != nil {
		return fmt.Errorf("updating discount[%s]: %w", d.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// FetchByCode matches the code case-insensitively.
func FetchByCode(ctx context.Context, db sqlx.ExtContext, code string) (Discount, error) {
	const q = `SELECT * FROM discounts WHERE LOWER(code) = LOWER($1)`

	var d Discount
	if err := sqlx.GetContext(ctx, db, &d, q, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, fmt.Errorf("selecting discount by code: %w", err)
	}

	return d, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Discount, error) {
	const q = `SELECT * FROM discounts ORDER BY created_at DESC`

	ds := []Discount{}
	if err := sqlx.SelectContext(ctx, db, &ds, q); err != nil {
		return nil, fmt.Errorf("selecting discounts: %w", err)
	}

	return ds, nil
}

func CountRedemptions(ctx context.Context, db sqlx.ExtContext, discountID string) (int, error) {
	const q = `SELECT COUNT(*) FROM discounts_redemptions WHERE discount_id = $1`

	var n int
	if err := sqlx.GetContext(ctx, db, &n, q, discountID); err != nil {
		return 0, fmt.Errorf("counting redemptions of discount[%s]: %w", discountID, err)
	}

	return n, nil
}

func CountRedemptionsByUser(ctx context.Context, db sqlx.ExtContext, discountID string, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM discounts_redemptions WHERE discount_id = $1 AND user_id = $2`

	var n int
	if err := sqlx.GetContext(ctx, db, &n, q, discountID, userID); err != nil {
		return 0, fmt.Errorf("counting redemptions of discount[%s] by user[%s]: %w", discountID, userID, err)
	}

	return n, nil
}

// Redeem records a consumed use, keyed by order so a replayed fulfillment
// does not double-count.
func Redeem(ctx context.Context, db sqlx.ExtContext, discountID string, userID string, orderID string) error {
	const q = `
	INSERT INTO discounts_redemptions (discount_id, user_id, order_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (discount_id, order_id) DO NOTHING`

	if _, err := db.ExecContext(ctx, q, discountID, userID, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("recording redemption of discount[%s]: %w", discountID, err)
	}

	return nil
}

// Resolve validates the code for the given user at the current time.
func Resolve(ctx context.Context, db sqlx.ExtContext, code string, userID string) (Discount, error) {
	d, err := FetchByCode(ctx, db, code)
	if err != nil {
		return Discount{}, err
	}

	uses, err := CountRedemptions(ctx, db, d.ID)
	if err != nil {
		return Discount{}, err
	}

	userUses, err := CountRedemptionsByUser(ctx, db, d.ID, userID)
	if err != nil {
		return Discount{}, err
	}

	if err := d.Validate(time.Now().UTC(), uses, userUses); err != nil {
		return Discount{}, err
	}

	return d, nil
}
