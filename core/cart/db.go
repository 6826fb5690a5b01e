package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coursehub/coursehub/database"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound      = errors.New("cart not found")
	ErrAlreadyInCart = errors.New("course already in cart")
)

// upsert makes sure the user's cart row exists before items reference it.
func upsert(ctx context.Context, db sqlx.ExtContext, userID string) error {
	const q = `
	INSERT INTO carts (user_id, created_at, updated_at)
	VALUES ($1, $2, $2)
	ON CONFLICT (user_id) DO UPDATE SET
		updated_at = EXCLUDED.updated_at,
		version = carts.version + 1`

	if _, err := db.ExecContext(ctx, q, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("upserting cart for user[%s]: %w", userID, err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, userID string) (Cart, error) {
	const q = `SELECT * FROM carts WHERE user_id = $1`

	var c Cart
	if err := sqlx.GetContext(ctx, db, &c, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("selecting cart for user[%s]: %w", userID, err)
	}

	return c, nil
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, userID string) ([]Item, error) {
	const q = `SELECT * FROM carts_items WHERE user_id = $1 ORDER BY created_at`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart items for user[%s]: %w", userID, err)
	}

	return items, nil
}

func CreateItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO carts_items (user_id, course_id, price, created_at, updated_at)
	VALUES (:user_id, :course_id, :price, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAlreadyInCart
		}
		return fmt.Errorf("inserting cart item: %w", err)
	}

	return nil
}

// DeleteItem removes the course from the cart if present. Deleting a missing
// item is not an error.
func DeleteItem(ctx context.Context, db sqlx.ExtContext, userID string, courseID string) error {
	const q = `DELETE FROM carts_items WHERE user_id = $1 AND course_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, courseID); err != nil {
		return fmt.Errorf("deleting cart item[%s] for user[%s]: %w", courseID, userID, err)
	}

	return nil
}

// Delete clears the whole cart; items go with it via cascade.
func Delete(ctx context.Context, db sqlx.ExtContext, userID string) error {
	const q = `DELETE FROM carts WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("deleting cart for user[%s]: %w", userID, err)
	}

	return nil
}

func SetDiscount(ctx context.Context, db sqlx.ExtContext, userID string, code *string) error {
	const q = `
	UPDATE carts SET
		discount_code = $2,
		updated_at = $3,
		version = version + 1
	WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID, code, time.Now().UTC()); err != nil {
		return fmt.Errorf("setting discount on cart for user[%s]: %w", userID, err)
	}

	return nil
}
