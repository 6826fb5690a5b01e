package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Grant creates the enrollment if it does not exist yet. Safe to call again
// for the same pair, which makes order fulfillment replay-proof.
func Grant(ctx context.Context, db sqlx.ExtContext, userID string, courseID string, orderID string) error {
	const q = `
	INSERT INTO enrollments (user_id, course_id, order_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, course_id) DO NOTHING`

	if _, err := db.ExecContext(ctx, q, userID, courseID, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("granting enrollment user[%s] course[%s]: %w", userID, courseID, err)
	}

	return nil
}

// Revoke removes the user's enrollment for exactly the given courses.
func Revoke(ctx context.Context, db sqlx.ExtContext, userID string, courseIDs []string) error {
	const q = `DELETE FROM enrollments WHERE user_id = ? AND course_id IN (?)`

	query, args, err := sqlx.In(q, userID, courseIDs)
	if err != nil {
		return fmt.Errorf("expanding revoke query: %w", err)
	}

	query = sqlx.Rebind(sqlx.DOLLAR, query)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("revoking enrollments for user[%s]: %w", userID, err)
	}

	return nil
}

func Exists(ctx context.Context, db sqlx.ExtContext, userID string, courseID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`

	var found bool
	if err := sqlx.GetContext(ctx, db, &found, q, userID, courseID); err != nil {
		return false, fmt.Errorf("checking enrollment user[%s] course[%s]: %w", userID, courseID, err)
	}

	return found, nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Enrollment, error) {
	const q = `SELECT * FROM enrollments WHERE user_id = $1 ORDER BY created_at DESC`

	es := []Enrollment{}
	if err := sqlx.SelectContext(ctx, db, &es, q, userID); err != nil {
		return nil, fmt.Errorf("selecting enrollments for user[%s]: %w", userID, err)
	}

	return es, nil
}
