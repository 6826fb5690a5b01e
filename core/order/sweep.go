package order

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Sweep reclaims abandoned checkouts: orders pending longer than ttl become
// expired, expired orders older than grace are deleted. Both statements are
// conditional on the current status, so overlapping or repeated runs are
// harmless and a webhook racing the sweep loses cleanly on one side.
func Sweep(ctx context.Context, db *sqlx.DB, ttl time.Duration, grace time.Duration, log logrus.FieldLogger) error {
	now := time.Now().UTC()

	expired, err := ExpirePending(ctx, db, now.Add(-ttl))
	if err != nil {
		return err
	}

	deleted, err := DeleteExpired(ctx, db, now.Add(-grace))
	if err != nil {
		return err
	}

	if expired > 0 || deleted > 0 {
		log.WithFields(logrus.Fields{
			"expired": expired,
			"deleted": deleted,
		}).Info("order sweep")
	}

	return nil
}
