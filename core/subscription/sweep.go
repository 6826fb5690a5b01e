package subscription

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Sweep drops subscriptions that never left incomplete within ttl.
func Sweep(ctx context.Context, db *sqlx.DB, ttl time.Duration, log logrus.FieldLogger) error {
	purged, err := PurgeIncomplete(ctx, db, time.Now().UTC().Add(-ttl))
	if err != nil {
		return err
	}

	if purged > 0 {
		log.WithField("purged", purged).Info("subscription sweep")
	}

	return nil
}
