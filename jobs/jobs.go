// Package jobs runs periodic maintenance on the database.
package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbolis/quick-forms/log"
	"github.com/robfig/cron/v3"
)

// PurgeSchedule runs the token purge at the top of every hour.
const PurgeSchedule = "0 * * * *"

// PurgeExpiredTokens deletes the refresh token ids that can no longer be redeemed.
func PurgeExpiredTokens(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM token WHERE expiration <= ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Start schedules the maintenance jobs. Stop the returned scheduler on shutdown.
func Start(db *sql.DB) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(PurgeSchedule, func() {
		n, err := PurgeExpiredTokens(context.Background(), db, time.Now())
		if err != nil {
			log.Error("jobs.purge_tokens:", err)
			return
		}
		log.Debugf("jobs.purge_tokens: %d expired tokens removed", n)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	log.Info("token purge scheduled")
	return c, nil
}
