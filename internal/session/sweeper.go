package session

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartSweeper schedules periodic removal of sessions idle for longer than ttl.
// Stop the returned cron to end the sweeps.
func StartSweeper(store *MemoryStore, schedule string, ttl time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		removed := store.Sweep(time.Now().Add(-ttl))
		if removed > 0 {
			logger.Info("expired idle sessions", zap.Int("removed", removed), zap.Duration("ttl", ttl))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
