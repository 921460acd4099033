package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Schedule registers the relay on c to run every interval. A run that is still
// draining when the next tick fires causes that tick to be skipped.
func Schedule(c *cron.Cron, relay *Relay, every time.Duration, log logrus.FieldLogger) (cron.EntryID, error) {
	if every <= 0 {
		return 0, fmt.Errorf("outbox: relay interval must be positive")
	}
	job := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), every)
		defer cancel()

		stats, err := relay.RunOnce(ctx)
		if err != nil {
			log.WithError(err).Error("outbox relay run failed")
			return
		}
		if stats.Delivered+stats.Failed > 0 {
			log.WithFields(logrus.Fields{"delivered": stats.Delivered, "failed": stats.Failed}).Debug("outbox relay run")
		}
	}))
	return c.AddJob(fmt.Sprintf("@every %s", every), job)
}
