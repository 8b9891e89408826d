package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jordanlanch/leadconsole/pkg/logger"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron   *cron.Cron
	digest *CallbackDigest
	log    logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(digest *CallbackDigest, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CronManager{
		cron:   cron.New(),
		digest: digest,
		log:    log,
	}
}

// SetupJobs registers the callback digest on the given cron spec.
func (cm *CronManager) SetupJobs(digestSpec string) error {
	_, err := cm.cron.AddFunc(digestSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		cm.digest.Run(ctx)
	})
	if err != nil {
		return err
	}

	cm.log.Info("cron jobs configured", "callback_digest", digestSpec)
	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the cron scheduler
func (cm *CronManager) Stop() {
	cm.cron.Stop()
}
