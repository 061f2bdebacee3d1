package cronjob

import (
	"time"

	"github.com/wiresocks/wiresocks-ui/service"

	"github.com/robfig/cron/v3"
)

type CronJob struct {
	cron *cron.Cron
}

func NewCronJob() *CronJob {
	return &CronJob{}
}

func (c *CronJob) Start(loc *time.Location, orchestrator *service.Orchestrator) error {
	c.cron = cron.New(cron.WithLocation(loc))

	_, err := c.cron.AddJob("@every 12h", NewDirectoryJob(orchestrator))
	if err != nil {
		return err
	}
	_, err = c.cron.AddJob("@every 5m", NewStateJob(orchestrator))
	if err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

func (c *CronJob) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}
