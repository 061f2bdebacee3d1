package cronjob

import (
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/service"
)

type StateJob struct {
	orchestrator *service.Orchestrator
}

func NewStateJob(o *service.Orchestrator) *StateJob {
	return &StateJob{
		orchestrator: o,
	}
}

func (s *StateJob) Run() {
	s.orchestrator.SaveState()
	logger.Debug("periodic state save completed")
}
