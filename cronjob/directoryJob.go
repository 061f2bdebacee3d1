package cronjob

import (
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/service"
)

type DirectoryJob struct {
	orchestrator *service.Orchestrator
}

func NewDirectoryJob(o *service.Orchestrator) *DirectoryJob {
	return &DirectoryJob{
		orchestrator: o,
	}
}

func (s *DirectoryJob) Run() {
	logger.Debug("scheduled server directory refresh")
	s.orchestrator.RequestDirectoryReload()
}
