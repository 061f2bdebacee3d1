package service

import (
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/wiresocks/wiresocks-ui/logger"
)

type PanelService struct {
}

// RestartPanel signals the running process to restart itself after the
// delay. The main loop treats SIGHUP as a full stop/init/start cycle.
func (s *PanelService) RestartPanel(delay time.Duration) error {
	p, err := os.FindProcess(syscall.Getpid())
	if err != nil {
		return err
	}
	go func() {
		time.Sleep(delay)
		if runtime.GOOS == "windows" {
			err = p.Kill()
		} else {
			err = p.Signal(syscall.SIGHUP)
		}
		if err != nil {
			logger.Error("send signal SIGHUP failed:", err)
		}
	}()
	return nil
}
