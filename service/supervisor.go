package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/wiresocks/wiresocks-ui/config"
	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/util"

	"github.com/gofrs/uuid/v5"
)

const startSettleDelay = 500 * time.Millisecond

// ProcessHandle bundles a spawned proxy process with its generated config
// artifact. One handle exists per running instance; it is destroyed, and
// its config file deleted, once the process is confirmed stopped.
type ProcessHandle struct {
	Pid        int
	ConfigFile string
	StartedAt  time.Time

	// HighCPUSince marks the start of a continuous over-threshold CPU
	// window. Zero when usage is at or below threshold. Only the watchdog
	// goroutine reads or writes it.
	HighCPUSince time.Time

	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
}

// Exited is a non-blocking poll of the process exit status.
func (h *ProcessHandle) Exited() bool {
	if h.done == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *ProcessHandle) ExitCode() int {
	return h.exitCode
}

// ProcessSupervisor spawns, polls and stops the external proxy processes.
// Processes are detached into their own process group so signalling them
// never touches the panel itself.
type ProcessSupervisor struct {
	registry *Registry
	settle   time.Duration

	mu      sync.Mutex
	binPath string
}

func NewProcessSupervisor(registry *Registry) *ProcessSupervisor {
	return &ProcessSupervisor{
		registry: registry,
		settle:   startSettleDelay,
	}
}

// executable locates and caches the proxy binary path.
func (s *ProcessSupervisor) executable() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binPath != "" {
		return s.binPath, nil
	}
	p, err := FindExecutable(config.GetBinaryName())
	if err != nil {
		return "", err
	}
	logger.Infof("using proxy executable: %s", p)
	s.binPath = p
	return p, nil
}

// FindExecutable searches PATH, the working directory and the usual
// install locations for the proxy binary.
func FindExecutable(name string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		if abs, err := filepath.Abs(p); err == nil && validExecutable(abs) {
			return abs, nil
		}
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		"./" + name,
		"../" + name,
		"/usr/local/bin/" + name,
		"/usr/bin/" + name,
		"/opt/" + name + "/" + name,
		filepath.Join(home, ".local/bin", name),
		"/snap/bin/" + name,
		"/usr/local/sbin/" + name,
		"/usr/sbin/" + name,
	}
	for _, c := range candidates {
		if validExecutable(c) {
			return filepath.Abs(c)
		}
	}
	return "", fmt.Errorf("%s executable not found in PATH or common locations", name)
}

func validExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// Start renders the config, writes it to a fresh owner-only temp file,
// registers the path for crash-safe cleanup and spawns the proxy detached
// in its own process group. After a short settle delay the exit status is
// polled once: a process that already died is a StartError and the temp
// file is removed inline. The caller owns the Registry status transition.
func (s *ProcessSupervisor) Start(inst model.ProxyInstance, creds util.Credentials) (*ProcessHandle, error) {
	binPath, err := s.executable()
	if err != nil {
		return nil, &StartError{Port: inst.Port, Err: err}
	}

	server, err := model.UnmarshalServer(inst.Server)
	if err != nil {
		return nil, &StartError{Port: inst.Port, Err: fmt.Errorf("invalid server descriptor: %w", err)}
	}

	confPath, err := s.writeConfig(util.RenderConfig(server, creds, inst.Port))
	if err != nil {
		return nil, &StartError{Port: inst.Port, Err: err}
	}
	s.registry.TrackTempFile(confPath)
	logger.Debug("created proxy config file: ", confPath)

	cmd := exec.Command(binPath, "-c", confPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		s.removeFile(confPath)
		return nil, &StartError{Port: inst.Port, Err: err}
	}

	h := &ProcessHandle{
		Pid:        cmd.Process.Pid,
		ConfigFile: confPath,
		StartedAt:  time.Now(),
		cmd:        cmd,
		done:       make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.exitCode = exitErr.ExitCode()
		}
		close(h.done)
	}()

	time.Sleep(s.settle)
	if h.Exited() {
		s.removeFile(confPath)
		logger.Errorf("proxy process on port %d died immediately (exit code %d)", inst.Port, h.exitCode)
		return nil, &StartError{Port: inst.Port, ExitCode: h.exitCode}
	}

	logger.Infof("started proxy process (pid %d) on port %d", h.Pid, inst.Port)
	return h, nil
}

func (s *ProcessSupervisor) writeConfig(content string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	confPath := filepath.Join(os.TempDir(), fmt.Sprintf("wiresocks-%s.conf", id))
	if err := os.WriteFile(confPath, []byte(content), 0o600); err != nil {
		return "", err
	}
	return confPath, nil
}

// StopGracefully signals the process group with SIGTERM, waits up to
// timeout, then SIGKILLs the group and waits unconditionally. The config
// file is deleted on every path, including when the process had already
// vanished; a vanished process is a success condition. The return value
// reports whether the graceful path sufficed: callers complete their
// state transition either way.
func (s *ProcessSupervisor) StopGracefully(h *ProcessHandle, timeout time.Duration) bool {
	if h == nil {
		return true
	}
	defer s.removeFile(h.ConfigFile)

	if h.cmd == nil || h.Exited() {
		return true
	}

	if err := syscall.Kill(-h.Pid, syscall.SIGTERM); err != nil {
		if err := syscall.Kill(h.Pid, syscall.SIGTERM); err != nil {
			// Already gone.
			return true
		}
	}

	select {
	case <-h.done:
		logger.Infof("process %d terminated gracefully", h.Pid)
		return true
	case <-time.After(timeout):
	}

	logger.Warningf("process %d did not terminate gracefully, forcing kill", h.Pid)
	if err := syscall.Kill(-h.Pid, syscall.SIGKILL); err != nil {
		if err := syscall.Kill(h.Pid, syscall.SIGKILL); err != nil {
			return true
		}
	}
	<-h.done
	return false
}

// IsAlive is a non-blocking liveness poll.
func (s *ProcessSupervisor) IsAlive(h *ProcessHandle) bool {
	return h != nil && !h.Exited()
}

// Cleanup removes the config artifact of a handle whose process is
// already gone (unexpected-exit path).
func (s *ProcessSupervisor) Cleanup(h *ProcessHandle) {
	if h == nil {
		return
	}
	s.removeFile(h.ConfigFile)
}

// SweepTempDir removes config files left behind by a previous run that
// did not shut down cleanly.
func SweepTempDir() int {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "wiresocks-*.conf"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, path := range matches {
		if os.Remove(path) == nil {
			removed++
		}
	}
	if removed > 0 {
		logger.Infof("removed %d stale config files", removed)
	}
	return removed
}

func (s *ProcessSupervisor) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warning("failed to clean up config file: ", err)
		return
	}
	logger.Debug("cleaned up config file: ", path)
}
