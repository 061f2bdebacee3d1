package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/logger"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	watchdogInterval    = 5 * time.Second
	watchdogErrInterval = 10 * time.Second
	highCPUThreshold    = 90.0
	highCPUWindow       = 30 * time.Second
	highCPUKillTimeout  = 2 * time.Second
)

type ProcessUsage struct {
	CPUPercent float64
	MemoryMB   float64
}

// UsageSampler reports CPU/memory usage for a pid. Samplers are stateful:
// CPU percentages are measured against the previous sample.
type UsageSampler interface {
	Sample(pid int) (ProcessUsage, error)
	Forget(pid int)
}

type processController interface {
	IsAlive(h *ProcessHandle) bool
	StopGracefully(h *ProcessHandle, timeout time.Duration) bool
	Cleanup(h *ProcessHandle)
}

// psutilSampler samples through gopsutil, keeping the Process objects
// between ticks so Percent measures the interval since the last tick.
type psutilSampler struct {
	mu    sync.Mutex
	procs map[int32]*process.Process
}

func NewUsageSampler() UsageSampler {
	return &psutilSampler{procs: make(map[int32]*process.Process)}
}

func (s *psutilSampler) Sample(pid int) (ProcessUsage, error) {
	s.mu.Lock()
	p, ok := s.procs[int32(pid)]
	s.mu.Unlock()
	if !ok {
		var err error
		p, err = process.NewProcess(int32(pid))
		if err != nil {
			return ProcessUsage{}, err
		}
		s.mu.Lock()
		s.procs[int32(pid)] = p
		s.mu.Unlock()
	}

	cpu, err := p.Percent(0)
	if err != nil {
		return ProcessUsage{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return ProcessUsage{}, err
	}
	return ProcessUsage{
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
	}, nil
}

func (s *psutilSampler) Forget(pid int) {
	s.mu.Lock()
	delete(s.procs, int32(pid))
	s.mu.Unlock()
}

// Watchdog inspects every running instance on a fixed tick: detects
// unexpected process exits and enforces the sustained high-CPU limit.
// A tick that fails backs the loop off to a longer interval; the loop
// itself never terminates on error.
type Watchdog struct {
	registry *Registry
	ctrl     processController
	sampler  UsageSampler
	bridge   *EventBridge

	interval    time.Duration
	errInterval time.Duration
	killTimeout time.Duration
	now         func() time.Time

	// primed tracks handles that have had their warm-up sample. The
	// first CPU sample for a process measures nothing useful, so the
	// first tick after a start only primes the sampler and is exempt
	// from the high-CPU window.
	primed map[uint]bool

	stop chan struct{}
	done chan struct{}
}

func NewWatchdog(registry *Registry, ctrl processController, sampler UsageSampler, bridge *EventBridge) *Watchdog {
	return &Watchdog{
		registry:    registry,
		ctrl:        ctrl,
		sampler:     sampler,
		bridge:      bridge,
		interval:    watchdogInterval,
		errInterval: watchdogErrInterval,
		killTimeout: highCPUKillTimeout,
		now:         time.Now,
		primed:      make(map[uint]bool),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (w *Watchdog) Start() {
	go w.run()
	logger.Debug("process monitor started")
}

func (w *Watchdog) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)
	for {
		wait := w.interval
		if err := w.tick(); err != nil {
			logger.Error("error in process monitor: ", err)
			wait = w.errInterval
		}
		select {
		case <-w.stop:
			return
		case <-time.After(wait):
		}
	}
}

func (w *Watchdog) tick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WatchdogError{Op: "tick", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	seen := make(map[uint]bool)
	for _, inst := range w.registry.List() {
		if inst.Status != model.Running {
			continue
		}
		h, ok := w.registry.Process(inst.Id)
		if !ok {
			continue
		}
		seen[inst.Id] = true

		if !w.ctrl.IsAlive(h) {
			w.handleUnexpectedExit(inst, h)
			continue
		}

		if !w.primed[inst.Id] {
			w.primed[inst.Id] = true
			w.sampler.Sample(h.Pid)
			continue
		}

		usage, sampleErr := w.sampler.Sample(h.Pid)
		if sampleErr != nil {
			// Process likely raced away between the liveness poll and the
			// sample; the next tick sees the exit.
			continue
		}
		w.checkCPU(inst, h, usage.CPUPercent)
		if usage.CPUPercent > 1.0 || usage.MemoryMB > 50 {
			logger.Debugf("port %d: CPU: %.1f%%, memory: %.1fMB", inst.Port, usage.CPUPercent, usage.MemoryMB)
		}
	}

	for id := range w.primed {
		if !seen[id] {
			delete(w.primed, id)
		}
	}
	return nil
}

// handleUnexpectedExit mirrors a deliberate stop: status to Stopped,
// handle detached and its config artifact removed, one notification out.
func (w *Watchdog) handleUnexpectedExit(inst model.ProxyInstance, h *ProcessHandle) {
	msg := fmt.Sprintf("process for port %d has died unexpectedly", inst.Port)
	logger.Error(msg)
	w.bridge.PublishLog("ERROR", msg)

	w.registry.SetStatus(inst.Id, model.Stopped)
	if detached, ok := w.registry.DetachProcess(inst.Id); ok {
		w.ctrl.Cleanup(detached)
	}
	w.sampler.Forget(h.Pid)
	delete(w.primed, inst.Id)
	w.bridge.PublishInstancesChanged()
}

// checkCPU enforces the continuous 30 s overage window. A single sample
// at or below threshold resets the window.
func (w *Watchdog) checkCPU(inst model.ProxyInstance, h *ProcessHandle, cpu float64) {
	if cpu <= highCPUThreshold {
		h.HighCPUSince = time.Time{}
		return
	}
	now := w.now()
	if h.HighCPUSince.IsZero() {
		h.HighCPUSince = now
		return
	}
	if now.Sub(h.HighCPUSince) <= highCPUWindow {
		return
	}

	msg := fmt.Sprintf("killing process on port %d due to high CPU usage", inst.Port)
	logger.Warning(msg)
	w.bridge.PublishLog("WARNING", msg)

	w.ctrl.StopGracefully(h, w.killTimeout)
	w.registry.SetStatus(inst.Id, model.Error)
	w.registry.DetachProcess(inst.Id)
	w.sampler.Forget(h.Pid)
	delete(w.primed, inst.Id)
	w.bridge.PublishInstancesChanged()
}
