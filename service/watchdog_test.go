package service

import (
	"testing"
	"time"

	"github.com/wiresocks/wiresocks-ui/database/model"
)

type fakeController struct {
	alive   map[int]bool
	stopped []int
	cleaned []int
}

func (c *fakeController) IsAlive(h *ProcessHandle) bool {
	return c.alive[h.Pid]
}

func (c *fakeController) StopGracefully(h *ProcessHandle, timeout time.Duration) bool {
	c.stopped = append(c.stopped, h.Pid)
	c.alive[h.Pid] = false
	return true
}

func (c *fakeController) Cleanup(h *ProcessHandle) {
	c.cleaned = append(c.cleaned, h.Pid)
}

type fakeSampler struct {
	usage     map[int]ProcessUsage
	samples   int
	forgotten []int
}

func (s *fakeSampler) Sample(pid int) (ProcessUsage, error) {
	s.samples++
	return s.usage[pid], nil
}

func (s *fakeSampler) Forget(pid int) {
	s.forgotten = append(s.forgotten, pid)
}

func watchdogFixture(t *testing.T) (*Watchdog, *Registry, *fakeController, *fakeSampler, *EventBridge) {
	t.Helper()
	reg := NewRegistry()
	ctrl := &fakeController{alive: make(map[int]bool)}
	sampler := &fakeSampler{usage: make(map[int]ProcessUsage)}
	bridge := NewEventBridge()
	w := NewWatchdog(reg, ctrl, sampler, bridge)
	return w, reg, ctrl, sampler, bridge
}

func runningInstance(t *testing.T, reg *Registry, id uint, pid int) *ProcessHandle {
	t.Helper()
	if err := reg.Add(model.ProxyInstance{Id: id, Country: "UK", Location: "London", Port: 1080 + int(id), Status: model.Stopped}); err != nil {
		t.Fatal(err)
	}
	reg.SetStatus(id, model.Running)
	h := &ProcessHandle{Pid: pid}
	reg.AttachProcess(id, h)
	return h
}

func TestWatchdogUnexpectedExit(t *testing.T) {
	w, reg, ctrl, sampler, bridge := watchdogFixture(t)
	h := runningInstance(t, reg, 1, 100)
	ctrl.alive[h.Pid] = false

	if err := w.tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	inst, _ := reg.Get(1)
	if inst.Status != model.Stopped {
		t.Errorf("expected Stopped after unexpected exit, got %s", inst.Status)
	}
	if _, ok := reg.Process(1); ok {
		t.Error("expected handle to be detached")
	}
	if len(ctrl.cleaned) != 1 || ctrl.cleaned[0] != 100 {
		t.Errorf("expected config cleanup for pid 100, got %v", ctrl.cleaned)
	}
	if len(sampler.forgotten) != 1 || sampler.forgotten[0] != 100 {
		t.Errorf("expected sampler to forget pid 100, got %v", sampler.forgotten)
	}

	var sawError, sawChanged bool
	for _, ev := range bridge.Drain() {
		if ev.Kind == EventLog && ev.Level == "ERROR" {
			sawError = true
		}
		if ev.Kind == EventInstancesChanged {
			sawChanged = true
		}
	}
	if !sawError || !sawChanged {
		t.Error("expected error log and instances-changed events")
	}
}

func TestWatchdogFirstTickOnlyPrimes(t *testing.T) {
	w, reg, ctrl, sampler, _ := watchdogFixture(t)
	h := runningInstance(t, reg, 1, 100)
	ctrl.alive[h.Pid] = true
	sampler.usage[h.Pid] = ProcessUsage{CPUPercent: 99}

	if err := w.tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !h.HighCPUSince.IsZero() {
		t.Error("warm-up sample must not start the high-CPU window")
	}
	if sampler.samples != 1 {
		t.Errorf("expected exactly one priming sample, got %d", sampler.samples)
	}
}

func TestWatchdogHighCPUWindowResetsOnDip(t *testing.T) {
	w, reg, ctrl, sampler, _ := watchdogFixture(t)
	h := runningInstance(t, reg, 1, 100)
	ctrl.alive[h.Pid] = true

	now := time.Now()
	w.now = func() time.Time { return now }

	sampler.usage[h.Pid] = ProcessUsage{CPUPercent: 95}
	w.tick() // prime
	w.tick() // window opens at t0

	now = now.Add(20 * time.Second)
	w.tick() // 20s over, inside window

	// One sample at or below threshold resets the window.
	sampler.usage[h.Pid] = ProcessUsage{CPUPercent: 40}
	now = now.Add(5 * time.Second)
	w.tick()

	sampler.usage[h.Pid] = ProcessUsage{CPUPercent: 95}
	now = now.Add(5 * time.Second)
	w.tick() // window reopens here

	now = now.Add(20 * time.Second)
	w.tick() // 20s into the new window

	inst, _ := reg.Get(1)
	if inst.Status != model.Running {
		t.Fatalf("interrupted overage must not kill, got %s", inst.Status)
	}
	if len(ctrl.stopped) != 0 {
		t.Fatalf("unexpected kill: %v", ctrl.stopped)
	}
}

func TestWatchdogKillsSustainedHighCPU(t *testing.T) {
	w, reg, ctrl, sampler, bridge := watchdogFixture(t)
	h := runningInstance(t, reg, 1, 100)
	ctrl.alive[h.Pid] = true

	now := time.Now()
	w.now = func() time.Time { return now }

	sampler.usage[h.Pid] = ProcessUsage{CPUPercent: 95}
	w.tick() // prime
	w.tick() // window opens

	now = now.Add(40 * time.Second)
	w.tick()

	inst, _ := reg.Get(1)
	if inst.Status != model.Error {
		t.Fatalf("expected Error after sustained overage, got %s", inst.Status)
	}
	if len(ctrl.stopped) != 1 || ctrl.stopped[0] != 100 {
		t.Fatalf("expected pid 100 to be stopped, got %v", ctrl.stopped)
	}
	if _, ok := reg.Process(1); ok {
		t.Error("expected handle to be detached after kill")
	}

	var sawWarning bool
	for _, ev := range bridge.Drain() {
		if ev.Kind == EventLog && ev.Level == "WARNING" {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Error("expected a warning event for the kill")
	}
}

func TestWatchdogIgnoresNonRunning(t *testing.T) {
	w, reg, _, sampler, _ := watchdogFixture(t)
	if err := reg.Add(model.ProxyInstance{Id: 1, Port: 1080, Status: model.Stopped}); err != nil {
		t.Fatal(err)
	}

	if err := w.tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sampler.samples != 0 {
		t.Error("stopped instances must not be sampled")
	}
}
