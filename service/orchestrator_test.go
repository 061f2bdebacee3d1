package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wiresocks/wiresocks-ui/database"
	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/util"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	startErr error
	nextPid  int
	started  []int
	stopped  []*ProcessHandle
}

func (f *fakeSupervisor) Start(inst model.ProxyInstance, creds util.Credentials) (*ProcessHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextPid++
	f.started = append(f.started, inst.Port)
	return &ProcessHandle{
		Pid:       f.nextPid,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}, nil
}

func (f *fakeSupervisor) StopGracefully(h *ProcessHandle, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, h)
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return true
}

func (f *fakeSupervisor) Cleanup(h *ProcessHandle) {}

func (f *fakeSupervisor) IsAlive(h *ProcessHandle) bool {
	return h != nil && !h.Exited()
}

func (f *fakeSupervisor) startedPorts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.started...)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func orchestratorFixture(t *testing.T) (*Orchestrator, *Registry, *fakeSupervisor, *EventBridge) {
	t.Helper()
	if err := database.InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry()
	bridge := NewEventBridge()
	sup := &fakeSupervisor{}
	fetcher := NewDirectoryFetcher(filepath.Join(t.TempDir(), "cache.json"))
	o := NewOrchestrator(reg, sup, fetcher, bridge, &SettingService{})
	o.interStart = 10 * time.Millisecond
	o.waitDelay = 5 * time.Millisecond

	reg.SetDirectory(testDirectory())
	creds, err := util.GenerateCredentials()
	if err != nil {
		t.Fatal(err)
	}
	reg.SetCredentials(creds)
	return o, reg, sup, bridge
}

func TestAddInstancePicksLowestLoad(t *testing.T) {
	o, _, _, _ := orchestratorFixture(t)

	port := freePort(t)
	inst, err := o.AddInstance("UK", port)
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	if inst.Id == 0 {
		t.Error("expected a persisted id")
	}
	if inst.Location != "London" {
		t.Errorf("expected lowest-load UK server in London, got %s", inst.Location)
	}
	if inst.Status != model.Stopped {
		t.Errorf("new instance should be Stopped, got %s", inst.Status)
	}

	server, err := model.UnmarshalServer(inst.Server)
	if err != nil {
		t.Fatalf("server descriptor not embedded: %v", err)
	}
	if server.PubKey != "k2" {
		t.Errorf("expected server k2 (load 17), got %s", server.PubKey)
	}
}

func TestAddInstanceValidation(t *testing.T) {
	o, reg, _, _ := orchestratorFixture(t)

	var verr *ValidationError
	if _, err := o.AddInstance("", 1080); !errors.As(err, &verr) {
		t.Errorf("empty selection: expected ValidationError, got %v", err)
	}
	if _, err := o.AddInstance("UK", 80); !errors.As(err, &verr) || verr.Field != "port" {
		t.Errorf("privileged port: expected port ValidationError, got %v", err)
	}
	if _, err := o.AddInstance("UK", 70000); !errors.As(err, &verr) {
		t.Errorf("out-of-range port: expected ValidationError, got %v", err)
	}
	if _, err := o.AddInstance("France", freePort(t)); !errors.As(err, &verr) || verr.Field != "country" {
		t.Errorf("unknown country: expected country ValidationError, got %v", err)
	}

	port := freePort(t)
	if _, err := o.AddInstance("UK", port); err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	if _, err := o.AddInstance("Germany", port); !errors.As(err, &verr) || verr.Field != "port" {
		t.Errorf("duplicate port: expected port ValidationError, got %v", err)
	}

	reg.SetDirectory(nil)
	if _, err := o.AddInstance("UK", freePort(t)); !errors.Is(err, ErrNoServers) {
		t.Errorf("no directory: expected ErrNoServers, got %v", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	o, reg, sup, _ := orchestratorFixture(t)

	inst, err := o.AddInstance("UK - London", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}

	o.doStart(inst.Id)

	got, _ := reg.Get(inst.Id)
	if got.Status != model.Running {
		t.Fatalf("expected Running, got %s", got.Status)
	}
	if got.StartTime == nil {
		t.Error("expected StartTime while running")
	}
	if got.ConnectionAttempts != 1 {
		t.Errorf("expected 1 connection attempt, got %d", got.ConnectionAttempts)
	}
	if _, ok := reg.Process(inst.Id); !ok {
		t.Fatal("expected an attached handle")
	}

	// A second start against a running instance is a no-op.
	o.doStart(inst.Id)
	if len(sup.startedPorts()) != 1 {
		t.Fatalf("expected a single spawn, got %v", sup.startedPorts())
	}

	o.doStop(inst.Id)
	got, _ = reg.Get(inst.Id)
	if got.Status != model.Stopped {
		t.Fatalf("expected Stopped, got %s", got.Status)
	}
	if got.StartTime != nil {
		t.Error("expected StartTime cleared after stop")
	}
	if _, ok := reg.Process(inst.Id); ok {
		t.Error("expected handle detached after stop")
	}
	if len(sup.stopped) != 1 {
		t.Errorf("expected one graceful stop, got %d", len(sup.stopped))
	}
}

func TestStartFailureMovesToError(t *testing.T) {
	o, reg, sup, _ := orchestratorFixture(t)
	sup.startErr = &StartError{Port: 1080, ExitCode: 1}

	inst, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	o.doStart(inst.Id)

	got, _ := reg.Get(inst.Id)
	if got.Status != model.Error {
		t.Fatalf("expected Error, got %s", got.Status)
	}
	if _, ok := reg.Process(inst.Id); ok {
		t.Error("no handle may be attached after a failed start")
	}
}

func TestStartWithoutCredentials(t *testing.T) {
	o, reg, sup, _ := orchestratorFixture(t)

	inst, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	reg.SetCredentials(util.Credentials{})

	o.doStart(inst.Id)
	got, _ := reg.Get(inst.Id)
	if got.Status != model.Stopped {
		t.Errorf("missing keys must not transition status, got %s", got.Status)
	}
	if len(sup.startedPorts()) != 0 {
		t.Error("no process may be spawned without keys")
	}
}

func TestStopAll(t *testing.T) {
	o, reg, _, _ := orchestratorFixture(t)

	var ids []uint
	for i := 0; i < 3; i++ {
		inst, err := o.AddInstance("UK", freePort(t))
		if err != nil {
			t.Fatalf("AddInstance: %v", err)
		}
		o.doStart(inst.Id)
		ids = append(ids, inst.Id)
	}

	o.StopAll()

	for _, id := range ids {
		got, _ := reg.Get(id)
		if got.Status != model.Stopped {
			t.Errorf("instance %d: expected Stopped, got %s", id, got.Status)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	o, _, sup, _ := orchestratorFixture(t)

	running, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	idle, err := o.AddInstance("Germany", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}

	o.doStart(running.Id)
	o.SaveState()

	// Fresh registry simulates a restart against the same database.
	reg2 := NewRegistry()
	bridge2 := NewEventBridge()
	o2 := NewOrchestrator(reg2, sup, NewDirectoryFetcher(filepath.Join(t.TempDir(), "cache.json")), bridge2, &SettingService{})

	restart, err := o2.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(restart) != 1 || restart[0] != running.Id {
		t.Fatalf("expected only the running instance tagged for restart, got %v", restart)
	}

	for _, id := range []uint{running.Id, idle.Id} {
		got, ok := reg2.Get(id)
		if !ok {
			t.Fatalf("instance %d not restored", id)
		}
		if got.Status != model.Stopped {
			t.Errorf("restored instance %d must be Stopped, got %s", id, got.Status)
		}
	}
}

func TestAutoRestartAbortsOnCancel(t *testing.T) {
	o, _, sup, _ := orchestratorFixture(t)

	inst, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.autoRestartWorker(ctx, []uint{inst.Id})

	if len(sup.startedPorts()) != 0 {
		t.Error("cancelled auto-restart must not spawn anything")
	}
}

func TestAutoRestartStartsSerially(t *testing.T) {
	o, reg, sup, _ := orchestratorFixture(t)

	a, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatal(err)
	}
	c, err := o.AddInstance("Germany", freePort(t))
	if err != nil {
		t.Fatal(err)
	}

	o.autoRestartWorker(context.Background(), []uint{a.Id, c.Id})

	if got := sup.startedPorts(); len(got) != 2 {
		t.Fatalf("expected both instances spawned, got %v", got)
	}
	for _, id := range []uint{a.Id, c.Id} {
		inst, _ := reg.Get(id)
		if inst.Status != model.Running {
			t.Errorf("instance %d: expected Running, got %s", id, inst.Status)
		}
	}
}

func TestRemoveInstanceStopsProcess(t *testing.T) {
	o, reg, sup, _ := orchestratorFixture(t)

	inst, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	o.doStart(inst.Id)

	if err := o.RemoveInstance(inst.Id); err != nil {
		t.Fatalf("RemoveInstance: %v", err)
	}
	if _, ok := reg.Get(inst.Id); ok {
		t.Error("instance still in registry after removal")
	}
	if len(sup.stopped) == 0 {
		t.Error("running process must be stopped on removal")
	}

	var rows []model.ProxyInstance
	if err := database.GetDB().Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if row.Id == inst.Id {
			t.Error("instance row still persisted after removal")
		}
	}

	if err := o.RemoveInstance(inst.Id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for repeated removal, got %v", err)
	}
}

func TestRenderedConfig(t *testing.T) {
	o, _, _, _ := orchestratorFixture(t)

	port := freePort(t)
	inst, err := o.AddInstance("UK - London", port)
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}

	content, err := o.RenderedConfig(inst.Id)
	if err != nil {
		t.Fatalf("RenderedConfig: %v", err)
	}
	for _, want := range []string{
		"[Interface]",
		"[Peer]",
		"[Socks5]",
		fmt.Sprintf("BindAddress = 127.0.0.1:%d", port),
		"Endpoint = uk-lon2.example.com:51820",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("config missing %q", want)
		}
	}
}

func TestUpdateCredentials(t *testing.T) {
	o, reg, _, _ := orchestratorFixture(t)

	var verr *ValidationError
	if err := o.UpdateCredentials("", ""); !errors.As(err, &verr) {
		t.Errorf("empty keys: expected ValidationError, got %v", err)
	}
	if err := o.UpdateCredentials("not-a-key", "also-not-a-key"); !errors.As(err, &verr) {
		t.Errorf("garbage keys: expected ValidationError, got %v", err)
	}

	creds, err := util.GenerateCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if err := o.UpdateCredentials(creds.PrivateKey, creds.PublicKey); err != nil {
		t.Fatalf("UpdateCredentials: %v", err)
	}
	if reg.Credentials() != creds {
		t.Error("registry credentials not updated")
	}

	settings := &SettingService{}
	saved, err := settings.GetCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if saved != creds {
		t.Error("credentials not persisted")
	}
}

func TestShutdownPreservesAutoRestartTags(t *testing.T) {
	o, _, _, _ := orchestratorFixture(t)

	running, err := o.AddInstance("UK", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	idle, err := o.AddInstance("Germany", freePort(t))
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}

	o.doStart(running.Id)
	if got, _ := o.Instance(running.Id); got.Status != model.Running {
		t.Fatalf("expected Running before shutdown, got %s", got.Status)
	}

	o.Shutdown()

	var row model.ProxyInstance
	if err := database.GetDB().First(&row, running.Id).Error; err != nil {
		t.Fatal(err)
	}
	if !row.AutoRestart {
		t.Error("running instance lost its auto-restart tag across shutdown")
	}
	row = model.ProxyInstance{}
	if err := database.GetDB().First(&row, idle.Id).Error; err != nil {
		t.Fatal(err)
	}
	if row.AutoRestart {
		t.Error("stopped instance must not be tagged for auto-restart")
	}
	if got, _ := o.Instance(running.Id); got.Status != model.Stopped {
		t.Errorf("expected Stopped after shutdown, got %s", got.Status)
	}
}

func TestLoadServersFallsBackToFreshCache(t *testing.T) {
	o, reg, _, bridge := orchestratorFixture(t)
	reg.SetDirectory(nil)
	o.fetcher.maxRetries = 1

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	settings := &SettingService{}
	if err := settings.Update("apiEndpoint", srv.URL); err != nil {
		t.Fatal(err)
	}

	writeCache(t, o.fetcher.cachePath, time.Now().Add(-23*time.Hour), testDirectory().Servers)

	o.loadServers(context.Background())

	if !reg.HasServers() {
		t.Fatal("expected servers restored from the cache")
	}
	var status string
	for _, ev := range bridge.Drain() {
		if ev.Kind == EventStatusText {
			status = ev.Message
		}
	}
	if !strings.HasPrefix(status, "Ready:") {
		t.Errorf("expected a ready status after cache fallback, got %q", status)
	}
}

func TestLoadServersStaleCacheIsTerminal(t *testing.T) {
	o, reg, _, bridge := orchestratorFixture(t)
	reg.SetDirectory(nil)
	o.fetcher.maxRetries = 1

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	settings := &SettingService{}
	if err := settings.Update("apiEndpoint", srv.URL); err != nil {
		t.Fatal(err)
	}

	writeCache(t, o.fetcher.cachePath, time.Now().Add(-25*time.Hour), testDirectory().Servers)

	o.loadServers(context.Background())

	if reg.HasServers() {
		t.Fatal("stale cache must not be loaded")
	}
	var status string
	for _, ev := range bridge.Drain() {
		if ev.Kind == EventStatusText {
			status = ev.Message
		}
	}
	if status != statusLoadError {
		t.Errorf("expected %q status, got %q", statusLoadError, status)
	}
}
