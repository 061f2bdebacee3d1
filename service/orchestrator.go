package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wiresocks/wiresocks-ui/database"
	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/util"

	"golang.org/x/sync/errgroup"
)

const (
	poolWorkers        = 4
	stopTimeout        = 5 * time.Second
	stopAllBudget      = 10 * time.Second
	interStartDelay    = 3 * time.Second
	waitServerAttempts = 60
	waitServerDelay    = time.Second
	connProbeDelay     = 2 * time.Second
	connProbeTimeout   = 5 * time.Second

	statusLoading      = "Loading server list..."
	statusLoadError    = "Error loading servers"
	statusReadyFmt     = "Ready: %d countries, %d locations"
	statusNoServerData = "No server data available"
)

type processSupervisor interface {
	Start(inst model.ProxyInstance, creds util.Credentials) (*ProcessHandle, error)
	StopGracefully(h *ProcessHandle, timeout time.Duration) bool
	Cleanup(h *ProcessHandle)
	IsAlive(h *ProcessHandle) bool
}

// Orchestrator is the facade every caller goes through: the web API, the
// bot, the cron jobs and startup auto-restart. It validates, mutates the
// Registry, fans blocking work out to the bounded worker pool and
// publishes EventBridge notifications. Callers are never blocked on
// process spawn, stop or network fetch.
type Orchestrator struct {
	registry *Registry
	sup      processSupervisor
	fetcher  *DirectoryFetcher
	bridge   *EventBridge
	settings *SettingService
	pool     *util.Pool

	interStart time.Duration
	waitDelay  time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewOrchestrator(registry *Registry, sup processSupervisor, fetcher *DirectoryFetcher, bridge *EventBridge, settings *SettingService) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		sup:        sup,
		fetcher:    fetcher,
		bridge:     bridge,
		settings:   settings,
		pool:       util.NewPool(poolWorkers),
		interStart: interStartDelay,
		waitDelay:  waitServerDelay,
		shutdown:   make(chan struct{}),
	}
}

// ShuttingDown exposes the shutdown signal to collaborators that run
// their own loops (watchdog wiring, presentation loop).
func (o *Orchestrator) ShuttingDown() <-chan struct{} {
	return o.shutdown
}

func (o *Orchestrator) Instances() []model.ProxyInstance {
	return o.registry.List()
}

func (o *Orchestrator) Instance(id uint) (model.ProxyInstance, error) {
	inst, ok := o.registry.Get(id)
	if !ok {
		return model.ProxyInstance{}, ErrNotFound
	}
	return inst, nil
}

func (o *Orchestrator) CountryOptions() []string {
	return o.registry.Directory().CountryOptions()
}

func (o *Orchestrator) HasServers() bool {
	return o.registry.HasServers()
}

func (o *Orchestrator) Credentials() util.Credentials {
	return o.registry.Credentials()
}

func (o *Orchestrator) logEvent(level, msg string) {
	switch level {
	case "DEBUG":
		logger.Debug(msg)
	case "WARNING":
		logger.Warning(msg)
	case "ERROR":
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
	o.bridge.PublishLog(level, msg)
}

// probePort verifies the port is actually bindable on the host. The
// registry uniqueness check races with real OS binding, so this second
// probe runs before any instance is committed.
func probePort(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	return l.Close()
}

// AddInstance validates the selection and port, picks the lowest-load
// server for the selection and commits a new stopped instance.
func (o *Orchestrator) AddInstance(selection string, port int) (model.ProxyInstance, error) {
	if selection == "" {
		return model.ProxyInstance{}, &ValidationError{Field: "country", Reason: "no country selected"}
	}
	if port < 1024 || port > 65535 {
		return model.ProxyInstance{}, &ValidationError{Field: "port", Reason: "must be between 1024 and 65535"}
	}
	if o.registry.PortInUse(port) {
		return model.ProxyInstance{}, &ValidationError{Field: "port", Reason: "already in use by another instance"}
	}
	if err := probePort(port); err != nil {
		return model.ProxyInstance{}, &ValidationError{Field: "port", Reason: "in use by another application"}
	}

	dir := o.registry.Directory()
	if dir == nil || len(dir.Servers) == 0 {
		return model.ProxyInstance{}, ErrNoServers
	}
	candidates := dir.BySelection(selection)
	if len(candidates) == 0 {
		return model.ProxyInstance{}, &ValidationError{Field: "country", Reason: fmt.Sprintf("no servers found for %s", selection)}
	}
	server, _ := BestServer(candidates)
	o.logEvent("INFO", fmt.Sprintf("selected server %s with %.0f%% load", server.Location, server.Load))

	raw, err := server.Marshal()
	if err != nil {
		return model.ProxyInstance{}, err
	}
	inst := model.ProxyInstance{
		Country:   selection,
		Location:  server.Location,
		Port:      port,
		Server:    raw,
		Status:    model.Stopped,
		CreatedAt: time.Now(),
	}

	// The DB create assigns the stable id; it happens outside the
	// registry lock.
	if err := database.GetDB().Create(&inst).Error; err != nil {
		return model.ProxyInstance{}, err
	}
	if err := o.registry.Add(inst); err != nil {
		database.GetDB().Delete(&model.ProxyInstance{}, inst.Id)
		return model.ProxyInstance{}, err
	}

	o.bridge.PublishInstancesChanged()
	o.logEvent("INFO", fmt.Sprintf("added proxy: %s - %s on port %d", selection, server.Location, port))
	return inst, nil
}

// RemoveInstance stops a running instance and deletes it.
func (o *Orchestrator) RemoveInstance(id uint) error {
	inst, ok := o.registry.Get(id)
	if !ok {
		return ErrNotFound
	}
	if inst.Status == model.Running || inst.Status == model.Starting {
		o.doStop(id)
	}
	if err := database.GetDB().Delete(&model.ProxyInstance{}, id).Error; err != nil {
		return err
	}
	if handle, ok := o.registry.Remove(id); ok && handle != nil {
		o.sup.StopGracefully(handle, stopTimeout)
	}
	o.bridge.PublishInstancesChanged()
	o.logEvent("INFO", fmt.Sprintf("removed proxy on port %d", inst.Port))
	return nil
}

// StartInstance dispatches the start to the worker pool. Validation of
// the id happens here; everything slow runs on a worker.
func (o *Orchestrator) StartInstance(id uint) error {
	if _, ok := o.registry.Get(id); !ok {
		return ErrNotFound
	}
	o.pool.Submit(func(ctx context.Context) { o.doStart(id) })
	return nil
}

// doStart drives Stopped/Error -> Starting -> Running|Error.
func (o *Orchestrator) doStart(id uint) {
	inst, ok := o.registry.Get(id)
	if !ok {
		return
	}
	if inst.Status == model.Running || inst.Status == model.Starting {
		o.logEvent("WARNING", fmt.Sprintf("proxy on port %d is already running", inst.Port))
		return
	}

	creds := o.registry.Credentials()
	if !creds.Valid() {
		o.logEvent("ERROR", "WireGuard keys not configured")
		return
	}
	if err := probePort(inst.Port); err != nil {
		o.logEvent("ERROR", fmt.Sprintf("port %d is in use by another application", inst.Port))
		return
	}

	o.registry.SetStatus(id, model.Starting)
	o.registry.IncAttempts(id)
	o.bridge.PublishInstancesChanged()

	handle, err := o.sup.Start(inst, creds)
	if err != nil {
		o.registry.SetStatus(id, model.Error)
		o.bridge.PublishInstancesChanged()
		o.logEvent("ERROR", fmt.Sprintf("error starting proxy: %v", err))
		return
	}

	o.registry.AttachProcess(id, handle)
	o.registry.SetStatus(id, model.Running)
	o.registry.SetStartTime(id, handle.StartedAt)
	o.bridge.PublishInstancesChanged()
	o.logEvent("INFO", fmt.Sprintf("successfully started proxy on port %d", inst.Port))
	o.SaveState()

	port := inst.Port
	o.pool.Submit(func(ctx context.Context) { o.testConnection(ctx, port) })
}

// testConnection dials the local SOCKS port shortly after start and
// reports the outcome. Informational only.
func (o *Orchestrator) testConnection(ctx context.Context, port int) {
	select {
	case <-time.After(connProbeDelay):
	case <-ctx.Done():
		return
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), connProbeTimeout)
	if err != nil {
		o.logEvent("WARNING", fmt.Sprintf("proxy on port %d is not accepting connections", port))
		return
	}
	conn.Close()
	o.logEvent("INFO", fmt.Sprintf("proxy on port %d is accepting connections", port))
}

// StopInstance dispatches a graceful stop to the worker pool.
func (o *Orchestrator) StopInstance(id uint) error {
	if _, ok := o.registry.Get(id); !ok {
		return ErrNotFound
	}
	o.pool.Submit(func(ctx context.Context) { o.doStop(id) })
	return nil
}

// doStop completes the Running -> Stopped transition. The status moves
// and the handle detaches immediately; the blocking graceful/forced kill
// runs afterwards so the presentation is never stuck on a straggler.
func (o *Orchestrator) doStop(id uint) {
	inst, ok := o.registry.Get(id)
	if !ok {
		return
	}
	if inst.Status != model.Running && inst.Status != model.Starting {
		logger.Debugf("proxy on port %d is not running", inst.Port)
		return
	}

	handle, _ := o.registry.DetachProcess(id)
	o.registry.SetStatus(id, model.Stopped)
	o.bridge.PublishInstancesChanged()

	if handle != nil {
		if !o.sup.StopGracefully(handle, stopTimeout) {
			o.logEvent("WARNING", (&StopError{Port: inst.Port}).Error())
		}
	}
	o.logEvent("INFO", fmt.Sprintf("successfully stopped proxy on port %d", inst.Port))

	// During shutdown the state was already saved with the was-running
	// tags; saving again here would record every instance as stopped and
	// lose the auto-restart set.
	select {
	case <-o.shutdown:
	default:
		o.SaveState()
	}
}

// StopAll fans the stop of every running instance out with bounded
// concurrency and waits up to a fixed budget. Stragglers keep completing
// their own graceful/forced path after the budget expires.
func (o *Orchestrator) StopAll() {
	var running []uint
	for _, inst := range o.registry.List() {
		if inst.Status == model.Running || inst.Status == model.Starting {
			running = append(running, inst.Id)
		}
	}
	if len(running) == 0 {
		return
	}
	logger.Infof("stopping %d running proxies", len(running))

	g := &errgroup.Group{}
	g.SetLimit(poolWorkers)
	for _, id := range running {
		id := id
		g.Go(func() error {
			o.doStop(id)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all proxy stop operations completed")
	case <-time.After(stopAllBudget):
		logger.Warning("some proxy stop operations timed out")
	}
}

// UpdateCredentials validates and installs a new key pair, persisting it.
func (o *Orchestrator) UpdateCredentials(privateKey, publicKey string) error {
	creds := util.Credentials{PrivateKey: privateKey, PublicKey: publicKey}
	if !creds.Valid() {
		return &ValidationError{Field: "credentials", Reason: "both private and public keys must be provided"}
	}
	if err := creds.Validate(); err != nil {
		return &ValidationError{Field: "credentials", Reason: err.Error()}
	}
	o.registry.SetCredentials(creds)
	if err := o.settings.SaveCredentials(creds); err != nil {
		return err
	}
	o.logEvent("INFO", "WireGuard keys updated")
	return nil
}

// GenerateCredentials creates, installs and persists a fresh key pair.
func (o *Orchestrator) GenerateCredentials() (util.Credentials, error) {
	creds, err := util.GenerateCredentials()
	if err != nil {
		return util.Credentials{}, err
	}
	o.registry.SetCredentials(creds)
	if err := o.settings.SaveCredentials(creds); err != nil {
		return util.Credentials{}, err
	}
	o.logEvent("INFO", "WireGuard keys generated")
	return creds, nil
}

// RenderedConfig exports the config text for an instance without
// touching any process.
func (o *Orchestrator) RenderedConfig(id uint) (string, error) {
	inst, ok := o.registry.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	creds := o.registry.Credentials()
	if !creds.Valid() {
		return "", &ValidationError{Field: "credentials", Reason: "WireGuard keys not configured"}
	}
	server, err := model.UnmarshalServer(inst.Server)
	if err != nil {
		return "", err
	}
	return util.RenderConfig(server, creds, inst.Port), nil
}

// RequestDirectoryReload fetches the directory on a worker, falling back
// to the disk cache when the network is out.
func (o *Orchestrator) RequestDirectoryReload() {
	o.pool.Submit(o.loadServers)
}

func (o *Orchestrator) loadServers(ctx context.Context) {
	o.bridge.PublishStatus(statusLoading)
	o.logEvent("INFO", "starting server fetch from directory API")

	endpoint, err := o.settings.GetApiEndpoint()
	if err != nil {
		o.logEvent("ERROR", fmt.Sprintf("error reading API endpoint setting: %v", err))
		return
	}

	dir, err := o.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		o.logEvent("WARNING", "failed to fetch servers, trying cache...")
		dir, err = o.fetcher.LoadCache()
		if err != nil {
			o.bridge.PublishStatus(statusLoadError)
			o.logEvent("ERROR", "failed to load servers from API and cache")
			return
		}
		o.logEvent("INFO", "loaded servers from cache")
	}

	o.registry.SetDirectory(dir)

	countries := make(map[string]bool)
	locations := make(map[string]bool)
	for _, s := range dir.Servers {
		countries[s.Country] = true
		locations[s.Country+"-"+s.Location] = true
	}
	o.logEvent("INFO", fmt.Sprintf("loaded %d servers from %d countries, %d locations",
		len(dir.Servers), len(countries), len(locations)))
	o.bridge.PublishStatus(fmt.Sprintf(statusReadyFmt, len(countries), len(locations)))
	o.bridge.PublishDirectoryChanged()
}

// WaitForServers polls until the directory is non-empty, bounded by the
// attempt budget and the shutdown signal.
func (o *Orchestrator) WaitForServers(ctx context.Context) bool {
	for attempt := 0; attempt < waitServerAttempts; attempt++ {
		select {
		case <-o.shutdown:
			logger.Info("shutdown requested, aborting wait for servers")
			return false
		case <-ctx.Done():
			return false
		default:
		}
		if o.registry.HasServers() {
			return true
		}
		select {
		case <-time.After(o.waitDelay):
		case <-o.shutdown:
			return false
		case <-ctx.Done():
			return false
		}
	}
	o.bridge.PublishStatus(statusNoServerData)
	logger.Error("servers not loaded, cannot auto-restart proxies")
	return false
}

// AutoRestart re-starts the given instances serially with a fixed
// inter-start delay once the directory is available. A shutdown signal
// aborts the remaining queue; that is not an error.
func (o *Orchestrator) AutoRestart(ids []uint) {
	if len(ids) == 0 {
		logger.Info("no proxies to auto-restart")
		return
	}
	o.logEvent("INFO", fmt.Sprintf("auto-restarting %d proxies", len(ids)))
	o.pool.Submit(func(ctx context.Context) { o.autoRestartWorker(ctx, ids) })
}

func (o *Orchestrator) autoRestartWorker(ctx context.Context, ids []uint) {
	if !o.WaitForServers(ctx) {
		return
	}
	o.logEvent("INFO", "servers loaded, starting auto-restart")

	for i, id := range ids {
		select {
		case <-o.shutdown:
			logger.Info("shutdown requested, stopping auto-restart")
			return
		case <-ctx.Done():
			return
		default:
		}
		logger.Infof("auto-restarting proxy %d/%d (id %d)", i+1, len(ids), id)
		o.doStart(id)
		select {
		case <-time.After(o.interStart):
		case <-o.shutdown:
			logger.Info("shutdown requested, stopping auto-restart")
			return
		case <-ctx.Done():
			return
		}
	}
	o.logEvent("INFO", "auto-restart completed")
}

// SaveState persists every instance row. The AutoRestart column records
// whether the instance was *actually* running (status plus a live
// process) at save time; that tag, not the status, drives auto-restart.
func (o *Orchestrator) SaveState() {
	db := database.GetDB()
	for _, inst := range o.registry.List() {
		running := false
		if inst.Status == model.Running {
			if h, ok := o.registry.Process(inst.Id); ok && o.sup.IsAlive(h) {
				running = true
			}
		}
		inst.AutoRestart = running
		if err := db.Save(&inst).Error; err != nil {
			logger.Error("error saving state: ", err)
			return
		}
	}
	logger.Debugf("saved state with %d proxies", len(o.registry.List()))
}

// LoadState restores persisted instances into the registry (always as
// Stopped) plus the credentials, and returns the ids tagged for
// auto-restart.
func (o *Orchestrator) LoadState() ([]uint, error) {
	creds, err := o.settings.GetCredentials()
	if err != nil {
		return nil, err
	}
	o.registry.SetCredentials(creds)

	var rows []model.ProxyInstance
	if err := database.GetDB().Find(&rows).Error; err != nil {
		return nil, err
	}

	var restart []uint
	for _, row := range rows {
		if row.AutoRestart {
			restart = append(restart, row.Id)
			logger.Infof("marked proxy on port %d for auto-restart", row.Port)
		}
		row.Status = model.Stopped
		row.StartTime = nil
		if err := o.registry.Add(row); err != nil {
			logger.Warning("skipping persisted instance: ", err)
		}
	}
	logger.Infof("loaded state with %d proxies", len(rows))
	o.bridge.PublishInstancesChanged()
	return restart, nil
}

// CleanupTempFiles removes every tracked config artifact. Runs at
// startup (crash leftovers) and as the final shutdown step.
func (o *Orchestrator) CleanupTempFiles() {
	cleaned := 0
	for _, path := range o.registry.DrainTempFiles() {
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				logger.Warning("failed to clean temp file: ", err)
			}
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		logger.Infof("cleaned up %d temporary files", cleaned)
	}
}

// Shutdown raises the shutdown signal, saves state, stops everything and
// drains the pool. Outstanding stop operations run to completion; the
// cleanup path is not cancellable.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		logger.Info("shutting down orchestrator")
		close(o.shutdown)
		o.SaveState()
		o.StopAll()
		o.pool.Shutdown()
		o.CleanupTempFiles()
	})
}
