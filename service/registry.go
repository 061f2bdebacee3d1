package service

import (
	"sync"
	"time"

	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/util"
)

// Registry is the single synchronization point for instance and process
// state. One mutex guards everything below; no I/O happens under it.
// Reads hand out copies, so callers can never mutate shared state behind
// the lock's back. Process handles are the one exception: a handle is
// exclusively owned by its running instance and only ever reached through
// Attach/Detach/Process.
type Registry struct {
	mu        sync.Mutex
	instances map[uint]*model.ProxyInstance
	order     []uint
	processes map[uint]*ProcessHandle
	creds     util.Credentials
	directory *ServerDirectory
	tempFiles []string
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[uint]*model.ProxyInstance),
		processes: make(map[uint]*ProcessHandle),
	}
}

func cloneInstance(inst *model.ProxyInstance) model.ProxyInstance {
	out := *inst
	if inst.Server != nil {
		out.Server = append([]byte(nil), inst.Server...)
	}
	if inst.StartTime != nil {
		t := *inst.StartTime
		out.StartTime = &t
	}
	return out
}

// List returns copies of all instances in creation order.
func (r *Registry) List() []model.ProxyInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ProxyInstance, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneInstance(r.instances[id]))
	}
	return out
}

func (r *Registry) Get(id uint) (model.ProxyInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return model.ProxyInstance{}, false
	}
	return cloneInstance(inst), true
}

// Add inserts an instance. The bind-port uniqueness invariant is enforced
// here as the final authority, even though callers validate first.
func (r *Registry) Add(inst model.ProxyInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.instances {
		if existing.Port == inst.Port {
			return &ValidationError{Field: "port", Reason: "already in use by another instance"}
		}
	}
	stored := cloneInstance(&inst)
	r.instances[inst.Id] = &stored
	r.order = append(r.order, inst.Id)
	return nil
}

// Remove deletes an instance and returns its detached process handle, if
// any, so the caller can tear the process down outside the lock.
func (r *Registry) Remove(id uint) (*ProcessHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return nil, false
	}
	delete(r.instances, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	handle := r.processes[id]
	delete(r.processes, id)
	return handle, true
}

func (r *Registry) SetStatus(id uint, status model.ProxyStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return false
	}
	inst.Status = status
	if status != model.Running {
		inst.StartTime = nil
	}
	return true
}

func (r *Registry) SetStartTime(id uint, t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return false
	}
	inst.StartTime = &t
	return true
}

func (r *Registry) IncAttempts(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return false
	}
	inst.ConnectionAttempts++
	return true
}

func (r *Registry) PortInUse(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.Port == port {
			return true
		}
	}
	return false
}

func (r *Registry) AttachProcess(id uint, handle *ProcessHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return false
	}
	r.processes[id] = handle
	return true
}

func (r *Registry) DetachProcess(id uint) (*ProcessHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.processes[id]
	if !ok {
		return nil, false
	}
	delete(r.processes, id)
	return handle, true
}

// Process peeks at the handle without detaching it. Used by the watchdog
// and by state persistence.
func (r *Registry) Process(id uint) (*ProcessHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.processes[id]
	return handle, ok
}

func (r *Registry) SetCredentials(creds util.Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = creds
}

func (r *Registry) Credentials() util.Credentials {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds
}

// SetDirectory replaces the directory snapshot wholesale; snapshots are
// never mutated in place.
func (r *Registry) SetDirectory(dir *ServerDirectory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directory = dir
}

func (r *Registry) Directory() *ServerDirectory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.directory
}

func (r *Registry) HasServers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.directory != nil && len(r.directory.Servers) > 0
}

func (r *Registry) TrackTempFile(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tempFiles = append(r.tempFiles, path)
}

func (r *Registry) DrainTempFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tempFiles
	r.tempFiles = nil
	return out
}
