package service

import (
	"sync"
	"time"
)

const (
	presentInterval = 100 * time.Millisecond
	presentLogCap   = 200
)

// Snapshot is the presentation state derived from bridge events. The
// revision counters let pollers detect instance or directory changes
// without diffing lists.
type Snapshot struct {
	StatusText   string  `json:"statusText"`
	Events       []Event `json:"events"`
	InstancesRev uint64  `json:"instancesRev"`
	DirectoryRev uint64  `json:"directoryRev"`
}

// Presenter is the sole consumer of the EventBridge. It drains on a
// fixed cadence and folds events into a snapshot that the web API and
// the bot read. Keeping a single consumer means no event is ever split
// between readers.
type Presenter struct {
	bridge   *EventBridge
	interval time.Duration

	mu   sync.Mutex
	snap Snapshot

	stop chan struct{}
	done chan struct{}
}

func NewPresenter(bridge *EventBridge) *Presenter {
	return &Presenter{
		bridge:   bridge,
		interval: presentInterval,
		snap:     Snapshot{StatusText: "Initializing..."},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Presenter) Start() {
	go p.run()
}

func (p *Presenter) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
	p.Drain()
}

func (p *Presenter) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Drain()
		case <-p.stop:
			return
		}
	}
}

// Drain folds all pending bridge events into the snapshot. Exposed for
// callers that need an up-to-date snapshot right now.
func (p *Presenter) Drain() {
	events := p.bridge.Drain()
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events {
		switch ev.Kind {
		case EventStatusText:
			p.snap.StatusText = ev.Message
		case EventLog:
			p.snap.Events = append(p.snap.Events, ev)
			if len(p.snap.Events) > presentLogCap {
				p.snap.Events = p.snap.Events[len(p.snap.Events)-presentLogCap:]
			}
		case EventInstancesChanged:
			p.snap.InstancesRev++
		case EventDirectoryChanged:
			p.snap.DirectoryRev++
		}
	}
}

func (p *Presenter) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.snap
	out.Events = append([]Event(nil), p.snap.Events...)
	return out
}
