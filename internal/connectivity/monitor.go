// Package connectivity tracks whether the kiosk can reach the remote store.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
	"go.uber.org/zap"
)

const defaultProbeTimeout = 5 * time.Second

// Publisher receives connectivity updates for streaming clients.
type Publisher interface {
	Publish(topic events.Topic, payload any)
}

type Config struct {
	Pinger        remote.Pinger
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	Initial       bool
	Publisher     Publisher
	Logger        *zap.Logger
}

// Monitor holds the online flag. It changes on external notifications and on the
// result of periodic probes; handlers only fire on actual transitions.
type Monitor struct {
	// notifyMu orders transitions and their notifications; handlers must not call Set.
	notifyMu      sync.Mutex
	mu            sync.RWMutex
	online        bool
	pinger        remote.Pinger
	probeInterval time.Duration
	probeTimeout  time.Duration
	publisher     Publisher
	logger        *zap.Logger
	observers     events.Observers[bool]
}

func NewMonitor(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Monitor{
		online:        cfg.Initial,
		pinger:        cfg.Pinger,
		probeInterval: cfg.ProbeInterval,
		probeTimeout:  timeout,
		publisher:     cfg.Publisher,
		logger:        logger,
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set records an externally observed state and reports whether it changed.
func (m *Monitor) Set(online bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.Bool("online", online))
	if m.publisher != nil {
		m.publisher.Publish(events.TopicConnectivity, online)
	}
	m.observers.Notify(online)
	return true
}

// OnChange registers handler for transitions and returns its unsubscribe function.
func (m *Monitor) OnChange(handler func(online bool)) func() {
	return m.observers.Add(handler)
}

// Probe pings the remote once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.pinger == nil {
		return m.Online()
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("connectivity probe failed", zap.Error(err))
	}
	online := err == nil
	m.Set(online)
	return online
}

// Run probes immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	if m.pinger == nil || m.probeInterval <= 0 {
		<-ctx.Done()
		return
	}
	m.Probe(ctx)

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
