package workers

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/metrics"
	"github.com/artpar/panelship/internal/shell/onepanel"
)

// HostMonitorConfig configures the host monitor.
type HostMonitorConfig struct {
	// Interval is the time between check cycles.
	// Default: 60 seconds.
	Interval time.Duration

	// HostTimeout bounds a single host check.
	// Default: 10 seconds.
	HostTimeout time.Duration

	// MaxConcurrent is the maximum number of hosts checked at once.
	// Default: 5.
	MaxConcurrent int
}

// DefaultHostMonitorConfig returns the default configuration.
func DefaultHostMonitorConfig() HostMonitorConfig {
	return HostMonitorConfig{
		Interval:      60 * time.Second,
		HostTimeout:   10 * time.Second,
		MaxConcurrent: 5,
	}
}

// HostLister lists the remote hosts to check.
type HostLister interface {
	ListServers(ctx context.Context) ([]domain.RemoteHost, error)
}

// PingFunc checks that a host is reachable and accepts its credential.
type PingFunc func(ctx context.Context, h domain.RemoteHost) error

// OnePanelPinger pings hosts through the panel API.
func OnePanelPinger(f onepanel.Factory) PingFunc {
	return func(ctx context.Context, h domain.RemoteHost) error {
		return f.ForHost(h).Ping(ctx)
	}
}

// HostStatus is the outcome of the latest check of one host.
type HostStatus struct {
	ServerID  int64     `json:"server_id"`
	Name      string    `json:"server_name"`
	Up        bool      `json:"up"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HostMonitor periodically pings every stored remote host. Results are
// exported as metrics and kept for Status.
type HostMonitor struct {
	hosts   HostLister
	ping    PingFunc
	config  HostMonitorConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	statuses map[int64]HostStatus

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHostMonitor creates a host monitor.
func NewHostMonitor(hosts HostLister, ping PingFunc, config HostMonitorConfig, m *metrics.Metrics, logger *slog.Logger) *HostMonitor {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.HostTimeout == 0 {
		config.HostTimeout = 10 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 5
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &HostMonitor{
		hosts:    hosts,
		ping:     ping,
		config:   config,
		metrics:  m,
		logger:   logger.With("component", "host_monitor"),
		statuses: make(map[int64]HostStatus),
	}
}

// Start begins the background check loop. The first cycle runs at once.
func (h *HostMonitor) Start() {
	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go h.run()

	h.logger.Info("host monitor started",
		"interval", h.config.Interval,
		"max_concurrent", h.config.MaxConcurrent,
	)
}

// Stop stops the loop and waits for in-flight checks.
func (h *HostMonitor) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.logger.Info("host monitor stopped")
}

func (h *HostMonitor) run() {
	defer h.wg.Done()

	h.runCycle(h.ctx)

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.runCycle(h.ctx)
		}
	}
}

// runCycle checks every host once.
func (h *HostMonitor) runCycle(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, h.config.Interval)
	defer cancel()

	hosts, err := h.hosts.ListServers(ctx)
	if err != nil {
		h.logger.Error("failed to list hosts", "error", err)
		return
	}
	h.forgetMissing(hosts)

	if len(hosts) == 0 {
		h.logger.Debug("no hosts to check")
		return
	}

	h.logger.Debug("starting host check cycle", "host_count", len(hosts))

	sem := semaphore.NewWeighted(int64(h.config.MaxConcurrent))
	var wg sync.WaitGroup
	for i := range hosts {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(host domain.RemoteHost) {
			defer wg.Done()
			defer sem.Release(1)
			h.checkHost(ctx, host)
		}(hosts[i])
	}

	wg.Wait()
	h.logger.Debug("completed host check cycle", "host_count", len(hosts))
}

func (h *HostMonitor) checkHost(ctx context.Context, host domain.RemoteHost) HostStatus {
	hostCtx, cancel := context.WithTimeout(ctx, h.config.HostTimeout)
	defer cancel()

	logger := h.logger.With("server_id", host.ID, "server", host.Name)

	start := time.Now()
	err := h.ping(hostCtx, host)
	latency := time.Since(start)

	status := HostStatus{
		ServerID:  host.ID,
		Name:      host.Name,
		Up:        err == nil,
		LatencyMs: latency.Milliseconds(),
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}

	h.mu.Lock()
	prev, seen := h.statuses[host.ID]
	h.statuses[host.ID] = status
	h.mu.Unlock()

	switch {
	case !status.Up && (!seen || prev.Up):
		logger.Warn("host went down", "error", err)
	case status.Up && seen && !prev.Up:
		logger.Info("host came back up")
	}

	h.metrics.ObserveHost(host.Name, latency, status.Up)
	return status
}

// forgetMissing drops state for hosts no longer stored.
func (h *HostMonitor) forgetMissing(hosts []domain.RemoteHost) {
	current := make(map[int64]bool, len(hosts))
	for _, host := range hosts {
		current[host.ID] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, status := range h.statuses {
		if !current[id] {
			delete(h.statuses, id)
			h.metrics.ForgetHost(status.Name)
		}
	}
}

// CheckHostNow checks one host immediately and returns its status.
func (h *HostMonitor) CheckHostNow(ctx context.Context, host domain.RemoteHost) HostStatus {
	return h.checkHost(ctx, host)
}

// CheckAllNow runs one check cycle immediately.
func (h *HostMonitor) CheckAllNow(ctx context.Context) {
	h.runCycle(ctx)
}

// Status returns the latest status of a host.
func (h *HostMonitor) Status(serverID int64) (HostStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.statuses[serverID]
	return s, ok
}

// Statuses returns the latest status of every checked host, by server ID.
func (h *HostMonitor) Statuses() []HostStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HostStatus, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}
