package workers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/metrics"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/onepanel/onepaneltest"
)

// =============================================================================
// Test Configuration
// =============================================================================

func TestDefaultHostMonitorConfig(t *testing.T) {
	config := DefaultHostMonitorConfig()

	assert.Equal(t, 60*time.Second, config.Interval)
	assert.Equal(t, 10*time.Second, config.HostTimeout)
	assert.Equal(t, 5, config.MaxConcurrent)
}

func TestNewHostMonitor_DefaultConfig(t *testing.T) {
	m := NewHostMonitor(&mockHosts{}, okPing, HostMonitorConfig{}, nil, nil)

	assert.Equal(t, 60*time.Second, m.config.Interval)
	assert.Equal(t, 10*time.Second, m.config.HostTimeout)
	assert.Equal(t, 5, m.config.MaxConcurrent)
}

// =============================================================================
// Test Lifecycle
// =============================================================================

func TestHostMonitor_StartStop(t *testing.T) {
	hosts := &mockHosts{}
	m := NewHostMonitor(hosts, okPing, HostMonitorConfig{Interval: 100 * time.Millisecond}, nil, slog.Default())

	m.Start()
	require.Eventually(t, func() bool { return hosts.calls() >= 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	// Should be able to start again
	m.Start()
	m.Stop()
}

func TestHostMonitor_StopWithoutStart(t *testing.T) {
	m := NewHostMonitor(&mockHosts{}, okPing, HostMonitorConfig{}, nil, nil)
	m.Stop()
}

// =============================================================================
// Test Checks
// =============================================================================

func TestHostMonitor_CheckAllNow(t *testing.T) {
	hosts := &mockHosts{hosts: []domain.RemoteHost{
		{ID: 1, Name: "alpha"},
		{ID: 2, Name: "beta"},
	}}
	ping := func(ctx context.Context, h domain.RemoteHost) error {
		if h.Name == "beta" {
			return errors.New("connection refused")
		}
		return nil
	}
	reg := metrics.New()
	m := NewHostMonitor(hosts, ping, HostMonitorConfig{}, reg, nil)

	m.CheckAllNow(context.Background())

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Up)
	assert.Equal(t, "alpha", statuses[0].Name)
	assert.False(t, statuses[1].Up)
	assert.Equal(t, "connection refused", statuses[1].Error)

	expected := `
# HELP panelship_remote_host_up Whether the last check of a remote host succeeded
# TYPE panelship_remote_host_up gauge
panelship_remote_host_up{host="alpha"} 1
panelship_remote_host_up{host="beta"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg.Registry(), strings.NewReader(expected), "panelship_remote_host_up"))
}

func TestHostMonitor_ForgetsRemovedHosts(t *testing.T) {
	hosts := &mockHosts{hosts: []domain.RemoteHost{{ID: 1, Name: "alpha"}, {ID: 2, Name: "beta"}}}
	reg := metrics.New()
	m := NewHostMonitor(hosts, okPing, HostMonitorConfig{}, reg, nil)

	m.CheckAllNow(context.Background())
	count, err := testutil.GatherAndCount(reg.Registry(), "panelship_remote_host_up")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hosts.set([]domain.RemoteHost{{ID: 1, Name: "alpha"}})
	m.CheckAllNow(context.Background())

	_, ok := m.Status(2)
	assert.False(t, ok)
	count, err = testutil.GatherAndCount(reg.Registry(), "panelship_remote_host_up")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHostMonitor_HostTimeout(t *testing.T) {
	ping := func(ctx context.Context, h domain.RemoteHost) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m := NewHostMonitor(&mockHosts{}, ping, HostMonitorConfig{HostTimeout: 20 * time.Millisecond}, nil, nil)

	status := m.CheckHostNow(context.Background(), domain.RemoteHost{ID: 7, Name: "slow"})
	assert.False(t, status.Up)
	assert.Contains(t, status.Error, "deadline exceeded")

	got, ok := m.Status(7)
	require.True(t, ok)
	assert.Equal(t, status, got)
}

func TestHostMonitor_ListFailure(t *testing.T) {
	hosts := &mockHosts{err: errors.New("database is locked")}
	var pinged atomic.Int32
	ping := func(ctx context.Context, h domain.RemoteHost) error {
		pinged.Add(1)
		return nil
	}
	m := NewHostMonitor(hosts, ping, HostMonitorConfig{}, nil, nil)

	m.CheckAllNow(context.Background())
	assert.Zero(t, pinged.Load())
	assert.Empty(t, m.Statuses())
}

func TestHostMonitor_ConcurrencyLimit(t *testing.T) {
	list := make([]domain.RemoteHost, 10)
	for i := range list {
		list[i] = domain.RemoteHost{ID: int64(i + 1), Name: "host-" + string(rune('a'+i))}
	}

	var inFlight, peak atomic.Int32
	ping := func(ctx context.Context, h domain.RemoteHost) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	m := NewHostMonitor(&mockHosts{hosts: list}, ping, HostMonitorConfig{MaxConcurrent: 3}, nil, nil)
	m.CheckAllNow(context.Background())

	assert.Len(t, m.Statuses(), 10)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestOnePanelPinger(t *testing.T) {
	panel := onepaneltest.New(t, "secret")
	ping := OnePanelPinger(onepanel.Factory{})

	assert.NoError(t, ping(context.Background(), panel.Host(1, "H")))

	wrong := panel.Host(1, "H")
	wrong.Credential = "wrong"
	assert.ErrorIs(t, ping(context.Background(), wrong), onepanel.ErrUnauthorized)
}

// =============================================================================
// Mocks
// =============================================================================

func okPing(ctx context.Context, h domain.RemoteHost) error { return nil }

type mockHosts struct {
	mu    sync.Mutex
	hosts []domain.RemoteHost
	err   error
	n     int
}

func (m *mockHosts) ListServers(ctx context.Context) ([]domain.RemoteHost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.RemoteHost(nil), m.hosts...), nil
}

func (m *mockHosts) set(hosts []domain.RemoteHost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts = hosts
}

func (m *mockHosts) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}
