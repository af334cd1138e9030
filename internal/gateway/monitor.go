package gateway

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	probeAddr     = "8.8.8.8:53"
	probeTimeout  = 5 * time.Second
	probeInterval = 30 * time.Second
)

// NetworkMonitor watches network reachability with a periodic TCP probe
// and nudges gateways back up: on an unreachable-to-reachable transition
// it reconnects everything, and while reachable each tick it reconnects
// adapters that dropped. The gateways func keeps the monitor decoupled
// from the manager.
type NetworkMonitor struct {
	gateways func() []Gateway
	interval time.Duration

	mu        sync.Mutex
	reachable bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewNetworkMonitor(gateways func() []Gateway) *NetworkMonitor {
	return &NetworkMonitor{
		gateways:  gateways,
		interval:  probeInterval,
		reachable: true,
	}
}

// Start launches the probe loop. Calling Start on a running monitor is a
// no-op.
func (m *NetworkMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)

	slog.Info("network monitor started", "interval", m.interval)
}

// Stop halts the probe loop and waits for it to exit.
func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Reachable reports the last probe result.
func (m *NetworkMonitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

func (m *NetworkMonitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *NetworkMonitor) tick(ctx context.Context) {
	up := probe()

	m.mu.Lock()
	wasUp := m.reachable
	m.reachable = up
	m.mu.Unlock()

	switch {
	case up && !wasUp:
		slog.Info("network restored, reconnecting gateways")
		m.reconnectAll(ctx)
	case !up && wasUp:
		slog.Warn("network unreachable")
	case up:
		// Steady state: pick up individual adapters that dropped.
		m.reconnectAll(ctx)
	}
}

func (m *NetworkMonitor) reconnectAll(ctx context.Context) {
	for _, g := range m.gateways() {
		if err := g.ReconnectIfNeeded(ctx); err != nil {
			slog.Warn("reconnect failed", "gateway", g.Name(), "error", err)
		}
	}
}

func probe() bool {
	conn, err := net.DialTimeout("tcp", probeAddr, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
