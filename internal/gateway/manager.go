package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager is the registry of configured adapters. It installs a shared
// dispatch callback on every adapter it holds and routes operations by
// gateway name. Adapters are registered once at startup; the manager does
// not support replacing a running adapter.
type Manager struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	order    []string
	cb       EventCallback
	handler  MessageHandler
}

func NewManager() *Manager {
	return &Manager{gateways: make(map[string]Gateway)}
}

// Add registers an adapter under its own name and installs the shared
// dispatch callback on it. Registering the same name twice replaces the
// entry.
func (m *Manager) Add(g Gateway) {
	m.mu.Lock()
	name := g.Name()
	if _, exists := m.gateways[name]; !exists {
		m.order = append(m.order, name)
	}
	m.gateways[name] = g
	m.mu.Unlock()

	g.SetEventCallback(m.dispatch)
}

// dispatch is the callback installed on every registered adapter. It
// forwards the event to the observer callback, then hands inbound
// messages to the message handler and sends any reply back through the
// originating adapter, addressed to the originating conversation.
func (m *Manager) dispatch(name string, ev Event) {
	m.mu.RLock()
	cb := m.cb
	handler := m.handler
	g := m.gateways[name]
	m.mu.RUnlock()

	if cb != nil {
		cb(name, ev)
	}
	if handler == nil || ev.Type != EventMessage || ev.Message == nil {
		return
	}

	reply, err := handler(*ev.Message)
	if err != nil {
		slog.Error("message handler failed", "gateway", name, "error", err)
		return
	}
	if reply == "" || g == nil {
		return
	}
	if err := g.SendMessage(context.Background(), ev.Message.ChannelID, reply); err != nil {
		slog.Error("failed to send reply", "gateway", name, "error", err)
	}
}

// Get returns the adapter registered under name.
func (m *Manager) Get(name string) (Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	return g, nil
}

// Names returns registered gateway names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Gateways returns the registered adapters in registration order.
func (m *Manager) Gateways() []Gateway {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Gateway, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.gateways[name])
	}
	return out
}

// SetEventCallback installs cb as the observer callback. Every adapter
// event passes through it before message handling.
func (m *Manager) SetEventCallback(cb EventCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// SetMessageHandler installs the handler that inbound messages from every
// adapter are fed to. Replacing a previous handler takes effect for the
// next message.
func (m *Manager) SetMessageHandler(h MessageHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// StartAll starts every registered adapter sequentially. A failing adapter
// is logged and skipped; the rest still start.
func (m *Manager) StartAll(ctx context.Context) {
	for _, g := range m.Gateways() {
		if err := g.Start(ctx); err != nil {
			slog.Error("failed to start gateway", "gateway", g.Name(), "error", err)
		}
	}
}

// StopAll stops every registered adapter sequentially, logging failures.
func (m *Manager) StopAll(ctx context.Context) {
	for _, g := range m.Gateways() {
		if err := g.Stop(ctx); err != nil {
			slog.Error("failed to stop gateway", "gateway", g.Name(), "error", err)
		}
	}
}

// StartGateway starts a single adapter by name.
func (m *Manager) StartGateway(ctx context.Context, name string) error {
	g, err := m.Get(name)
	if err != nil {
		return err
	}
	return g.Start(ctx)
}

// StopGateway stops a single adapter by name.
func (m *Manager) StopGateway(ctx context.Context, name string) error {
	g, err := m.Get(name)
	if err != nil {
		return err
	}
	return g.Stop(ctx)
}

// SendNotification broadcasts text to every connected adapter's last
// conversation. It fails only when no adapter accepted the message.
func (m *Manager) SendNotification(ctx context.Context, text string) error {
	sent := 0
	for _, g := range m.Gateways() {
		if !g.IsConnected() {
			continue
		}
		if err := g.SendNotification(ctx, text); err != nil {
			slog.Warn("notification failed", "gateway", g.Name(), "error", err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("notification not delivered to any gateway")
	}
	return nil
}

// SendMessage routes a conversation-addressed send to a named adapter.
func (m *Manager) SendMessage(ctx context.Context, name, conversationID, text string) error {
	g, err := m.Get(name)
	if err != nil {
		return err
	}
	return g.SendMessage(ctx, conversationID, text)
}

// StatusAll returns a status snapshot for every registered adapter.
func (m *Manager) StatusAll() map[string]Status {
	out := make(map[string]Status)
	for _, g := range m.Gateways() {
		out[g.Name()] = g.Status()
	}
	return out
}

// TestConnectivity runs the named adapter's diagnostic checks. Adapters
// expose these via the optional ConnectivityTester interface; for adapters
// without one the report carries a single informational check.
func (m *Manager) TestConnectivity(ctx context.Context, name string) (Report, error) {
	g, err := m.Get(name)
	if err != nil {
		return Report{}, err
	}
	if t, ok := g.(ConnectivityTester); ok {
		return t.TestConnectivity(ctx), nil
	}
	r := NewReport(name)
	r.Info("no_diagnostics", "this gateway has no platform diagnostics", "")
	r.Finalize()
	return *r, nil
}
