package gateway

import (
	"sync"
	"time"
)

// Status is a point-in-time snapshot of an adapter. connected and starting
// are mutually exclusive; error holds the current fault and is cleared on
// the next transition into starting or connected, while last_error sticks
// until overwritten.
type Status struct {
	Enabled        bool   `json:"enabled"`
	Connected      bool   `json:"connected"`
	Starting       bool   `json:"starting"`
	Error          string `json:"error,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	StartedAt      int64  `json:"started_at,omitempty"`
	LastInboundAt  int64  `json:"last_inbound_at,omitempty"`
	LastOutboundAt int64  `json:"last_outbound_at,omitempty"`
}

// Base provides the shared state machine for adapters: status bookkeeping,
// transition events, and the replaceable callback. Adapters embed it and
// drive transitions from their own goroutines; Base never performs I/O
// while holding its lock.
type Base struct {
	name string

	mu     sync.Mutex
	status Status

	cbMu sync.RWMutex
	cb   EventCallback
}

// NewBase creates the shared adapter state for the named platform.
func NewBase(name string, enabled bool) *Base {
	return &Base{name: name, status: Status{Enabled: enabled}}
}

// Name returns the platform identifier.
func (b *Base) Name() string { return b.name }

// Status returns a copy of the current status.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// IsConnected reports the connected flag.
func (b *Base) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.Connected
}

// Enabled reports the enabled flag.
func (b *Base) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.Enabled
}

// SetEventCallback installs cb, replacing any previous callback.
func (b *Base) SetEventCallback(cb EventCallback) {
	b.cbMu.Lock()
	b.cb = cb
	b.cbMu.Unlock()
}

// Emit delivers an event through the callback, synchronously. No-op when
// no callback is installed.
func (b *Base) Emit(ev Event) {
	b.cbMu.RLock()
	cb := b.cb
	b.cbMu.RUnlock()
	if cb != nil {
		cb(b.name, ev)
	}
}

// BeginStart transitions into starting and clears the current error.
// Returns false without emitting when the adapter is already starting or
// connected, making Start idempotent.
func (b *Base) BeginStart() bool {
	b.mu.Lock()
	if b.status.Starting || b.status.Connected {
		b.mu.Unlock()
		return false
	}
	b.status.Starting = true
	b.status.Error = ""
	snap := b.status
	b.mu.Unlock()

	b.Emit(statusEvent(snap))
	return true
}

// MarkConnected transitions into connected, stamping started_at.
func (b *Base) MarkConnected() {
	b.mu.Lock()
	b.status.Starting = false
	b.status.Connected = true
	b.status.Error = ""
	b.status.StartedAt = time.Now().Unix()
	snap := b.status
	b.mu.Unlock()

	b.Emit(statusEvent(snap))
	b.Emit(connectedEvent())
}

// FailStart records a startup failure, leaving the adapter stopped.
func (b *Base) FailStart(err error) {
	msg := err.Error()
	b.mu.Lock()
	b.status.Starting = false
	b.status.Connected = false
	b.status.Error = msg
	b.status.LastError = msg
	snap := b.status
	b.mu.Unlock()

	b.Emit(statusEvent(snap))
	b.Emit(errorEvent(msg))
}

// MarkStopped transitions out of connected/starting after a stop or a
// transport loss. The current error is cleared; last_error keeps the
// record.
func (b *Base) MarkStopped() {
	b.mu.Lock()
	wasUp := b.status.Connected || b.status.Starting
	b.status.Starting = false
	b.status.Connected = false
	b.status.Error = ""
	snap := b.status
	b.mu.Unlock()

	if wasUp {
		b.Emit(statusEvent(snap))
		b.Emit(disconnectedEvent())
	}
}

// RecordError notes a runtime fault without changing the connection state.
func (b *Base) RecordError(err error) {
	msg := err.Error()
	b.mu.Lock()
	b.status.Error = msg
	b.status.LastError = msg
	b.mu.Unlock()

	b.Emit(errorEvent(msg))
}

// MarkInbound stamps last_inbound_at with the current time.
func (b *Base) MarkInbound() {
	b.mu.Lock()
	b.status.LastInboundAt = time.Now().Unix()
	b.mu.Unlock()
}

// MarkOutbound stamps last_outbound_at with the current time.
func (b *Base) MarkOutbound() {
	b.mu.Lock()
	b.status.LastOutboundAt = time.Now().Unix()
	b.mu.Unlock()
}

// EmitMessage stamps last_inbound_at and delivers the message event.
func (b *Base) EmitMessage(m Message) {
	b.MarkInbound()
	b.Emit(messageEvent(m))
}
