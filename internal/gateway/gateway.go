// Package gateway provides the unified IM gateway abstraction: a single
// contract that normalizes DingTalk, Feishu, Discord, Telegram, WeWork and
// WhatsApp behind the same lifecycle, status and messaging surface.
//
// Adapters live in subpackages (gateway/dingtalk, gateway/feishu, ...) and
// differ in transport: three hold persistent connections (DingTalk stream,
// Feishu WebSocket, Discord gateway), Telegram long-polls, and WeWork and
// WhatsApp are plain HTTP senders.
package gateway

import (
	"context"
	"errors"
)

// Errors shared across adapters. Callers distinguish capability gaps from
// transient failures with errors.Is.
var (
	// ErrUnsupported is returned by operations a platform cannot perform
	// (for example editing a DingTalk message).
	ErrUnsupported = errors.New("operation not supported by this platform")

	// ErrUnknownGateway is returned by the manager for names that were
	// never registered.
	ErrUnknownGateway = errors.New("unknown gateway")

	// ErrNotConnected is returned by send operations while the adapter is
	// not connected.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrNoConversation is returned by SendNotification before any
	// conversation has been seen.
	ErrNoConversation = errors.New("no conversation available yet")
)

// Gateway is the contract every platform adapter satisfies.
type Gateway interface {
	// Name returns the platform identifier (e.g. "telegram", "dingtalk").
	Name() string

	// Start brings the adapter up: validate credentials, establish the
	// transport, begin receiving. Non-blocking after setup. Starting an
	// already-running adapter is a no-op.
	Start(ctx context.Context) error

	// Stop tears the adapter down and always leaves it stopped, even when
	// parts of the teardown fail. Stopping a stopped adapter is a no-op.
	Stop(ctx context.Context) error

	// IsConnected reports whether the adapter currently holds a live
	// transport (or, for webhook platforms, passed its preflight).
	IsConnected() bool

	// Status returns a snapshot of the adapter state.
	Status() Status

	// SendNotification delivers text to the most recently seen
	// conversation.
	SendNotification(ctx context.Context, text string) error

	// SendMessage delivers text to a specific conversation, splitting it
	// when it exceeds the platform limit.
	SendMessage(ctx context.Context, conversationID, text string) error

	// SendMediaMessage uploads a local file and delivers it to a
	// conversation. Platforms without media support return ErrUnsupported.
	SendMediaMessage(ctx context.Context, conversationID, filePath string) error

	// EditMessage replaces the text of a previously sent message.
	EditMessage(ctx context.Context, conversationID, messageID, text string) error

	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	// MessageHistory fetches up to limit recent messages from a
	// conversation, newest first as the platform returns them.
	MessageHistory(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// ReconnectIfNeeded restarts the adapter when it is enabled but not
	// connected and not already starting. Used by the network monitor.
	ReconnectIfNeeded(ctx context.Context) error

	// SetEventCallback installs the single event callback, replacing any
	// previous one. Pass nil to remove it.
	SetEventCallback(cb EventCallback)
}

// Message is a platform-normalized inbound message.
type Message struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch seconds
	IsMention bool   `json:"is_mention"`
}

// EventType discriminates Event.
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventError         EventType = "error"
	EventMessage       EventType = "message"
	EventConnected     EventType = "connected"
	EventDisconnected  EventType = "disconnected"
)

// Event is what adapters push through the callback. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type    EventType `json:"type"`
	Status  *Status   `json:"status,omitempty"`
	Err     string    `json:"error,omitempty"`
	Message *Message  `json:"message,omitempty"`
}

// EventCallback receives adapter events. Invoked synchronously from adapter
// goroutines; implementations must be fast and must not call Start or Stop
// on the emitting adapter. Send operations are safe.
type EventCallback func(gateway string, ev Event)

// MessageHandler processes an inbound message and optionally produces a
// reply. A non-empty reply is routed back to the conversation the message
// came from.
type MessageHandler func(msg Message) (string, error)

func statusEvent(s Status) Event   { return Event{Type: EventStatusChanged, Status: &s} }
func errorEvent(msg string) Event  { return Event{Type: EventError, Err: msg} }
func messageEvent(m Message) Event { return Event{Type: EventMessage, Message: &m} }
func connectedEvent() Event        { return Event{Type: EventConnected} }
func disconnectedEvent() Event     { return Event{Type: EventDisconnected} }
