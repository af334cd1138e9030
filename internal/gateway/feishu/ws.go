package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const heartbeatInterval = 30 * time.Second

// eventConn wraps the event WebSocket with a serialized writer, shared by
// the heartbeat ticker and pong replies.
type eventConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *eventConn) writeText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// wsEnvelope is an event push on the callback socket.
type wsEnvelope struct {
	Type  string `json:"type"`
	Event *struct {
		Type    string        `json:"type"`
		Message *messageEvent `json:"message"`
	} `json:"event"`
}

type messageEvent struct {
	MessageID   string `json:"message_id"`
	ChatID      string `json:"chat_id"`
	ChatType    string `json:"chat_type"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	Mentions    []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"mentions"`
	Sender struct {
		SenderID struct {
			OpenID string `json:"open_id"`
			UserID string `json:"user_id"`
		} `json:"sender_id"`
		SenderType string `json:"sender_type"`
	} `json:"sender"`
}

func (g *Gateway) dialEvents(ctx context.Context) (*eventConn, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	wsURL := strings.Replace(g.baseURL(), "https://", "wss://", 1) +
		"/open-apis/event/callback/ws?token=" + token

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	slog.Debug("feishu websocket connected")
	return &eventConn{conn: conn}, nil
}

// runEvents serves one socket and reconnects with backoff until the
// context is cancelled or Stop is called.
func (g *Gateway) runEvents(ctx context.Context, conn *eventConn) {
	backoff := gateway.NewBackoff()

	for {
		g.serve(ctx, conn)
		conn.conn.Close()

		g.mu.Lock()
		stopping := g.stopping
		g.mu.Unlock()
		if stopping || ctx.Err() != nil {
			return
		}

		g.MarkStopped()

		for {
			delay := backoff.Next()
			slog.Info("feishu websocket reconnecting", "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, err := g.dialEvents(ctx)
			if err != nil {
				slog.Warn("feishu websocket reconnect failed", "error", err)
				g.RecordError(err)
				continue
			}
			conn = next
			backoff.Reset()
			g.MarkConnected()
			break
		}
	}
}

func (g *Gateway) serve(ctx context.Context, conn *eventConn) {
	stop := make(chan struct{})
	defer close(stop)

	// Cancellation unblocks the reader by closing the socket.
	go func() {
		select {
		case <-ctx.Done():
			conn.conn.Close()
		case <-stop:
		}
	}()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		heartbeat, _ := json.Marshal(map[string]string{"type": "ping"})
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.writeText(heartbeat); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("feishu websocket read failed", "error", err)
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type != "event_callback" || env.Event == nil {
			continue
		}
		if env.Event.Type != "im.message.receive_v1" || env.Event.Message == nil {
			continue
		}
		g.handleMessageEvent(env.Event.Message)
	}
}

func (g *Gateway) handleMessageEvent(msg *messageEvent) {
	g.mu.Lock()
	g.lastChatID = msg.ChatID
	g.mu.Unlock()

	// Text messages carry JSON content like {"text":"hello"}; everything
	// else passes through raw.
	content := msg.Content
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &parsed); err == nil && parsed.Text != "" {
		content = parsed.Text
	}
	if content == "" {
		content = fmt.Sprintf("[%s]", msg.MessageType)
	}

	g.EmitMessage(gateway.Message{
		ID:        msg.MessageID,
		Platform:  "feishu",
		ChannelID: msg.ChatID,
		UserID:    msg.Sender.SenderID.OpenID,
		UserName:  "", // receive_v1 events do not carry a display name
		Content:   content,
		Timestamp: time.Now().Unix(),
		IsMention: len(msg.Mentions) > 0,
	})
}
