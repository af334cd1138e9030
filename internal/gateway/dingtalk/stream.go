package dingtalk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const heartbeatInterval = 30 * time.Second

// streamConn wraps the stream WebSocket with a serialized writer. The
// read loop and the heartbeat ticker both write acks/heartbeats.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// streamFrame is a pushed message on the stream channel: an envelope ID
// to ack plus the robot message payload.
type streamFrame struct {
	MessageID string `json:"messageId"`
	Data      string `json:"data"`
}

// inboundMessage is the robot callback payload carried in a stream frame.
type inboundMessage struct {
	MsgID    string `json:"msgId"`
	MsgType  string `json:"msgtype"`
	CreateAt int64  `json:"createAt"` // milliseconds
	Text     *struct {
		Content string `json:"content"`
	} `json:"text"`
	Content *struct {
		DownloadCode string `json:"downloadCode"`
		FileName     string `json:"fileName"`
		Recognition  string `json:"recognition"`
	} `json:"content"`
	Image *struct {
		DownloadCode string `json:"downloadCode"`
	} `json:"image"`
	Voice *struct {
		DownloadCode string `json:"downloadCode"`
		Duration     string `json:"duration"`
	} `json:"voice"`
	File *struct {
		DownloadCode string `json:"downloadCode"`
		FileName     string `json:"fileName"`
	} `json:"file"`
	ConversationType   string `json:"conversationType"`
	ConversationID     string `json:"conversationId"`
	OpenConversationID string `json:"openConversationId"`
	SenderStaffID      string `json:"senderStaffId"`
	SenderNick         string `json:"senderNick"`
}

func (g *Gateway) dialStream(ctx context.Context) (*streamConn, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("wss://api.dingtalk.com/v1.0/robot/stream?token=%s", token)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)

	c := &streamConn{conn: conn}
	if err := c.writeJSON(ctx, map[string]any{"type": "connect", "data": map[string]any{}}); err != nil {
		conn.Close(websocket.StatusInternalError, "connect frame failed")
		return nil, err
	}

	slog.Debug("dingtalk stream connected")
	return c, nil
}

// runStream serves one connection and reconnects with backoff until the
// context is cancelled or Stop is called.
func (g *Gateway) runStream(ctx context.Context, conn *streamConn) {
	backoff := gateway.NewBackoff()

	for {
		g.serve(ctx, conn)
		conn.conn.Close(websocket.StatusNormalClosure, "")

		g.mu.Lock()
		stopping := g.stopping
		g.mu.Unlock()
		if stopping || ctx.Err() != nil {
			return
		}

		g.MarkStopped()

		for {
			delay := backoff.Next()
			slog.Info("dingtalk stream reconnecting", "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, err := g.dialStream(ctx)
			if err != nil {
				slog.Warn("dingtalk stream reconnect failed", "error", err)
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

// serve reads frames until the connection breaks, answering each with an
// ack and keeping a heartbeat going.
func (g *Gateway) serve(ctx context.Context, conn *streamConn) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := conn.writeJSON(hbCtx, map[string]any{"type": "heartbeat", "data": map[string]any{}}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("dingtalk stream read failed", "error", err)
			}
			return
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.MessageID == "" {
			continue
		}

		ack := map[string]any{
			"messageId": frame.MessageID,
			"type":      "ack",
			"data":      map[string]any{"success": true},
		}
		if err := conn.writeJSON(ctx, ack); err != nil {
			return
		}

		g.handleInbound(frame.Data)
	}
}

func (g *Gateway) handleInbound(data string) {
	var msg inboundMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		slog.Debug("dingtalk inbound parse failed", "error", err)
		return
	}

	content := ""
	if msg.Text != nil {
		content = msg.Text.Content
	}
	if content == "" && msg.Content != nil {
		content = msg.Content.Recognition
	}
	if content == "" {
		switch {
		case msg.Image != nil && msg.Image.DownloadCode != "":
			content = "[image]"
		case msg.Voice != nil && msg.Voice.DownloadCode != "":
			content = "[voice]"
		case msg.File != nil && msg.File.DownloadCode != "":
			content = fmt.Sprintf("[file: %s]", msg.File.FileName)
		default:
			return
		}
	}

	convType := msg.ConversationType
	if convType == "" {
		convType = "1"
	}

	if msg.ConversationID != "" {
		g.mu.Lock()
		g.lastConv = &conversation{
			conversationType:   convType,
			conversationID:     msg.ConversationID,
			openConversationID: msg.OpenConversationID,
			senderStaffID:      msg.SenderStaffID,
		}
		g.mu.Unlock()
	}

	ts := msg.CreateAt / 1000
	if ts == 0 {
		ts = time.Now().Unix()
	}

	g.EmitMessage(gateway.Message{
		ID:        msg.MsgID,
		Platform:  "dingtalk",
		ChannelID: msg.ConversationID,
		UserID:    msg.SenderStaffID,
		UserName:  msg.SenderNick,
		Content:   content,
		Timestamp: ts,
		IsMention: false,
	})
}
