package discord

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway op-codes used by this client. Sessions are never resumed: both
// RECONNECT and INVALID_SESSION trigger a fresh connect plus IDENTIFY.
const (
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// GUILDS | GUILD_MESSAGES as a bitfield.
const identifyIntents = 513

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  string          `json:"t"`
}

type messageCreate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Mentions []struct {
		ID string `json:"id"`
	} `json:"mentions"`
	MentionEveryone bool `json:"mention_everyone"`
}

// wsConn serializes writes: the heartbeat goroutine and the reader both
// send frames.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex

	seqMu sync.Mutex
	seq   *int64
}

func (c *wsConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) setSeq(s int64) {
	c.seqMu.Lock()
	c.seq = &s
	c.seqMu.Unlock()
}

func (c *wsConn) lastSeq() *int64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	return c.seq
}

func (g *Gateway) dialGateway(ctx context.Context) (*wsConn, error) {
	conn, _, err := websocket.Dial(ctx, gatewayURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 22)
	slog.Debug("discord gateway connected")
	return &wsConn{conn: conn}, nil
}

// runGateway serves one gateway session and reconnects with backoff until
// the context is cancelled or Stop is called.
func (g *Gateway) runGateway(ctx context.Context, conn *wsConn) {
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
			slog.Info("discord gateway reconnecting", "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, err := g.dialGateway(ctx)
			if err != nil {
				slog.Warn("discord gateway reconnect failed", "error", err)
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

// serve drives one session: wait for HELLO, IDENTIFY, heartbeat at the
// server-announced interval, and dispatch events until the connection
// breaks or the server demands a reconnect.
func (g *Gateway) serve(ctx context.Context, conn *wsConn) {
	var hbCancel context.CancelFunc
	defer func() {
		if hbCancel != nil {
			hbCancel()
		}
	}()

	for {
		_, data, err := conn.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("discord gateway read failed", "error", err)
			}
			return
		}

		var p payload
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		if p.S != nil {
			conn.setSeq(*p.S)
		}

		switch p.Op {
		case opHello:
			var hello struct {
				HeartbeatInterval int64 `json:"heartbeat_interval"`
			}
			if err := json.Unmarshal(p.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
				continue
			}

			if err := conn.writeJSON(ctx, g.identifyPayload()); err != nil {
				return
			}
			slog.Debug("discord identify sent")

			if hbCancel != nil {
				hbCancel()
			}
			var hbCtx context.Context
			hbCtx, hbCancel = context.WithCancel(ctx)
			go g.heartbeatLoop(hbCtx, conn, time.Duration(hello.HeartbeatInterval)*time.Millisecond)

		case opHeartbeat:
			// Server asked for an immediate beat.
			if err := conn.writeJSON(ctx, map[string]any{"op": opHeartbeat, "d": conn.lastSeq()}); err != nil {
				return
			}

		case opHeartbeatACK:
			// Nothing to track; the next read timeout would surface a
			// dead connection.

		case opReconnect, opInvalidSession:
			slog.Info("discord gateway requested reconnect", "op", p.Op)
			return

		default:
			if p.T == "MESSAGE_CREATE" {
				g.handleMessageCreate(p.D)
			}
		}
	}
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *wsConn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := map[string]any{"op": opHeartbeat, "d": conn.lastSeq()}
			if err := conn.writeJSON(ctx, beat); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) identifyPayload() map[string]any {
	return map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   g.cfg.BotToken,
			"intents": identifyIntents,
			"properties": map[string]string{
				"os":      "desktop",
				"browser": "glowire",
				"device":  "glowire",
			},
		},
	}
}

func (g *Gateway) handleMessageCreate(d json.RawMessage) {
	var msg messageCreate
	if err := json.Unmarshal(d, &msg); err != nil {
		return
	}
	if msg.Content == "" || msg.Author.Bot {
		return
	}

	g.mu.Lock()
	own := g.botUserID
	g.lastChannelID = msg.ChannelID
	g.mu.Unlock()
	if msg.Author.ID == own {
		return
	}

	mention := msg.MentionEveryone
	for _, m := range msg.Mentions {
		if m.ID == own {
			mention = true
			break
		}
	}

	g.EmitMessage(gateway.Message{
		ID:        msg.ID,
		Platform:  "discord",
		ChannelID: msg.ChannelID,
		UserID:    msg.Author.ID,
		UserName:  msg.Author.Username,
		Content:   msg.Content,
		Timestamp: time.Now().Unix(),
		IsMention: mention,
	})
}
