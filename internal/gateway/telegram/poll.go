package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const (
	pollTimeout   = 30 // seconds, passed to getUpdates
	sweepInterval = 5 * time.Minute
)

// pollLoop drives getUpdates directly so the gateway owns the update
// offset and can deduplicate across reconnects.
func (g *Gateway) pollLoop(ctx context.Context) {
	var offset int
	backoff := gateway.NewBackoff()
	lastSweep := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := g.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
			Offset:  offset,
			Timeout: pollTimeout,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			g.RecordError(err)
			wait := backoff.Next()
			slog.Warn("telegram polling failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		backoff.Reset()

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			g.handleUpdate(update)
		}

		if time.Since(lastSweep) >= sweepInterval {
			g.dedup.Sweep()
			lastSweep = time.Now()
		}
	}
}

func (g *Gateway) handleUpdate(update telego.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if content == "" {
		content = mediaPlaceholder(msg)
	}
	if content == "" {
		return
	}

	msgID := strconv.Itoa(msg.MessageID)
	if g.dedup.CheckAndMark(msgID, dedupTTL) {
		return
	}

	g.mu.Lock()
	g.lastChatID = msg.Chat.ID
	botUsername := g.botUsername
	g.mu.Unlock()

	userName := msg.From.Username
	if userName == "" {
		userName = msg.From.FirstName
	}

	g.MarkInbound()
	g.EmitMessage(gateway.Message{
		ID:        msgID,
		Platform:  "telegram",
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		UserName:  userName,
		Content:   content,
		Timestamp: msg.Date,
		IsMention: msg.Chat.Type == "private" ||
			(botUsername != "" && strings.Contains(content, "@"+botUsername)),
	})
}

// mediaPlaceholder names an uncaptioned attachment so the message still
// surfaces instead of being dropped.
func mediaPlaceholder(msg *telego.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "[photo]"
	case msg.Video != nil:
		return "[video]"
	case msg.Voice != nil:
		return "[voice]"
	case msg.Audio != nil:
		return "[audio]"
	case msg.Document != nil:
		if msg.Document.FileName != "" {
			return "[file: " + msg.Document.FileName + "]"
		}
		return "[file]"
	case msg.Sticker != nil:
		return "[sticker]"
	}
	return ""
}

// MessageHistory calls getChatHistory directly. The Bot API does not offer
// it, so the platform error is surfaced to the caller as-is.
func (g *Gateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]gateway.Message, error) {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", conversationID, err)
	}

	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"limit":   limit,
	})
	if err != nil {
		return nil, err
	}

	endpoint := "https://api.telegram.org/bot" + g.cfg.BotToken + "/getChatHistory"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getChatHistory: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      []struct {
			MessageID int `json:"message_id"`
			From      *struct {
				ID        int64  `json:"id"`
				Username  string `json:"username"`
				FirstName string `json:"first_name"`
			} `json:"from"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
			Date    int64  `json:"date"`
			Text    string `json:"text"`
			Caption string `json:"caption"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("getChatHistory: decode response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("getChatHistory: %s", result.Description)
	}

	messages := make([]gateway.Message, 0, len(result.Result))
	for _, m := range result.Result {
		content := m.Text
		if content == "" {
			content = m.Caption
		}
		gm := gateway.Message{
			ID:        strconv.Itoa(m.MessageID),
			Platform:  "telegram",
			ChannelID: strconv.FormatInt(m.Chat.ID, 10),
			Content:   content,
			Timestamp: m.Date,
		}
		if m.From != nil {
			gm.UserID = strconv.FormatInt(m.From.ID, 10)
			gm.UserName = m.From.Username
			if gm.UserName == "" {
				gm.UserName = m.From.FirstName
			}
		}
		messages = append(messages, gm)
	}
	return messages, nil
}
