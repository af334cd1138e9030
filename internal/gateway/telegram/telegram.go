// Package telegram implements the Telegram gateway over the Bot API with
// long polling. Outbound sends are rate limited and retried with a
// Markdown-to-plain fallback.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const (
	// Telegram rejects message bodies above 4096 characters.
	maxMessageLen = 4096

	// Long-poll reconnects can redeliver updates; IDs are suppressed for
	// this window.
	dedupTTL = 60 * time.Second

	sendAttempts   = 3
	sendRetryDelay = 2 * time.Second
)

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.ConnectivityTester = (*Gateway)(nil)

type Gateway struct {
	*gateway.Base
	cfg     config.TelegramConfig
	bot     *telego.Bot
	dedup   *gateway.DedupCache
	limiter *rate.Limiter
	http    *http.Client

	mu          sync.Mutex
	lastChatID  int64
	botUsername string
	stopping    bool
	pollCancel  context.CancelFunc
	pollDone    chan struct{}
}

func New(cfg config.TelegramConfig) (*Gateway, error) {
	var opts []telego.BotOption
	httpClient := &http.Client{Timeout: 45 * time.Second}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		opts = append(opts, telego.WithHTTPClient(httpClient))
	}

	bot, err := telego.NewBot(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Gateway{
		Base:    gateway.NewBase("telegram", cfg.Enabled),
		cfg:     cfg,
		bot:     bot,
		dedup:   gateway.NewDedupCache(),
		limiter: rate.NewLimiter(rate.Limit(30), 5), // Bot API global budget
		http:    httpClient,
	}, nil
}

// Start verifies the bot token with getMe and launches the polling loop.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.cfg.Enabled {
		return nil
	}
	if g.cfg.BotToken == "" {
		err := fmt.Errorf("missing required config: bot_token")
		g.FailStart(err)
		return err
	}

	if !g.BeginStart() {
		return nil
	}

	g.mu.Lock()
	g.stopping = false
	g.mu.Unlock()

	me, err := g.bot.GetMe(ctx)
	if err != nil {
		err = fmt.Errorf("getMe: %w", err)
		g.FailStart(err)
		return err
	}
	g.mu.Lock()
	g.botUsername = me.Username
	g.mu.Unlock()

	pollCtx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.pollCancel = cancel
	g.pollDone = make(chan struct{})
	done := g.pollDone
	g.mu.Unlock()

	g.MarkConnected()
	slog.Info("telegram bot connected", "username", me.Username)

	go func() {
		defer close(done)
		g.pollLoop(pollCtx)
	}()
	return nil
}

// Stop cancels the polling loop and waits for it to exit so Telegram
// releases the getUpdates lock before a new instance starts.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.stopping = true
	cancel := g.pollCancel
	done := g.pollDone
	g.pollCancel = nil
	g.pollDone = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}

	g.MarkStopped()
	return nil
}

func (g *Gateway) ReconnectIfNeeded(ctx context.Context) error {
	g.mu.Lock()
	stopping := g.stopping
	g.mu.Unlock()

	st := g.Status()
	if !st.Enabled || st.Connected || st.Starting || stopping {
		return nil
	}
	return g.Start(ctx)
}

func (g *Gateway) SendNotification(ctx context.Context, text string) error {
	g.mu.Lock()
	chatID := g.lastChatID
	g.mu.Unlock()

	if chatID == 0 {
		return gateway.ErrNoConversation
	}
	return g.SendMessage(ctx, strconv.FormatInt(chatID, 10), text)
}

// SendMessage splits text at the platform limit and sends each chunk with
// retries: Markdown parse mode first, plain text as the final fallback.
func (g *Gateway) SendMessage(ctx context.Context, conversationID, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", conversationID, err)
	}

	for _, chunk := range gateway.SplitMessage(text, maxMessageLen) {
		if err := g.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) sendChunk(ctx context.Context, chatID int64, chunk string) error {
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		msg := tu.Message(tu.ID(chatID), chunk)
		msg.ParseMode = telego.ModeMarkdown
		_, err := g.bot.SendMessage(ctx, msg)
		if err == nil {
			return nil
		}
		slog.Debug("send failed", "gateway", "telegram", "attempt", attempt, "error", err)

		if attempt < sendAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sendRetryDelay):
			}
		}
	}

	// Markdown exhausted, retry once without a parse mode in case the
	// text itself breaks Markdown parsing.
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := g.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendMediaMessage uploads a local file as a document.
func (g *Gateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", conversationID, err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	doc := tu.Document(tu.ID(chatID), tu.File(f))
	if _, err := g.bot.SendDocument(ctx, doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", conversationID, err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}

	_, err = g.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: msgID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", conversationID, err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}

	if err := g.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: msgID,
	}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (g *Gateway) TestConnectivity(ctx context.Context) gateway.Report {
	r := gateway.NewReport("telegram")
	defer r.Finalize()

	if !r.CheckEnabled(g.cfg.Enabled) {
		return *r
	}
	var missing []string
	if g.cfg.BotToken == "" {
		missing = append(missing, "bot_token")
	}
	if !r.CheckCredentials(missing) {
		return *r
	}

	if _, err := g.bot.GetMe(ctx); err != nil {
		r.Fail("auth_check", fmt.Sprintf("authentication failed: %v", err),
			"check the network connection and bot_token")
	} else {
		r.Pass("auth_check", "telegram authentication succeeded")
	}
	r.CheckRunning(g.IsConnected())
	r.Info("telegram_privacy_mode_hint",
		"group messages may be filtered by Bot Privacy Mode",
		"if the bot is silent in groups, check the Privacy Mode setting via @BotFather")
	return *r
}
