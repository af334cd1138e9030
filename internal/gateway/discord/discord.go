// Package discord implements the Discord gateway. Inbound messages come
// from a hand-driven gateway WebSocket (HELLO/IDENTIFY/HEARTBEAT with the
// guild message intents); outbound traffic goes through the REST API
// via a discordgo session that never opens its own socket.
package discord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

// Discord rejects message bodies above 2000 characters.
const maxMessageLen = 2000

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.ConnectivityTester = (*Gateway)(nil)

type Gateway struct {
	*gateway.Base
	cfg  config.DiscordConfig
	rest *discordgo.Session

	mu            sync.Mutex
	lastChannelID string
	botUserID     string
	stopping      bool
	cancel        context.CancelFunc
	done          chan struct{}
}

func New(cfg config.DiscordConfig) (*Gateway, error) {
	rest, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Gateway{
		Base: gateway.NewBase("discord", cfg.Enabled),
		cfg:  cfg,
		rest: rest,
	}, nil
}

// Start verifies the bot token against the REST API, then brings up the
// gateway socket.
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

	user, err := g.rest.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		err = fmt.Errorf("verify bot token: %w", err)
		g.FailStart(err)
		return err
	}
	g.mu.Lock()
	g.botUserID = user.ID
	g.mu.Unlock()

	conn, err := g.dialGateway(ctx)
	if err != nil {
		err = fmt.Errorf("gateway connect: %w", err)
		g.FailStart(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.cancel = cancel
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	g.MarkConnected()
	go func() {
		defer close(done)
		g.runGateway(runCtx, conn)
	}()
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.stopping = true
	cancel := g.cancel
	done := g.done
	g.cancel = nil
	g.done = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
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
	channelID := g.lastChannelID
	g.mu.Unlock()

	if channelID == "" {
		return gateway.ErrNoConversation
	}
	return g.SendMessage(ctx, channelID, text)
}

// SendMessage delivers text to a channel, splitting it into chunks when
// it exceeds the platform limit.
func (g *Gateway) SendMessage(ctx context.Context, conversationID, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	for _, chunk := range gateway.SplitMessage(text, maxMessageLen) {
		if _, err := g.rest.ChannelMessageSend(conversationID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	g.MarkOutbound()
	return nil
}

// SendMediaMessage uploads a local file as a channel attachment.
func (g *Gateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if _, err := g.rest.ChannelFileSend(conversationID, filepath.Base(filePath), f, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}
	if _, err := g.rest.ChannelMessageEdit(conversationID, messageID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}
	if err := g.rest.ChannelMessageDelete(conversationID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (g *Gateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]gateway.Message, error) {
	msgs, err := g.rest.ChannelMessages(conversationID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get message history: %w", err)
	}

	out := make([]gateway.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, gateway.Message{
			ID:        m.ID,
			Platform:  "discord",
			ChannelID: m.ChannelID,
			UserID:    m.Author.ID,
			UserName:  m.Author.Username,
			Content:   m.Content,
			Timestamp: m.Timestamp.Unix(),
			IsMention: false,
		})
	}
	return out, nil
}

func (g *Gateway) TestConnectivity(ctx context.Context) gateway.Report {
	r := gateway.NewReport("discord")
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

	if _, err := g.rest.User("@me", discordgo.WithContext(ctx)); err != nil {
		r.Fail("auth_check", fmt.Sprintf("authentication failed: %v", err),
			"check the network connection and bot token")
	} else {
		r.Pass("auth_check", "discord authentication succeeded")
	}
	r.CheckRunning(g.IsConnected())
	r.Info("discord_group_requires_mention",
		"in guild channels the bot only responds when @-mentioned",
		"mention the bot followed by your message to start a conversation")
	return *r
}
