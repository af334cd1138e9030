// Package wework implements the WeWork gateway over a group-robot webhook.
// The webhook is outbound-only: no inbound messages, no edit, delete, media
// or history support.
package wework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.ConnectivityTester = (*Gateway)(nil)

type Gateway struct {
	*gateway.Base
	cfg  config.WeWorkConfig
	http *http.Client
}

func New(cfg config.WeWorkConfig) *Gateway {
	return &Gateway{
		Base: gateway.NewBase("wework", cfg.Enabled),
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Start probes the webhook with a greeting message. A webhook URL that
// accepts the probe is the only connectivity signal this platform offers.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.cfg.Enabled {
		return nil
	}
	if g.cfg.WebhookURL == "" {
		err := fmt.Errorf("missing required config: webhook_url")
		g.FailStart(err)
		return err
	}

	if !g.BeginStart() {
		return nil
	}

	if err := g.postWebhook(ctx, "WeWork gateway started", "text"); err != nil {
		err = fmt.Errorf("webhook probe: %w", err)
		g.FailStart(err)
		return err
	}

	g.MarkConnected()
	slog.Info("wework gateway started in webhook mode")
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	g.MarkStopped()
	return nil
}

func (g *Gateway) ReconnectIfNeeded(ctx context.Context) error {
	st := g.Status()
	if !st.Enabled || st.Connected || st.Starting {
		return nil
	}
	return g.Start(ctx)
}

func (g *Gateway) SendNotification(ctx context.Context, text string) error {
	return g.send(ctx, text)
}

// SendMessage ignores the conversation ID: a webhook addresses exactly one
// group chat.
func (g *Gateway) SendMessage(ctx context.Context, conversationID, text string) error {
	return g.send(ctx, text)
}

func (g *Gateway) send(ctx context.Context, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	msgType := g.cfg.MessageType
	if msgType != "markdown" {
		msgType = "text"
	}
	if err := g.postWebhook(ctx, text, msgType); err != nil {
		g.RecordError(err)
		return err
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	return fmt.Errorf("%w: wework webhook cannot send media", gateway.ErrUnsupported)
}

func (g *Gateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	return fmt.Errorf("%w: wework webhook cannot edit messages", gateway.ErrUnsupported)
}

func (g *Gateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return fmt.Errorf("%w: wework webhook cannot delete messages", gateway.ErrUnsupported)
}

func (g *Gateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]gateway.Message, error) {
	return nil, fmt.Errorf("%w: wework webhook cannot fetch history", gateway.ErrUnsupported)
}

func (g *Gateway) TestConnectivity(ctx context.Context) gateway.Report {
	r := gateway.NewReport("wework")
	defer r.Finalize()

	if !r.CheckEnabled(g.cfg.Enabled) {
		return *r
	}
	if g.cfg.WebhookURL == "" {
		r.Fail("missing_webhook_url", "webhook URL is not configured",
			"create a group robot in WeWork and paste its webhook URL")
		return *r
	}
	r.Pass("config_check", "webhook URL is configured")
	r.CheckRunning(g.IsConnected())
	return *r
}

type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (g *Gateway) postWebhook(ctx context.Context, content, msgType string) error {
	payload := map[string]any{
		"msgtype": msgType,
		msgType:   map[string]string{"content": content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	var result webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode webhook response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("webhook rejected message: %s (errcode %d)", result.ErrMsg, result.ErrCode)
	}
	return nil
}
