// Package whatsapp implements the WhatsApp gateway over the Cloud API.
// Inbound traffic arrives through Meta's webhook, which must be terminated
// by an external HTTPS endpoint; this gateway covers the outbound side and
// credential verification.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const graphBase = "https://graph.facebook.com"

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.ConnectivityTester = (*Gateway)(nil)

type Gateway struct {
	*gateway.Base
	cfg  config.WhatsAppConfig
	http *http.Client

	mu         sync.Mutex
	lastChatID string
}

func New(cfg config.WhatsAppConfig) *Gateway {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v18.0"
	}
	return &Gateway{
		Base: gateway.NewBase("whatsapp", cfg.Enabled),
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *Gateway) apiURL(path string) string {
	return graphBase + "/" + g.cfg.APIVersion + path
}

func (g *Gateway) messagesURL() string {
	return g.apiURL("/" + g.cfg.PhoneNumberID + "/messages")
}

// Start verifies the access token against /me. There is no long-lived
// connection to hold; connected means the credentials check out.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.cfg.Enabled {
		return nil
	}
	if g.cfg.PhoneNumberID == "" {
		err := fmt.Errorf("missing required config: phone_number_id")
		g.FailStart(err)
		return err
	}
	if g.cfg.AccessToken == "" {
		err := fmt.Errorf("missing required config: access_token")
		g.FailStart(err)
		return err
	}

	if !g.BeginStart() {
		return nil
	}

	user, err := g.verifyCredentials(ctx)
	if err != nil {
		err = fmt.Errorf("verify credentials: %w", err)
		g.FailStart(err)
		return err
	}

	g.MarkConnected()
	slog.Info("whatsapp cloud api verified", "account", user.Name)
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
	g.mu.Lock()
	chatID := g.lastChatID
	g.mu.Unlock()

	if chatID == "" {
		return gateway.ErrNoConversation
	}
	return g.SendMessage(ctx, chatID, text)
}

func (g *Gateway) SendMessage(ctx context.Context, conversationID, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                conversationID,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	if err := g.postJSON(ctx, g.messagesURL(), payload); err != nil {
		g.RecordError(err)
		return err
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	return fmt.Errorf("%w: whatsapp cannot edit messages", gateway.ErrUnsupported)
}

func (g *Gateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return fmt.Errorf("%w: whatsapp cannot delete messages", gateway.ErrUnsupported)
}

// MessageHistory is unsupported: the Cloud API delivers messages through
// the webhook and does not store them for retrieval.
func (g *Gateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]gateway.Message, error) {
	return nil, fmt.Errorf("%w: whatsapp cloud api does not store message history", gateway.ErrUnsupported)
}

// RecordInbound notes the sender of a webhook-delivered message so that
// notifications have a recipient.
func (g *Gateway) RecordInbound(from string) {
	g.mu.Lock()
	g.lastChatID = from
	g.mu.Unlock()
	g.MarkInbound()
}

func (g *Gateway) TestConnectivity(ctx context.Context) gateway.Report {
	r := gateway.NewReport("whatsapp")
	defer r.Finalize()

	if !r.CheckEnabled(g.cfg.Enabled) {
		return *r
	}
	var missing []string
	if g.cfg.PhoneNumberID == "" {
		missing = append(missing, "phone_number_id")
	}
	if g.cfg.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if !r.CheckCredentials(missing) {
		return *r
	}

	if _, err := g.verifyCredentials(ctx); err != nil {
		r.Fail("auth_check", fmt.Sprintf("authentication failed: %v", err),
			"check the access_token; Cloud API tokens expire unless made permanent")
	} else {
		r.Pass("auth_check", "whatsapp authentication succeeded")
	}
	r.CheckRunning(g.IsConnected())
	return *r
}

type graphUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (g *Gateway) verifyCredentials(ctx context.Context) (*graphUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL("/me"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graph api returned %s: %s", resp.Status, body)
	}

	var user graphUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &user, nil
}

func (g *Gateway) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph api returned %s: %s", resp.Status, respBody)
	}
	return nil
}
