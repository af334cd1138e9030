// Package dingtalk implements the DingTalk gateway over the Stream mode
// robot API: a WebSocket push channel for inbound messages and the
// OpenAPI robot endpoints for outbound.
package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

const apiBase = "https://api.dingtalk.com"

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.ConnectivityTester = (*Gateway)(nil)

// conversation remembers where the last inbound message came from so
// notifications can be routed back. conversationType "1" is a DM, sent
// through the one-to-one batch endpoint; anything else is a group, sent
// through the group endpoint.
type conversation struct {
	conversationType   string
	conversationID     string
	openConversationID string
	senderStaffID      string
}

type Gateway struct {
	*gateway.Base
	cfg    config.DingTalkConfig
	http   *http.Client
	tokens *gateway.TokenCache

	mu       sync.Mutex
	lastConv *conversation
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg config.DingTalkConfig) *Gateway {
	g := &Gateway{
		Base: gateway.NewBase("dingtalk", cfg.Enabled),
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
	}
	g.tokens = gateway.NewTokenCache(g.fetchToken)
	return g
}

// Start validates credentials, obtains an access token and brings up the
// stream connection. Returns nil without doing anything when the gateway
// is disabled or already running.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.cfg.Enabled {
		return nil
	}
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" {
		err := fmt.Errorf("missing required config: client_id or client_secret")
		g.FailStart(err)
		return err
	}

	if !g.BeginStart() {
		return nil
	}

	g.mu.Lock()
	g.stopping = false
	g.mu.Unlock()

	if _, err := g.tokens.Token(ctx); err != nil {
		err = fmt.Errorf("get access token: %w", err)
		g.FailStart(err)
		return err
	}

	conn, err := g.dialStream(ctx)
	if err != nil {
		err = fmt.Errorf("stream connect: %w", err)
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
		g.runStream(runCtx, conn)
	}()
	return nil
}

// Stop tears down the stream connection and discards the cached token.
// Always leaves the gateway stopped.
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

	g.tokens.Clear()
	g.MarkStopped()
	return nil
}

// ReconnectIfNeeded restarts the gateway when it is enabled but neither
// connected, starting, nor deliberately stopped.
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

// SendNotification routes text to the most recent conversation.
func (g *Gateway) SendNotification(ctx context.Context, text string) error {
	g.mu.Lock()
	conv := g.lastConv
	g.mu.Unlock()

	if conv == nil {
		return gateway.ErrNoConversation
	}
	return g.sendToConversation(ctx, conv, text)
}

// SendMessage delivers text to a known conversation. DingTalk's robot API
// cannot address arbitrary conversations, only the one we last saw.
func (g *Gateway) SendMessage(ctx context.Context, conversationID, text string) error {
	g.mu.Lock()
	conv := g.lastConv
	g.mu.Unlock()

	if conv == nil || conv.conversationID != conversationID {
		return fmt.Errorf("unknown conversation %s: %w", conversationID, gateway.ErrNoConversation)
	}
	return g.sendToConversation(ctx, conv, text)
}

// SendMediaMessage uploads a local file and sends it as a file message.
func (g *Gateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	mediaID, err := g.uploadMedia(ctx, filePath, "file")
	if err != nil {
		return err
	}

	g.mu.Lock()
	conv := g.lastConv
	g.mu.Unlock()
	if conv == nil || conv.conversationID != conversationID {
		return fmt.Errorf("unknown conversation %s: %w", conversationID, gateway.ErrNoConversation)
	}

	param, _ := json.Marshal(map[string]string{"mediaId": mediaID})
	if err := g.robotSend(ctx, conv, "sampleFile", string(param)); err != nil {
		return err
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	return fmt.Errorf("dingtalk: edit message: %w", gateway.ErrUnsupported)
}

func (g *Gateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return fmt.Errorf("dingtalk: delete message: %w", gateway.ErrUnsupported)
}

func (g *Gateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]gateway.Message, error) {
	return nil, fmt.Errorf("dingtalk: message history: %w", gateway.ErrUnsupported)
}

// TestConnectivity runs the DingTalk diagnostics: config, auth, and
// connection state.
func (g *Gateway) TestConnectivity(ctx context.Context) gateway.Report {
	r := gateway.NewReport("dingtalk")
	defer r.Finalize()

	if !r.CheckEnabled(g.cfg.Enabled) {
		return *r
	}
	var missing []string
	if g.cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if g.cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if !r.CheckCredentials(missing) {
		return *r
	}

	if _, err := g.tokens.Token(ctx); err != nil {
		r.Fail("auth_check", fmt.Sprintf("authentication failed: %v", err),
			"check that the client ID/secret are correct and robot permissions are granted")
		return *r
	}
	r.Pass("auth_check", "dingtalk authentication succeeded")
	r.CheckRunning(g.IsConnected())
	r.Info("dingtalk_bot_membership_hint",
		"the bot must be a member of the target conversation with permission to speak",
		"confirm the bot is in the conversation and org permissions allow messaging")
	return *r
}

func (g *Gateway) sendToConversation(ctx context.Context, conv *conversation, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	msgType := g.cfg.MessageType
	if msgType != "markdown" {
		msgType = "text"
	}

	var param map[string]any
	if msgType == "markdown" {
		param = map[string]any{"title": "notification", "text": text}
	} else {
		param = map[string]any{"content": text}
	}
	raw, _ := json.Marshal(param)

	msgKey := "sampleText"
	if msgType == "markdown" {
		msgKey = "sampleMarkdown"
	}

	if err := g.robotSend(ctx, conv, msgKey, string(raw)); err != nil {
		return err
	}
	g.MarkOutbound()
	return nil
}

// robotSend posts msgParam through the robot endpoint matching the
// conversation kind.
func (g *Gateway) robotSend(ctx context.Context, conv *conversation, msgKey, msgParam string) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var url string
	body := map[string]any{
		"robotCode": g.cfg.RobotCode,
		"msgKey":    msgKey,
		"msgParam":  msgParam,
	}
	if conv.conversationType == "1" {
		if conv.senderStaffID == "" {
			return fmt.Errorf("dingtalk: direct conversation without sender staff id")
		}
		url = fmt.Sprintf("%s/v1.0/robot/oToMessages/batchSend?access_token=%s", apiBase, token)
		body["userIds"] = []string{conv.senderStaffID}
	} else {
		if conv.openConversationID == "" {
			return fmt.Errorf("dingtalk: group conversation without open conversation id")
		}
		url = fmt.Sprintf("%s/v1.0/robot/groupMessages/send?access_token=%s", apiBase, token)
		body["openConversationId"] = conv.openConversationID
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := g.postJSON(ctx, url, body, &result); err != nil {
		return err
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("dingtalk: send message: %s", result.ErrMsg)
	}
	return nil
}

func (g *Gateway) fetchToken(ctx context.Context) (string, time.Duration, error) {
	body := map[string]string{
		"appKey":    g.cfg.ClientID,
		"appSecret": g.cfg.ClientSecret,
	}
	var result struct {
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
		AccessToken string `json:"access_token"`
		ExpireIn    int64  `json:"expire_in"`
	}
	if err := g.postJSON(ctx, apiBase+"/v1.0/oauth2/accessToken", body, &result); err != nil {
		return "", 0, err
	}
	if result.ErrCode != 0 || result.AccessToken == "" {
		return "", 0, fmt.Errorf("dingtalk: get access token: %s", result.ErrMsg)
	}
	expiresIn := result.ExpireIn
	if expiresIn == 0 {
		expiresIn = 7200
	}
	return result.AccessToken, time.Duration(expiresIn) * time.Second, nil
}

func (g *Gateway) uploadMedia(ctx context.Context, filePath, mediaType string) (string, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("type", mediaType); err != nil {
		return "", err
	}
	w.Close()

	url := fmt.Sprintf("%s/v1.0/robot/media/upload?access_token=%s&agentId=%s", apiBase, token, g.cfg.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
		MediaID string `json:"media_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if result.ErrCode != 0 || result.MediaID == "" {
		return "", fmt.Errorf("dingtalk: upload media: %s", result.ErrMsg)
	}
	return result.MediaID, nil
}

// DownloadMedia fetches the raw bytes behind an inbound attachment's
// download code.
func (g *Gateway) DownloadMedia(ctx context.Context, downloadCode string) ([]byte, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1.0/robot/media/download?access_token=%s&downloadCode=%s", apiBase, token, downloadCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (g *Gateway) postJSON(ctx context.Context, url string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
