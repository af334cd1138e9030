// Package feishu implements the Feishu/Lark gateway: a long-lived event
// WebSocket for inbound messages and the Open API for outbound. The
// domain setting picks the China (feishu) or global (lark) API base.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.ConnectivityTester = (*Gateway)(nil)

type Gateway struct {
	*gateway.Base
	cfg    config.FeishuConfig
	http   *http.Client
	tokens *gateway.TokenCache

	mu         sync.Mutex
	lastChatID string
	stopping   bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(cfg config.FeishuConfig) *Gateway {
	g := &Gateway{
		Base: gateway.NewBase("feishu", cfg.Enabled),
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	g.tokens = gateway.NewTokenCache(g.fetchToken)
	return g
}

func (g *Gateway) baseURL() string {
	if g.cfg.Domain == "lark" {
		return "https://open.larkoffice.com"
	}
	return "https://open.feishu.cn"
}

func (g *Gateway) Start(ctx context.Context) error {
	if !g.cfg.Enabled {
		return nil
	}
	if g.cfg.AppID == "" || g.cfg.AppSecret == "" {
		err := fmt.Errorf("missing required config: app_id or app_secret")
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

	conn, err := g.dialEvents(ctx)
	if err != nil {
		err = fmt.Errorf("websocket connect: %w", err)
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
		g.runEvents(runCtx, conn)
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

	g.tokens.Clear()
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

	if chatID == "" {
		return gateway.ErrNoConversation
	}
	return g.SendMessage(ctx, chatID, text)
}

func (g *Gateway) SendMessage(ctx context.Context, conversationID, text string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	content, _ := json.Marshal(map[string]string{"text": text})
	if err := g.sendMessageAPI(ctx, conversationID, "text", string(content)); err != nil {
		return err
	}
	g.MarkOutbound()
	return nil
}

// SendMediaMessage uploads the file as an image or generic file depending
// on its extension and sends the typed message.
func (g *Gateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	var msgType, content string
	switch ext {
	case "jpg", "jpeg", "png", "gif", "bmp", "webp":
		imageKey, err := g.upload(ctx, filePath, "/open-apis/im/v1/images?image_type=message", "image")
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(map[string]string{"image_key": imageKey})
		msgType, content = "image", string(raw)
	default:
		fileKey, err := g.upload(ctx, filePath, "/open-apis/im/v1/files?file_type=message", "file")
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(map[string]string{"file_key": fileKey})
		msgType, content = "file", string(raw)
	}

	if err := g.sendMessageAPI(ctx, conversationID, msgType, content); err != nil {
		return err
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	return fmt.Errorf("feishu: edit message: %w", gateway.ErrUnsupported)
}

func (g *Gateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return fmt.Errorf("feishu: delete message: %w", gateway.ErrUnsupported)
}

func (g *Gateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]gateway.Message, error) {
	return nil, fmt.Errorf("feishu: message history: %w", gateway.ErrUnsupported)
}

func (g *Gateway) TestConnectivity(ctx context.Context) gateway.Report {
	r := gateway.NewReport("feishu")
	defer r.Finalize()

	if !r.CheckEnabled(g.cfg.Enabled) {
		return *r
	}
	var missing []string
	if g.cfg.AppID == "" {
		missing = append(missing, "app_id")
	}
	if g.cfg.AppSecret == "" {
		missing = append(missing, "app_secret")
	}
	if !r.CheckCredentials(missing) {
		return *r
	}

	if _, err := g.tokens.Token(ctx); err != nil {
		r.Fail("auth_check", fmt.Sprintf("authentication failed: %v", err),
			"check that the app ID/secret are correct and bot permissions are granted")
		return *r
	}
	r.Pass("auth_check", "feishu authentication succeeded")
	r.CheckRunning(g.IsConnected())
	r.Info("feishu_group_requires_mention",
		"in group chats the bot only responds when @-mentioned",
		"mention the bot followed by your message to start a conversation")
	r.Info("feishu_event_subscription_required",
		"receiving messages requires the im.message.receive_v1 event subscription",
		"verify event subscription, permissions and release status in the developer console")
	return *r
}

func (g *Gateway) fetchToken(ctx context.Context) (string, time.Duration, error) {
	body := map[string]string{
		"app_id":     g.cfg.AppID,
		"app_secret": g.cfg.AppSecret,
	}
	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Token  string `json:"token"`
			Expire int64  `json:"expire"`
		} `json:"data"`
	}
	if err := g.postJSON(ctx, g.baseURL()+"/open-apis/auth/v3/tenant_access_token/internal", "", body, &result); err != nil {
		return "", 0, err
	}
	if result.Code != 0 || result.Data.Token == "" {
		return "", 0, fmt.Errorf("feishu: get access token: %s", result.Msg)
	}
	expire := result.Data.Expire
	if expire == 0 {
		expire = 7200
	}
	return result.Data.Token, time.Duration(expire) * time.Second, nil
}

func (g *Gateway) sendMessageAPI(ctx context.Context, chatID, msgType, content string) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	body := map[string]string{
		"receive_id_type": "chat_id",
		"receive_id":      chatID,
		"msg_type":        msgType,
		"content":         content,
	}
	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := g.postJSON(ctx, g.baseURL()+"/open-apis/im/v1/messages", token, body, &result); err != nil {
		return err
	}
	if result.Code != 0 {
		return fmt.Errorf("feishu: send message: %s", result.Msg)
	}
	return nil
}

func (g *Gateway) upload(ctx context.Context, filePath, endpoint, field string) (string, error) {
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
	part, err := w.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL()+endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			FileKey  string `json:"file_key"`
			ImageKey string `json:"image_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("feishu: upload: %s", result.Msg)
	}
	if result.Data.ImageKey != "" {
		return result.Data.ImageKey, nil
	}
	if result.Data.FileKey != "" {
		return result.Data.FileKey, nil
	}
	return "", fmt.Errorf("feishu: upload: no key in response")
}

func (g *Gateway) postJSON(ctx context.Context, url, bearer string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

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
