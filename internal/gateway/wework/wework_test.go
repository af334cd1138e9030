package wework

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

func webhookServer(t *testing.T, errcode int, bodies *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("webhook received invalid JSON: %v", err)
		}
		if bodies != nil {
			*bodies = append(*bodies, body)
		}
		json.NewEncoder(w).Encode(map[string]any{"errcode": errcode, "errmsg": "ok"})
	}))
}

func TestStartProbesWebhook(t *testing.T) {
	var bodies []map[string]any
	srv := webhookServer(t, 0, &bodies)
	defer srv.Close()

	g := New(config.WeWorkConfig{Enabled: true, WebhookURL: srv.URL})
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !g.IsConnected() {
		t.Error("gateway not connected after successful probe")
	}
	if len(bodies) != 1 {
		t.Fatalf("webhook received %d requests, want 1 probe", len(bodies))
	}
	if bodies[0]["msgtype"] != "text" {
		t.Errorf("probe msgtype = %v, want text", bodies[0]["msgtype"])
	}
}

func TestStartFailsOnRejectedProbe(t *testing.T) {
	srv := webhookServer(t, 93000, nil)
	defer srv.Close()

	g := New(config.WeWorkConfig{Enabled: true, WebhookURL: srv.URL})
	if err := g.Start(context.Background()); err == nil {
		t.Fatal("Start() = nil, want error for rejected probe")
	}
	if g.IsConnected() {
		t.Error("gateway connected despite rejected probe")
	}
	if g.Status().LastError == "" {
		t.Error("probe failure not recorded in last_error")
	}
}

func TestStartRequiresWebhookURL(t *testing.T) {
	g := New(config.WeWorkConfig{Enabled: true})
	if err := g.Start(context.Background()); err == nil {
		t.Error("Start() = nil without webhook_url, want error")
	}
}

func TestSendUsesConfiguredMessageType(t *testing.T) {
	var bodies []map[string]any
	srv := webhookServer(t, 0, &bodies)
	defer srv.Close()

	g := New(config.WeWorkConfig{Enabled: true, WebhookURL: srv.URL, MessageType: "markdown"})
	ctx := context.Background()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := g.SendMessage(ctx, "ignored", "**bold**"); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	sent := bodies[len(bodies)-1]
	if sent["msgtype"] != "markdown" {
		t.Errorf("msgtype = %v, want markdown", sent["msgtype"])
	}
	md, _ := sent["markdown"].(map[string]any)
	if md["content"] != "**bold**" {
		t.Errorf("content = %v, want **bold**", md["content"])
	}
}

func TestSendRequiresConnection(t *testing.T) {
	g := New(config.WeWorkConfig{Enabled: true, WebhookURL: "http://example.invalid"})
	err := g.SendMessage(context.Background(), "c", "hi")
	if !errors.Is(err, gateway.ErrNotConnected) {
		t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	g := New(config.WeWorkConfig{Enabled: true, WebhookURL: "http://example.invalid"})
	ctx := context.Background()

	if err := g.SendMediaMessage(ctx, "c", "/tmp/f"); !errors.Is(err, gateway.ErrUnsupported) {
		t.Errorf("SendMediaMessage() error = %v, want ErrUnsupported", err)
	}
	if err := g.EditMessage(ctx, "c", "m", "t"); !errors.Is(err, gateway.ErrUnsupported) {
		t.Errorf("EditMessage() error = %v, want ErrUnsupported", err)
	}
	if err := g.DeleteMessage(ctx, "c", "m"); !errors.Is(err, gateway.ErrUnsupported) {
		t.Errorf("DeleteMessage() error = %v, want ErrUnsupported", err)
	}
	if _, err := g.MessageHistory(ctx, "c", 10); !errors.Is(err, gateway.ErrUnsupported) {
		t.Errorf("MessageHistory() error = %v, want ErrUnsupported", err)
	}
}

func TestConnectivityChecks(t *testing.T) {
	g := New(config.WeWorkConfig{Enabled: true})
	report := g.TestConnectivity(context.Background())
	if report.Verdict != gateway.LevelFail {
		t.Errorf("Verdict = %s without webhook_url, want fail", report.Verdict)
	}
	if report.Checks[len(report.Checks)-1].Code != "missing_webhook_url" {
		t.Errorf("unexpected checks: %+v", report.Checks)
	}

	g = New(config.WeWorkConfig{Enabled: true, WebhookURL: "https://example.com/hook"})
	report = g.TestConnectivity(context.Background())
	if report.Verdict != gateway.LevelWarn {
		t.Errorf("Verdict = %s for configured but stopped gateway, want warn", report.Verdict)
	}
}
