package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

func TestMediaKind(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{"jpg", "image"},
		{"jpeg", "image"},
		{"png", "image"},
		{"webp", "image"},
		{"mp4", "video"},
		{"mov", "video"},
		{"mp3", "audio"},
		{"ogg", "audio"},
		{"pdf", "document"},
		{"docx", "document"},
		{"zip", "document"},
		{"exe", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := mediaKind(tt.ext); got != tt.want {
			t.Errorf("mediaKind(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestAPIURLDefaultsVersion(t *testing.T) {
	g := New(config.WhatsAppConfig{PhoneNumberID: "123"})
	if got := g.messagesURL(); got != "https://graph.facebook.com/v18.0/123/messages" {
		t.Errorf("messagesURL() = %q", got)
	}

	g = New(config.WhatsAppConfig{PhoneNumberID: "123", APIVersion: "v20.0"})
	if got := g.messagesURL(); got != "https://graph.facebook.com/v20.0/123/messages" {
		t.Errorf("messagesURL() = %q", got)
	}
}

func TestStartValidatesConfigSeparately(t *testing.T) {
	ctx := context.Background()

	g := New(config.WhatsAppConfig{Enabled: true, AccessToken: "tok"})
	if err := g.Start(ctx); err == nil || g.Status().LastError == "" {
		t.Error("Start() without phone_number_id did not record an error")
	}

	g = New(config.WhatsAppConfig{Enabled: true, PhoneNumberID: "123"})
	if err := g.Start(ctx); err == nil || g.Status().LastError == "" {
		t.Error("Start() without access_token did not record an error")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	g := New(config.WhatsAppConfig{})
	if err := g.Start(context.Background()); err != nil {
		t.Errorf("Start() on disabled gateway = %v, want nil", err)
	}
	if g.IsConnected() {
		t.Error("disabled gateway reported connected")
	}
}

func TestUnsupportedOperations(t *testing.T) {
	g := New(config.WhatsAppConfig{Enabled: true})
	ctx := context.Background()

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

func TestSendMediaRejectsUnknownExtension(t *testing.T) {
	g := New(config.WhatsAppConfig{Enabled: true, PhoneNumberID: "123", AccessToken: "tok"})
	g.MarkConnected()

	err := g.SendMediaMessage(context.Background(), "155", "/tmp/payload.exe")
	if !errors.Is(err, gateway.ErrUnsupported) {
		t.Errorf("SendMediaMessage() error = %v, want ErrUnsupported", err)
	}
}

func TestConnectivityMissingCredentials(t *testing.T) {
	g := New(config.WhatsAppConfig{Enabled: true})
	report := g.TestConnectivity(context.Background())

	if report.Verdict != gateway.LevelFail {
		t.Fatalf("Verdict = %s, want fail", report.Verdict)
	}
	last := report.Checks[len(report.Checks)-1]
	if last.Code != "missing_credentials" {
		t.Errorf("unexpected check: %+v", last)
	}
}

func TestRecordInboundTracksSender(t *testing.T) {
	g := New(config.WhatsAppConfig{Enabled: true})
	g.RecordInbound("15551234567")

	g.mu.Lock()
	got := g.lastChatID
	g.mu.Unlock()
	if got != "15551234567" {
		t.Errorf("lastChatID = %q", got)
	}
	if g.Status().LastInboundAt == 0 {
		t.Error("RecordInbound did not stamp last_inbound_at")
	}
}
