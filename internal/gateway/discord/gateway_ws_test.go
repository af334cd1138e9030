package discord

import (
	"encoding/json"
	"testing"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

func newTestGateway(t *testing.T) (*Gateway, *[]gateway.Message) {
	t.Helper()
	g, err := New(config.DiscordConfig{Enabled: true, BotToken: "token"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	g.mu.Lock()
	g.botUserID = "bot-1"
	g.mu.Unlock()

	var messages []gateway.Message
	g.SetEventCallback(func(name string, ev gateway.Event) {
		if ev.Type == gateway.EventMessage {
			messages = append(messages, *ev.Message)
		}
	})
	return g, &messages
}

func TestHandleMessageCreate(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantCount   int
		wantMention bool
	}{
		{
			name:      "plain message",
			payload:   `{"id":"m1","channel_id":"c1","content":"hi","author":{"id":"u1","username":"alice"}}`,
			wantCount: 1,
		},
		{
			name:      "bot author skipped",
			payload:   `{"id":"m2","channel_id":"c1","content":"hi","author":{"id":"u2","username":"robo","bot":true}}`,
			wantCount: 0,
		},
		{
			name:      "own message skipped",
			payload:   `{"id":"m3","channel_id":"c1","content":"hi","author":{"id":"bot-1","username":"self"}}`,
			wantCount: 0,
		},
		{
			name:      "empty content skipped",
			payload:   `{"id":"m4","channel_id":"c1","content":"","author":{"id":"u1"}}`,
			wantCount: 0,
		},
		{
			name:        "direct mention",
			payload:     `{"id":"m5","channel_id":"c1","content":"<@bot-1> hi","author":{"id":"u1"},"mentions":[{"id":"bot-1"}]}`,
			wantCount:   1,
			wantMention: true,
		},
		{
			name:        "mention everyone",
			payload:     `{"id":"m6","channel_id":"c1","content":"@everyone","author":{"id":"u1"},"mention_everyone":true}`,
			wantCount:   1,
			wantMention: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, messages := newTestGateway(t)
			g.handleMessageCreate(json.RawMessage(tt.payload))

			if len(*messages) != tt.wantCount {
				t.Fatalf("got %d messages, want %d", len(*messages), tt.wantCount)
			}
			if tt.wantCount == 1 && (*messages)[0].IsMention != tt.wantMention {
				t.Errorf("IsMention = %v, want %v", (*messages)[0].IsMention, tt.wantMention)
			}
		})
	}
}

func TestWSConnSeqTracking(t *testing.T) {
	c := &wsConn{}

	if got := c.lastSeq(); got != nil {
		t.Errorf("lastSeq() = %v before any frame, want nil", got)
	}

	c.setSeq(42)
	got := c.lastSeq()
	if got == nil || *got != 42 {
		t.Errorf("lastSeq() = %v, want 42", got)
	}

	c.setSeq(43)
	got = c.lastSeq()
	if got == nil || *got != 43 {
		t.Errorf("lastSeq() = %v, want 43", got)
	}
}
