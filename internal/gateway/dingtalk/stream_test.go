package dingtalk

import (
	"testing"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

func newTestGateway() (*Gateway, *[]gateway.Message) {
	g := New(config.DingTalkConfig{Enabled: true, ClientID: "id", ClientSecret: "secret"})
	var messages []gateway.Message
	g.SetEventCallback(func(name string, ev gateway.Event) {
		if ev.Type == gateway.EventMessage {
			messages = append(messages, *ev.Message)
		}
	})
	return g, &messages
}

func TestHandleInboundText(t *testing.T) {
	g, messages := newTestGateway()

	g.handleInbound(`{
		"msgId": "m1",
		"msgtype": "text",
		"createAt": 1700000000000,
		"text": {"content": "hello"},
		"conversationType": "2",
		"conversationId": "cid123",
		"openConversationId": "ocid456",
		"senderStaffId": "staff1",
		"senderNick": "Alice"
	}`)

	if len(*messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(*messages))
	}
	m := (*messages)[0]
	if m.ID != "m1" || m.Platform != "dingtalk" || m.Content != "hello" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.ChannelID != "cid123" || m.UserID != "staff1" || m.UserName != "Alice" {
		t.Errorf("unexpected sender fields: %+v", m)
	}
	if m.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want seconds", m.Timestamp)
	}

	g.mu.Lock()
	conv := g.lastConv
	g.mu.Unlock()
	if conv == nil || conv.openConversationID != "ocid456" || conv.conversationType != "2" {
		t.Errorf("lastConv not recorded: %+v", conv)
	}
}

func TestHandleInboundMediaPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "image",
			data: `{"msgId":"m1","conversationId":"c","image":{"downloadCode":"dc"}}`,
			want: "[image]",
		},
		{
			name: "voice",
			data: `{"msgId":"m2","conversationId":"c","voice":{"downloadCode":"dc","duration":"3"}}`,
			want: "[voice]",
		},
		{
			name: "file",
			data: `{"msgId":"m3","conversationId":"c","file":{"downloadCode":"dc","fileName":"report.pdf"}}`,
			want: "[file: report.pdf]",
		},
		{
			name: "voice recognition wins",
			data: `{"msgId":"m4","conversationId":"c","content":{"recognition":"spoken words"},"voice":{"downloadCode":"dc"}}`,
			want: "spoken words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, messages := newTestGateway()
			g.handleInbound(tt.data)
			if len(*messages) != 1 {
				t.Fatalf("got %d messages, want 1", len(*messages))
			}
			if got := (*messages)[0].Content; got != tt.want {
				t.Errorf("Content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleInboundSkipsEmpty(t *testing.T) {
	g, messages := newTestGateway()

	g.handleInbound(`{"msgId":"m1","msgtype":"text","conversationId":"c"}`)
	g.handleInbound(`not json`)

	if len(*messages) != 0 {
		t.Errorf("got %d messages, want 0", len(*messages))
	}
}
