package gateway

import (
	"context"
	"errors"
	"testing"
)

// fakeGateway is a scripted adapter for manager tests.
type fakeGateway struct {
	*Base
	startErr  error
	sendErr   error
	notified  []string
	sent      []string
	started   int
	stopped   int
	connected bool
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{Base: NewBase(name, true)}
}

func (f *fakeGateway) Start(ctx context.Context) error {
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	f.connected = true
	return nil
}

func (f *fakeGateway) Stop(ctx context.Context) error {
	f.stopped++
	f.connected = false
	return nil
}

func (f *fakeGateway) IsConnected() bool { return f.connected }

func (f *fakeGateway) SendNotification(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.notified = append(f.notified, text)
	return nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, conversationID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, conversationID+": "+text)
	return nil
}

func (f *fakeGateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	return ErrUnsupported
}

func (f *fakeGateway) EditMessage(ctx context.Context, conversationID, messageID, text string) error {
	return ErrUnsupported
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return ErrUnsupported
}

func (f *fakeGateway) MessageHistory(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	return nil, ErrUnsupported
}

func (f *fakeGateway) ReconnectIfNeeded(ctx context.Context) error {
	if !f.connected {
		return f.Start(ctx)
	}
	return nil
}

func TestManagerGetUnknown(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("nope"); !errors.Is(err, ErrUnknownGateway) {
		t.Errorf("Get() error = %v, want ErrUnknownGateway", err)
	}
}

func TestManagerRegistrationOrder(t *testing.T) {
	m := NewManager()
	m.Add(newFakeGateway("b"))
	m.Add(newFakeGateway("a"))
	m.Add(newFakeGateway("c"))

	want := []string{"b", "a", "c"}
	got := m.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestManagerStartAllContinuesAfterFailure(t *testing.T) {
	m := NewManager()
	bad := newFakeGateway("bad")
	bad.startErr = errors.New("dial refused")
	good := newFakeGateway("good")
	m.Add(bad)
	m.Add(good)

	m.StartAll(context.Background())

	if good.started != 1 {
		t.Errorf("good gateway started %d times, want 1", good.started)
	}
	if !good.IsConnected() {
		t.Error("good gateway not connected after StartAll")
	}
}

func TestManagerSendNotificationFanOut(t *testing.T) {
	m := NewManager()
	a := newFakeGateway("a")
	b := newFakeGateway("b")
	down := newFakeGateway("down")
	m.Add(a)
	m.Add(b)
	m.Add(down)

	ctx := context.Background()
	a.Start(ctx)
	b.Start(ctx)

	if err := m.SendNotification(ctx, "ping"); err != nil {
		t.Fatalf("SendNotification() error: %v", err)
	}
	if len(a.notified) != 1 || len(b.notified) != 1 {
		t.Errorf("notified a=%d b=%d, want 1/1", len(a.notified), len(b.notified))
	}
	if len(down.notified) != 0 {
		t.Error("disconnected gateway received the notification")
	}
}

func TestManagerSendNotificationAllFailed(t *testing.T) {
	m := NewManager()
	a := newFakeGateway("a")
	a.sendErr = errors.New("rate limited")
	m.Add(a)
	a.Start(context.Background())

	if err := m.SendNotification(context.Background(), "ping"); err == nil {
		t.Error("SendNotification() = nil, want error when nothing was delivered")
	}
}

func TestManagerCallbackInstalledOnAdd(t *testing.T) {
	m := NewManager()

	var got []string
	m.SetEventCallback(func(name string, ev Event) {
		got = append(got, name)
	})

	// Registered after the callback was set: Add must still install it.
	g := newFakeGateway("late")
	m.Add(g)
	g.EmitMessage(Message{ID: "m1"})

	if len(got) != 1 || got[0] != "late" {
		t.Errorf("callback saw %v, want [late]", got)
	}
}

func TestManagerMessageHandlerReply(t *testing.T) {
	m := NewManager()
	g := newFakeGateway("chat")
	m.Add(g)
	g.Start(context.Background())

	var observed []string
	m.SetEventCallback(func(name string, ev Event) {
		observed = append(observed, string(ev.Type))
	})
	m.SetMessageHandler(func(msg Message) (string, error) {
		return "pong: " + msg.Content, nil
	})

	g.EmitMessage(Message{ID: "m1", ChannelID: "42", Content: "ping"})

	if len(g.sent) != 1 || g.sent[0] != "42: pong: ping" {
		t.Errorf("reply sends = %v, want [42: pong: ping]", g.sent)
	}
	// The observer callback still sees the message event.
	if len(observed) != 1 || observed[0] != string(EventMessage) {
		t.Errorf("observer saw %v, want [message]", observed)
	}
}

func TestManagerMessageHandlerNoReply(t *testing.T) {
	m := NewManager()
	g := newFakeGateway("chat")
	m.Add(g)
	g.Start(context.Background())

	m.SetMessageHandler(func(msg Message) (string, error) {
		return "", nil
	})
	g.EmitMessage(Message{ID: "m1", ChannelID: "42", Content: "ping"})

	if len(g.sent) != 0 {
		t.Errorf("empty reply still sent: %v", g.sent)
	}
}

func TestManagerMessageHandlerError(t *testing.T) {
	m := NewManager()
	g := newFakeGateway("chat")
	m.Add(g)
	g.Start(context.Background())

	m.SetMessageHandler(func(msg Message) (string, error) {
		return "ignored", errors.New("model unavailable")
	})
	g.EmitMessage(Message{ID: "m1", ChannelID: "42", Content: "ping"})

	if len(g.sent) != 0 {
		t.Errorf("failed handler still sent a reply: %v", g.sent)
	}
}

func TestManagerTestConnectivityFallback(t *testing.T) {
	m := NewManager()
	m.Add(newFakeGateway("plain"))

	report, err := m.TestConnectivity(context.Background(), "plain")
	if err != nil {
		t.Fatalf("TestConnectivity() error: %v", err)
	}
	if len(report.Checks) != 1 || report.Checks[0].Code != "no_diagnostics" {
		t.Errorf("fallback report = %+v", report)
	}
}
