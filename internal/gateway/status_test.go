package gateway

import (
	"errors"
	"testing"
)

func collectEvents(b *Base) *[]Event {
	var events []Event
	b.SetEventCallback(func(gateway string, ev Event) {
		events = append(events, ev)
	})
	return &events
}

func TestBaseBeginStartIdempotent(t *testing.T) {
	b := NewBase("test", true)

	if !b.BeginStart() {
		t.Fatal("first BeginStart() = false, want true")
	}
	if b.BeginStart() {
		t.Error("BeginStart() while starting = true, want false")
	}

	b.MarkConnected()
	if b.BeginStart() {
		t.Error("BeginStart() while connected = true, want false")
	}

	b.MarkStopped()
	if !b.BeginStart() {
		t.Error("BeginStart() after stop = false, want true")
	}
}

func TestBaseConnectedAndStartingExclusive(t *testing.T) {
	b := NewBase("test", true)

	b.BeginStart()
	st := b.Status()
	if !st.Starting || st.Connected {
		t.Errorf("after BeginStart: starting=%v connected=%v, want true/false", st.Starting, st.Connected)
	}

	b.MarkConnected()
	st = b.Status()
	if st.Starting || !st.Connected {
		t.Errorf("after MarkConnected: starting=%v connected=%v, want false/true", st.Starting, st.Connected)
	}
	if st.StartedAt == 0 {
		t.Error("MarkConnected did not stamp started_at")
	}
}

func TestBaseErrorLifecycle(t *testing.T) {
	b := NewBase("test", true)

	b.BeginStart()
	b.FailStart(errors.New("dial refused"))

	st := b.Status()
	if st.Error != "dial refused" || st.LastError != "dial refused" {
		t.Errorf("after FailStart: error=%q last_error=%q", st.Error, st.LastError)
	}
	if st.Starting || st.Connected {
		t.Error("FailStart left the adapter starting or connected")
	}

	// A fresh start clears the current error but keeps last_error.
	b.BeginStart()
	st = b.Status()
	if st.Error != "" {
		t.Errorf("BeginStart kept error %q", st.Error)
	}
	if st.LastError != "dial refused" {
		t.Errorf("BeginStart cleared last_error, got %q", st.LastError)
	}
}

func TestBaseMarkStoppedClearsError(t *testing.T) {
	b := NewBase("test", true)

	b.BeginStart()
	b.MarkConnected()
	b.RecordError(errors.New("transient fault"))
	b.MarkStopped()

	st := b.Status()
	if st.Connected || st.Starting {
		t.Errorf("after stop: starting=%v connected=%v, want false/false", st.Starting, st.Connected)
	}
	if st.Error != "" {
		t.Errorf("after stop: error=%q, want empty", st.Error)
	}
	if st.LastError != "transient fault" {
		t.Errorf("stop cleared last_error, got %q", st.LastError)
	}
}

func TestBaseEventSequence(t *testing.T) {
	b := NewBase("test", true)
	events := collectEvents(b)

	b.BeginStart()
	b.MarkConnected()
	b.MarkStopped()

	want := []EventType{EventStatusChanged, EventStatusChanged, EventConnected, EventStatusChanged, EventDisconnected}
	if len(*events) != len(want) {
		t.Fatalf("got %d events, want %d", len(*events), len(want))
	}
	for i, ev := range *events {
		if ev.Type != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, ev.Type, want[i])
		}
	}
}

func TestBaseMarkStoppedSilentWhenDown(t *testing.T) {
	b := NewBase("test", true)
	events := collectEvents(b)

	b.MarkStopped()
	if len(*events) != 0 {
		t.Errorf("MarkStopped on a stopped adapter emitted %d events", len(*events))
	}
}

func TestBaseEmitMessage(t *testing.T) {
	b := NewBase("test", true)
	events := collectEvents(b)

	b.EmitMessage(Message{ID: "m1", Content: "hello"})

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	ev := (*events)[0]
	if ev.Type != EventMessage || ev.Message == nil || ev.Message.ID != "m1" {
		t.Errorf("unexpected message event: %+v", ev)
	}
	if b.Status().LastInboundAt == 0 {
		t.Error("EmitMessage did not stamp last_inbound_at")
	}
}

func TestBaseCallbackReplaced(t *testing.T) {
	b := NewBase("test", true)

	first := 0
	b.SetEventCallback(func(string, Event) { first++ })
	b.RecordError(errors.New("x"))

	second := 0
	b.SetEventCallback(func(string, Event) { second++ })
	b.RecordError(errors.New("y"))

	if first != 1 || second != 1 {
		t.Errorf("first=%d second=%d, want 1/1", first, second)
	}
}
