package gateway

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff()

	want := []time.Duration{
		3 * time.Second,
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
		48 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next()[%d] = %s, want %s", i, got, w)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff()

	b.Next()
	b.Next()
	b.Reset()
	if got := b.Next(); got != 3*time.Second {
		t.Errorf("Next() after Reset = %s, want 3s", got)
	}
}
