package gateway

import "time"

const (
	backoffInitial = 3 * time.Second
	backoffMax     = 60 * time.Second
)

// Backoff produces the reconnect delay sequence 3s, 6s, 12s, ... capped at
// 60s. Not safe for concurrent use; each adapter owns one and drives it
// from its connection loop, resetting on every fresh start attempt.
type Backoff struct {
	next time.Duration
}

func NewBackoff() *Backoff {
	return &Backoff{next: backoffInitial}
}

// Next returns the current delay and doubles the next one up to the cap.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > backoffMax {
		b.next = backoffMax
	}
	return d
}

// Reset returns the sequence to its initial delay.
func (b *Backoff) Reset() {
	b.next = backoffInitial
}
