package gateway

import (
	"testing"
	"time"
)

func TestDedupCheckAndMark(t *testing.T) {
	c := NewDedupCache()

	if c.CheckAndMark("m1", time.Minute) {
		t.Error("first CheckAndMark = true, want false")
	}
	if !c.CheckAndMark("m1", time.Minute) {
		t.Error("duplicate CheckAndMark = false, want true")
	}
	if c.CheckAndMark("m2", time.Minute) {
		t.Error("unrelated ID reported as duplicate")
	}
}

func TestDedupExpiry(t *testing.T) {
	c := NewDedupCache()

	c.seen["m1"] = time.Now().Add(-2 * time.Minute)

	// Expired entries count as new exactly once: the check re-marks them.
	if c.CheckAndMark("m1", time.Minute) {
		t.Error("expired entry reported as duplicate")
	}
	if !c.CheckAndMark("m1", time.Minute) {
		t.Error("re-marked entry not reported as duplicate")
	}
}

func TestDedupSweep(t *testing.T) {
	c := NewDedupCache()

	c.CheckAndMark("fresh", time.Minute)
	c.seen["old"] = time.Now().Add(-10 * time.Minute)

	c.Sweep()
	if got := c.Len(); got != 1 {
		t.Errorf("Len() after sweep = %d, want 1", got)
	}
	if c.CheckAndMark("old", time.Minute) {
		t.Error("swept entry reported as duplicate")
	}
}
