package ratelimit

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiterRefills(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	l := New(2, 1)
	l.now = c.now

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if got := l.RetryAfter("a"); got != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", got)
	}
	if !l.Allow("b") {
		t.Errorf("keys are independent")
	}

	c.t = c.t.Add(1500 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatalf("token should have refilled")
	}
	if l.Allow("a") {
		t.Fatalf("only one and a half tokens refilled")
	}
}

func TestLimiterSweep(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	l := New(1, 1)
	l.now = c.now
	l.Allow("a")
	l.Allow("b")

	if n := l.Sweep(time.Minute); n != 0 {
		t.Fatalf("Sweep removed %d fresh buckets", n)
	}
	c.t = c.t.Add(2 * time.Minute)
	if n := l.Sweep(time.Minute); n != 2 {
		t.Fatalf("Sweep removed %d, want 2", n)
	}
}
