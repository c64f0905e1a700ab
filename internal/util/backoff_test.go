package util

import (
	"context"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		0:  10 * time.Millisecond,
		1:  10 * time.Millisecond,
		2:  20 * time.Millisecond,
		4:  80 * time.Millisecond,
		6:  320 * time.Millisecond,
		50: 320 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := Backoff(10*time.Millisecond, attempt); got != want {
			t.Fatalf("attempt %d: want %v, got %v", attempt, want, got)
		}
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepContext(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("SleepContext ignored cancellation")
	}
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("SleepContext: %v", err)
	}
}
