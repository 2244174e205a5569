package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	// 20 tokens per second, burst of 2
	l := NewLimiter(20, 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx, 1); err != nil {
			t.Fatalf("burst token %d: %v", i, err)
		}
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Error("burst tokens must not block")
	}

	start = time.Now()
	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Wait returned before the bucket refilled")
	}
}

func TestLimiter_WaitHonoursCancellation(t *testing.T) {
	l := NewLimiter(0.5, 1)
	if err := l.Wait(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, 1); err == nil {
		t.Fatal("expected Wait to give up when the refill outlasts the context")
	}
}

func TestUnlimited(t *testing.T) {
	l := Unlimited()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx, 1); err != nil {
			t.Fatalf("unlimited limiter blocked token %d: %v", i, err)
		}
	}
}
