package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 3, Sleep: noSleep}, func() error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDoWrapsLastError(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), Config{Attempts: 3, Sleep: noSleep}, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoUsesLinearBackoff(t *testing.T) {
	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	_ = Do(context.Background(), Config{Attempts: 4, Backoff: Linear(5 * time.Second), Sleep: sleep}, func() error {
		return errors.New("fail")
	})
	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
	if diff := cmp.Diff(want, delays); diff != "" {
		t.Fatalf("unexpected delays (-want +got):\n%s", diff)
	}
}

func TestDoHonoursCancellationWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Config{Attempts: 5, Backoff: Linear(time.Hour)}, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestExponentialCapsAtMax(t *testing.T) {
	backoff := Exponential(100*time.Millisecond, time.Second, 0)
	cases := map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		4: 800 * time.Millisecond,
		5: time.Second,
		9: time.Second,
	}
	for attempt, want := range cases {
		if got := backoff(attempt); got != want {
			t.Fatalf("backoff(%d)=%v want %v", attempt, got, want)
		}
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), Config{
		Attempts:  5,
		Sleep:     noSleep,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected wrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
