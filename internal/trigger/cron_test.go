package trigger

import (
	"context"
	"testing"
	"time"
)

func TestCronValidate(t *testing.T) {
	cases := []struct {
		schedule, timezone string
		wantErr            bool
	}{
		{"0 8 * * *", "", false},
		{"@daily", "Europe/Amsterdam", false},
		{"", "", true},
		{"every morning", "", true},
		{"0 8 * * *", "Nowhere/Special", true},
	}
	for _, tc := range cases {
		err := NewCron(tc.schedule, tc.timezone).Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("Validate(%q, %q) error = %v, wantErr %v", tc.schedule, tc.timezone, err, tc.wantErr)
		}
	}
}

func TestCronNext(t *testing.T) {
	now := time.Date(2026, time.October, 19, 7, 30, 0, 0, time.UTC)
	next, err := NewCron("0 8 * * *", "").Next(now)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if want := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
}

func TestCronNextUsesTimezone(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 07:30 UTC is 09:30 in Amsterdam (CEST), past today's 08:00 firing.
	now := time.Date(2026, time.October, 19, 7, 30, 0, 0, time.UTC)
	next, err := NewCron("0 8 * * *", "Europe/Amsterdam").Next(now)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if want := time.Date(2026, time.October, 20, 8, 0, 0, 0, amsterdam); !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
}

func TestOfferDropsWhenFull(t *testing.T) {
	events := make(chan Event, 1)
	offer(events, Event{Timestamp: time.Unix(1, 0)})
	offer(events, Event{Timestamp: time.Unix(2, 0)})
	if got := (<-events).Timestamp; !got.Equal(time.Unix(1, 0)) {
		t.Fatalf("expected first event to be kept, got %v", got)
	}
	select {
	case e := <-events:
		t.Fatalf("second event should have been dropped, got %v", e)
	default:
	}
}

func TestCronStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events, err := NewCron("@hourly", "").Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected channel to close without events")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed after cancel")
	}
}
