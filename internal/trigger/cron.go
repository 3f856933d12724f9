// Package trigger emits run events on a cron schedule for daemon mode.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Event is one scheduled firing.
type Event struct {
	Timestamp time.Time
}

type Cron struct {
	schedule string
	timezone string

	mu     sync.Mutex
	cron   *cron.Cron
	events chan Event
}

func NewCron(schedule, timezone string) *Cron {
	return &Cron{schedule: schedule, timezone: timezone}
}

func (c *Cron) Validate() error {
	if c.schedule == "" {
		return fmt.Errorf("cron schedule is required")
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.schedule, err)
	}
	if c.timezone != "" {
		if _, err := time.LoadLocation(c.timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nil
}

// Start schedules the trigger and returns its event channel. Events are
// dropped while the previous one is still unconsumed, so a slow run never
// queues a backlog. The channel closes when ctx is done.
func (c *Cron) Start(ctx context.Context) (<-chan Event, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	location, err := c.location()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(chan Event, 1)
	c.cron = cron.New(cron.WithLocation(location))
	events := c.events
	if _, err := c.cron.AddFunc(c.schedule, func() { offer(events, Event{Timestamp: time.Now().UTC()}) }); err != nil {
		return nil, err
	}
	c.cron.Start()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return c.events, nil
}

// Next reports the next scheduled firing after now, in the schedule's timezone.
func (c *Cron) Next(now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(c.schedule)
	if err != nil {
		return time.Time{}, err
	}
	location, err := c.location()
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.In(location)), nil
}

// location is the configured timezone, UTC when unset.
func (c *Cron) location() (*time.Location, error) {
	if c.timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.timezone)
}

func (c *Cron) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		<-c.cron.Stop().Done()
		c.cron = nil
	}
	if c.events != nil {
		close(c.events)
		c.events = nil
	}
	return nil
}

func offer(events chan Event, event Event) {
	select {
	case events <- event:
	default:
	}
}
