package aggregate

import (
	"time"

	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/google/uuid"
)

var (
	testProject = uuid.MustParse("4f6c1a52-8d0e-4c43-9b1f-2a7d5e9c0b11")
	t0          = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
)

func at(d time.Duration) time.Time {
	return t0.Add(d)
}

func ev(user, name string, occurredAt time.Time) *event.Event {
	return event.NewEvent(testProject, user, name, occurredAt, nil)
}

func view(user, path string, occurredAt time.Time) *event.Event {
	return event.NewEvent(testProject, user, event.EventNamePageView, occurredAt, map[string]any{"path": path})
}

func funnelOnly(steps ...string) Options {
	opts := DefaultOptions()
	opts.ProjectID = testProject
	if len(steps) > 0 {
		opts.FunnelSteps = steps
	}
	return opts
}
