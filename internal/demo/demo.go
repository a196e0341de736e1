// Package demo generates a deterministic synthetic event log for a project:
// browsing sessions, the signup funnel and return visits.
package demo

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/google/uuid"
)

// ProjectID is the fixed demo tenant.
var ProjectID = uuid.MustParse("5f0c7a52-3b1e-4c8a-9d2f-6a1b0c9e7d41")

var paths = []string{"/", "/pricing", "/features", "/docs", "/blog", "/signup"}

type Options struct {
	ProjectID uuid.UUID
	Users     int
	Days      int
	Seed      uint64
	// End is the newest moment an event may carry.
	End time.Time
}

func DefaultOptions(end time.Time) Options {
	return Options{
		ProjectID: ProjectID,
		Users:     200,
		Days:      30,
		Seed:      42,
		End:       end,
	}
}

// Generate returns the events sorted by occurrence time. Equal options always
// produce an equal log, including event ids.
func Generate(opts Options) []*event.Event {
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(opts.Users)))
	start := opts.End.UTC().AddDate(0, 0, -opts.Days)

	var events []*event.Event
	emit := func(user, name, session string, at time.Time, props map[string]any) {
		if at.After(opts.End) {
			return
		}
		ev := event.NewEvent(opts.ProjectID, user, name, at, props)
		ev.ID = uuid.NewSHA1(opts.ProjectID, fmt.Appendf(nil, "%d/%s/%s/%d", len(events), user, name, at.UnixNano()))
		if session != "" {
			ev.InSession(session)
		}
		events = append(events, ev)
	}

	for u := 0; u < opts.Users; u++ {
		user := fmt.Sprintf("user-%04d", u)
		first := start.Add(time.Duration(rng.Int64N(int64(opts.Days) * int64(24*time.Hour))))
		visits := 1 + rng.IntN(4)

		at := first
		for v := 0; v < visits; v++ {
			session := fmt.Sprintf("%s-s%d", user, v)
			pages := 1 + rng.IntN(5)
			for p := 0; p < pages; p++ {
				emit(user, event.EventNamePageView, session, at, map[string]any{"path": paths[rng.IntN(len(paths))]})
				at = at.Add(time.Duration(5+rng.IntN(120)) * time.Second)
				if rng.IntN(3) == 0 {
					emit(user, event.EventNameClick, session, at, map[string]any{"target": "cta"})
					at = at.Add(time.Second)
				}
			}

			if v == 0 && rng.IntN(2) == 0 {
				emit(user, event.EventNameSignupStarted, session, at, nil)
				at = at.Add(time.Duration(30+rng.IntN(300)) * time.Second)
				if rng.IntN(3) > 0 {
					emit(user, event.EventNameSignupCompleted, session, at, map[string]any{"plan": "free"})
				}
			}

			at = at.Add(time.Duration(1+rng.IntN(5*24)) * time.Hour)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events
}
