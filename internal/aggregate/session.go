package aggregate

import (
	"time"

	"github.com/Wuchinator/product-analytics/internal/event"
)

type session struct {
	start time.Time
	end   time.Time
	pages []string
}

func (s *session) duration() time.Duration {
	return s.end.Sub(s.start)
}

// sessionTracker rebuilds sessions from the session id events carry. Events
// without one are skipped here and only here.
type sessionTracker struct {
	byID  map[string]*session
	order []*session
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{byID: make(map[string]*session)}
}

func (t *sessionTracker) Observe(ev *event.Event) {
	id, ok := ev.Session()
	if !ok {
		return
	}

	s, ok := t.byID[id]
	if !ok {
		s = &session{start: ev.OccurredAt, end: ev.OccurredAt}
		t.byID[id] = s
		t.order = append(t.order, s)
	}
	// Sessions interleave in the stream, so widen both bounds every time.
	if ev.OccurredAt.Before(s.start) {
		s.start = ev.OccurredAt
	}
	if ev.OccurredAt.After(s.end) {
		s.end = ev.OccurredAt
	}

	if ev.IsPageView() {
		if path, ok := ev.Path(); ok {
			s.pages = append(s.pages, path)
		}
	}
}

func (t *sessionTracker) result() SessionSummary {
	entries := newCounter()
	exits := newCounter()

	var total time.Duration
	pages := 0
	for _, s := range t.order {
		total += s.duration()
		pages += len(s.pages)

		if len(s.pages) == 0 {
			continue
		}
		entries.inc(s.pages[0])
		exits.inc(s.pages[len(s.pages)-1])
	}

	summary := SessionSummary{
		Count:      len(t.order),
		EntryPages: entries.pathCounts(),
		ExitPages:  exits.pathCounts(),
	}
	if summary.Count > 0 {
		summary.AvgDurationMs = float64(total) / float64(time.Millisecond) / float64(summary.Count)
		summary.AvgPagesPerSession = float64(pages) / float64(summary.Count)
	}
	return summary
}
