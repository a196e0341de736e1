package aggregate

import "github.com/Wuchinator/product-analytics/internal/event"

// retentionTracker records which UTC days every user was active on, and the
// first time each user fired the retention event (their cohort start).
type retentionTracker struct {
	event   string
	offsets []int
	users   *userTable
	cohort  []*userState
}

func newRetentionTracker(eventName string, offsets []int, users *userTable) *retentionTracker {
	return &retentionTracker{
		event:   eventName,
		offsets: offsets,
		users:   users,
	}
}

func (r *retentionTracker) Observe(ev *event.Event) {
	u := r.users.get(ev.UserID)
	u.activeDays[dayOf(ev.OccurredAt)] = struct{}{}

	if ev.EventName == r.event && !u.inCohort {
		u.inCohort = true
		u.cohortStart = ev.OccurredAt
		r.cohort = append(r.cohort, u)
	}
}

func (r *retentionTracker) result() Retention {
	rows := make([]RetentionRow, 0, len(r.offsets))
	for _, offset := range r.offsets {
		retained := 0
		for _, u := range r.cohort {
			if u.activeOn(addDays(dayOf(u.cohortStart), offset)) {
				retained++
			}
		}
		rows = append(rows, RetentionRow{
			Day:        offset,
			Retained:   retained,
			Percentage: percent(retained, len(r.cohort)),
		})
	}

	return Retention{
		CohortSize: len(r.cohort),
		Rows:       rows,
	}
}
