package aggregate

import "github.com/Wuchinator/product-analytics/internal/event"

// funnelTracker advances each user through the funnel steps in order.
//
// Step 0 is recorded on its first occurrence. Step i>0 is recorded on the
// first event of that name strictly later than the user's step i-1 time;
// events for a step whose prerequisite is missing are dropped. An event at
// exactly the prerequisite's timestamp does not progress the user.
type funnelTracker struct {
	steps   []string
	index   map[string]int
	reached []int
	users   *userTable
}

func newFunnelTracker(steps []string, users *userTable) *funnelTracker {
	index := make(map[string]int, len(steps))
	for i, name := range steps {
		// A repeated name resolves to its first position.
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return &funnelTracker{
		steps:   steps,
		index:   index,
		reached: make([]int, len(steps)),
		users:   users,
	}
}

func (f *funnelTracker) Observe(ev *event.Event) {
	step, ok := f.index[ev.EventName]
	if !ok {
		return
	}

	u := f.users.get(ev.UserID)
	if len(u.steps) != step {
		// Either the prerequisite is missing or the step is already recorded.
		return
	}
	if step > 0 && !ev.OccurredAt.After(u.steps[step-1]) {
		return
	}

	u.steps = append(u.steps, ev.OccurredAt)
	f.reached[step]++
}

func (f *funnelTracker) result() []FunnelStep {
	out := make([]FunnelStep, len(f.steps))
	for i, name := range f.steps {
		out[i] = FunnelStep{Step: name, Users: f.reached[i]}
	}
	return out
}

// conversionRate is last-step users over first-step users, in percent.
func (f *funnelTracker) conversionRate() float64 {
	if len(f.reached) == 0 {
		return 0
	}
	return percent(f.reached[len(f.reached)-1], f.reached[0])
}
