package aggregate

import (
	"sort"
	"time"

	"github.com/Wuchinator/product-analytics/internal/event"
)

// counter tallies keys and remembers the order they were first seen in,
// which is the tie-break when ranking.
type counter struct {
	index  map[string]int
	keys   []string
	counts []int
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) inc(key string) {
	i, ok := c.index[key]
	if !ok {
		i = len(c.keys)
		c.index[key] = i
		c.keys = append(c.keys, key)
		c.counts = append(c.counts, 0)
	}
	c.counts[i]++
}

func (c *counter) get(key string) int {
	if i, ok := c.index[key]; ok {
		return c.counts[i]
	}
	return 0
}

// ranked returns key positions ordered by count descending, first-seen on ties.
func (c *counter) ranked() []int {
	order := make([]int, len(c.keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.counts[order[a]] > c.counts[order[b]]
	})
	return order
}

func (c *counter) pathCounts() []PathCount {
	out := make([]PathCount, 0, len(c.keys))
	for _, i := range c.ranked() {
		out = append(out, PathCount{Path: c.keys[i], Count: c.counts[i]})
	}
	return out
}

func (c *counter) eventCounts() []EventCount {
	out := make([]EventCount, 0, len(c.keys))
	for _, i := range c.ranked() {
		out = append(out, EventCount{EventName: c.keys[i], Count: c.counts[i]})
	}
	return out
}

// breakdown counts page views per day and path, and events per name.
// It is a pure frequency count: the order events arrive in does not matter.
type breakdown struct {
	viewsByDate  map[time.Time]int
	viewsByPath  *counter
	eventsByName *counter
	pageViews    int
}

func newBreakdown() *breakdown {
	return &breakdown{
		viewsByDate:  make(map[time.Time]int),
		viewsByPath:  newCounter(),
		eventsByName: newCounter(),
	}
}

func (b *breakdown) Observe(ev *event.Event) {
	b.eventsByName.inc(ev.EventName)

	if !ev.IsPageView() {
		return
	}
	b.pageViews++
	b.viewsByDate[dayOf(ev.OccurredAt)]++

	path, ok := ev.Path()
	if !ok {
		path = UnknownPath
	}
	b.viewsByPath.inc(path)
}

func (b *breakdown) dates() []DateCount {
	days := make([]time.Time, 0, len(b.viewsByDate))
	for day := range b.viewsByDate {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]DateCount, 0, len(days))
	for _, day := range days {
		out = append(out, DateCount{Date: day.Format(dateLayout), Count: b.viewsByDate[day]})
	}
	return out
}
