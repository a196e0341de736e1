package aggregate

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the result of one aggregation pass. It is assembled once and
// must be treated as read-only by every consumer.
type Snapshot struct {
	ProjectID      uuid.UUID `json:"projectId"`
	RangeDays      int       `json:"rangeDays"`
	RetentionEvent string    `json:"retentionEvent"`
	GeneratedAt    time.Time `json:"generatedAt"`
	EventCount     int       `json:"eventCount"`
	UniqueUsers    int       `json:"uniqueUsers"`

	KPIs            KPIs           `json:"kpis"`
	PageViewsByDate []DateCount    `json:"pageViewsByDate"`
	PageBreakdown   []PathCount    `json:"pageBreakdown"`
	EventBreakdown  []EventCount   `json:"eventBreakdown"`
	Funnel          []FunnelStep   `json:"funnel"`
	Retention       Retention      `json:"retention"`
	Sessions        SessionSummary `json:"sessions"`
}

type KPIs struct {
	SessionCount   int     `json:"sessionCount"`
	TotalPageViews int     `json:"totalPageViews"`
	ConversionRate float64 `json:"conversionRate"`
	Day1Retention  float64 `json:"day1Retention"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

type EventCount struct {
	EventName string `json:"eventName"`
	Count     int    `json:"count"`
}

type FunnelStep struct {
	Step  string `json:"step"`
	Users int    `json:"users"`
}

type Retention struct {
	CohortSize int            `json:"cohortSize"`
	Rows       []RetentionRow `json:"rows"`
}

type RetentionRow struct {
	Day        int     `json:"day"`
	Retained   int     `json:"retained"`
	Percentage float64 `json:"percentage"`
}

type SessionSummary struct {
	Count              int         `json:"count"`
	AvgDurationMs      float64     `json:"avgDurationMs"`
	AvgPagesPerSession float64     `json:"avgPagesPerSession"`
	EntryPages         []PathCount `json:"entryPages"`
	ExitPages          []PathCount `json:"exitPages"`
}

// Percentage returns the retention percentage for the given day offset,
// or 0 when that offset was not computed.
func (r Retention) Percentage(day int) float64 {
	for _, row := range r.Rows {
		if row.Day == day {
			return row.Percentage
		}
	}
	return 0
}

// FunnelUsers lists the per-step user counts in funnel order.
func (s *Snapshot) FunnelUsers() []int {
	users := make([]int, len(s.Funnel))
	for i, step := range s.Funnel {
		users[i] = step.Users
	}
	return users
}
