// Package aggregate derives a project's analytics snapshot from its ordered
// event log in one sequential pass. It performs no I/O; callers load the event
// window and hand it over already sorted by occurrence time.
package aggregate

import (
	"time"

	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/google/uuid"
)

const (
	DefaultRangeDays      = 30
	DefaultRetentionEvent = event.EventNameSignupCompleted
)

// UnknownPath labels page views whose path property is missing or not a scalar.
const UnknownPath = "unknown"

// DefaultFunnelSteps returns a fresh copy of the default conversion funnel.
func DefaultFunnelSteps() []string {
	return []string{
		event.EventNamePageView,
		event.EventNameSignupStarted,
		event.EventNameSignupCompleted,
	}
}

// DefaultRetentionOffsets returns a fresh copy of the default day offsets.
func DefaultRetentionOffsets() []int {
	return []int{1, 3, 7}
}

// Options configures one aggregation pass. ProjectID, RangeDays and
// GeneratedAt are copied into the snapshot as-is.
type Options struct {
	ProjectID   uuid.UUID
	RangeDays   int
	GeneratedAt time.Time

	FunnelSteps      []string
	RetentionEvent   string
	RetentionOffsets []int
}

func DefaultOptions() Options {
	return Options{
		RangeDays:        DefaultRangeDays,
		FunnelSteps:      DefaultFunnelSteps(),
		RetentionEvent:   DefaultRetentionEvent,
		RetentionOffsets: DefaultRetentionOffsets(),
	}
}
