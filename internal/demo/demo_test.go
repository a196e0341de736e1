package demo

import (
	"testing"
	"time"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var end = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(DefaultOptions(end))
	b := Generate(DefaultOptions(end))

	require.NotEmpty(t, a)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].EventName, b[i].EventName)
		assert.True(t, a[i].OccurredAt.Equal(b[i].OccurredAt))
	}
}

func TestGenerate_Shape(t *testing.T) {
	opts := DefaultOptions(end)
	events := Generate(opts)

	ids := make(map[string]struct{}, len(events))
	start := end.AddDate(0, 0, -opts.Days)
	for i, ev := range events {
		require.NoError(t, ev.Validate())
		assert.False(t, ev.OccurredAt.Before(start))
		assert.False(t, ev.OccurredAt.After(end))
		if i > 0 {
			assert.False(t, ev.OccurredAt.Before(events[i-1].OccurredAt))
		}
		ids[ev.ID.String()] = struct{}{}
	}
	assert.Len(t, ids, len(events))
}

func TestGenerate_Aggregates(t *testing.T) {
	opts := DefaultOptions(end)
	agg := aggregate.DefaultOptions()
	agg.ProjectID = opts.ProjectID
	agg.GeneratedAt = end

	snap := aggregate.Compute(agg, Generate(opts))

	funnel := snap.FunnelUsers()
	require.Len(t, funnel, 3)
	assert.Equal(t, opts.Users, funnel[0])
	assert.Greater(t, funnel[1], 0)
	assert.GreaterOrEqual(t, funnel[1], funnel[2])
	assert.Greater(t, snap.KPIs.SessionCount, 0)
	assert.Greater(t, snap.Retention.CohortSize, 0)
	assert.NotContains(t, snap.PageBreakdown, aggregate.PathCount{Path: aggregate.UnknownPath})
}
