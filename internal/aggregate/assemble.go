package aggregate

// assemble finalizes every tracker and composes the snapshot.
func (p *pass) assemble() *Snapshot {
	retention := p.retention.result()
	sessions := p.sessions.result()

	return &Snapshot{
		ProjectID:      p.opts.ProjectID,
		RangeDays:      p.opts.RangeDays,
		RetentionEvent: p.opts.RetentionEvent,
		GeneratedAt:    p.opts.GeneratedAt,
		EventCount:     p.events,
		UniqueUsers:    p.users.len(),

		KPIs: KPIs{
			SessionCount:   sessions.Count,
			TotalPageViews: p.breakdown.pageViews,
			ConversionRate: p.funnel.conversionRate(),
			Day1Retention:  retention.Percentage(1),
		},
		PageViewsByDate: p.breakdown.dates(),
		PageBreakdown:   p.breakdown.viewsByPath.pathCounts(),
		EventBreakdown:  p.breakdown.eventsByName.eventCounts(),
		Funnel:          p.funnel.result(),
		Retention:       retention,
		Sessions:        sessions,
	}
}
