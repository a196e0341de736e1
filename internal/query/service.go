package query

import (
	"context"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/Wuchinator/product-analytics/internal/analytics"
	"go.uber.org/zap"
)

// SnapshotSource is the part of the analytics service the query API reads from.
type SnapshotSource interface {
	Compute(ctx context.Context, req analytics.Request) (*aggregate.Snapshot, error)
	Latest(ctx context.Context, req analytics.Request) (*aggregate.Snapshot, error)
}

type Service struct {
	source SnapshotSource
	logger *zap.Logger
}

func NewService(source SnapshotSource, logger *zap.Logger) *Service {
	return &Service{
		source: source,
		logger: logger,
	}
}

// GetSnapshot returns a fresh (possibly cached) snapshot, or the last
// persisted one when stored is set.
func (s *Service) GetSnapshot(ctx context.Context, req analytics.Request, stored bool) (*aggregate.Snapshot, error) {
	var (
		snap *aggregate.Snapshot
		err  error
	)
	if stored {
		snap, err = s.source.Latest(ctx, req)
	} else {
		snap, err = s.source.Compute(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Snapshot retrieved",
		zap.String("project_id", snap.ProjectID.String()),
		zap.Bool("stored", stored),
		zap.Int("range_days", snap.RangeDays),
		zap.Time("generated_at", snap.GeneratedAt),
	)
	return snap, nil
}
