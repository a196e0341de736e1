package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type Repository interface {
	SaveSnapshot(ctx context.Context, key SnapshotKey, snap *aggregate.Snapshot) error
	LatestSnapshot(ctx context.Context, key SnapshotKey) (*aggregate.Snapshot, error)
}

type repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRepository(db *sqlx.DB, logger *zap.Logger) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

func (r *repository) SaveSnapshot(ctx context.Context, key SnapshotKey, snap *aggregate.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO analytics_snapshots (project_id, range_days, retention_event, config_digest, generated_at, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id, range_days, retention_event, config_digest)
		DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
		WHERE analytics_snapshots.generated_at <= EXCLUDED.generated_at
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		key.ProjectID,
		key.RangeDays,
		key.RetentionEvent,
		key.ConfigDigest,
		snap.GeneratedAt,
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save snapshot", zap.Error(err))
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	r.logger.Debug("Snapshot saved",
		zap.String("project_id", key.ProjectID.String()),
		zap.Int("range_days", key.RangeDays),
		zap.String("retention_event", key.RetentionEvent),
		zap.String("config_digest", key.ConfigDigest),
		zap.Time("generated_at", snap.GeneratedAt),
	)

	return nil
}

func (r *repository) LatestSnapshot(ctx context.Context, key SnapshotKey) (*aggregate.Snapshot, error) {
	query := `
		SELECT project_id, range_days, retention_event, config_digest, generated_at, payload, updated_at
		FROM analytics_snapshots
		WHERE project_id = $1 AND range_days = $2 AND retention_event = $3 AND config_digest = $4
	`

	var row StoredSnapshot
	err := r.db.GetContext(ctx, &row, query, key.ProjectID, key.RangeDays, key.RetentionEvent, key.ConfigDigest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	snap, err := row.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored snapshot: %w", err)
	}
	return snap, nil
}
