package event

import (
	"context"
	"fmt"
	"time"

	"github.com/Wuchinator/product-analytics/pkg/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	ListWindow(ctx context.Context, projectID uuid.UUID, since time.Time) ([]*Event, error)
	ActiveProjects(ctx context.Context, since time.Time) ([]uuid.UUID, error)
	CreateBatch(ctx context.Context, events []*Event) ([]*Event, error)
}

type repository struct {
	db     *postgres.DB
	logger *zap.Logger
}

func NewRepository(db *postgres.DB, logger *zap.Logger) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// ListWindow returns every event of the project at or after since, oldest first.
// The id tie-break keeps equal timestamps in a stable order between calls.
func (r *repository) ListWindow(ctx context.Context, projectID uuid.UUID, since time.Time) ([]*Event, error) {
	query := `
		SELECT id, project_id, user_id, event_name, occurred_at, properties, session_id
		FROM events
		WHERE project_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC, id ASC
	`

	var events []*Event
	if err := r.db.SelectContext(ctx, &events, query, projectID, since); err != nil {
		r.logger.Error("Failed to list events",
			zap.Error(err),
			zap.String("project_id", projectID.String()),
		)
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	r.logger.Debug("Event window loaded",
		zap.String("project_id", projectID.String()),
		zap.Time("since", since),
		zap.Int("events", len(events)),
	)

	return events, nil
}

func (r *repository) ActiveProjects(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT project_id
		FROM events
		WHERE occurred_at >= $1
		ORDER BY project_id
	`

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, since); err != nil {
		return nil, fmt.Errorf("failed to list active projects: %w", err)
	}

	return ids, nil
}

// CreateBatch inserts the valid events of a batch in one transaction and
// returns the ones that were newly stored. Each insert runs under its own
// savepoint, so a rejected row leaves the rest of the batch intact.
func (r *repository) CreateBatch(ctx context.Context, events []*Event) ([]*Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO events (id, project_id, user_id, event_name, occurred_at, properties, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	stored := make([]*Event, 0, len(events))
	for _, event := range events {
		if err := event.Validate(); err != nil {
			r.logger.Warn("Invalid event in batch",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			continue
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT event_insert"); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		res, err := stmt.ExecContext(
			ctx,
			event.ID,
			event.ProjectID,
			event.UserID,
			event.EventName,
			event.OccurredAt,
			event.Properties,
			event.SessionID,
		)
		if err != nil {
			r.logger.Error("Failed to insert event in batch",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT event_insert"); err != nil {
				return nil, fmt.Errorf("failed to roll back to savepoint: %w", err)
			}
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT event_insert"); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}

		// Zero rows means the id was already stored.
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			stored = append(stored, event)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Batch insert completed",
		zap.Int("total", len(events)),
		zap.Int("inserted", len(stored)),
	)

	return stored, nil
}
