package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageTypeRecompute tags the notices sent after new events were stored.
const MessageTypeRecompute = "analytics.recompute"

var ErrEmptyBatch = errors.New("no events provided")

type Publisher interface {
	Publish(ctx context.Context, key, messageType string, value any) error
}

// recomputeNotice is decoded on the consumer side as a recompute request
// with default options.
type recomputeNotice struct {
	ProjectID   uuid.UUID `json:"project_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type Service struct {
	repo      Repository
	publisher Publisher
	logger    *zap.Logger
}

// NewService wires the event store. publisher may be nil, in which case no
// recompute notices are sent.
func NewService(repo Repository, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Ingest stores a batch and asks for every project that received new events
// to be recomputed. Invalid events are skipped; the number of stored events
// is returned.
func (s *Service) Ingest(ctx context.Context, events []*Event) (int, error) {
	if len(events) == 0 {
		return 0, ErrEmptyBatch
	}

	s.logger.Info("Ingesting events", zap.Int("events", len(events)))

	stored, err := s.repo.CreateBatch(ctx, events)
	if err != nil {
		s.logger.Error("Failed to store event batch", zap.Error(err))
		return 0, fmt.Errorf("failed to save batch: %w", err)
	}

	if s.publisher == nil {
		return len(stored), nil
	}

	seen := make(map[uuid.UUID]struct{})
	now := time.Now().UTC()
	for _, ev := range stored {
		if _, ok := seen[ev.ProjectID]; ok {
			continue
		}
		seen[ev.ProjectID] = struct{}{}

		notice := recomputeNotice{ProjectID: ev.ProjectID, RequestedAt: now}
		if err := s.publisher.Publish(ctx, ev.ProjectID.String(), MessageTypeRecompute, notice); err != nil {
			s.logger.Error("Failed to request recompute",
				zap.String("project_id", ev.ProjectID.String()),
				zap.Error(err),
			)
		}
	}

	return len(stored), nil
}

// Window returns the events of a project at or after since, oldest first.
func (s *Service) Window(ctx context.Context, projectID uuid.UUID, since time.Time) ([]*Event, error) {
	if projectID == uuid.Nil {
		return nil, ErrInvalidProjectID
	}

	events, err := s.repo.ListWindow(ctx, projectID, since)
	if err != nil {
		s.logger.Error("Failed to load event window",
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return events, nil
}
