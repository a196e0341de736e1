package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/Wuchinator/product-analytics/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type EventSource interface {
	ListWindow(ctx context.Context, projectID uuid.UUID, since time.Time) ([]*event.Event, error)
	ActiveProjects(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

type SnapshotCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type SnapshotPublisher interface {
	Publish(ctx context.Context, key, messageType string, value any) error
}

type Service struct {
	events    EventSource
	repo      Repository
	cache     SnapshotCache
	publisher SnapshotPublisher
	metrics   *Metrics
	settings  Settings
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

func WithCache(cache SnapshotCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithPublisher(publisher SnapshotPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(events EventSource, repo Repository, settings Settings, logger *zap.Logger, opts ...Option) *Service {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	s := &Service{
		events:   events,
		repo:     repo,
		metrics:  NewMetrics(),
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compute returns the snapshot for req, served from the cache when possible.
func (s *Service) Compute(ctx context.Context, req Request) (*aggregate.Snapshot, error) {
	return s.compute(ctx, req, true)
}

// Recompute always runs a fresh pass, then refreshes the cache.
func (s *Service) Recompute(ctx context.Context, req Request) (*aggregate.Snapshot, error) {
	return s.compute(ctx, req, false)
}

func (s *Service) compute(ctx context.Context, req Request, useCache bool) (*aggregate.Snapshot, error) {
	opts, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	return s.computeResolved(ctx, opts, useCache)
}

func (s *Service) computeResolved(ctx context.Context, opts aggregate.Options, useCache bool) (*aggregate.Snapshot, error) {
	log := logger.WithProject(s.logger, opts.ProjectID.String())

	key := cacheKey(opts)
	if useCache && s.cache != nil {
		var cached aggregate.Snapshot
		ok, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			s.metrics.observeCache(CacheError)
			log.Warn("Snapshot cache lookup failed", zap.Error(err))
		case ok:
			s.metrics.observeCache(CacheHit)
			log.Debug("Snapshot served from cache", zap.Time("generated_at", cached.GeneratedAt))
			return &cached, nil
		default:
			s.metrics.observeCache(CacheMiss)
		}
	}

	snap, err := s.runPass(ctx, opts, log)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, snap, s.settings.CacheTTL); err != nil {
			log.Warn("Failed to cache snapshot", zap.Error(err))
		}
	}
	return snap, nil
}

// runPass loads the window and aggregates it under the pass budget. On any
// failure the partial state is dropped and only the error is returned.
func (s *Service) runPass(ctx context.Context, opts aggregate.Options, log *zap.Logger) (*aggregate.Snapshot, error) {
	started := time.Now()
	passCtx := ctx
	if s.settings.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.settings.PassTimeout)
		defer cancel()
	}

	since := opts.GeneratedAt.AddDate(0, 0, -opts.RangeDays)
	events, err := s.events.ListWindow(passCtx, opts.ProjectID, since)
	if err == nil {
		ensureOrdered(events, log)
		var snap *aggregate.Snapshot
		snap, err = aggregate.Run(passCtx, opts, events)
		if err == nil {
			s.metrics.observePass(StatusSuccess, time.Since(started).Seconds(), snap.EventCount)
			log.Info("Snapshot computed",
				zap.Int("events", snap.EventCount),
				zap.Int("users", snap.UniqueUsers),
				zap.Int("range_days", opts.RangeDays),
				zap.Duration("duration", time.Since(started)),
			)
			return snap, nil
		}
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		s.metrics.observePass(StatusTimeout, time.Since(started).Seconds(), 0)
		log.Error("Aggregation pass timed out", zap.Duration("budget", s.settings.PassTimeout), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPassTimeout, err)
	}

	s.metrics.observePass(StatusFailure, time.Since(started).Seconds(), 0)
	log.Error("Aggregation pass failed", zap.Error(err))
	return nil, fmt.Errorf("failed to compute snapshot: %w", err)
}

// ensureOrdered restores ascending occurrence order if the store returned
// anything else. Funnel and session results depend on it.
func ensureOrdered(events []*event.Event, log *zap.Logger) {
	less := func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) }
	if sort.SliceIsSorted(events, less) {
		return
	}
	log.Warn("Event window was not time ordered, sorting", zap.Int("events", len(events)))
	sort.SliceStable(events, less)
}

func (s *Service) resolve(req Request) (aggregate.Options, error) {
	if req.ProjectID == uuid.Nil {
		return aggregate.Options{}, event.ErrInvalidProjectID
	}

	defaults := s.settings.Defaults
	opts := aggregate.Options{
		ProjectID:        req.ProjectID,
		RangeDays:        req.RangeDays,
		GeneratedAt:      s.now().UTC(),
		RetentionEvent:   req.RetentionEvent,
		FunnelSteps:      req.FunnelSteps,
		RetentionOffsets: req.RetentionOffsets,
	}

	opts.RangeDays = s.rangeDays(opts.RangeDays)
	if opts.RetentionEvent == "" {
		opts.RetentionEvent = defaults.RetentionEvent
	}
	if opts.FunnelSteps == nil {
		opts.FunnelSteps = append([]string(nil), defaults.FunnelSteps...)
	}
	if opts.RetentionOffsets == nil {
		opts.RetentionOffsets = append([]int(nil), defaults.RetentionOffsets...)
	}

	for _, step := range opts.FunnelSteps {
		if step == "" {
			return aggregate.Options{}, ErrInvalidFunnelStep
		}
	}
	for _, offset := range opts.RetentionOffsets {
		if offset < 0 {
			return aggregate.Options{}, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
		}
	}
	return opts, nil
}

// rangeDays applies the default and the upper bound to a requested window.
func (s *Service) rangeDays(requested int) int {
	days := requested
	if days <= 0 {
		days = s.settings.Defaults.RangeDays
	}
	if days <= 0 {
		days = aggregate.DefaultRangeDays
	}
	return min(days, MaxRangeDays)
}

// snapshotKey identifies a resolved configuration. The generation time is
// left out: freshness is bounded by the cache TTL and the stored row's
// generated_at.
func snapshotKey(opts aggregate.Options) SnapshotKey {
	config, _ := json.Marshal(struct {
		RangeDays int      `json:"r"`
		Event     string   `json:"e"`
		Steps     []string `json:"s"`
		Offsets   []int    `json:"o"`
	}{opts.RangeDays, opts.RetentionEvent, opts.FunnelSteps, opts.RetentionOffsets})

	sum := sha256.Sum256(config)
	return SnapshotKey{
		ProjectID:      opts.ProjectID,
		RangeDays:      opts.RangeDays,
		RetentionEvent: opts.RetentionEvent,
		ConfigDigest:   hex.EncodeToString(sum[:8]),
	}
}

func cacheKey(opts aggregate.Options) string {
	return snapshotKey(opts).String()
}

// ComputeMany aggregates several projects concurrently, one isolated pass per
// project. A failing project does not stop the others: the successful
// snapshots are returned together with the joined failures.
func (s *Service) ComputeMany(ctx context.Context, projectIDs []uuid.UUID, req Request) (map[uuid.UUID]*aggregate.Snapshot, error) {
	return s.fanOut(ctx, projectIDs, req, s.Compute)
}

// RecomputeActive refreshes, persists and publishes the snapshot of every
// project with events in the requested window. It returns how many projects
// were refreshed and the joined failures of the rest.
func (s *Service) RecomputeActive(ctx context.Context, req Request) (int, error) {
	since := s.now().UTC().AddDate(0, 0, -s.rangeDays(req.RangeDays))

	projects, err := s.events.ActiveProjects(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list active projects: %w", err)
	}

	results, err := s.fanOut(ctx, projects, req, s.refresh)

	s.logger.Info("Recompute finished",
		zap.Int("projects", len(projects)),
		zap.Int("refreshed", len(results)),
		zap.Int("failed", len(projects)-len(results)),
	)
	return len(results), err
}

// fanOut runs pass for every project on at most Workers goroutines.
func (s *Service) fanOut(
	ctx context.Context,
	projectIDs []uuid.UUID,
	req Request,
	pass func(context.Context, Request) (*aggregate.Snapshot, error),
) (map[uuid.UUID]*aggregate.Snapshot, error) {
	var g errgroup.Group
	g.SetLimit(s.settings.Workers)

	var mu sync.Mutex
	var errs []error
	results := make(map[uuid.UUID]*aggregate.Snapshot, len(projectIDs))

	for _, id := range projectIDs {
		projectReq := req
		projectReq.ProjectID = id
		g.Go(func() error {
			snap, err := pass(ctx, projectReq)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("project %s: %w", id, err))
				return nil
			}
			results[id] = snap
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// refresh runs a fresh pass, stores it and announces it.
func (s *Service) refresh(ctx context.Context, req Request) (*aggregate.Snapshot, error) {
	opts, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	snap, err := s.computeResolved(ctx, opts, false)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveSnapshot(ctx, snapshotKey(opts), snap); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snap.ProjectID.String(), MessageTypeSnapshotComputed, snap); err != nil {
			s.logger.Error("Failed to publish snapshot",
				zap.String("project_id", snap.ProjectID.String()),
				zap.Error(err),
			)
		}
	}
	return snap, nil
}

// Latest returns the most recently persisted snapshot for req's configuration.
func (s *Service) Latest(ctx context.Context, req Request) (*aggregate.Snapshot, error) {
	opts, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	return s.repo.LatestSnapshot(ctx, snapshotKey(opts))
}

// CreateMessageHandler returns the Kafka handler for recompute requests.
func (s *Service) CreateMessageHandler() func(ctx context.Context, key, value []byte) error {
	return func(ctx context.Context, key, value []byte) error {
		var req RecomputeRequest
		if err := json.Unmarshal(value, &req); err != nil {
			s.logger.Error("Failed to unmarshal recompute request",
				zap.Error(err),
				zap.String("value", string(value)),
			)
			return err
		}

		s.logger.Debug("Recompute requested",
			zap.String("project_id", req.ProjectID.String()),
			zap.Time("requested_at", req.RequestedAt),
		)
		_, err := s.refresh(ctx, req.Request)
		return err
	}
}
