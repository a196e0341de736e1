package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/Wuchinator/product-analytics/pkg/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

var (
	now = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	t0  = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
)

type fakeSource struct {
	mu       sync.Mutex
	events   map[uuid.UUID][]*event.Event
	failing  map[uuid.UUID]error
	active   []uuid.UUID
	block    bool
	calls    atomic.Int32
	lastFrom time.Time

	activeSince time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events:  make(map[uuid.UUID][]*event.Event),
		failing: make(map[uuid.UUID]error),
	}
}

func (f *fakeSource) add(project uuid.UUID, events ...*event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[project] = append(f.events[project], events...)
	f.active = append(f.active, project)
}

func (f *fakeSource) ListWindow(ctx context.Context, projectID uuid.UUID, since time.Time) ([]*event.Event, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom = since
	if err := f.failing[projectID]; err != nil {
		return nil, err
	}
	return append([]*event.Event(nil), f.events[projectID]...), nil
}

func (f *fakeSource) ActiveProjects(_ context.Context, since time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeSince = since
	return append([]uuid.UUID(nil), f.active...), nil
}

type fakeRepo struct {
	mu    sync.Mutex
	saved map[SnapshotKey]*aggregate.Snapshot
	err   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{saved: make(map[SnapshotKey]*aggregate.Snapshot)}
}

func (r *fakeRepo) SaveSnapshot(_ context.Context, key SnapshotKey, snap *aggregate.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved[key] = snap
	return nil
}

func (r *fakeRepo) LatestSnapshot(_ context.Context, key SnapshotKey) (*aggregate.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.saved[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

// forProject returns the saved snapshots of one project.
func (r *fakeRepo) forProject(id uuid.UUID) []*aggregate.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*aggregate.Snapshot
	for key, snap := range r.saved {
		if key.ProjectID == id {
			out = append(out, snap)
		}
	}
	return out
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) Publish(_ context.Context, key, messageType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if messageType != MessageTypeSnapshotComputed {
		return errors.New("unexpected message type")
	}
	p.keys = append(p.keys, key)
	return nil
}

func funnelEvents(project uuid.UUID, user string) []*event.Event {
	return []*event.Event{
		event.NewEvent(project, user, event.EventNamePageView, t0, map[string]any{"path": "/"}).InSession("s-" + user),
		event.NewEvent(project, user, event.EventNameSignupStarted, t0.Add(time.Minute), nil).InSession("s-" + user),
		event.NewEvent(project, user, event.EventNameSignupCompleted, t0.Add(2*time.Minute), nil).InSession("s-" + user),
	}
}

func newTestService(src *fakeSource, repo *fakeRepo, opts ...Option) *Service {
	settings := DefaultSettings()
	settings.PassTimeout = time.Second
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewService(src, repo, settings, zap.NewNop(), opts...)
}

func newTestCache(t *testing.T) *cache.Redis {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := cache.NewRedisFromClient(client, "snapshot:", zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestService_ComputeDefaults(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)

	svc := newTestService(src, newFakeRepo())
	snap, err := svc.Compute(context.Background(), Request{ProjectID: project})
	require.NoError(t, err)

	assert.Equal(t, project, snap.ProjectID)
	assert.Equal(t, aggregate.DefaultRangeDays, snap.RangeDays)
	assert.Equal(t, aggregate.DefaultRetentionEvent, snap.RetentionEvent)
	assert.Equal(t, now, snap.GeneratedAt)
	assert.Equal(t, []int{1, 1, 1}, snap.FunnelUsers())
	assert.Equal(t, 100.0, snap.KPIs.ConversionRate)
	assert.Equal(t, now.AddDate(0, 0, -30), src.lastFrom)
}

func TestService_ResolveRequest(t *testing.T) {
	project := uuid.New()

	tests := []struct {
		name    string
		req     Request
		wantErr error
		check   func(t *testing.T, opts aggregate.Options)
	}{
		{
			name:    "nil project",
			req:     Request{},
			wantErr: event.ErrInvalidProjectID,
		},
		{
			name:    "negative offset",
			req:     Request{ProjectID: project, RetentionOffsets: []int{1, -3}},
			wantErr: ErrInvalidOffset,
		},
		{
			name:    "blank funnel step",
			req:     Request{ProjectID: project, FunnelSteps: []string{"page_view", ""}},
			wantErr: ErrInvalidFunnelStep,
		},
		{
			name: "range clamped",
			req:  Request{ProjectID: project, RangeDays: 1000},
			check: func(t *testing.T, opts aggregate.Options) {
				assert.Equal(t, MaxRangeDays, opts.RangeDays)
			},
		},
		{
			name: "negative range falls back",
			req:  Request{ProjectID: project, RangeDays: -7},
			check: func(t *testing.T, opts aggregate.Options) {
				assert.Equal(t, aggregate.DefaultRangeDays, opts.RangeDays)
			},
		},
		{
			name: "empty lists stay empty",
			req:  Request{ProjectID: project, FunnelSteps: []string{}, RetentionOffsets: []int{}},
			check: func(t *testing.T, opts aggregate.Options) {
				assert.NotNil(t, opts.FunnelSteps)
				assert.Empty(t, opts.FunnelSteps)
				assert.NotNil(t, opts.RetentionOffsets)
				assert.Empty(t, opts.RetentionOffsets)
			},
		},
		{
			name: "overrides kept",
			req:  Request{ProjectID: project, RangeDays: 7, RetentionEvent: "click", FunnelSteps: []string{"click"}},
			check: func(t *testing.T, opts aggregate.Options) {
				assert.Equal(t, 7, opts.RangeDays)
				assert.Equal(t, "click", opts.RetentionEvent)
				assert.Equal(t, []string{"click"}, opts.FunnelSteps)
				assert.Equal(t, aggregate.DefaultRetentionOffsets(), opts.RetentionOffsets)
			},
		},
	}

	svc := newTestService(newFakeSource(), newFakeRepo())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := svc.resolve(tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, opts)
		})
	}
}

func TestService_ResolveDoesNotAliasDefaults(t *testing.T) {
	svc := newTestService(newFakeSource(), newFakeRepo())

	opts, err := svc.resolve(Request{ProjectID: uuid.New()})
	require.NoError(t, err)
	opts.FunnelSteps[0] = "mutated"

	again, err := svc.resolve(Request{ProjectID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, aggregate.DefaultFunnelSteps(), again.FunnelSteps)
}

func TestService_ComputeEmptyFunnel(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)

	svc := newTestService(src, newFakeRepo())
	snap, err := svc.Compute(context.Background(), Request{ProjectID: project, FunnelSteps: []string{}})
	require.NoError(t, err)

	assert.Empty(t, snap.Funnel)
	assert.Equal(t, 0.0, snap.KPIs.ConversionRate)
}

func TestService_ComputeUsesCache(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)

	metrics := NewMetrics()
	svc := newTestService(src, newFakeRepo(), WithCache(newTestCache(t)), WithMetrics(metrics))
	ctx := context.Background()

	first, err := svc.Compute(ctx, Request{ProjectID: project})
	require.NoError(t, err)
	second, err := svc.Compute(ctx, Request{ProjectID: project})
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, first.FunnelUsers(), second.FunnelUsers())
	assert.Equal(t, first.EventCount, second.EventCount)
	assert.True(t, first.GeneratedAt.Equal(second.GeneratedAt))

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.cache.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.cache.WithLabelValues(CacheHit)))

	// A different configuration is a different cache entry.
	_, err = svc.Compute(ctx, Request{ProjectID: project, RangeDays: 7})
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	// Recompute bypasses the read side.
	_, err = svc.Recompute(ctx, Request{ProjectID: project})
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestService_ComputeSortsUnorderedWindow(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	events := funnelEvents(project, "u1")
	src.add(project, events[2], events[0], events[1])

	svc := newTestService(src, newFakeRepo())
	snap, err := svc.Compute(context.Background(), Request{ProjectID: project})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, snap.FunnelUsers())
}

func TestService_ComputeTimeout(t *testing.T) {
	src := newFakeSource()
	src.block = true

	metrics := NewMetrics()
	settings := DefaultSettings()
	settings.PassTimeout = 20 * time.Millisecond
	svc := NewService(src, newFakeRepo(), settings, zap.NewNop(), WithMetrics(metrics))

	snap, err := svc.Compute(context.Background(), Request{ProjectID: uuid.New()})
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrPassTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.passes.WithLabelValues(StatusTimeout)))
}

func TestService_ComputeCancelled(t *testing.T) {
	svc := newTestService(newFakeSource(), newFakeRepo())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Compute(ctx, Request{ProjectID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPassTimeout)
}

func TestService_ComputeMany(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newFakeSource()
	projects := make([]uuid.UUID, 5)
	for i := range projects {
		projects[i] = uuid.New()
		for u := 0; u <= i; u++ {
			src.add(projects[i], funnelEvents(projects[i], "user-"+string(rune('a'+u)))...)
		}
	}

	svc := newTestService(src, newFakeRepo())
	results, err := svc.ComputeMany(context.Background(), projects, Request{})
	require.NoError(t, err)
	require.Len(t, results, len(projects))

	for i, id := range projects {
		snap := results[id]
		require.NotNil(t, snap)
		assert.Equal(t, id, snap.ProjectID)
		assert.Equal(t, i+1, snap.UniqueUsers)
		assert.Equal(t, []int{i + 1, i + 1, i + 1}, snap.FunnelUsers())
	}
}

func TestService_ComputeManyFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newFakeSource()
	good, bad := uuid.New(), uuid.New()
	src.add(good, funnelEvents(good, "u1")...)
	src.failing[bad] = errors.New("store unavailable")

	svc := newTestService(src, newFakeRepo())
	results, err := svc.ComputeMany(context.Background(), []uuid.UUID{good, bad}, Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.String())

	require.Len(t, results, 1)
	assert.Equal(t, []int{1, 1, 1}, results[good].FunnelUsers())
}

func TestService_RecomputeActive(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newFakeSource()
	a, b, broken := uuid.New(), uuid.New(), uuid.New()
	src.add(a, funnelEvents(a, "u1")...)
	src.add(b, funnelEvents(b, "u2")...)
	src.add(broken, funnelEvents(broken, "u3")...)
	boom := errors.New("store unavailable")
	src.failing[broken] = boom

	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(src, repo, WithPublisher(pub))

	done, err := svc.RecomputeActive(context.Background(), Request{})
	assert.Equal(t, 2, done)
	assert.ErrorIs(t, err, boom)

	assert.Len(t, repo.forProject(a), 1)
	assert.Len(t, repo.forProject(b), 1)
	assert.Empty(t, repo.forProject(broken))
	assert.ElementsMatch(t, []string{a.String(), b.String()}, pub.keys)
}

func TestService_RecomputeActiveSaveFailure(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)

	repo := newFakeRepo()
	repo.err = errors.New("disk full")
	pub := &fakePublisher{}
	svc := newTestService(src, repo, WithPublisher(pub))

	done, err := svc.RecomputeActive(context.Background(), Request{})
	assert.Equal(t, 0, done)
	assert.ErrorIs(t, err, repo.err)
	assert.Empty(t, pub.keys)
}

func TestService_RecomputeActiveClampsWindow(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)
	svc := newTestService(src, newFakeRepo())

	done, err := svc.RecomputeActive(context.Background(), Request{RangeDays: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	want := now.AddDate(0, 0, -MaxRangeDays)
	assert.Equal(t, want, src.activeSince)
	assert.Equal(t, want, src.lastFrom)
}

func TestService_Latest(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)
	repo := newFakeRepo()
	svc := newTestService(src, repo)
	ctx := context.Background()

	_, err := svc.Latest(ctx, Request{ProjectID: project})
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = svc.RecomputeActive(ctx, Request{})
	require.NoError(t, err)

	snap, err := svc.Latest(ctx, Request{ProjectID: project})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, snap.FunnelUsers())

	_, err = svc.Latest(ctx, Request{})
	assert.ErrorIs(t, err, event.ErrInvalidProjectID)
}

func TestService_LatestKeepsConfigurationsApart(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)
	repo := newFakeRepo()
	svc := newTestService(src, repo)
	ctx := context.Background()

	custom, err := json.Marshal(RecomputeRequest{
		Request: Request{
			ProjectID:        project,
			FunnelSteps:      []string{event.EventNameSignupStarted},
			RetentionOffsets: []int{},
		},
		RequestedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, svc.CreateMessageHandler()(ctx, nil, custom))

	_, err = svc.Latest(ctx, Request{ProjectID: project})
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = svc.RecomputeActive(ctx, Request{})
	require.NoError(t, err)
	assert.Len(t, repo.forProject(project), 2)

	def, err := svc.Latest(ctx, Request{ProjectID: project})
	require.NoError(t, err)
	assert.Len(t, def.Funnel, len(aggregate.DefaultOptions().FunnelSteps))
	assert.Len(t, def.Retention.Rows, len(aggregate.DefaultOptions().RetentionOffsets))

	got, err := svc.Latest(ctx, Request{
		ProjectID:        project,
		FunnelSteps:      []string{event.EventNameSignupStarted},
		RetentionOffsets: []int{},
	})
	require.NoError(t, err)
	assert.Equal(t, []aggregate.FunnelStep{{Step: event.EventNameSignupStarted, Users: 1}}, got.Funnel)
	assert.Empty(t, got.Retention.Rows)
}

func TestService_MessageHandler(t *testing.T) {
	src := newFakeSource()
	project := uuid.New()
	src.add(project, funnelEvents(project, "u1")...)

	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(src, repo, WithPublisher(pub))
	handle := svc.CreateMessageHandler()

	msg, err := json.Marshal(RecomputeRequest{
		Request:     Request{ProjectID: project, RangeDays: 7},
		RequestedAt: now,
	})
	require.NoError(t, err)

	require.NoError(t, handle(context.Background(), []byte(project.String()), msg))
	saved := repo.forProject(project)
	require.Len(t, saved, 1)
	assert.Equal(t, 7, saved[0].RangeDays)
	assert.Equal(t, []string{project.String()}, pub.keys)

	assert.Error(t, handle(context.Background(), nil, []byte("{not json")))
	assert.ErrorIs(t, handle(context.Background(), nil, []byte(`{"requested_at":"2025-03-20T12:00:00Z"}`)), event.ErrInvalidProjectID)
}

func TestCacheKey(t *testing.T) {
	project := uuid.New()
	base := aggregate.Options{
		ProjectID:        project,
		RangeDays:        30,
		RetentionEvent:   "signup_completed",
		FunnelSteps:      []string{"a", "b"},
		RetentionOffsets: []int{1, 7},
	}

	same := base
	same.GeneratedAt = now
	assert.Equal(t, cacheKey(base), cacheKey(same))

	other := base
	other.FunnelSteps = []string{"b", "a"}
	assert.NotEqual(t, cacheKey(base), cacheKey(other))

	empty := base
	empty.RetentionOffsets = []int{}
	nilOffsets := base
	nilOffsets.RetentionOffsets = nil
	assert.NotEqual(t, cacheKey(empty), cacheKey(nilOffsets))

	key := snapshotKey(other)
	assert.Equal(t, project, key.ProjectID)
	assert.Equal(t, 30, key.RangeDays)
	assert.Equal(t, "signup_completed", key.RetentionEvent)
	assert.NotEqual(t, snapshotKey(base).ConfigDigest, key.ConfigDigest)
	assert.Equal(t, cacheKey(other), key.String())
}
