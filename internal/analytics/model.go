package analytics

import (
	"encoding/json"
	"time"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/Wuchinator/product-analytics/internal/config"
	"github.com/google/uuid"
)

// MaxRangeDays caps how far back a single pass may look.
const MaxRangeDays = 365

// MessageTypeSnapshotComputed tags snapshots published to Kafka.
const MessageTypeSnapshotComputed = "snapshot.computed"

// Request selects the tenant and the configuration of one snapshot. Zero
// values fall back to service defaults; a nil list means "default" while an
// empty list disables the corresponding table.
type Request struct {
	ProjectID        uuid.UUID `json:"project_id"`
	RangeDays        int       `json:"range_days,omitempty"`
	RetentionEvent   string    `json:"retention_event,omitempty"`
	FunnelSteps      []string  `json:"funnel_steps"`
	RetentionOffsets []int     `json:"retention_offsets"`
}

// RecomputeRequest is the Kafka message asking for a fresh snapshot.
type RecomputeRequest struct {
	Request
	RequestedAt time.Time `json:"requested_at"`
}

// Settings are the service-wide defaults and limits.
type Settings struct {
	Defaults    aggregate.Options
	PassTimeout time.Duration
	Workers     int
	CacheTTL    time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Defaults:    aggregate.DefaultOptions(),
		PassTimeout: 10 * time.Second,
		Workers:     4,
		CacheTTL:    5 * time.Minute,
	}
}

// SettingsFromConfig maps the environment configuration onto service settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Defaults: aggregate.Options{
			RangeDays:        cfg.Analytics.RangeDays,
			RetentionEvent:   cfg.Analytics.RetentionEvent,
			FunnelSteps:      cfg.Analytics.FunnelSteps,
			RetentionOffsets: cfg.Analytics.RetentionOffsets,
		},
		PassTimeout: cfg.Analytics.PassTimeout,
		Workers:     cfg.Analytics.Workers,
		CacheTTL:    cfg.Redis.CacheTTL,
	}
}

// SnapshotKey identifies one persisted snapshot configuration. ConfigDigest
// covers the funnel and offsets as well, so custom configurations never
// replace the default row.
type SnapshotKey struct {
	ProjectID      uuid.UUID
	RangeDays      int
	RetentionEvent string
	ConfigDigest   string
}

// String is the cache key of the configuration.
func (k SnapshotKey) String() string {
	return k.ProjectID.String() + ":" + k.ConfigDigest
}

// StoredSnapshot is a persisted snapshot row.
type StoredSnapshot struct {
	ProjectID      uuid.UUID       `db:"project_id"`
	RangeDays      int             `db:"range_days"`
	RetentionEvent string          `db:"retention_event"`
	ConfigDigest   string          `db:"config_digest"`
	GeneratedAt    time.Time       `db:"generated_at"`
	Payload        json.RawMessage `db:"payload"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (s *StoredSnapshot) Snapshot() (*aggregate.Snapshot, error) {
	var snap aggregate.Snapshot
	if err := json.Unmarshal(s.Payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
