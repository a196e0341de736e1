package analytics

import "errors"

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")

	ErrInvalidOffset = errors.New("retention offset must not be negative")

	ErrInvalidFunnelStep = errors.New("funnel step name must not be empty")

	ErrPassTimeout = errors.New("aggregation pass exceeded its time budget")
)
