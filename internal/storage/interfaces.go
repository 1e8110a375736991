package storage

import (
	"context"

	"obscura-core/internal/domain"
)

// DelegationEventStore provides access to the delegation_events audit log.
type DelegationEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.DelegationEvent) error

	// GetByAccount retrieves all events for an account, ordered by occurred_at ASC.
	GetByAccount(ctx context.Context, account string) ([]*domain.DelegationEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive, Unix ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.DelegationEvent, error)
}

// LatencySampleStore provides access to the latency_samples timeseries.
type LatencySampleStore interface {
	// InsertBulk adds a batch of samples.
	InsertBulk(ctx context.Context, samples []*domain.LatencySample) error

	// GetByValidator retrieves all samples for a validator, ordered by measured_at ASC.
	GetByValidator(ctx context.Context, validator string) ([]*domain.LatencySample, error)
}
