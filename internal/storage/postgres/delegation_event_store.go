package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"obscura-core/internal/domain"
	"obscura-core/internal/storage"
)

// DelegationEventStore implements storage.DelegationEventStore using PostgreSQL.
type DelegationEventStore struct {
	pool *Pool
}

// NewDelegationEventStore creates a new DelegationEventStore.
func NewDelegationEventStore(pool *Pool) *DelegationEventStore {
	return &DelegationEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DelegationEventStore = (*DelegationEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *DelegationEventStore) Insert(ctx context.Context, e *domain.DelegationEvent) error {
	query := `
		INSERT INTO delegation_events (
			event_id, account, event_type, validator, signature, slot, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID,
		e.Account,
		e.EventType,
		e.Validator,
		e.Signature,
		e.Slot,
		e.OccurredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert delegation event: %w", err)
	}
	return nil
}

// GetByAccount retrieves all events for an account, ordered by occurred_at ASC.
func (s *DelegationEventStore) GetByAccount(ctx context.Context, account string) ([]*domain.DelegationEvent, error) {
	query := `
		SELECT event_id, account, event_type, validator, signature, slot, occurred_at
		FROM delegation_events
		WHERE account = $1
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("get events by account: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive, Unix ms).
func (s *DelegationEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.DelegationEvent, error) {
	query := `
		SELECT event_id, account, event_type, validator, signature, slot, occurred_at
		FROM delegation_events
		WHERE occurred_at >= $1 AND occurred_at <= $2
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*domain.DelegationEvent, error) {
	var events []*domain.DelegationEvent
	for rows.Next() {
		var e domain.DelegationEvent
		if err := rows.Scan(
			&e.EventID,
			&e.Account,
			&e.EventType,
			&e.Validator,
			&e.Signature,
			&e.Slot,
			&e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan delegation event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delegation events: %w", err)
	}
	return events, nil
}
