package memory

import (
	"context"
	"sort"
	"sync"

	"obscura-core/internal/domain"
	"obscura-core/internal/storage"
)

// DelegationEventStore is an in-memory implementation of storage.DelegationEventStore.
type DelegationEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DelegationEvent // keyed by event_id
}

// NewDelegationEventStore creates a new in-memory delegation event store.
func NewDelegationEventStore() *DelegationEventStore {
	return &DelegationEventStore{
		data: make(map[string]*domain.DelegationEvent),
	}
}

// Compile-time interface check.
var _ storage.DelegationEventStore = (*DelegationEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *DelegationEventStore) Insert(_ context.Context, e *domain.DelegationEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	eventCopy := *e
	s.data[e.EventID] = &eventCopy
	return nil
}

// GetByAccount retrieves all events for an account, ordered by occurred_at ASC.
func (s *DelegationEventStore) GetByAccount(_ context.Context, account string) ([]*domain.DelegationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DelegationEvent
	for _, e := range s.data {
		if e.Account == account {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive, Unix ms).
func (s *DelegationEventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.DelegationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DelegationEvent
	for _, e := range s.data {
		if e.OccurredAt >= start && e.OccurredAt <= end {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

func sortEvents(events []*domain.DelegationEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt != events[j].OccurredAt {
			return events[i].OccurredAt < events[j].OccurredAt
		}
		return events[i].EventID < events[j].EventID
	})
}
