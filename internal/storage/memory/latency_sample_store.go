package memory

import (
	"context"
	"sort"
	"sync"

	"obscura-core/internal/domain"
	"obscura-core/internal/storage"
)

// LatencySampleStore is an in-memory implementation of storage.LatencySampleStore.
type LatencySampleStore struct {
	mu   sync.RWMutex
	data []*domain.LatencySample
}

// NewLatencySampleStore creates a new in-memory latency sample store.
func NewLatencySampleStore() *LatencySampleStore {
	return &LatencySampleStore{}
}

// Compile-time interface check.
var _ storage.LatencySampleStore = (*LatencySampleStore)(nil)

// InsertBulk adds a batch of samples.
func (s *LatencySampleStore) InsertBulk(_ context.Context, samples []*domain.LatencySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		if sample == nil || sample.Validator == "" {
			return storage.ErrInvalidInput
		}
		sampleCopy := *sample
		s.data = append(s.data, &sampleCopy)
	}
	return nil
}

// GetByValidator retrieves all samples for a validator, ordered by measured_at ASC.
func (s *LatencySampleStore) GetByValidator(_ context.Context, validator string) ([]*domain.LatencySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LatencySample
	for _, sample := range s.data {
		if sample.Validator == validator {
			sampleCopy := *sample
			result = append(result, &sampleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MeasuredAt < result[j].MeasuredAt
	})
	return result, nil
}
