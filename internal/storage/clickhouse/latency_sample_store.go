package clickhouse

import (
	"context"
	"fmt"

	"obscura-core/internal/domain"
	"obscura-core/internal/storage"
)

// LatencySampleStore implements storage.LatencySampleStore using ClickHouse.
type LatencySampleStore struct {
	conn *Conn
}

// NewLatencySampleStore creates a new LatencySampleStore.
func NewLatencySampleStore(conn *Conn) *LatencySampleStore {
	return &LatencySampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LatencySampleStore = (*LatencySampleStore)(nil)

// InsertBulk adds a batch of samples.
func (s *LatencySampleStore) InsertBulk(ctx context.Context, samples []*domain.LatencySample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO latency_samples (
			validator, region, latency_ms, available, measured_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sample := range samples {
		available := uint8(0)
		if sample.Available {
			available = 1
		}
		err = batch.Append(
			sample.Validator, sample.Region, sample.LatencyMs,
			available, sample.MeasuredAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByValidator retrieves all samples for a validator, ordered by measured_at ASC.
func (s *LatencySampleStore) GetByValidator(ctx context.Context, validator string) ([]*domain.LatencySample, error) {
	query := `
		SELECT validator, region, latency_ms, available, measured_at
		FROM latency_samples
		WHERE validator = ?
		ORDER BY measured_at ASC
	`

	rows, err := s.conn.Query(ctx, query, validator)
	if err != nil {
		return nil, fmt.Errorf("get samples by validator: %w", err)
	}
	defer rows.Close()

	var samples []*domain.LatencySample
	for rows.Next() {
		var sample domain.LatencySample
		var available uint8
		if err := rows.Scan(
			&sample.Validator,
			&sample.Region,
			&sample.LatencyMs,
			&available,
			&sample.MeasuredAt,
		); err != nil {
			return nil, fmt.Errorf("scan latency sample: %w", err)
		}
		sample.Available = available == 1
		samples = append(samples, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latency samples: %w", err)
	}

	return samples, nil
}
