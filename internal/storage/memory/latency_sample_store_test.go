package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscura-core/internal/domain"
)

func TestLatencySampleStore_InsertBulkAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewLatencySampleStore()

	require.NoError(t, store.InsertBulk(ctx, []*domain.LatencySample{
		{Validator: "V1", Region: "us-east", LatencyMs: 20, Available: true, MeasuredAt: 2000},
		{Validator: "V1", Region: "us-east", LatencyMs: 10, Available: true, MeasuredAt: 1000},
		{Validator: "V2", Region: "eu-west", LatencyMs: 30, Available: false, MeasuredAt: 1500},
	}))

	got, err := store.GetByValidator(ctx, "V1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].MeasuredAt, "ordered by measured_at ASC")
	assert.Equal(t, int64(2000), got[1].MeasuredAt)

	got, err = store.GetByValidator(ctx, "V2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Available)
}

func TestLatencySampleStore_EmptyBatch(t *testing.T) {
	store := NewLatencySampleStore()
	require.NoError(t, store.InsertBulk(context.Background(), nil))

	got, err := store.GetByValidator(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLatencySampleStore_CopyOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewLatencySampleStore()

	require.NoError(t, store.InsertBulk(ctx, []*domain.LatencySample{
		{Validator: "V1", Region: "us-east", LatencyMs: 5, Available: true, MeasuredAt: 100},
	}))

	first, err := store.GetByValidator(ctx, "V1")
	require.NoError(t, err)
	first[0].LatencyMs = 999

	second, err := store.GetByValidator(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), second[0].LatencyMs)
}
