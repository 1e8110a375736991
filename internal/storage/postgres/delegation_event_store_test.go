package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscura-core/internal/domain"
	"obscura-core/internal/storage"
)

func TestDelegationEventStore_InsertAndGetByAccount(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDelegationEventStore(pool)

	event := &domain.DelegationEvent{
		EventID:    "event-1",
		Account:    "Account1",
		EventType:  domain.EventDelegate,
		Validator:  ptr("Validator1"),
		Signature:  "Sig1",
		Slot:       ptr(uint64(100)),
		OccurredAt: 1000,
	}

	err := store.Insert(ctx, event)
	require.NoError(t, err)

	events, err := store.GetByAccount(ctx, "Account1")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, event.EventID, events[0].EventID)
	assert.Equal(t, event.EventType, events[0].EventType)
	assert.Equal(t, *event.Validator, *events[0].Validator)
	assert.Equal(t, event.Signature, events[0].Signature)
	assert.Equal(t, *event.Slot, *events[0].Slot)
	assert.Equal(t, event.OccurredAt, events[0].OccurredAt)
}

func TestDelegationEventStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDelegationEventStore(pool)

	event := &domain.DelegationEvent{
		EventID:    "dup-event",
		Account:    "DupAccount",
		EventType:  domain.EventCommit,
		Signature:  "DupSig",
		OccurredAt: 1000,
	}

	require.NoError(t, store.Insert(ctx, event))

	err := store.Insert(ctx, event)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestDelegationEventStore_NullableFields(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDelegationEventStore(pool)

	// Commit events carry no validator; unconfirmed events carry no slot.
	event := &domain.DelegationEvent{
		EventID:    "nullable-event",
		Account:    "NullAccount",
		EventType:  domain.EventUndelegate,
		Signature:  "NullSig",
		OccurredAt: 2000,
	}

	require.NoError(t, store.Insert(ctx, event))

	events, err := store.GetByAccount(ctx, "NullAccount")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Validator)
	assert.Nil(t, events[0].Slot)
}

func TestDelegationEventStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDelegationEventStore(pool)

	for i, occurredAt := range []int64{1000, 2000, 3000} {
		event := &domain.DelegationEvent{
			EventID:    "range-event-" + string(rune('a'+i)),
			Account:    "RangeAccount",
			EventType:  domain.EventDelegate,
			Signature:  "RangeSig",
			OccurredAt: occurredAt,
		}
		require.NoError(t, store.Insert(ctx, event))
	}

	// Inclusive bounds.
	events, err := store.GetByTimeRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1000), events[0].OccurredAt)
	assert.Equal(t, int64(2000), events[1].OccurredAt)

	events, err = store.GetByTimeRange(ctx, 5000, 6000)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDelegationEventStore_LifecycleOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDelegationEventStore(pool)

	lifecycle := []struct {
		id        string
		eventType string
		at        int64
	}{
		{"lc-1", domain.EventDelegate, 100},
		{"lc-2", domain.EventCommit, 200},
		{"lc-3", domain.EventUndelegate, 300},
	}
	for _, step := range lifecycle {
		require.NoError(t, store.Insert(ctx, &domain.DelegationEvent{
			EventID:    step.id,
			Account:    "LifecycleAccount",
			EventType:  step.eventType,
			Signature:  "sig-" + step.id,
			OccurredAt: step.at,
		}))
	}

	events, err := store.GetByAccount(ctx, "LifecycleAccount")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventDelegate, events[0].EventType)
	assert.Equal(t, domain.EventCommit, events[1].EventType)
	assert.Equal(t, domain.EventUndelegate, events[2].EventType)
}
