package testkit

import (
	"context"
	"testing"
	"time"

	apperrors "bootfit/internal/errors"
	"bootfit/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunResultStoreContract exercises the behavior every ports.ResultStore must
// share. The store must start empty.
func RunResultStoreContract(t *testing.T, store ports.ResultStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ids := []string{
		"0190b3a4-0000-7000-8000-000000000001",
		"0190b3a4-0000-7000-8000-000000000002",
		"0190b3a4-0000-7000-8000-000000000003",
	}
	for i, id := range ids {
		require.NoError(t, store.Save(ctx, &ports.StoredResult{
			ID:           id,
			ModelName:    "chain",
			NumIteration: 10 * (i + 1),
			ErrorCount:   i,
			Rejected:     2 * i,
			Partial:      i == 1,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			Blob:         []byte{byte(i), 0xbe, 0xef},
		}))
	}

	got, err := store.Load(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], got.ID)
	assert.Equal(t, "chain", got.ModelName)
	assert.Equal(t, 20, got.NumIteration)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Equal(t, 2, got.Rejected)
	assert.True(t, got.Partial)
	assert.True(t, base.Add(time.Minute).Equal(got.CreatedAt))
	assert.Equal(t, []byte{1, 0xbe, 0xef}, got.Blob)

	got.Blob[0] = 99
	again, err := store.Load(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.Blob[0], "loaded blobs must not alias stored data")

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID, "newest first")
	assert.Equal(t, ids[0], list[2].ID)
	for _, r := range list {
		assert.Empty(t, r.Blob, "listings carry no blobs")
	}

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, store.Save(ctx, &ports.StoredResult{
		ID: ids[0], ModelName: "chain", NumIteration: 99, CreatedAt: base, Blob: []byte{7},
	}))
	replaced, err := store.Load(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 99, replaced.NumIteration)

	require.NoError(t, store.Delete(ctx, ids[0]))
	_, err = store.Load(ctx, ids[0])
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, ids[0]), apperrors.ErrNotFound)

	assert.Error(t, store.Save(ctx, &ports.StoredResult{}))
}
