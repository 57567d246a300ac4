package relation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/statecore/internal/durable"
	"github.com/joss/statecore/internal/metrics"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := durable.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, obs.New("relation", metrics.New()))
}

func TestLinkAndNeighbors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "sess-1", "doc-1", "references"))
	require.NoError(t, s.Link(ctx, "sess-1", "doc-2", "references"))

	rels, err := s.Neighbors(ctx, "sess-1", "references")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "doc-1", rels[0].ToID)
	assert.Equal(t, "doc-2", rels[1].ToID)
	assert.False(t, rels[0].CreatedAt.IsZero())

	// The reverse edge is visible from the other side.
	back, err := s.Neighbors(ctx, "doc-1", "")
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "sess-1", back[0].ToID)
	assert.Equal(t, "references:rev", back[0].Kind)
}

func TestLinkDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "sess-1", "doc-1", "references"))

	err := s.Link(ctx, "sess-1", "doc-1", "references")
	require.Error(t, err)
	assert.True(t, store.IsDuplicateKey(err))

	// The failed batch must not leave extra edges behind.
	rels, err := s.Neighbors(ctx, "sess-1", "references")
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestUnlinkRemovesBothDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "sess-1", "doc-1", "references"))
	require.NoError(t, s.Unlink(ctx, "sess-1", "doc-1", "references"))

	rels, err := s.Neighbors(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Empty(t, rels)

	back, err := s.Neighbors(ctx, "doc-1", "")
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestUnlinkAbsentIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Unlink(context.Background(), "sess-1", "doc-9", "references"))
}

func TestNeighborsKindFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "sess-1", "doc-1", "references"))
	require.NoError(t, s.Link(ctx, "sess-1", "sess-2", "continues"))

	rels, err := s.Neighbors(ctx, "sess-1", "continues")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "sess-2", rels[0].ToID)
}
