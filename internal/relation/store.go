// Package relation provides relationship CRUD against the durable store.
// Single-tier and transactional: both directions of a link commit in one
// batch, so the graph never holds a dangling half-edge.
package relation

import (
	"context"
	"fmt"
	"time"

	"github.com/joss/statecore/internal/domain"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/resilience"
	"github.com/joss/statecore/internal/store"
)

// Relation is one directed edge between two entities.
type Relation struct {
	FromID    string
	ToID      string
	Kind      string
	CreatedAt time.Time
}

// reverseKind names the durable direction marker for the mirrored edge.
func reverseKind(kind string) string {
	return kind + ":rev"
}

// Store persists relations durably.
type Store struct {
	db domain.DurableStore
	h  *obs.Handle
}

// NewStore creates a relation store.
func NewStore(db domain.DurableStore, h *obs.Handle) *Store {
	return &Store{db: db, h: h}
}

// Link creates a relation and its reverse edge atomically. Linking an
// already-linked pair returns store.ErrDuplicateKey, letting idempotent
// callers branch.
func (s *Store) Link(ctx context.Context, fromID, toID, kind string) error {
	now := time.Now().UTC().Format(store.TimeLayout)
	stmts := []domain.Statement{
		{
			SQL:  `INSERT INTO relations (from_id, to_id, kind, created_at) VALUES (?, ?, ?, ?)`,
			Args: []any{fromID, toID, kind, now},
		},
		{
			SQL:  `INSERT INTO relations (from_id, to_id, kind, created_at) VALUES (?, ?, ?, ?)`,
			Args: []any{toID, fromID, reverseKind(kind), now},
		},
	}
	return resilience.MustSucceedDo(ctx, s.h, "relation_link", func(ctx context.Context) error {
		return s.db.Batch(ctx, stmts)
	})
}

// Unlink removes a relation and its reverse edge atomically. Unlinking an
// absent pair is a no-op.
func (s *Store) Unlink(ctx context.Context, fromID, toID, kind string) error {
	stmts := []domain.Statement{
		{
			SQL:  `DELETE FROM relations WHERE from_id = ? AND to_id = ? AND kind = ?`,
			Args: []any{fromID, toID, kind},
		},
		{
			SQL:  `DELETE FROM relations WHERE from_id = ? AND to_id = ? AND kind = ?`,
			Args: []any{toID, fromID, reverseKind(kind)},
		},
	}
	return resilience.MustSucceedDo(ctx, s.h, "relation_unlink", func(ctx context.Context) error {
		return s.db.Batch(ctx, stmts)
	})
}

// Neighbors returns outgoing relations from an entity, optionally filtered
// by kind.
func (s *Store) Neighbors(ctx context.Context, fromID, kind string) ([]Relation, error) {
	stmt := `SELECT from_id, to_id, kind, created_at FROM relations WHERE from_id = ?`
	args := []any{fromID}
	if kind != "" {
		stmt += ` AND kind = ?`
		args = append(args, kind)
	}
	stmt += ` ORDER BY created_at ASC`

	recs, err := resilience.MustSucceed(ctx, s.h, "relation_neighbors", func(ctx context.Context) ([]store.Record, error) {
		return s.db.Query(ctx, stmt, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", fromID, err)
	}

	relations := make([]Relation, 0, len(recs))
	for _, r := range recs {
		relations = append(relations, Relation{
			FromID:    r.GetString("from_id"),
			ToID:      r.GetString("to_id"),
			Kind:      r.GetString("kind"),
			CreatedAt: r.GetTime("created_at"),
		})
	}
	return relations, nil
}
