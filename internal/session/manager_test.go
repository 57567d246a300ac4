package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/statecore/internal/cache"
	"github.com/joss/statecore/internal/detach"
	"github.com/joss/statecore/internal/domain"
	"github.com/joss/statecore/internal/durable"
	"github.com/joss/statecore/internal/metrics"
	"github.com/joss/statecore/internal/obs"
)

type fixture struct {
	cache *cache.Memory
	db    *durable.SQLite
	queue *detach.Queue
	mgr   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := durable.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := obs.New("session", metrics.New())
	q := detach.NewQueue(h.For("detach"), 64, 2)
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	c := cache.NewMemory()
	return &fixture{
		cache: c,
		db:    db,
		queue: q,
		mgr:   NewManager(c, db, q, h),
	}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, f.queue.Drain(ctx), "detached writes did not settle")
}

func TestCreateThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, int64(1), sess.Version)

	got, err := f.mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "cli", got.AdapterType)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Ended)
}

func TestCreateLandsDurably(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")
	f.drain(t)

	rec, err := f.db.QueryOne(ctx, `SELECT user_id, version FROM sessions WHERE session_id = ?`, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.GetString("user_id"))
	assert.Equal(t, int64(1), rec.GetInt64("version"))
}

func TestGetAbsentReturnsNil(t *testing.T) {
	f := newFixture(t)

	got, err := f.mgr.Get(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateBumpsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")

	msgs := 3
	ok, err := f.mgr.Update(ctx, sess.ID, domain.SessionUpdate{
		DomainState:   map[string]any{"step": "gather"},
		TotalMessages: &msgs,
	}, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "gather", got.DomainState["step"])
	assert.Equal(t, 3, got.Metadata.TotalMessages)
}

func TestUpdateVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")

	ok, err := f.mgr.Update(ctx, sess.ID, domain.SessionUpdate{
		DomainState: map[string]any{"writer": "first"},
	}, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Second writer still holds the old version; its update must lose
	// without error.
	ok, err = f.mgr.Update(ctx, sess.ID, domain.SessionUpdate{
		DomainState: map[string]any{"writer": "second"},
	}, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "first", got.DomainState["writer"])
}

func TestUpdateConflictLeavesDurableUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")
	f.drain(t)

	ok, err := f.mgr.Update(ctx, sess.ID, domain.SessionUpdate{
		DomainState: map[string]any{"writer": "first"},
	}, 1)
	require.NoError(t, err)
	require.True(t, ok)
	f.drain(t)

	rec, err := f.db.QueryOne(ctx, `SELECT version, domain_state FROM sessions WHERE session_id = ?`, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2), rec.GetInt64("version"))
}

func TestUpdateAbsentSession(t *testing.T) {
	f := newFixture(t)

	ok, err := f.mgr.Update(context.Background(), "no-such-session", domain.SessionUpdate{}, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEndTombstonesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")
	f.drain(t)

	ok, err := f.mgr.End(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := f.mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Ended)
	assert.True(t, got.LastActive.After(sess.LastActive), "ending must refresh last_active")

	// The tombstone expires much sooner than a live session.
	ttl := f.mgr.TimeToExpiry(ctx, sess.ID)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	rec, err := f.db.QueryOne(ctx, `SELECT ended FROM sessions WHERE session_id = ?`, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.GetBool("ended"))
}

func TestEndRequiresDurableConfirmation(t *testing.T) {
	db, err := durable.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := obs.New("session", metrics.New())
	// The queue is not started yet, so the durable tier lags behind the
	// cache: the create insert stays pending.
	q := detach.NewQueue(h.For("detach"), 64, 2)
	mgr := NewManager(cache.NewMemory(), db, q, h)
	ctx := context.Background()

	sess := mgr.Create(ctx, "alice", "cli")

	ok, err := mgr.End(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok, "end must not report success before the durable row exists")

	rec, err := db.QueryOne(ctx, `SELECT ended FROM sessions WHERE session_id = ?`, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Once the pending writes land, ending succeeds and is durable.
	q.Start(ctx)
	t.Cleanup(q.Stop)
	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.True(t, q.Drain(drainCtx))

	ok, err = mgr.End(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)

	rec, err = db.QueryOne(ctx, `SELECT ended FROM sessions WHERE session_id = ?`, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.GetBool("ended"))
}

func TestUpdateConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")

	const writers = 8
	results := make(chan bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := f.mgr.Update(ctx, sess.ID, domain.SessionUpdate{
				DomainState: map[string]any{"writer": i},
			}, 1)
			assert.NoError(t, err)
			results <- ok
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent update may win")

	got, err := f.mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
}

func TestEndAbsentSession(t *testing.T) {
	f := newFixture(t)

	ok, err := f.mgr.End(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsAndTimeToExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.mgr.Exists(ctx, "no-such-session"))
	assert.Equal(t, time.Duration(-1), f.mgr.TimeToExpiry(ctx, "no-such-session"))

	sess := f.mgr.Create(ctx, "alice", "cli")
	assert.True(t, f.mgr.Exists(ctx, sess.ID))

	ttl := f.mgr.TimeToExpiry(ctx, sess.ID)
	assert.Greater(t, ttl, 23*time.Hour)
	assert.LessOrEqual(t, ttl, 24*time.Hour)
}

func TestMalformedCachePayloadFallsThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.mgr.Create(ctx, "alice", "cli")
	f.drain(t)

	require.NoError(t, f.cache.Set(ctx, Key(sess.ID), "{corrupt", time.Hour))

	got, err := f.mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.UserID)

	// The durable read repopulates the cache with a clean payload.
	cached := f.mgr.readCache(ctx, sess.ID)
	require.NotNil(t, cached)
	assert.Equal(t, sess.ID, cached.ID)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.mgr.Create(ctx, "alice", "cli")
	f.mgr.Create(ctx, "bob", "web")
	b := f.mgr.Create(ctx, "alice", "web")
	f.drain(t)

	sessions, err := f.mgr.ListByUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)
}

// failingCache rejects every operation, standing in for an unreachable
// cache tier.
type failingCache struct{}

var errCacheDown = errors.New("cache unreachable")

func (failingCache) Get(context.Context, string) (string, bool, error) { return "", false, errCacheDown }
func (failingCache) Set(context.Context, string, string, time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(context.Context, string) error        { return errCacheDown }
func (failingCache) Exists(context.Context, string) (bool, error) { return false, errCacheDown }
func (failingCache) TTL(context.Context, string) (time.Duration, error) {
	return -1, errCacheDown
}
func (failingCache) ListAppend(context.Context, string, string) error { return errCacheDown }
func (failingCache) ListRange(context.Context, string, int, int) ([]string, error) {
	return nil, errCacheDown
}
func (failingCache) ListTrim(context.Context, string, int, int) error { return errCacheDown }
func (failingCache) Expire(context.Context, string, time.Duration) error {
	return errCacheDown
}

func TestCacheOutageDegradesGracefully(t *testing.T) {
	db, err := durable.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := obs.New("session", metrics.New())
	q := detach.NewQueue(h.For("detach"), 64, 2)
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	mgr := NewManager(failingCache{}, db, q, h)
	ctx := context.Background()

	sess := mgr.Create(ctx, "alice", "cli")
	require.NotNil(t, sess, "create must succeed without the cache")

	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.True(t, q.Drain(drainCtx))

	// Reads fall back to the durable tier.
	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.UserID)

	// Liveness probes degrade to their zero answers, never to errors.
	assert.False(t, mgr.Exists(ctx, sess.ID))
	assert.Equal(t, time.Duration(-1), mgr.TimeToExpiry(ctx, sess.ID))

	assert.Greater(t, h.Metrics.CacheErrors.Load(), int64(0))
}
