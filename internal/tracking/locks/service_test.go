package locks

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- in-memory fake ----------

type fakeStore struct {
	mu   sync.Mutex
	rows map[int64]Row
}

func newFakeStore(ids ...int64) *fakeStore {
	f := &fakeStore{rows: map[int64]Row{}}
	for _, id := range ids {
		f.rows[id] = Row{ItemID: id}
	}
	return f
}

func (f *fakeStore) WithTx(_ context.Context, fn func(tx TxStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakeTx{f: f})
}

type fakeTx struct{ f *fakeStore }

func (t *fakeTx) GetForUpdate(_ context.Context, ids []int64) ([]Row, error) {
	var out []Row
	for _, id := range ids {
		if r, ok := t.f.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *fakeTx) SetHolder(_ context.Context, ids []int64, holder string, at time.Time) error {
	for _, id := range ids {
		r := t.f.rows[id]
		r.ItemID = id
		r.Holder = sql.NullString{String: holder, Valid: true}
		r.AcquiredAt = sql.NullTime{Time: at, Valid: true}
		t.f.rows[id] = r
	}
	return nil
}

func (t *fakeTx) Clear(_ context.Context, ids []int64) error {
	for _, id := range ids {
		r := t.f.rows[id]
		r.Holder = sql.NullString{}
		r.AcquiredAt = sql.NullTime{}
		t.f.rows[id] = r
	}
	return nil
}

func (t *fakeTx) ClearByHolder(_ context.Context, holder string) (int64, error) {
	var n int64
	for id, r := range t.f.rows {
		if r.Holder.Valid && r.Holder.String == holder {
			r.Holder = sql.NullString{}
			r.AcquiredAt = sql.NullTime{}
			t.f.rows[id] = r
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) ListHeld(_ context.Context) ([]Row, error) {
	var out []Row
	for _, r := range t.f.rows {
		if r.Holder.Valid && r.Holder.String != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newService(f *fakeStore, clk *fakeClock) *Service {
	return &Service{store: f, clock: clk, ttl: 30 * time.Minute}
}

func (f *fakeStore) holder(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Holder.String
}

// ---------- tests ----------

func TestAcquire_allOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(1, 2, 3, 4)
	clk := &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc := newService(f, clk)

	ok, blocked, err := svc.Acquire(ctx, []int64{1, 2, 3}, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, blocked)

	// bob は 2 が衝突するため 4 も取れない
	ok, blocked, err = svc.Acquire(ctx, []int64{2, 4}, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{2}, blocked)
	assert.Equal(t, "", f.holder(4))

	// 自分自身は再取得できる（時刻更新のみ）
	ok, _, err = svc.Acquire(ctx, []int64{1, 2}, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_expiredLockIsFree(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(1)
	clk := &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc := newService(f, clk)

	ok, _, err := svc.Acquire(ctx, []int64{1}, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	// TTL(30分)ちょうど経過で失効し、他者が取得できる
	clk.now = clk.now.Add(30 * time.Minute)
	ok, blocked, err := svc.Acquire(ctx, []int64{1}, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, blocked)
	assert.Equal(t, "bob", f.holder(1))
}

func TestRelease_isIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(1, 2)
	clk := &fakeClock{now: time.Now()}
	svc := newService(f, clk)

	_, _, err := svc.Acquire(ctx, []int64{1}, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, []int64{1, 2}))
	require.NoError(t, svc.Release(ctx, []int64{1, 2}))
	assert.Equal(t, "", f.holder(1))
}

func TestReleaseMine(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(1, 2, 3)
	clk := &fakeClock{now: time.Now()}
	svc := newService(f, clk)

	_, _, err := svc.Acquire(ctx, []int64{1, 2}, "alice")
	require.NoError(t, err)
	_, _, err = svc.Acquire(ctx, []int64{3}, "bob")
	require.NoError(t, err)

	n, err := svc.ReleaseMine(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "bob", f.holder(3))
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(1, 2, 3)
	clk := &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc := newService(f, clk)

	_, _, err := svc.Acquire(ctx, []int64{1, 2}, "alice")
	require.NoError(t, err)

	clk.now = clk.now.Add(10 * time.Minute)
	_, _, err = svc.Acquire(ctx, []int64{3}, "bob")
	require.NoError(t, err)

	// alice の2本だけ失効
	clk.now = clk.now.Add(25 * time.Minute)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "", f.holder(1))
	assert.Equal(t, "bob", f.holder(3))
}
