package mongodb

import (
	"context"
	"testing"
	"time"

	"mws-server/internal/mws/domain/model"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// fakeCursor feeds a fixed document list through the QueryCursor interface.
type fakeCursor struct {
	docs   []bson.M
	pos    int
	failAt int
	closed bool
}

func newFakeCursor(n int) *fakeCursor {
	docs := make([]bson.M, n)
	for i := range docs {
		docs[i] = bson.M{"i": i}
	}
	return &fakeCursor{docs: docs, failAt: -1}
}

func (f *fakeCursor) Next(ctx context.Context) bool {
	if f.failAt >= 0 && f.pos >= f.failAt {
		return false
	}
	if f.pos >= len(f.docs) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeCursor) Decode(val interface{}) error {
	*val.(*bson.M) = f.docs[f.pos-1]
	return nil
}

func (f *fakeCursor) Err() error {
	if f.failAt >= 0 && f.pos >= f.failAt {
		return assert.AnError
	}
	return nil
}

func (f *fakeCursor) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func newTestPager(t *testing.T) *CursorPager {
	t.Helper()
	p := NewCursorPager(time.Minute, logger.NewLoggerWithConfig("error", "text"))
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestOpenDrainsFullyWithoutBatchSize(t *testing.T) {
	p := newTestPager(t)
	cur := newFakeCursor(3)

	res, err := p.Open(context.Background(), "res1", cur, 3, 0)
	require.NoError(t, err)

	assert.Len(t, res.Result, 3)
	assert.Equal(t, int64(3), res.Count)
	assert.Zero(t, res.CursorID)
	assert.True(t, cur.closed)
	assert.Zero(t, p.Live())
}

func TestOpenKeepsCursorAliveWhenBatched(t *testing.T) {
	p := newTestPager(t)
	cur := newFakeCursor(5)

	res, err := p.Open(context.Background(), "res1", cur, 5, 2)
	require.NoError(t, err)

	assert.Len(t, res.Result, 2)
	assert.Equal(t, int64(5), res.Count)
	assert.NotZero(t, res.CursorID)
	assert.False(t, cur.closed)
	assert.Equal(t, 1, p.Live())
}

func TestOpenClosesEagerlyWhenFirstBatchCoversTotal(t *testing.T) {
	p := newTestPager(t)
	cur := newFakeCursor(2)

	res, err := p.Open(context.Background(), "res1", cur, 2, 2)
	require.NoError(t, err)

	assert.Len(t, res.Result, 2)
	assert.Zero(t, res.CursorID)
	assert.True(t, cur.closed)
	assert.Zero(t, p.Live())
}

func TestResumeWalksBatchesToExhaustion(t *testing.T) {
	p := newTestPager(t)
	cur := newFakeCursor(5)
	ctx := context.Background()

	first, err := p.Open(ctx, "res1", cur, 5, 2)
	require.NoError(t, err)
	require.NotZero(t, first.CursorID)

	second, err := p.Resume(ctx, "res1", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	require.NoError(t, err)
	assert.Len(t, second.Result, 2)
	assert.Equal(t, first.CursorID, second.CursorID)
	assert.False(t, cur.closed)

	// Last batch retrieves the fifth document; the cursor dies with it.
	third, err := p.Resume(ctx, "res1", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	require.NoError(t, err)
	assert.Len(t, third.Result, 1)
	assert.Equal(t, int64(5), third.Count)
	assert.Zero(t, third.CursorID)
	assert.True(t, cur.closed)
	assert.Zero(t, p.Live())
}

func TestResumeUnknownCursorFails(t *testing.T) {
	p := newTestPager(t)

	_, err := p.Resume(context.Background(), "res1", model.CursorToken{CursorID: 99, BatchSize: 2})
	require.Error(t, err)
	assert.True(t, apperrors.IsCursorNotFound(err))
}

func TestResumeByOtherTenantFails(t *testing.T) {
	p := newTestPager(t)
	cur := newFakeCursor(5)
	ctx := context.Background()

	first, err := p.Open(ctx, "res1", cur, 5, 2)
	require.NoError(t, err)
	require.NotZero(t, first.CursorID)

	// Another tenant presenting the id gets the same answer as an unknown
	// id, and the owner's cursor stays untouched.
	_, err = p.Resume(ctx, "res2", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	require.Error(t, err)
	assert.True(t, apperrors.IsCursorNotFound(err))
	assert.False(t, cur.closed)
	assert.Equal(t, 1, p.Live())

	next, err := p.Resume(ctx, "res1", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	require.NoError(t, err)
	assert.Len(t, next.Result, 2)
}

func TestResumeAfterExhaustionFails(t *testing.T) {
	p := newTestPager(t)
	ctx := context.Background()

	first, err := p.Open(ctx, "res1", newFakeCursor(3), 3, 2)
	require.NoError(t, err)

	_, err = p.Resume(ctx, "res1", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	require.NoError(t, err)

	_, err = p.Resume(ctx, "res1", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	assert.True(t, apperrors.IsCursorNotFound(err))
}

func TestIterationErrorKillsCursor(t *testing.T) {
	p := newTestPager(t)
	ctx := context.Background()

	cur := newFakeCursor(5)
	first, err := p.Open(ctx, "res1", cur, 5, 2)
	require.NoError(t, err)

	cur.failAt = cur.pos
	_, err = p.Resume(ctx, "res1", model.CursorToken{CursorID: first.CursorID, BatchSize: 2})
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
	assert.True(t, cur.closed)
	assert.Zero(t, p.Live())
}

func TestReapExpiredClosesIdleCursors(t *testing.T) {
	p := newTestPager(t)
	cur := newFakeCursor(5)

	res, err := p.Open(context.Background(), "res1", cur, 5, 2)
	require.NoError(t, err)
	require.Equal(t, 1, p.Live())

	p.reapExpired(time.Now().Add(2 * time.Minute))

	assert.Zero(t, p.Live())
	assert.True(t, cur.closed)
	assert.True(t, apperrors.IsCursorNotFound(mustResumeErr(t, p, res.CursorID)))
}

func mustResumeErr(t *testing.T, p *CursorPager, id int64) error {
	t.Helper()
	_, err := p.Resume(context.Background(), "res1", model.CursorToken{CursorID: id, BatchSize: 1})
	require.Error(t, err)
	return err
}

func TestShutdownClosesEverything(t *testing.T) {
	p := NewCursorPager(time.Minute, logger.NewLoggerWithConfig("error", "text"))

	curA := newFakeCursor(5)
	curB := newFakeCursor(5)
	_, err := p.Open(context.Background(), "res1", curA, 5, 2)
	require.NoError(t, err)
	_, err = p.Open(context.Background(), "res2", curB, 5, 2)
	require.NoError(t, err)

	p.Shutdown(context.Background())

	assert.True(t, curA.closed)
	assert.True(t, curB.closed)
	assert.Zero(t, p.Live())
}
