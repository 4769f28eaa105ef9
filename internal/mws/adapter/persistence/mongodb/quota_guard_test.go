package mongodb

import (
	"context"
	"testing"

	"mws-server/internal/mws/config"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// fakeSizer returns a fixed collection size and records the physical name
// it was asked about.
type fakeSizer struct {
	size  int64
	err   error
	asked string
}

func (f *fakeSizer) CollectionSize(ctx context.Context, physicalName string) (int64, error) {
	f.asked = physicalName
	return f.size, f.err
}

func newTestGuard(current, quota int64) (*QuotaGuard, *fakeSizer) {
	cfg := config.DefaultConfig()
	cfg.QuotaCollectionSize = quota
	sizer := &fakeSizer{size: current}
	return &QuotaGuard{
		sizer: sizer,
		cfg:   cfg,
		log:   logger.NewLoggerWithConfig("error", "text"),
	}, sizer
}

func docOfSize(t *testing.T, approx int) bson.M {
	t.Helper()
	return bson.M{"pad": string(make([]byte, approx))}
}

func TestCheckInsertAdmitsWithinQuota(t *testing.T) {
	guard, sizer := newTestGuard(100, 1<<20)

	err := guard.CheckInsert(context.Background(), "res1", "users", []bson.M{{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, "res1users", sizer.asked)
}

func TestCheckInsertRejectsOverQuota(t *testing.T) {
	guard, _ := newTestGuard(900, 1000)

	err := guard.CheckInsert(context.Background(), "res1", "users", []bson.M{docOfSize(t, 200)})
	require.Error(t, err)

	mwsErr := apperrors.AsMWSError(err)
	assert.True(t, apperrors.IsQuotaExceeded(err))
	assert.Equal(t, 403, mwsErr.HTTPStatus)
	assert.Equal(t, "users", mwsErr.Detail)
}

func TestCheckInsertSumsAllDocuments(t *testing.T) {
	guard, _ := newTestGuard(0, 500)

	// Each document alone fits; together they do not.
	docs := []bson.M{docOfSize(t, 200), docOfSize(t, 200), docOfSize(t, 200)}
	err := guard.CheckInsert(context.Background(), "res1", "users", docs)
	assert.True(t, apperrors.IsQuotaExceeded(err))
}

func TestCheckInsertMissingCollectionCountsAsEmpty(t *testing.T) {
	guard, sizer := newTestGuard(0, 1000)
	sizer.size = 0

	err := guard.CheckInsert(context.Background(), "res1", "fresh", []bson.M{{"a": 1}})
	assert.NoError(t, err)
}

func TestCheckUpdateScalesByMatchedCount(t *testing.T) {
	guard, _ := newTestGuard(0, 1000)
	update := docOfSize(t, 80)

	// Worst case is update size times matched documents.
	require.NoError(t, guard.CheckUpdate(context.Background(), "res1", "users", update, 5))
	err := guard.CheckUpdate(context.Background(), "res1", "users", update, 50)
	assert.True(t, apperrors.IsQuotaExceeded(err))
}

func TestCheckUpdateZeroMatchedAlwaysFits(t *testing.T) {
	guard, _ := newTestGuard(999, 1000)

	err := guard.CheckUpdate(context.Background(), "res1", "users", docOfSize(t, 5000), 0)
	assert.NoError(t, err)
}

func TestCheckRejectsReservedCollection(t *testing.T) {
	guard, _ := newTestGuard(0, 1000)

	err := guard.CheckInsert(context.Background(), "res1", "system.indexes", []bson.M{{"a": 1}})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestSerializedSizeMatchesMarshal(t *testing.T) {
	doc := bson.M{"name": "alice", "age": 30}
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	size, err := serializedSize(doc)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), size)
}
