package mongodb

import (
	"context"
	"errors"
	"strings"

	"mws-server/internal/mws/config"
	"mws-server/internal/mws/namespace"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// collectionSizer reports the current physical byte size of a collection.
// Split out so the quota arithmetic is testable without a live store.
type collectionSizer interface {
	CollectionSize(ctx context.Context, physicalName string) (int64, error)
}

// collStatsSizer reads collection sizes through the collStats command.
type collStatsSizer struct {
	db *mongo.Database
}

// CollectionSize returns the collection's byte size. A collection that does
// not exist yet has size zero.
func (s *collStatsSizer) CollectionSize(ctx context.Context, physicalName string) (int64, error) {
	var stats struct {
		Size int64 `bson:"size"`
	}
	err := s.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: physicalName}}).Decode(&stats)
	if err != nil {
		if isNamespaceNotFound(err) {
			return 0, nil
		}
		return 0, apperrors.NewStorageError("failed to read collection stats", err)
	}
	return stats.Size, nil
}

func isNamespaceNotFound(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 26 = NamespaceNotFound
		return cmdErr.Code == 26 || strings.Contains(cmdErr.Message, "ns not found")
	}
	return strings.Contains(err.Error(), "ns not found")
}

// QuotaGuard computes projected storage growth for writes and rejects
// operations that would push a collection past the configured byte quota.
// Checks always run before the mutating call reaches the store.
type QuotaGuard struct {
	sizer collectionSizer
	cfg   *config.Config
	log   logger.Logger
}

// NewQuotaGuard creates a QuotaGuard backed by collStats.
func NewQuotaGuard(db *mongo.Database, cfg *config.Config, log logger.Logger) *QuotaGuard {
	return &QuotaGuard{
		sizer: &collStatsSizer{db: db},
		cfg:   cfg,
		log:   log.WithComponent("quota_guard"),
	}
}

// CheckInsert verifies the serialized size of the incoming documents fits on
// top of the collection's current size.
func (g *QuotaGuard) CheckInsert(ctx context.Context, resID, logicalName string, docs []bson.M) error {
	current, err := g.currentSize(ctx, resID, logicalName)
	if err != nil {
		return err
	}

	var incoming int64
	for _, doc := range docs {
		size, err := serializedSize(doc)
		if err != nil {
			return err
		}
		incoming += size
	}

	if current+incoming > g.cfg.QuotaCollectionSize {
		g.log.WithFields(map[string]interface{}{
			"res_id":     resID,
			"collection": logicalName,
			"current":    current,
			"incoming":   incoming,
		}).Warn("Insert rejected by collection size quota")
		return apperrors.NewSizeQuotaExceeded().WithDetail(logicalName)
	}
	return nil
}

// CheckUpdate verifies the worst-case growth of an update: the serialized
// update document size times the matched document count. This deliberately
// overestimates updates that shrink documents.
func (g *QuotaGuard) CheckUpdate(ctx context.Context, resID, logicalName string, update bson.M, matched int64) error {
	current, err := g.currentSize(ctx, resID, logicalName)
	if err != nil {
		return err
	}

	updateSize, err := serializedSize(update)
	if err != nil {
		return err
	}

	if current+updateSize*matched > g.cfg.QuotaCollectionSize {
		g.log.WithFields(map[string]interface{}{
			"res_id":     resID,
			"collection": logicalName,
			"current":    current,
			"matched":    matched,
		}).Warn("Update rejected by collection size quota")
		return apperrors.NewSizeQuotaExceeded().WithDetail(logicalName)
	}
	return nil
}

func (g *QuotaGuard) currentSize(ctx context.Context, resID, logicalName string) (int64, error) {
	physical, err := namespace.NewTranslator(resID).ToPhysical(logicalName)
	if err != nil {
		return 0, err
	}
	return g.sizer.CollectionSize(ctx, physical)
}

// serializedSize is the BSON-encoded size of a document, the same measure
// the store bills against the collection.
func serializedSize(doc bson.M) (int64, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return 0, apperrors.NewBadRequest("document cannot be serialized").WithCause(err)
	}
	return int64(len(raw)), nil
}
