package mongodb

import (
	"context"
	"errors"

	"mws-server/internal/mws/domain/model"
	"mws-server/internal/mws/domain/repository"
	"mws-server/internal/mws/namespace"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ScopedAcquirer hands out tenant scopes over the shared database. The
// returned scope replaces the dynamic method patching of the historical
// design with plain composition: one wrapper type that translates every
// collection access and keeps the registry in sync.
type ScopedAcquirer struct {
	db       *mongo.Database
	registry repository.TenantRegistry
	log      logger.Logger
}

// NewScopedAcquirer creates the acquirer for the given shared database.
func NewScopedAcquirer(db *mongo.Database, registry repository.TenantRegistry, log logger.Logger) *ScopedAcquirer {
	return &ScopedAcquirer{db: db, registry: registry, log: log.WithComponent("scoped_handle")}
}

// WithTenant acquires a scope bound to the tenant's namespace prefix.
func (a *ScopedAcquirer) WithTenant(ctx context.Context, resID string) (repository.TenantScope, error) {
	if resID == "" {
		return nil, apperrors.NewBadRequest("res_id must not be empty")
	}
	return &scopedHandle{
		db:         a.db,
		registry:   a.registry,
		resID:      resID,
		translator: namespace.NewTranslator(resID),
		log:        a.log,
	}, nil
}

// scopedHandle implements repository.TenantScope for one tenant.
type scopedHandle struct {
	db         *mongo.Database
	registry   repository.TenantRegistry
	resID      string
	translator *namespace.Translator
	log        logger.Logger

	released bool
}

// Release frees per-operation bookkeeping state. Safe to call more than once.
func (h *scopedHandle) Release() {
	h.released = true
}

func (h *scopedHandle) collection(logicalName string) (*mongo.Collection, error) {
	physical, err := h.translator.ToPhysical(logicalName)
	if err != nil {
		return nil, err
	}
	return h.db.Collection(physical), nil
}

// Find executes the query and returns the open server-side cursor together
// with the total matching count honoring skip and limit.
func (h *scopedHandle) Find(ctx context.Context, logicalName string, args model.FindArgs) (repository.QueryCursor, int64, error) {
	coll, err := h.collection(logicalName)
	if err != nil {
		return nil, 0, err
	}
	query, err := sanitizeQuery(args.Query)
	if err != nil {
		return nil, 0, err
	}

	total, err := h.countMatching(ctx, coll, query, args.Skip, args.Limit)
	if err != nil {
		return nil, 0, err
	}

	findOpts := options.Find()
	if args.Projection != nil {
		findOpts.SetProjection(args.Projection)
	}
	if args.Skip > 0 {
		findOpts.SetSkip(args.Skip)
	}
	if args.Limit > 0 {
		findOpts.SetLimit(args.Limit)
	}
	if len(args.Sort) > 0 {
		findOpts.SetSort(args.Sort)
	}

	cur, err := coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, wrapQueryError("find failed", err)
	}
	return cur, total, nil
}

// Count returns the number of documents matching the query.
func (h *scopedHandle) Count(ctx context.Context, logicalName string, args model.CountArgs) (int64, error) {
	coll, err := h.collection(logicalName)
	if err != nil {
		return 0, err
	}
	query, err := sanitizeQuery(args.Query)
	if err != nil {
		return 0, err
	}
	return h.countMatching(ctx, coll, query, args.Skip, args.Limit)
}

func (h *scopedHandle) countMatching(ctx context.Context, coll *mongo.Collection, query bson.M, skip, limit int64) (int64, error) {
	countOpts := options.Count()
	if skip > 0 {
		countOpts.SetSkip(skip)
	}
	if limit > 0 {
		countOpts.SetLimit(limit)
	}
	total, err := coll.CountDocuments(ctx, normalizeQuery(query), countOpts)
	if err != nil {
		return 0, wrapQueryError("count failed", err)
	}
	return total, nil
}

// Insert writes the documents, registering the logical collection first so
// the registry never under-reports a collection that was actually written.
func (h *scopedHandle) Insert(ctx context.Context, logicalName string, docs []bson.M) error {
	if len(docs) == 0 {
		return apperrors.NewBadRequest("'document' argument not found in the insert request")
	}
	coll, err := h.collection(logicalName)
	if err != nil {
		return err
	}
	if err := h.registry.RegisterCollection(ctx, h.resID, logicalName); err != nil {
		return err
	}

	if len(docs) == 1 {
		_, err = coll.InsertOne(ctx, docs[0])
	} else {
		many := make([]interface{}, len(docs))
		for i, d := range docs {
			many[i] = d
		}
		_, err = coll.InsertMany(ctx, many)
	}
	if err != nil {
		return wrapWriteError("insert failed", err)
	}
	return nil
}

// Update applies the update; an upsert may create the collection, so it is
// registered before the write.
func (h *scopedHandle) Update(ctx context.Context, logicalName string, args model.UpdateArgs) (*model.WriteSummary, error) {
	coll, err := h.collection(logicalName)
	if err != nil {
		return nil, err
	}
	query, err := sanitizeQuery(args.Query)
	if err != nil {
		return nil, err
	}
	if args.Upsert {
		if err := h.registry.RegisterCollection(ctx, h.resID, logicalName); err != nil {
			return nil, err
		}
	}

	updateOpts := options.Update().SetUpsert(args.Upsert)
	var res *mongo.UpdateResult
	if args.Multi {
		res, err = coll.UpdateMany(ctx, normalizeQuery(query), args.Update, updateOpts)
	} else {
		res, err = coll.UpdateOne(ctx, normalizeQuery(query), args.Update, updateOpts)
	}
	if err != nil {
		return nil, wrapWriteError("update failed", err)
	}
	return &model.WriteSummary{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Upserted: res.UpsertedID,
	}, nil
}

// Save inserts the document, or replaces it by _id when one is present.
// Either path can create the collection, so registration comes first.
func (h *scopedHandle) Save(ctx context.Context, logicalName string, doc bson.M) (*model.WriteSummary, error) {
	coll, err := h.collection(logicalName)
	if err != nil {
		return nil, err
	}
	if err := h.registry.RegisterCollection(ctx, h.resID, logicalName); err != nil {
		return nil, err
	}

	id, hasID := doc["_id"]
	if !hasID {
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return nil, wrapWriteError("save failed", err)
		}
		return &model.WriteSummary{Modified: 1}, nil
	}

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, wrapWriteError("save failed", err)
	}
	return &model.WriteSummary{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Upserted: res.UpsertedID,
	}, nil
}

// Remove deletes matching documents, or just one when requested.
func (h *scopedHandle) Remove(ctx context.Context, logicalName string, args model.RemoveArgs) (*model.WriteSummary, error) {
	coll, err := h.collection(logicalName)
	if err != nil {
		return nil, err
	}
	constraint, err := sanitizeQuery(args.Constraint)
	if err != nil {
		return nil, err
	}

	if args.JustOne {
		err := coll.FindOneAndDelete(ctx, normalizeQuery(constraint)).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &model.WriteSummary{Removed: 0}, nil
		}
		if err != nil {
			return nil, wrapWriteError("remove failed", err)
		}
		return &model.WriteSummary{Removed: 1}, nil
	}

	res, err := coll.DeleteMany(ctx, normalizeQuery(constraint))
	if err != nil {
		return nil, wrapWriteError("remove failed", err)
	}
	return &model.WriteSummary{Removed: res.DeletedCount}, nil
}

// Aggregate runs the pipeline against the tenant's collection. Stages are
// sanitized and their collection references translated first, so $lookup,
// $out and friends cannot leave the tenant's namespace. Pipeline errors
// surface as bad requests, matching the historical behavior.
func (h *scopedHandle) Aggregate(ctx context.Context, logicalName string, pipeline []bson.M) ([]bson.M, error) {
	coll, err := h.collection(logicalName)
	if err != nil {
		return nil, err
	}
	sanitized, err := sanitizePipeline(h.translator, pipeline)
	if err != nil {
		return nil, err
	}

	stages := make(mongo.Pipeline, 0, len(sanitized))
	for _, stage := range sanitized {
		doc := bson.D{}
		for k, v := range stage {
			doc = append(doc, bson.E{Key: k, Value: v})
		}
		stages = append(stages, doc)
	}

	cur, err := coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, wrapQueryError("aggregate failed", err)
	}
	defer cur.Close(ctx)

	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.NewStorageError("failed to read aggregation results", err)
	}
	if out == nil {
		out = []bson.M{}
	}
	return out, nil
}

// Drop removes the physical collection, then deregisters it. When the
// physical drop fails the registry entry stays, keeping the registered set
// a superset of what physically exists.
func (h *scopedHandle) Drop(ctx context.Context, logicalName string) error {
	coll, err := h.collection(logicalName)
	if err != nil {
		return err
	}
	if err := coll.Drop(ctx); err != nil {
		return apperrors.NewStorageError("drop failed", err)
	}
	return h.registry.DeregisterCollection(ctx, h.resID, logicalName)
}

// DropAll drops every collection registered to the tenant.
func (h *scopedHandle) DropAll(ctx context.Context) error {
	names, err := h.registry.CollectionsOf(ctx, h.resID)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := h.Drop(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// normalizeQuery keeps nil filters valid for the driver.
func normalizeQuery(query bson.M) bson.M {
	if query == nil {
		return bson.M{}
	}
	return query
}

// wrapQueryError maps query-shaped failures (bad operators, malformed
// expressions) to 400 and everything else to a storage error.
func wrapQueryError(reason string, err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return apperrors.NewBadRequest(cmdErr.Message).WithCause(err)
	}
	return apperrors.NewStorageError(reason, err)
}

// wrapWriteError maps document-shaped failures to 400 and everything else
// to a storage error.
func wrapWriteError(reason string, err error) error {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0 {
		return apperrors.NewBadRequest(writeErr.WriteErrors[0].Message).WithCause(err)
	}
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		return apperrors.NewBadRequest(bulkErr.WriteErrors[0].Message).WithCause(err)
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return apperrors.NewBadRequest(cmdErr.Message).WithCause(err)
	}
	return apperrors.NewStorageError(reason, err)
}
