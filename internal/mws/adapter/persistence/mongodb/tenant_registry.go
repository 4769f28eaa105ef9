package mongodb

import (
	"context"
	"errors"
	"time"

	"mws-server/internal/mws/config"
	"mws-server/internal/mws/domain/model"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TenantRegistry tracks tenant records in the shared clients collection.
// Collection membership uses the store's atomic $addToSet/$pull updates; the
// collection-count quota check before $addToSet is best effort under
// concurrent writers for the same tenant.
type TenantRegistry struct {
	clients *mongo.Collection
	cfg     *config.Config
	log     logger.Logger
}

// NewTenantRegistry creates a TenantRegistry over the shared control collection.
func NewTenantRegistry(db *mongo.Database, cfg *config.Config, log logger.Logger) *TenantRegistry {
	return &TenantRegistry{
		clients: db.Collection(cfg.ClientsCollection),
		cfg:     cfg,
		log:     log.WithComponent("tenant_registry"),
	}
}

// EnsureResource returns the session's existing resource or creates a fresh
// tenant record for it.
func (r *TenantRegistry) EnsureResource(ctx context.Context, sessionID string) (*model.Resource, error) {
	var existing model.Tenant
	err := r.clients.FindOne(ctx, bson.M{"session_id": sessionID},
		options.FindOne().SetProjection(bson.M{"res_id": 1, "_id": 0})).Decode(&existing)
	if err == nil {
		return &model.Resource{ResID: existing.ResID, IsNew: false}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewStorageError("failed to look up session resource", err)
	}

	tenant := model.Tenant{
		Version:     1,
		ResID:       uuid.NewString(),
		SessionID:   sessionID,
		Collections: []string{},
		Timestamp:   time.Now(),
	}
	if _, err := r.clients.InsertOne(ctx, tenant); err != nil {
		return nil, apperrors.NewStorageError("failed to create tenant record", err)
	}

	r.log.WithFields(map[string]interface{}{
		"res_id":     tenant.ResID,
		"session_id": sessionID,
	}).Info("Created new tenant resource")

	return &model.Resource{ResID: tenant.ResID, IsNew: true}, nil
}

// HasAccess reports whether the session owns the given res_id.
func (r *TenantRegistry) HasAccess(ctx context.Context, resID, sessionID string) (bool, error) {
	err := r.clients.FindOne(ctx, bson.M{"res_id": resID, "session_id": sessionID}).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, apperrors.NewStorageError("failed to check tenant access", err)
}

// Touch updates the tenant record's last-activity timestamp.
func (r *TenantRegistry) Touch(ctx context.Context, resID, sessionID string) error {
	_, err := r.clients.UpdateOne(ctx,
		bson.M{"res_id": resID, "session_id": sessionID},
		bson.M{"$set": bson.M{"timestamp": time.Now()}})
	if err != nil {
		return apperrors.NewStorageError("failed to update tenant timestamp", err)
	}
	return nil
}

// CollectionsOf returns the tenant's registered logical collection names.
// An unknown tenant yields an empty set.
func (r *TenantRegistry) CollectionsOf(ctx context.Context, resID string) ([]string, error) {
	var tenant model.Tenant
	err := r.clients.FindOne(ctx, bson.M{"res_id": resID},
		options.FindOne().SetProjection(bson.M{"collections": 1, "_id": 0})).Decode(&tenant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []string{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read tenant collections", err)
	}
	if tenant.Collections == nil {
		return []string{}, nil
	}
	return tenant.Collections, nil
}

// RegisterCollection adds a logical name to the tenant's set, enforcing the
// collection-count quota for names not yet present. Re-registering a known
// name is idempotent and exempt from the quota.
func (r *TenantRegistry) RegisterCollection(ctx context.Context, resID, logicalName string) error {
	if limit := r.cfg.QuotaNumCollections; limit != nil {
		existing, err := r.CollectionsOf(ctx, resID)
		if err != nil {
			return err
		}
		known := false
		for _, name := range existing {
			if name == logicalName {
				known = true
				break
			}
		}
		if !known && len(existing)+1 > *limit {
			return apperrors.NewCollectionQuotaExceeded().
				WithDetail(logicalName)
		}
	}

	_, err := r.clients.UpdateMany(ctx,
		bson.M{"res_id": resID},
		bson.M{"$addToSet": bson.M{"collections": logicalName}})
	if err != nil {
		return apperrors.NewStorageError("failed to register collection", err)
	}
	return nil
}

// DeregisterCollection removes a logical name from the tenant's set.
func (r *TenantRegistry) DeregisterCollection(ctx context.Context, resID, logicalName string) error {
	_, err := r.clients.UpdateMany(ctx,
		bson.M{"res_id": resID},
		bson.M{"$pull": bson.M{"collections": logicalName}})
	if err != nil {
		return apperrors.NewStorageError("failed to deregister collection", err)
	}
	return nil
}

// ExpiredTenants lists tenant records idle since before the given time.
func (r *TenantRegistry) ExpiredTenants(ctx context.Context, before time.Time) ([]model.Tenant, error) {
	cur, err := r.clients.Find(ctx, bson.M{"timestamp": bson.M{"$lt": before}})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list expired tenants", err)
	}
	defer cur.Close(ctx)

	var tenants []model.Tenant
	if err := cur.All(ctx, &tenants); err != nil {
		return nil, apperrors.NewStorageError("failed to decode expired tenants", err)
	}
	return tenants, nil
}

// RemoveTenant deletes the tenant record.
func (r *TenantRegistry) RemoveTenant(ctx context.Context, resID string) error {
	if _, err := r.clients.DeleteOne(ctx, bson.M{"res_id": resID}); err != nil {
		return apperrors.NewStorageError("failed to remove tenant record", err)
	}
	return nil
}
