package usecase

import (
	"context"

	"mws-server/internal/mws/domain/model"
	"mws-server/internal/mws/domain/repository"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap" // For logging fields
)

// ShellUsecase is the boundary the HTTP layer drives. Each operation takes
// the tenant id and logical collection name and runs the full isolation
// flow: scope acquisition, quota checks, namespace-translated execution and
// registry upkeep.
type ShellUsecase interface {
	CreateResource(ctx context.Context, sessionID string) (*model.Resource, error)
	VerifyAccess(ctx context.Context, resID, sessionID string) error
	KeepAlive(ctx context.Context, resID, sessionID string) error

	Find(ctx context.Context, resID, collection string, args model.FindArgs) (*model.FindResult, error)
	Count(ctx context.Context, resID, collection string, args model.CountArgs) (int64, error)
	Insert(ctx context.Context, resID, collection string, docs []bson.M) error
	Update(ctx context.Context, resID, collection string, args model.UpdateArgs) (*model.WriteSummary, error)
	Save(ctx context.Context, resID, collection string, doc bson.M) (*model.WriteSummary, error)
	Remove(ctx context.Context, resID, collection string, args model.RemoveArgs) (*model.WriteSummary, error)
	Aggregate(ctx context.Context, resID, collection string, pipeline []bson.M) ([]bson.M, error)
	DropCollection(ctx context.Context, resID, collection string) error
	DropDatabase(ctx context.Context, resID string) error
	GetCollectionNames(ctx context.Context, resID string) ([]string, error)
}

type shellUsecase struct {
	registry  repository.TenantRegistry
	acquirer  repository.ScopedAcquirer
	quota     repository.QuotaGuard
	pager     repository.CursorPager
	batchSize int64
	log       logger.Logger
}

// NewShellUsecase wires the isolation core behind the boundary interface.
// batchSize is the page size used when a find request does not name one.
func NewShellUsecase(
	registry repository.TenantRegistry,
	acquirer repository.ScopedAcquirer,
	quota repository.QuotaGuard,
	pager repository.CursorPager,
	batchSize int64,
	log logger.Logger,
) ShellUsecase {
	return &shellUsecase{
		registry:  registry,
		acquirer:  acquirer,
		quota:     quota,
		pager:     pager,
		batchSize: batchSize,
		log:       log.WithComponent("shell_usecase"),
	}
}

// CreateResource returns the session's resource, creating a tenant record
// on first contact.
func (uc *shellUsecase) CreateResource(ctx context.Context, sessionID string) (*model.Resource, error) {
	if sessionID == "" {
		return nil, apperrors.NewUnauthorized("There is no session_id cookie")
	}
	res, err := uc.registry.EnsureResource(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if res.IsNew {
		uc.log.Info("Resource created", zap.String("res_id", res.ResID))
	}
	return res, nil
}

// VerifyAccess fails unless the session owns the tenant.
func (uc *shellUsecase) VerifyAccess(ctx context.Context, resID, sessionID string) error {
	if sessionID == "" {
		return apperrors.NewUnauthorized("There is no session_id cookie")
	}
	ok, err := uc.registry.HasAccess(ctx, resID, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewForbidden("Session error. User does not have access to res_id").
			WithCause(apperrors.ErrNoAccess)
	}
	return nil
}

// KeepAlive refreshes the tenant's last-activity timestamp.
func (uc *shellUsecase) KeepAlive(ctx context.Context, resID, sessionID string) error {
	return uc.registry.Touch(ctx, resID, sessionID)
}

// Find starts a paged query, or resumes one when the args carry a cursor id.
// A request without a batch size pages at the configured default.
func (uc *shellUsecase) Find(ctx context.Context, resID, collection string, args model.FindArgs) (*model.FindResult, error) {
	if args.BatchSize <= 0 {
		args.BatchSize = uc.batchSize
	}

	token := model.CursorToken{
		CursorID:  args.CursorID,
		Retrieved: args.Retrieved,
		Total:     args.Total,
		BatchSize: args.BatchSize,
	}
	if token.IsResume() {
		return uc.pager.Resume(ctx, resID, token)
	}

	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	cur, total, err := scope.Find(ctx, collection, args)
	if err != nil {
		return nil, err
	}
	return uc.pager.Open(ctx, resID, cur, total, args.BatchSize)
}

// Count returns the number of matching documents, honoring skip and limit.
func (uc *shellUsecase) Count(ctx context.Context, resID, collection string, args model.CountArgs) (int64, error) {
	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return 0, err
	}
	defer scope.Release()

	return scope.Count(ctx, collection, args)
}

// Insert writes the documents after the byte-size quota admits them. The
// quota check runs before any mutation reaches the store.
func (uc *shellUsecase) Insert(ctx context.Context, resID, collection string, docs []bson.M) error {
	if len(docs) == 0 {
		return apperrors.NewBadRequest("'document' argument not found in the insert request")
	}
	if err := uc.quota.CheckInsert(ctx, resID, collection, docs); err != nil {
		return err
	}

	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return err
	}
	defer scope.Release()

	return scope.Insert(ctx, collection, docs)
}

// Update applies the update after a worst-case growth estimate passes the
// byte-size quota: serialized update size times the matched count.
func (uc *shellUsecase) Update(ctx context.Context, resID, collection string, args model.UpdateArgs) (*model.WriteSummary, error) {
	if args.Query == nil || args.Update == nil {
		return nil, apperrors.NewBadRequest("update requires spec and document arguments")
	}

	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	matched, err := scope.Count(ctx, collection, model.CountArgs{Query: args.Query})
	if err != nil {
		return nil, err
	}
	if err := uc.quota.CheckUpdate(ctx, resID, collection, args.Update, matched); err != nil {
		return nil, err
	}

	return scope.Update(ctx, collection, args)
}

// Save upserts the document, subject to the byte-size quota.
func (uc *shellUsecase) Save(ctx context.Context, resID, collection string, doc bson.M) (*model.WriteSummary, error) {
	if doc == nil {
		return nil, apperrors.NewBadRequest("'document' argument not found in the save request")
	}
	if err := uc.quota.CheckInsert(ctx, resID, collection, []bson.M{doc}); err != nil {
		return nil, err
	}

	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	return scope.Save(ctx, collection, doc)
}

// Remove deletes matching documents.
func (uc *shellUsecase) Remove(ctx context.Context, resID, collection string, args model.RemoveArgs) (*model.WriteSummary, error) {
	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	return scope.Remove(ctx, collection, args)
}

// Aggregate runs the pipeline against the tenant's collection.
func (uc *shellUsecase) Aggregate(ctx context.Context, resID, collection string, pipeline []bson.M) ([]bson.M, error) {
	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	return scope.Aggregate(ctx, collection, pipeline)
}

// DropCollection drops the physical collection and deregisters it.
func (uc *shellUsecase) DropCollection(ctx context.Context, resID, collection string) error {
	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return err
	}
	defer scope.Release()

	if err := scope.Drop(ctx, collection); err != nil {
		return err
	}
	uc.log.Info("Dropped collection", zap.String("res_id", resID), zap.String("collection", collection))
	return nil
}

// DropDatabase drops every collection registered to the tenant.
func (uc *shellUsecase) DropDatabase(ctx context.Context, resID string) error {
	scope, err := uc.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return err
	}
	defer scope.Release()

	if err := scope.DropAll(ctx); err != nil {
		return err
	}
	uc.log.Info("Dropped tenant database", zap.String("res_id", resID))
	return nil
}

// GetCollectionNames lists the tenant's logical collections.
func (uc *shellUsecase) GetCollectionNames(ctx context.Context, resID string) ([]string, error) {
	return uc.registry.CollectionsOf(ctx, resID)
}
