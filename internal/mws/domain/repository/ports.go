// Package repository declares the ports of the tenant-isolation core. The
// mongodb and redisdb adapters implement them; the usecase layer depends
// only on these interfaces.
package repository

import (
	"context"
	"time"

	"mws-server/internal/mws/domain/model"

	"go.mongodb.org/mongo-driver/bson"
)

// TenantRegistry tracks, per res_id, the live set of logical collection
// names in the shared control collection and enforces the collection-count
// quota.
//
// The quota check-then-update sequence is best effort: two concurrent
// writers for the same tenant may both pass the check. The registry relies
// on the store's atomic set-add/set-remove updates, not on a distributed
// transaction.
type TenantRegistry interface {
	// EnsureResource returns the session's existing resource or creates a
	// new tenant record for it.
	EnsureResource(ctx context.Context, sessionID string) (*model.Resource, error)

	// HasAccess reports whether the session owns the given res_id.
	HasAccess(ctx context.Context, resID, sessionID string) (bool, error)

	// Touch updates the tenant record's last-activity timestamp.
	Touch(ctx context.Context, resID, sessionID string) error

	// CollectionsOf returns the tenant's registered logical collection
	// names. A tenant with no collections yields an empty set, not an error.
	CollectionsOf(ctx context.Context, resID string) ([]string, error)

	// RegisterCollection adds a logical name to the tenant's set. Adding a
	// name already present is idempotent and never fails; adding a new name
	// past the configured collection-count quota fails without mutating
	// state.
	RegisterCollection(ctx context.Context, resID, logicalName string) error

	// DeregisterCollection removes a logical name from the tenant's set.
	// Idempotent; never fails on a missing name.
	DeregisterCollection(ctx context.Context, resID, logicalName string) error

	// ExpiredTenants lists tenant records idle since before the given time.
	// Used by the reaper.
	ExpiredTenants(ctx context.Context, before time.Time) ([]model.Tenant, error)

	// RemoveTenant deletes the tenant record itself.
	RemoveTenant(ctx context.Context, resID string) error
}

// RateLimiter admits or rejects a request within a sliding window keyed by
// session id. Limiting is deliberately session-scoped, not tenant-scoped.
type RateLimiter interface {
	Admit(ctx context.Context, sessionID string) error
}

// QuotaGuard rejects writes whose projected storage growth exceeds the
// per-collection byte quota. All checks run before the mutating call; a
// rejection implies no partial mutation occurred.
type QuotaGuard interface {
	// CheckInsert verifies the serialized size of the incoming documents
	// fits on top of the collection's current size.
	CheckInsert(ctx context.Context, resID, logicalName string, docs []bson.M) error

	// CheckUpdate verifies the worst-case growth of an update: the
	// serialized update document size times the matched document count.
	CheckUpdate(ctx context.Context, resID, logicalName string, update bson.M, matched int64) error
}

// QueryCursor is the server-side result cursor of an executed query.
// *mongo.Cursor satisfies it directly.
type QueryCursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// CursorPager maps server-side cursors to opaque client-visible cursor ids
// so a query can be drained in batches across stateless requests. Every
// cursor is bound to the tenant that opened it. A given cursor id must not
// be resumed concurrently.
type CursorPager interface {
	// Open registers a newly executed cursor for the tenant, reads the
	// first batch and returns it together with the id the client resumes
	// with (zero when the query drained in one batch).
	Open(ctx context.Context, resID string, cur QueryCursor, total, batchSize int64) (*model.FindResult, error)

	// Resume reads the next batch of the cursor named by the token. The
	// token's total count is trusted from the initiating response. Resuming
	// an unknown or expired id, or one opened by a different tenant, fails
	// with CursorNotFound.
	Resume(ctx context.Context, resID string, token model.CursorToken) (*model.FindResult, error)

	// Shutdown closes every live cursor and stops the expiry janitor.
	Shutdown(ctx context.Context)
}

// TenantScope is the façade over the backing store for one tenant during a
// unit of work. Every collection access is namespace-translated; writes and
// drops keep the TenantRegistry in sync (register-then-write,
// drop-then-deregister). Callers must Release the scope on all exit paths.
type TenantScope interface {
	// Find executes a query and returns the open cursor plus the total
	// matching count honoring skip and limit.
	Find(ctx context.Context, logicalName string, args model.FindArgs) (QueryCursor, int64, error)

	// Count returns the number of documents matching the query.
	Count(ctx context.Context, logicalName string, args model.CountArgs) (int64, error)

	// Insert writes one or more documents, registering the collection first.
	Insert(ctx context.Context, logicalName string, docs []bson.M) error

	// Update applies an update; an upsert registers the collection first.
	Update(ctx context.Context, logicalName string, args model.UpdateArgs) (*model.WriteSummary, error)

	// Save inserts the document, or replaces it by _id when one is present.
	Save(ctx context.Context, logicalName string, doc bson.M) (*model.WriteSummary, error)

	// Remove deletes matching documents, or a single one when justOne is set.
	Remove(ctx context.Context, logicalName string, args model.RemoveArgs) (*model.WriteSummary, error)

	// Aggregate runs an aggregation pipeline against the collection.
	Aggregate(ctx context.Context, logicalName string, pipeline []bson.M) ([]bson.M, error)

	// Drop removes the physical collection and deregisters it. The registry
	// entry survives when the physical drop fails.
	Drop(ctx context.Context, logicalName string) error

	// DropAll drops every registered collection of the tenant.
	DropAll(ctx context.Context) error

	// Release frees any per-operation bookkeeping state.
	Release()
}

// ScopedAcquirer yields a TenantScope for a validated tenant.
type ScopedAcquirer interface {
	WithTenant(ctx context.Context, resID string) (TenantScope, error)
}
