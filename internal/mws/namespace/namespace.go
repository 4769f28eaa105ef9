// Package namespace maps a tenant's logical collection names onto the
// physical, prefixed names used on the shared backing database. The mapping
// is pure string manipulation; every collection access in the service passes
// through it exactly once.
package namespace

import (
	"strings"

	apperrors "mws-server/internal/shared/errors"
)

// reservedPrefixes are backing-store namespaces a tenant must never reach.
// Matches are checked against the logical name before prefixing.
var reservedPrefixes = []string{
	"oplog.$main",
	"$cmd",
	"system.",
	"admin.",
	"local.",
	"config.",
}

// Translator resolves logical collection names for one tenant prefix.
// The prefix is the tenant's res_id; uuid-valued res_ids guarantee that no
// tenant's prefix is a prefix of another's.
type Translator struct {
	prefix string

	// allowInternal lets internal callers (the registry, the reaper)
	// address reserved namespaces. Never set for tenant-facing requests.
	allowInternal bool
}

// NewTranslator creates a Translator for the given tenant prefix.
func NewTranslator(prefix string) *Translator {
	return &Translator{prefix: prefix}
}

// NewInternalTranslator creates a Translator that may address reserved
// namespaces. For internal callers only.
func NewInternalTranslator(prefix string) *Translator {
	return &Translator{prefix: prefix, allowInternal: true}
}

// Prefix returns the tenant prefix this translator is bound to.
func (t *Translator) Prefix() string {
	return t.prefix
}

// ToPhysical resolves a logical collection name to its physical name on the
// shared database. Reserved namespaces are rejected with a Forbidden error
// unless the translator was created for internal use.
func (t *Translator) ToPhysical(logical string) (string, error) {
	if logical == "" {
		return "", apperrors.NewBadRequest("collection name must not be empty")
	}
	if !t.allowInternal && isReserved(logical) {
		return "", apperrors.NewForbidden("Access to reserved collection namespace").
			WithDetail(logical).
			WithCause(apperrors.ErrReservedNamespace)
	}
	return t.prefix + logical, nil
}

// ToLogical strips the tenant prefix from a physical name. It fails when the
// physical name does not belong to this tenant.
func (t *Translator) ToLogical(physical string) (string, error) {
	if !strings.HasPrefix(physical, t.prefix) {
		return "", apperrors.NewBadRequest("collection does not belong to tenant").
			WithDetail(physical)
	}
	return strings.TrimPrefix(physical, t.prefix), nil
}

// Owns reports whether the physical name carries this tenant's prefix.
func (t *Translator) Owns(physical string) bool {
	return strings.HasPrefix(physical, t.prefix)
}

func isReserved(logical string) bool {
	for _, r := range reservedPrefixes {
		if strings.HasPrefix(logical, r) {
			return true
		}
	}
	return false
}
