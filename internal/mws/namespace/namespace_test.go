package namespace

import (
	"testing"

	apperrors "mws-server/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPhysicalPrefixesLogicalName(t *testing.T) {
	tr := NewTranslator("res123")

	physical, err := tr.ToPhysical("users")
	require.NoError(t, err)
	assert.Equal(t, "res123users", physical)
}

func TestToPhysicalToLogicalRoundTrip(t *testing.T) {
	tr := NewTranslator("a1b2c3")

	for _, name := range []string{"users", "orders.archive", "x"} {
		physical, err := tr.ToPhysical(name)
		require.NoError(t, err)

		logical, err := tr.ToLogical(physical)
		require.NoError(t, err)
		assert.Equal(t, name, logical)
	}
}

func TestToPhysicalRejectsEmptyName(t *testing.T) {
	tr := NewTranslator("res123")

	_, err := tr.ToPhysical("")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindBadRequest, apperrors.AsMWSError(err).Kind)
}

func TestToPhysicalRejectsReservedNamespaces(t *testing.T) {
	tr := NewTranslator("res123")

	reserved := []string{
		"oplog.$main",
		"$cmd",
		"system.indexes",
		"system.users",
		"admin.foo",
		"local.startup_log",
		"config.settings",
	}
	for _, name := range reserved {
		_, err := tr.ToPhysical(name)
		require.Error(t, err, "expected %q to be rejected", name)
		assert.True(t, apperrors.IsForbidden(err))
	}
}

func TestInternalTranslatorAllowsReservedNamespaces(t *testing.T) {
	tr := NewInternalTranslator("res123")

	physical, err := tr.ToPhysical("system.indexes")
	require.NoError(t, err)
	assert.Equal(t, "res123system.indexes", physical)
}

func TestToLogicalRejectsForeignName(t *testing.T) {
	tr := NewTranslator("tenant-a")

	_, err := tr.ToLogical("tenant-busers")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindBadRequest, apperrors.AsMWSError(err).Kind)
}

func TestOwns(t *testing.T) {
	tr := NewTranslator("tenant-a")

	assert.True(t, tr.Owns("tenant-ausers"))
	assert.False(t, tr.Owns("tenant-busers"))
	assert.False(t, tr.Owns("users"))
}

func TestReservedNameStillLegalAsPlainCollection(t *testing.T) {
	tr := NewTranslator("res123")

	// Only prefixes are reserved; names merely containing them are fine.
	physical, err := tr.ToPhysical("mysystem.data")
	require.NoError(t, err)
	assert.Equal(t, "res123mysystem.data", physical)
}
