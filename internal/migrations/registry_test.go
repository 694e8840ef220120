package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// mockMigration is a configurable Migration for manager and registry tests
type mockMigration struct {
	version         int
	description     string
	hasSystemUpdate bool
	hasTenantUpdate bool
	systemFn        func(ctx context.Context, db DBExecutor) error
	tenantFn        func(ctx context.Context, business *domain.Business, db DBExecutor) error
	tenants         []string
}

func (m *mockMigration) GetVersion() int {
	return m.version
}

func (m *mockMigration) Description() string {
	if m.description == "" {
		return "mock migration"
	}
	return m.description
}

func (m *mockMigration) HasSystemUpdate() bool {
	return m.hasSystemUpdate
}

func (m *mockMigration) HasTenantUpdate() bool {
	return m.hasTenantUpdate
}

func (m *mockMigration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	if m.systemFn != nil {
		return m.systemFn(ctx, db)
	}
	return nil
}

func (m *mockMigration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	m.tenants = append(m.tenants, business.ID)
	if m.tenantFn != nil {
		return m.tenantFn(ctx, business, db)
	}
	return nil
}

// verifyingMigration adds a Verify step to mockMigration
type verifyingMigration struct {
	mockMigration
	verifyErr error
	verified  bool
}

func (m *verifyingMigration) Verify(ctx context.Context, db DBExecutor) error {
	m.verified = true
	return m.verifyErr
}

func TestMigrationRegistryImpl_Register(t *testing.T) {
	registry := NewRegistry()

	migration := &mockMigration{version: 3}
	registry.Register(migration)

	assert.Len(t, registry.migrations, 1)
	assert.Equal(t, migration, registry.migrations[3])

	// same version replaces
	replacement := &mockMigration{version: 3, description: "replacement"}
	registry.Register(replacement)
	assert.Len(t, registry.migrations, 1)
	assert.Equal(t, replacement, registry.migrations[3])
}

func TestMigrationRegistryImpl_GetMigrations(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&mockMigration{version: 3})
	registry.Register(&mockMigration{version: 1})
	registry.Register(&mockMigration{version: 2})

	migrations := registry.GetMigrations()
	require.Len(t, migrations, 3)
	assert.Equal(t, 1, migrations[0].GetVersion())
	assert.Equal(t, 2, migrations[1].GetVersion())
	assert.Equal(t, 3, migrations[2].GetVersion())
}

func TestMigrationRegistryImpl_GetMigration(t *testing.T) {
	registry := NewRegistry()
	migration := &mockMigration{version: 5}
	registry.Register(migration)

	found, exists := registry.GetMigration(5)
	assert.True(t, exists)
	assert.Equal(t, migration, found)

	found, exists = registry.GetMigration(6)
	assert.False(t, exists)
	assert.Nil(t, found)
}

func TestMigrationRegistryImpl_LatestVersion(t *testing.T) {
	registry := NewRegistry()
	assert.Equal(t, 0, registry.LatestVersion())

	registry.Register(&mockMigration{version: 2})
	registry.Register(&mockMigration{version: 7})
	assert.Equal(t, 7, registry.LatestVersion())
}

func TestDefaultRegistry_History(t *testing.T) {
	migrations := DefaultRegistry.GetMigrations()
	require.Len(t, migrations, 9)

	for i, migration := range migrations {
		assert.Equal(t, i+1, migration.GetVersion(), "history must have no gaps")
		assert.NotEmpty(t, migration.Description())
		assert.True(t, migration.HasSystemUpdate() || migration.HasTenantUpdate(),
			"migration %d does nothing", migration.GetVersion())
	}

	found, exists := DefaultRegistry.GetMigration(8)
	require.True(t, exists)
	assert.True(t, found.HasTenantUpdate())
}
