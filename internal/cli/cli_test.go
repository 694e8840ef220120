package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/app"
	"github.com/jkdp/printshop-migrate/internal/app/mocks"
	"github.com/jkdp/printshop-migrate/internal/importer"
	"github.com/jkdp/printshop-migrate/internal/migrations"
	"github.com/jkdp/printshop-migrate/internal/verify"
)

func writeCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	content := `{"database": {"host": "localhost", "port": 5432, "user": "shop", "dbname": "printshop", "sslmode": "disable"}, "log_level": "error"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeCommand runs the root command against a mocked app and returns stdout
func executeCommand(t *testing.T, mockApp *mocks.MockAppInterface, args ...string) (string, error) {
	t.Helper()

	var gotCfg *config.Config
	root := NewRootCommand(WithNewApp(func(cfg *config.Config, opts ...app.AppOption) app.AppInterface {
		gotCfg = cfg
		return mockApp
	}))

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", writeCredentials(t)}, args...))

	err := root.ExecuteContext(context.Background())
	if gotCfg != nil {
		assert.Equal(t, "printshop", gotCfg.Database.DBName)
	}
	return stdout.String(), err
}

func expectLifecycle(mockApp *mocks.MockAppInterface) {
	mockApp.EXPECT().Initialize(gomock.Any()).Return(nil)
	mockApp.EXPECT().Shutdown(gomock.Any()).Return(nil)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := NewRootCommand()

	commands := make(map[string]bool)
	for _, cmd := range root.Commands() {
		commands[cmd.Name()] = true
	}
	for _, name := range []string{"up", "status", "baseline", "import", "verify", "version"} {
		assert.True(t, commands[name], "expected subcommand %q", name)
	}

	for _, flag := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "printshop-migrate "+config.VERSION+"\n", out.String())
}

func TestUpCommand(t *testing.T) {
	t.Run("applies pending migrations", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Migrate(gomock.Any(), 4).Return(&migrations.RunResult{
			FromVersion: 2,
			ToVersion:   4,
			Applied: []migrations.AppliedMigration{
				{Version: 3, Description: "convert identifiers to uuid", Duration: 1500 * time.Millisecond},
				{Version: 4, Description: "foreign keys", Duration: 300 * time.Millisecond},
			},
		}, nil)

		out, err := executeCommand(t, mockApp, "up", "--to", "4")
		require.NoError(t, err)
		assert.Contains(t, out, "applied v3  convert identifiers to uuid (1.5s)")
		assert.Contains(t, out, "applied v4  foreign keys (300ms)")
		assert.Contains(t, out, "database migrated from v2 to v4")
	})

	t.Run("up to date", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Migrate(gomock.Any(), 0).Return(&migrations.RunResult{FromVersion: 9, ToVersion: 9}, nil)

		out, err := executeCommand(t, mockApp, "up")
		require.NoError(t, err)
		assert.Contains(t, out, "database is up to date at v9")
	})

	t.Run("failure keeps applied output", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		failure := &migrations.ErrMigrationFailed{Version: 5, Description: "merge staff", Err: errors.New("boom")}
		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Migrate(gomock.Any(), 0).Return(&migrations.RunResult{
			FromVersion: 3,
			ToVersion:   4,
			Applied:     []migrations.AppliedMigration{{Version: 4, Description: "foreign keys"}},
		}, failure)

		out, err := executeCommand(t, mockApp, "up")
		assert.ErrorIs(t, err, failure)
		assert.Contains(t, out, "applied v4")
	})

	t.Run("negative target", func(t *testing.T) {
		_, err := executeCommand(t, nil, "up", "--to", "-1")
		assert.EqualError(t, err, "invalid --to: version must not be negative: -1")
	})

	t.Run("target with v prefix", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Migrate(gomock.Any(), 7).Return(&migrations.RunResult{FromVersion: 7, ToVersion: 7}, nil)

		out, err := executeCommand(t, mockApp, "up", "--to", "v7")
		require.NoError(t, err)
		assert.Contains(t, out, "database is up to date at v7")
	})

	t.Run("malformed target", func(t *testing.T) {
		_, err := executeCommand(t, nil, "up", "--to", "seven")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid --to: invalid version format: "seven"`)
	})

	t.Run("connection failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		mockApp.EXPECT().Initialize(gomock.Any()).Return(errors.New("connection refused"))

		_, err := executeCommand(t, mockApp, "up")
		assert.EqualError(t, err, "connection refused")
	})
}

func TestStatusCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	v8, _ := migrations.DefaultRegistry.GetMigration(8)
	v9, _ := migrations.DefaultRegistry.GetMigration(9)

	mockApp := mocks.NewMockAppInterface(ctrl)
	expectLifecycle(mockApp)
	mockApp.EXPECT().Status(gomock.Any()).Return(&app.Status{
		Plan: &migrations.Plan{
			CurrentVersion: 7,
			VersionExists:  true,
			TargetVersion:  9,
			LatestVersion:  9,
			Pending:        []migrations.Migration{v8, v9},
		},
		History: []migrations.HistoryEntry{
			{Version: 6, Description: "rbac", AppliedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Baseline: true},
			{Version: 7, Description: "primary role", AppliedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), Duration: 2 * time.Second},
		},
	}, nil)

	out, err := executeCommand(t, mockApp, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "database version: v7\n")
	assert.Contains(t, out, "latest version:   v9")
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "2024-03-02T09:00:00Z")
	assert.Contains(t, out, "pending:\n  v8  "+v8.Description())
	assert.Contains(t, out, "  v9  "+v9.Description())
}

func TestBaselineCommand(t *testing.T) {
	t.Run("records version", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Baseline(gomock.Any(), 6).Return(nil)

		out, err := executeCommand(t, mockApp, "baseline", "--version", "v6")
		require.NoError(t, err)
		assert.Equal(t, "database baselined at v6\n", out)
	})

	t.Run("version flag required", func(t *testing.T) {
		_, err := executeCommand(t, nil, "baseline")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"version" not set`)
	})
}

func TestImportCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockApp := mocks.NewMockAppInterface(ctrl)
	expectLifecycle(mockApp)
	mockApp.EXPECT().Import(gomock.Any(), "s3://exports/latest.json").Return(&importer.Result{
		Collections: []importer.CollectionResult{
			{Collection: "businesses", Table: "businesses", Documents: 1, Inserted: 1},
			{Collection: "customers", Table: "customers", Documents: 3, Inserted: 2, Skipped: 1, InvalidValues: 1},
			{Collection: "jobs", Table: "jobs"},
		},
		Unknown: []string{"auditLog"},
	}, nil)

	out, err := executeCommand(t, mockApp, "import", "--source", "s3://exports/latest.json")
	require.NoError(t, err)
	assert.Contains(t, out, "COLLECTION")
	assert.Contains(t, out, "customers")
	assert.NotContains(t, out, "jobs")
	assert.Contains(t, out, "ignored unknown collection auditLog")
	assert.Contains(t, out, "3 rows inserted, 1 values stored as NULL")
}

func TestVerifyCommand(t *testing.T) {
	count := int64(2)
	failing := &verify.Report{
		Results: []verify.Result{
			{Name: "orphans/jobs.customer_id", Status: verify.StatusFail, Count: &count},
		},
		Failed: 1,
	}

	t.Run("text report and failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Verify(gomock.Any()).Return(failing, nil)

		out, err := executeCommand(t, mockApp, "verify")
		assert.ErrorIs(t, err, verify.ErrCheckFailed)
		assert.Contains(t, out, "orphans/jobs.customer_id")
		assert.Contains(t, out, "0 passed, 1 failed, 1 checks")
	})

	t.Run("json report", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockApp := mocks.NewMockAppInterface(ctrl)
		expectLifecycle(mockApp)
		mockApp.EXPECT().Verify(gomock.Any()).Return(&verify.Report{Passed: 1, Results: []verify.Result{
			{Name: "payments/invoice_fk", Status: verify.StatusPass},
		}}, nil)

		out, err := executeCommand(t, mockApp, "verify", "--json")
		require.NoError(t, err)
		assert.Contains(t, out, `"name": "payments/invoice_fk"`)
		assert.Contains(t, out, `"status": "pass"`)
	})
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.json"), "status"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var gotCfg *config.Config
	mockApp := mocks.NewMockAppInterface(ctrl)
	expectLifecycle(mockApp)
	mockApp.EXPECT().Baseline(gomock.Any(), 1).Return(nil)

	root := NewRootCommand(WithNewApp(func(cfg *config.Config, opts ...app.AppOption) app.AppInterface {
		gotCfg = cfg
		return mockApp
	}))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", writeCredentials(t), "--log-level", "debug", "--log-format", "json", "baseline", "--version", "1"})

	require.NoError(t, root.Execute())
	require.NotNil(t, gotCfg)
	assert.Equal(t, "debug", gotCfg.LogLevel)
	assert.Equal(t, "json", gotCfg.LogFormat)
}
