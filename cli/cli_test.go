package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"shield/config"
	"shield/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	mock     sqlmock.Sqlmock
	output   string
	manifest string
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	connects int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	h := &harness{
		output:   filepath.Join(dir, "database", "seeders", "shield_seeder.go"),
		manifest: filepath.Join(dir, "shield.yaml"),
	}

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	h.mock = mock

	origLoad, origConnect := loadConfig, connectDB
	t.Cleanup(func() {
		loadConfig, connectDB = origLoad, origConnect
	})

	loadConfig = func() (config.Config, error) {
		return config.Config{
			AppEnv:   "test",
			LogLevel: "error",
			DB: config.DatabaseConfig{
				Name:     "shield",
				Username: "shield",
				Tables:   models.DefaultTables(),
			},
			Seeder: config.SeederConfig{
				OutputPath:    h.output,
				RuntimeImport: config.DefaultRuntimeImport,
				ManifestPath:  h.manifest,
			},
			Telemetry: config.TelemetryConfig{ServiceName: "shield"},
		}, nil
	}
	connectDB = func(context.Context, config.DatabaseConfig) (*sql.DB, error) {
		h.connects++
		return mockDB, nil
	}
	return h
}

func (h *harness) run(args ...string) int {
	return Execute(context.Background(), args, &h.stdout, &h.stderr)
}

func expectExists(mock sqlmock.Sqlmock, table string, found bool) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM "` + table + `")`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(found))
}

func TestSeederWritesFile(t *testing.T) {
	h := newHarness(t)

	expectExists(h.mock, "roles", true)
	expectExists(h.mock, "permissions", true)
	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, guard_name FROM "roles" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "guard_name"}).AddRow(1, "admin", "web"))
	h.mock.ExpectQuery(regexp.QuoteMeta(`FROM "role_has_permissions" rp JOIN "permissions" p`)).
		WillReturnRows(sqlmock.NewRows([]string{"role_id", "id", "name", "guard_name"}).
			AddRow(1, 1, "view_post", "web"))
	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, guard_name FROM "permissions" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "guard_name"}).
			AddRow(1, "view_post", "web").
			AddRow(2, "export_reports", "web"))
	h.mock.ExpectClose()

	code := h.run("seeder")
	require.Equal(t, StatusSuccess, code, h.stderr.String())

	content, err := os.ReadFile(h.output)
	require.NoError(t, err)
	assert.Contains(t, string(content), `[{"name":"admin","guard_name":"web","permissions":["view_post"]}]`)
	assert.Contains(t, string(content), `[{"name":"export_reports","guard_name":"web"}]`)
	assert.NotContains(t, string(content), `{"name":"view_post"`)

	assert.Contains(t, h.stdout.String(), "ShieldSeeder")
	assert.Contains(t, h.stdout.String(), "generated successfully.")
	assert.Contains(t, h.stdout.String(), "Now you can use it in your deploy script. i.e:")
	assert.Contains(t, h.stdout.String(), "go run "+h.output)
	assert.Contains(t, h.stdout.String(), "DATABASE_URL")
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSeederCollisionWithoutForce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(h.output), 0o755))
	require.NoError(t, os.WriteFile(h.output, []byte("keep me"), 0o644))

	code := h.run("seeder")

	assert.Equal(t, StatusInvalid, code)
	assert.Contains(t, h.stdout.String(), h.output+" already exists, aborting.")
	assert.Zero(t, h.connects)
	assert.Empty(t, h.stderr.String())

	content, err := os.ReadFile(h.output)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content))
}

func TestSeederCollisionWithoutDatabaseSettings(t *testing.T) {
	h := newHarness(t)
	loadConfig = config.Load

	require.NoError(t, os.MkdirAll(filepath.Dir(h.output), 0o755))
	require.NoError(t, os.WriteFile(h.output, []byte("keep me"), 0o644))
	t.Setenv("SHIELD_SEEDER_PATH", h.output)
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_INSTANCE_IDENTIFIER", "")
	t.Setenv("DB_USERNAME", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	code := h.run("seeder")

	assert.Equal(t, StatusInvalid, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), h.output+" already exists, aborting.")
	assert.Zero(t, h.connects)
}

func TestSeederForceOverwrites(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(h.output), 0o755))
	require.NoError(t, os.WriteFile(h.output, []byte("stale"), 0o644))

	expectExists(h.mock, "roles", false)
	expectExists(h.mock, "permissions", true)
	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, guard_name FROM "permissions" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "guard_name"}).
			AddRow(1, "export_reports", "web").
			AddRow(2, "export_reports", "web"))
	h.mock.ExpectClose()

	code := h.run("seeder", "-F")
	require.Equal(t, StatusSuccess, code, h.stderr.String())

	content, err := os.ReadFile(h.output)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(content))
	assert.Contains(t, string(content), "const rolesWithPermissions = `[]`")
	assert.Contains(t, string(content), "const directPermissions = `[{\"name\":\"export_reports\",\"guard_name\":\"web\"}]`")
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSeederNothingToSeed(t *testing.T) {
	h := newHarness(t)

	expectExists(h.mock, "roles", false)
	expectExists(h.mock, "permissions", false)
	h.mock.ExpectClose()

	code := h.run("seeder")

	assert.Equal(t, StatusInvalid, code)
	assert.Contains(t, h.stdout.String(), "There are no roles or permissions to create the seeder.")
	assert.Contains(t, h.stdout.String(), "shield generate --all")
	assert.NoFileExists(t, h.output)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSeederDatabaseFailure(t *testing.T) {
	h := newHarness(t)
	connectDB = func(context.Context, config.DatabaseConfig) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}

	code := h.run("seeder")

	assert.Equal(t, StatusFailure, code)
	assert.Contains(t, h.stderr.String(), "connection refused")
	assert.NoFileExists(t, h.output)
}

func TestSeederConfigFailure(t *testing.T) {
	h := newHarness(t)
	loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("DB_USERNAME must be set")
	}

	code := h.run("seeder")

	assert.Equal(t, StatusFailure, code)
	assert.Contains(t, h.stderr.String(), "configuration error")
}

func TestSeederWithGenerate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.manifest, []byte(`
permission_prefixes:
  resource: [view, create]
resources: [PostResource]
`), 0o644))

	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "permissions" WHERE name = $1 AND guard_name = $2`)).
		WithArgs("view_post", "web").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "permissions" WHERE name = $1 AND guard_name = $2`)).
		WithArgs("create_post", "web").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	h.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "permissions"`)).
		WithArgs("create_post", "web").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	expectExists(h.mock, "roles", false)
	expectExists(h.mock, "permissions", true)
	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, guard_name FROM "permissions" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "guard_name"}).
			AddRow(1, "view_post", "web").
			AddRow(2, "create_post", "web"))
	h.mock.ExpectClose()

	code := h.run("seeder", "--generate")
	require.Equal(t, StatusSuccess, code, h.stderr.String())

	assert.Equal(t, 1, h.connects)
	assert.Contains(t, h.stdout.String(), "PostResource")
	assert.FileExists(t, h.output)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestGenerateRequiresSelection(t *testing.T) {
	h := newHarness(t)

	code := h.run("generate")

	assert.Equal(t, StatusInvalid, code)
	assert.Contains(t, h.stdout.String(), "select entities or use --all")
	assert.Zero(t, h.connects)
}

func TestGenerateUnknownEntity(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.manifest, []byte("resources: [PostResource]\n"), 0o644))

	code := h.run("generate", "--resource", "UserResource")

	assert.Equal(t, StatusInvalid, code)
	assert.Zero(t, h.connects)
}

func TestGenerateMissingExplicitManifest(t *testing.T) {
	h := newHarness(t)

	code := h.run("generate", "--all", "--manifest", filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, StatusFailure, code)
	assert.Contains(t, h.stderr.String(), "missing.yaml")
}

func TestGeneratePrintsSummary(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.manifest, []byte(`
guard_name: admin
permission_prefixes:
  resource: [view]
resources: [PostResource]
pages: [Dashboard]
`), 0o644))

	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "permissions"`)).
		WithArgs("view_post", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	h.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "permissions"`)).
		WithArgs("view_post", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	h.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "permissions"`)).
		WithArgs("page_Dashboard", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	h.mock.ExpectClose()

	code := h.run("generate", "--all")
	require.Equal(t, StatusSuccess, code, h.stderr.String())

	out := h.stdout.String()
	assert.Contains(t, out, "PostResource")
	assert.Contains(t, out, "Dashboard")
	assert.Contains(t, out, "1 permission(s) created.")
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRunnable(t *testing.T) {
	assert.Equal(t, "./database/seeders/shield_seeder.go", runnable("database/seeders/shield_seeder.go"))
	assert.Equal(t, "./seed.go", runnable("./tmp/../seed.go"))
	assert.Equal(t, "/abs/seed.go", runnable("/abs/seed.go"))
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, "warn", false)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger = newLogger(&buf, "warn", true)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	logger = newLogger(&buf, "nonsense", false)
	logger.Info("fallback")
	assert.Contains(t, buf.String(), "fallback")
}
