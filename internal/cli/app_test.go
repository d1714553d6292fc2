package cli

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/keeper/internal/config"
	"github.com/aretw0/keeper/internal/logging"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	cfg.Scenario.Dir = "../../scenarios"
	return &cfg
}

func TestNewApp_Memory(t *testing.T) {
	app, err := NewApp(testConfig(t), logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Engine.Guardian(), "bundled scenario loaded")
	assert.Equal(t, "haunting", app.Engine.Guardian().Scenario().Meta.ID)

	ctx := context.Background()
	_, err = app.Sessions.Create(ctx, "s1", "haunting", []*domain.Actor{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	text, err := app.Sessions.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, text, "Corbitt")
}

func TestNewApp_MissingScenarioDisablesGuardian(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenario.Dir = t.TempDir()
	app, err := NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.Nil(t, app.Engine.Guardian())
}

func TestNewApp_EncryptedFileStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverFile
	cfg.Store.Path = t.TempDir()
	cfg.Store.Redact = []string{`\d{3}-\d{4}`}
	cfg.Encryption.Key = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	app, err := NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	snap := domain.NewSnapshot("s1", "haunting")
	snap.AppendHistory(domain.RoleUser, "call me at 555-1234")
	require.NoError(t, app.Store.Save(ctx, "s1", snap))

	got, err := app.Store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "call me at "+middleware.Mask, got.History[0].Content)
	assert.Empty(t, got.Sealed)
}

func TestNewApp_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "keeper.db")

	app, err := NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = app.Sessions.Create(ctx, "s1", "haunting", []*domain.Actor{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	require.NoError(t, app.Close())
}

func TestNewApp_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Redis.Addr = mr.Addr()

	app, err := NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	_, err = app.Sessions.Create(ctx, "s1", "haunting", []*domain.Actor{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	assert.True(t, mr.Exists(cfg.Redis.Prefix+"s1"))
}

func TestNewApp_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Store.Driver = config.DriverRedis
	_, err := NewApp(cfg, logging.NewNop())
	assert.Error(t, err, "unreachable redis")

	cfg = testConfig(t)
	cfg.Generator.Script = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewApp(cfg, logging.NewNop())
	assert.Error(t, err, "missing script")
}
