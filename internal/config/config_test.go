package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func key(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(b), 32)))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, DriverFile, cfg.Store.Driver)
	assert.Equal(t, ProviderScripted, cfg.Generator.Provider)
	assert.Equal(t, 30*time.Second, cfg.Session.LockTTL)
	assert.Equal(t, "victory", cfg.Scenario.Ending)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
store:
  driver: sqlite
  path: /tmp/keeper.db
  redact: ["\\d{3}-\\d{4}"]
generator:
  provider: openai
  model: gpt-4o-mini
  api_key: from-file
session:
  lock_ttl: 5s
  reject_busy: true
`)
	t.Setenv("KEEPER_GENERATOR_API_KEY", "from-env")
	t.Setenv("KEEPER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, []string{`\d{3}-\d{4}`}, cfg.Store.Redact)
	assert.Equal(t, "from-env", cfg.Generator.APIKey, "env overrides file")
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Session.LockTTL)
	assert.True(t, cfg.Session.RejectBusy)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver":   "store:\n  driver: mongo\n",
		"provider": "generator:\n  provider: bard\n",
		"model":    "generator:\n  provider: anthropic\n",
		"format":   "log:\n  format: xml\n",
		"level":    "log:\n  level: loud\n",
		"key":      "encryption:\n  key: c2hvcnQ=\n",
		"fallback": "encryption:\n  fallback_keys: [" + key('a') + "]\n",
		"yaml":     "store: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEncryptionKeys(t *testing.T) {
	cfg := Default()
	active, fallback, err := cfg.EncryptionKeys()
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Nil(t, fallback)

	cfg.Encryption = EncryptionConfig{Key: key('a'), FallbackKeys: []string{key('b')}}
	active, fallback, err = cfg.EncryptionKeys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	require.Len(t, fallback, 1)
	assert.Equal(t, byte('b'), fallback[0][0])
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "store.driver", envKey("KEEPER_STORE_DRIVER"))
	assert.Equal(t, "generator.api_key", envKey("KEEPER_GENERATOR_API_KEY"))
	assert.Equal(t, "session.reject_busy", envKey("KEEPER_SESSION_REJECT_BUSY"))
}
