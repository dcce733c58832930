package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"PORT", "DB_PATH", "APP_SECRET", "LOG_LEVEL", "SECURE_COOKIES"} {
		t.Setenv(k, "")
	}
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), append([]string{"songs"}, args...))
	return out.String(), err
}

func TestMigrate_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "songs.db")

	out, err := run(t, "--config", "", "--env-file", "", "--db", dbPath, "migrate")
	require.NoError(t, err)

	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr)
	assert.Contains(t, out, "database is up to date")
	assert.Contains(t, out, "version=2")
	assert.Contains(t, out, "APP_SECRET is not set")
}

func TestMigrate_UsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from-file.db")
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[database]\npath = \""+filepath.ToSlash(dbPath)+"\"\n"), 0o600))

	_, err := run(t, "--config", cfgPath, "--env-file", "", "migrate")
	require.NoError(t, err)

	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr)
}

func TestPrintConfig(t *testing.T) {
	out, err := run(t, "config")
	require.NoError(t, err)

	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "csrf_token_ttl")
}

func TestInvalidPortFlag(t *testing.T) {
	_, err := run(t, "--config", "", "--env-file", "", "--db", ":memory:", "--port", "70000", "migrate")
	assert.ErrorContains(t, err, "invalid --port")
}
