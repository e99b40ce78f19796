package synckit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 5*time.Minute, c.PullInterval)
	assert.Equal(t, "sync", c.PersistKey)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	yamlConfig := `
pull_interval: 2m
push_concurrency: 8
persist_key: sites
`
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, c.PullInterval)
	assert.Equal(t, 8, c.PushConcurrency)
	assert.Equal(t, "sites", c.PersistKey)
	assert.Equal(t, 30*time.Second, c.Timeout, "unset keys keep their defaults")
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yml")
	require.NoError(t, os.WriteFile(path, []byte("pull_interval: 2m\n"), 0o600))

	t.Setenv("SYNC_PULL_INTERVAL", "90s")
	t.Setenv("SYNC_PUSH_CONCURRENCY", "2")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.PullInterval)
	assert.Equal(t, 2, c.PushConcurrency)
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("SYNC_TIMEOUT", "5s")

	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("SYNC_PUSH_CONCURRENCY", "many")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestParseConfig_JSON(t *testing.T) {
	c, err := ParseConfig([]byte(`{"persist_key":"other","timeout":1000000000}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "other", c.PersistKey)
	assert.Equal(t, time.Second, c.Timeout)

	_, err = ParseConfig([]byte("x"), "toml")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	c := DefaultConfig()
	c.PullInterval = 0
	c.PersistKey = ""

	err := c.Validate()
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindInvalid))
	assert.Contains(t, err.Error(), "pull_interval")
	assert.Contains(t, err.Error(), "persist_key")
}
