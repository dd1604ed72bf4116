package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
org: acme
llm:
  provider: mock
embedding:
  provider: mock
search:
  provider: mock
vectordb:
  provider: memory
auth:
  users:
    - token: tok-admin
      user_id: user_1
      username: admin
      password: admin
      can_search_local: true
      can_search_internet: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Org)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultCacheThreshold, cfg.Cache.SimilarityThreshold)
	require.Len(t, cfg.Auth.Users, 1)
	assert.True(t, cfg.Auth.Users[0].CanSearchInternet)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: mock
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "org")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYaml(t *testing.T) {
	path := writeConfig(t, "org: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}
