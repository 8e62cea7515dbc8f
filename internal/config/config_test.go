// ABOUTME: Tests for configuration loading
// ABOUTME: Covers YAML parsing, env expansion, env-only parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
server:
  http_addr: ":5000"
auth:
  jwt_secret: test-secret
  admin_emails: "admin@example.com, second@example.com"
database:
  path: /tmp/news.db
  postgres_dsn: postgres://localhost/admin
upstream:
  base_url: https://upstream.example
  timeout: 5s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.HTTPAddr)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "/tmp/news.db", cfg.Database.Path)
	assert.Equal(t, "postgres://localhost/admin", cfg.Database.PostgresDSN)
	assert.Equal(t, "https://upstream.example", cfg.Upstream.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"admin@example.com", "second@example.com"}, cfg.AdminEmailList())
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GATEWAY_SECRET", "from-env")

	path := writeTempConfig(t, `
server:
  http_addr: ":5000"
auth:
  jwt_secret: ${TEST_GATEWAY_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeTempConfig(t, `
server:
  http_addr: ":5000"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_DefaultUpstreamTimeout(t *testing.T) {
	path := writeTempConfig(t, `
server:
  http_addr: ":5000"
auth:
  jwt_secret: s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
}

func TestLoad_BadTimeout(t *testing.T) {
	path := writeTempConfig(t, `
server:
  http_addr: ":5000"
auth:
  jwt_secret: s
upstream:
  timeout: not-a-duration
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("UPSTREAM_URL", "https://upstream.example")
	t.Setenv("ADMIN_EMAILS", "Admin@Example.com")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://upstream.example", cfg.Upstream.BaseURL)
	assert.Equal(t, []string{"admin@example.com"}, cfg.AdminEmailList())
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
}

func TestFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := FromEnv()
	require.Error(t, err)
}
