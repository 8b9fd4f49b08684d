package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.OIDC.Enabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GIGMARKET_ENVIRONMENT", "Production")
	t.Setenv("DATABASE_URL", "postgres://localhost/gig")
	t.Setenv("GIGMARKET_OIDC_ISSUER", "https://id.example.com")
	t.Setenv("GIGMARKET_OIDC_CLIENT_ID", "gig")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "postgres://localhost/gig", cfg.DatabaseURL)
	assert.True(t, cfg.OIDC.Enabled())
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gigmarket.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\nsession_ttl: 2h\n"), 0o600))

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("GIGMARKET_ENVIRONMENT", "staging")
	v, err := NewViper("")
	require.NoError(t, err)
	_, err = FromViper(v)
	assert.Error(t, err)
}

func TestInvalidSessionTTL(t *testing.T) {
	t.Setenv("GIGMARKET_SESSION_TTL", "0s")
	v, err := NewViper("")
	require.NoError(t, err)
	_, err = FromViper(v)
	assert.ErrorContains(t, err, "session_ttl must be positive")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestCookiePolicy(t *testing.T) {
	dev := (&Config{Environment: EnvDevelopment}).Cookies()
	assert.False(t, dev.Secure)
	assert.Equal(t, http.SameSiteLaxMode, dev.SameSite)

	prod := (&Config{Environment: EnvProduction}).Cookies()
	assert.True(t, prod.Secure)
	assert.Equal(t, http.SameSiteNoneMode, prod.SameSite)
}
