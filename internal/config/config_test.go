package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AUTHDESK_AUTH_TABSECRET", "s3cr3t")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Registry.Backend)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, time.Second, cfg.Auth.SubmitDelay)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TabTTL)
	assert.Equal(t, 700*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, []string{"javascript", "rust", "python"}, cfg.Poll.Categories)
	assert.Equal(t, "plain", cfg.Auth.PasswordStorage)
	assert.True(t, cfg.NeedsDatabase())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AUTHDESK_AUTH_TABSECRET", "s3cr3t")
	t.Setenv("AUTHDESK_AUTH_SUBMITDELAY", "0s")
	t.Setenv("AUTHDESK_SESSION_BACKEND", "sqlite")
	t.Setenv("AUTHDESK_AUTH_PASSWORDSTORAGE", "bcrypt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Auth.SubmitDelay)
	assert.Equal(t, "sqlite", cfg.Session.Backend)
	assert.Equal(t, "bcrypt", cfg.Auth.PasswordStorage)
}

func TestLoad_DotEnvFile(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(".env", []byte("AUTHDESK_AUTH_TABSECRET=from-dotenv\nAUTHDESK_SERVER_ADDR=127.0.0.1:9999\n"), 0o600))
	t.Setenv("AUTHDESK_SERVER_ADDR", "127.0.0.1:7000")
	t.Cleanup(func() { _ = os.Unsetenv("AUTHDESK_AUTH_TABSECRET") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.TabSecret)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
}

func TestLoad_RequiresSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AUTHDESK_AUTH_TABSECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.Auth.TabSecret = "x"
		c.Auth.PasswordStorage = "plain"
		c.Registry.Backend = "sqlite"
		c.Session.Backend = "memory"
		return c
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Registry.Backend = "s3"
	require.Error(t, c.Validate())
	c.Storage.Bucket = "bucket"
	require.NoError(t, c.Validate())
	assert.False(t, c.NeedsDatabase())

	c = valid()
	c.Session.Backend = "cookie"
	require.Error(t, c.Validate())

	c = valid()
	c.Auth.PasswordStorage = "rot13"
	require.Error(t, c.Validate())
}
