package app

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/b2clogin/internal/secretcodec"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		LogLevel: slog.LevelInfo,
		Auth: AuthConfig{
			Tenant:             "contoso",
			ClientID:           "9f2d1c3e-0000-4000-8000-00000000c11e",
			PolicySignUpSignIn: "B2C_1_susi",
			Scopes:             []string{"https://contoso.onmicrosoft.com/api/read"},
		},
		Cache: CacheConfig{
			File:       filepath.Join(t.TempDir(), "b2clogin"+tokencache.FileSuffix),
			Protection: secretcodec.ProtectionNone,
		},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, DefaultConfigLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultConfigTimeout, cfg.Timeout)
	assert.Equal(t, DefaultConfigRedirectURI, cfg.Auth.RedirectURI)
	assert.Equal(t, secretcodec.ProtectionAuto, cfg.Cache.Protection)
	assert.NotEmpty(t, cfg.Cache.KeyringUser)
	assert.Contains(t, cfg.Cache.File, tokencache.FileSuffix)
	assert.ElementsMatch(t, []string{"auth.tenant", "auth.client_id", "auth.policy_sign_up_sign_in", "auth.scopes"}, cfg.MissingAuth())
}

func TestApplyDefaultsEnvKey(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Protection: secretcodec.ProtectionEnv}}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, DefaultConfigCacheKeyEnv, cfg.Cache.KeyEnv)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing tenant", mutate: func(c *Config) { c.Auth.Tenant = "" }, wantErr: true},
		{name: "client id not a uuid", mutate: func(c *Config) { c.Auth.ClientID = "my-app" }, wantErr: true},
		{name: "no scopes", mutate: func(c *Config) { c.Auth.Scopes = nil }, wantErr: true},
		{name: "empty scope", mutate: func(c *Config) { c.Auth.Scopes = []string{""} }, wantErr: true},
		{name: "https redirect", mutate: func(c *Config) { c.Auth.RedirectURI = "https://localhost" }, wantErr: true},
		{name: "remote redirect", mutate: func(c *Config) { c.Auth.RedirectURI = "http://example.com/cb" }, wantErr: true},
		{name: "loopback ip redirect", mutate: func(c *Config) { c.Auth.RedirectURI = "http://127.0.0.1:8400" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "otel log format", mutate: func(c *Config) { c.LogFormat = LogFormatOTel }},
		{name: "bad api endpoint", mutate: func(c *Config) { c.API.Endpoint = "not a url" }, wantErr: true},
		{name: "bad protection", mutate: func(c *Config) { c.Cache.Protection = "rot13" }, wantErr: true},
		{
			name: "keyvault without secret",
			mutate: func(c *Config) {
				c.Cache.Protection = secretcodec.ProtectionKeyVault
				c.Cache.KeyVault.URL = "https://vault.vault.azure.net/"
			},
			wantErr: true,
		},
		{
			name: "env without key name",
			mutate: func(c *Config) {
				c.Cache.Protection = secretcodec.ProtectionEnv
				c.Cache.KeyEnv = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCacheIgnoresAuth(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth = AuthConfig{}

	assert.Error(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateCache())

	cfg.Cache.Protection = "rot13"
	assert.Error(t, cfg.ValidateCache())
}

func TestCodecOptions(t *testing.T) {
	cfg := validConfig(t)
	cfg.Cache.Protection = secretcodec.ProtectionKeyring
	cfg.Cache.KeyringUser = "ada"

	opts := cfg.Cache.CodecOptions()
	assert.Equal(t, secretcodec.ProtectionKeyring, opts.Protection)
	assert.Equal(t, KeyringService, opts.KeyringService)
	assert.Equal(t, "ada", opts.KeyringUser)
}
