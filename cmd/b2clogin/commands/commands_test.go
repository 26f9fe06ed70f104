package commands

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/b2clogin/internal/app"
	"github.com/florianilch/b2clogin/internal/secretcodec"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

const testClientID = "9f2d1c3e-0000-4000-8000-00000000c11e"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// withFlags runs fn inside a command parsed from args, as the CLI would.
func withFlags(t *testing.T, args []string, fn func(cmd *cli.Command)) {
	t.Helper()
	flags := append(authFlags(), cacheFlags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "log-level"},
		&cli.DurationFlag{Name: "timeout"},
		&cli.BoolFlag{Name: "no-prompt"},
	)
	cmd := &cli.Command{
		Name:  "b2clogin",
		Flags: flags,
		Action: func(_ context.Context, c *cli.Command) error {
			fn(c)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"b2clogin"}, args...)))
}

func noEnv() []string { return nil }

// loadConfig reads a required config file and validates it for login.
func loadConfig(path string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	cfg, err := readConfig(path, true, cmd, environFunc)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const fileConfig = `
[auth]
tenant = "fromfile"
client_id = "` + testClientID + `"
policy_sign_up_sign_in = "B2C_1_susi"
scopes = ["https://fromfile.onmicrosoft.com/api/read"]

[cache]
protection = "none"
`

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfigFile(t, fileConfig)

	t.Run("file", func(t *testing.T) {
		cfg, err := loadConfig(path, nil, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "fromfile", cfg.Auth.Tenant)
		assert.Equal(t, []string{"https://fromfile.onmicrosoft.com/api/read"}, cfg.Auth.Scopes)
		assert.Equal(t, secretcodec.ProtectionNone, cfg.Cache.Protection)
		assert.Equal(t, app.DefaultConfigRedirectURI, cfg.Auth.RedirectURI)
	})

	t.Run("env overrides file", func(t *testing.T) {
		environ := func() []string {
			return []string{"B2CLOGIN_AUTH__TENANT=fromenv", "B2CLOGIN_API__ENDPOINT=https://api.example.com", "UNRELATED=1"}
		}
		cfg, err := loadConfig(path, nil, environ)
		require.NoError(t, err)
		assert.Equal(t, "fromenv", cfg.Auth.Tenant)
		assert.Equal(t, "https://api.example.com", cfg.API.Endpoint)
	})

	t.Run("flags override env", func(t *testing.T) {
		environ := func() []string { return []string{"B2CLOGIN_AUTH__TENANT=fromenv"} }
		withFlags(t, []string{"--auth--tenant", "fromflag", "--userid", "ada@example.com", "--log-level", "debug", "--timeout", "90s"}, func(cmd *cli.Command) {
			cfg, err := loadConfig(path, cmd, environ)
			require.NoError(t, err)
			assert.Equal(t, "fromflag", cfg.Auth.Tenant)
			assert.Equal(t, "ada@example.com", cfg.Auth.LoginHint)
			assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
			assert.Equal(t, 90*time.Second, cfg.Timeout)
		})
	})
}

func TestLogLevelDefault(t *testing.T) {
	path := writeConfigFile(t, fileConfig)

	t.Run("unset is warn", func(t *testing.T) {
		withFlags(t, nil, func(cmd *cli.Command) {
			cfg, err := readConfig(path, true, cmd, noEnv)
			require.NoError(t, err)
			assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
		})
	})

	t.Run("explicit info is kept", func(t *testing.T) {
		environ := func() []string { return []string{"B2CLOGIN_LOG_LEVEL=info"} }
		cfg, err := readConfig(path, true, nil, environ)
		require.NoError(t, err)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	})
}

func TestLegacyFlagAliases(t *testing.T) {
	withFlags(t, []string{
		"-tenantname", "contoso",
		"-clientid", testClientID,
		"-policysignupsingin", "B2C_1_susi",
		"-apiscopes", "scope-a",
		"-apiscopes", "scope-b",
		"-apiendpoints", "https://api.example.com/hello",
		"-apisubscriptionkey", "key",
	}, func(cmd *cli.Command) {
		values := extractAndTransformFlags(cmd)
		assert.Equal(t, "contoso", values["auth.tenant"])
		assert.Equal(t, testClientID, values["auth.client_id"])
		assert.Equal(t, "B2C_1_susi", values["auth.policy_sign_up_sign_in"])
		assert.Equal(t, []string{"scope-a", "scope-b"}, values["auth.scopes"])
		assert.Equal(t, "https://api.example.com/hello", values["api.endpoint"])
		assert.Equal(t, "key", values["api.subscription_key"])
		assert.NotContains(t, values, "auth.redirect_uri", "unset flags must not override other sources")
		assert.NotContains(t, values, "no_prompt")
	})
}

func TestReadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")

	_, err := readConfig(missing, true, nil, noEnv)
	assert.Error(t, err, "an explicit config file must exist")

	cfg, err := readConfig(missing, false, nil, noEnv)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.MissingAuth())
}

func TestLoadConfigValidates(t *testing.T) {
	path := writeConfigFile(t, "[auth]\ntenant = \"contoso\"\n")
	_, err := loadConfig(path, nil, noEnv)
	assert.Error(t, err)
}

func TestSaveConfigMerges(t *testing.T) {
	path := writeConfigFile(t, fileConfig)

	require.NoError(t, saveConfig(path, map[string]any{
		"auth.tenant":          "contoso",
		"api.subscription_key": "secret",
	}))

	cfg, err := loadConfig(path, nil, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "contoso", cfg.Auth.Tenant)
	assert.Equal(t, "B2C_1_susi", cfg.Auth.PolicySignUpSignIn, "existing settings are kept")
	assert.Equal(t, "secret", cfg.API.SubscriptionKey)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestSaveConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, saveConfig(path, map[string]any{"auth.tenant": "contoso"}))

	cfg, err := readConfig(path, true, nil, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "contoso", cfg.Auth.Tenant)
}

func TestRenderConfigMasksSecrets(t *testing.T) {
	cfg, err := app.Default()
	require.NoError(t, err)
	cfg.Auth.Tenant = "contoso"
	cfg.API.SubscriptionKey = "0123456789abcdef"

	out, err := renderConfig(cfg)
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, "0123456789abcdef")
	assert.Contains(t, text, "cdef")
	assert.Contains(t, text, "5m0s")

	parsed, err := toml.Parser().Unmarshal(out)
	require.NoError(t, err)
	assert.Contains(t, parsed, "auth")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", maskSecret("abc"))
	assert.Equal(t, "****5678", maskSecret("12345678"))
}

func scriptedPrompter(input string, secret string) *prompter {
	return &prompter{
		in:         bufio.NewReader(strings.NewReader(input)),
		out:        io.Discard,
		readSecret: func() (string, error) { return secret, nil },
	}
}

func TestPromptConfigAsksOnlyForMissing(t *testing.T) {
	cfg := &app.Config{Auth: app.AuthConfig{ClientID: testClientID}}

	values, err := promptConfig(scriptedPrompter("contoso\nB2C_1_susi\nscope-a, scope-b\n", ""), cfg, false)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"auth.tenant":                 "contoso",
		"auth.policy_sign_up_sign_in": "B2C_1_susi",
		"auth.scopes":                 []string{"scope-a", "scope-b"},
	}, values)
	assert.Equal(t, "contoso", cfg.Auth.Tenant)
	assert.Empty(t, cfg.MissingAuth())
}

func TestPromptConfigAll(t *testing.T) {
	cfg := &app.Config{Auth: app.AuthConfig{Tenant: "contoso", RedirectURI: app.DefaultConfigRedirectURI}}

	// Empty answers keep the current value.
	input := "\n" + testClientID + "\nB2C_1_susi\nscope\nB2C_1_reset\n\nhttps://api.example.com\n"
	values, err := promptConfig(scriptedPrompter(input, "sub-key"), cfg, true)
	require.NoError(t, err)

	assert.Equal(t, "contoso", values["auth.tenant"])
	assert.Equal(t, "B2C_1_reset", values["auth.policy_reset_password"])
	assert.Equal(t, app.DefaultConfigRedirectURI, values["auth.redirect_uri"])
	assert.Equal(t, "https://api.example.com", values["api.endpoint"])
	assert.Equal(t, "sub-key", values["api.subscription_key"])
	assert.Equal(t, "sub-key", cfg.API.SubscriptionKey)
}

func TestPromptConfigEOF(t *testing.T) {
	_, err := promptConfig(scriptedPrompter("", ""), &app.Config{}, false)
	assert.Error(t, err)
}

func TestExecuteCacheCommands(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "b2clogin"+tokencache.FileSuffix)
	require.NoError(t, os.WriteFile(cachePath, []byte("{}"), 0600))
	configPath := writeConfigFile(t, "[cache]\nprotection = \"none\"\n")

	args := func(sub string) []string {
		return []string{"b2clogin", "--config", configPath, "cache", sub, "--cache--file", cachePath}
	}

	require.NoError(t, Execute(context.Background(), args("status")))
	require.NoError(t, Execute(context.Background(), args("clear")))

	_, err := os.Stat(cachePath)
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteLoginWithoutSettingsFails(t *testing.T) {
	configPath := writeConfigFile(t, "[cache]\nprotection = \"none\"\n")

	err := Execute(context.Background(), []string{"b2clogin", "--config", configPath, "login", "--no-prompt"})
	assert.ErrorContains(t, err, "invalid config")
}

func TestCacheStatusDoesNotProvisionKey(t *testing.T) {
	keyring.MockInit()
	cachePath := filepath.Join(t.TempDir(), "b2clogin"+tokencache.FileSuffix)
	configPath := writeConfigFile(t, "[cache]\nprotection = \"keyring\"\nkeyring_user = \"ada\"\n")

	require.NoError(t, Execute(context.Background(), []string{"b2clogin", "--config", configPath, "cache", "status", "--cache--file", cachePath}))

	_, err := keyring.Get(app.KeyringService, "ada")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestPrintCacheStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     tokencache.Status
		want       string
		wantAbsent string
	}{
		{
			name:   "unprotected",
			status: tokencache.Status{Mode: secretcodec.ModeNone},
			want:   "not encrypted at rest",
		},
		{
			name:   "key based",
			status: tokencache.Status{Mode: secretcodec.ModeEnv, Protected: true},
			want:   "key-based",
		},
		{
			name:       "user scoped",
			status:     tokencache.Status{Mode: secretcodec.ModeKeyring, Protected: true},
			want:       "Protection: keyring",
			wantAbsent: "key-based",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printCacheStatus(&buf, tt.status)
			assert.Contains(t, buf.String(), tt.want)
			if tt.wantAbsent != "" {
				assert.NotContains(t, buf.String(), tt.wantAbsent)
			}
		})
	}
}
