package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os/user"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/b2clogin/internal/secretcodec"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// Default configuration values
const (
	DefaultConfigLogLevel        = slog.LevelWarn
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigTimeout         = 5 * time.Minute
	DefaultConfigRedirectURI     = "http://localhost"
	DefaultConfigCacheProtection = secretcodec.ProtectionAuto
	DefaultConfigCacheKeyEnv     = "B2CLOGIN_CACHE_KEY"

	// KeyringService names the keyring entry holding the cache key.
	KeyringService = "b2clogin-cache-key"
)

// AuthConfig identifies the B2C application and the login request.
type AuthConfig struct {
	// Tenant is the B2C tenant name, e.g. "contoso".
	Tenant              string   `json:"tenant" validate:"required,hostname_rfc1123"`
	ClientID            string   `json:"client_id" validate:"required,uuid"`
	PolicySignUpSignIn  string   `json:"policy_sign_up_sign_in" validate:"required"`
	PolicyResetPassword string   `json:"policy_reset_password,omitempty"`
	RedirectURI         string   `json:"redirect_uri" validate:"required,url"`
	Scopes              []string `json:"scopes" validate:"required,min=1,dive,required"`
	// LoginHint pre-fills the username on the sign-in page.
	LoginHint string `json:"login_hint,omitempty"`
}

// APIConfig describes the downstream API called with the token.
type APIConfig struct {
	Endpoint        string `json:"endpoint,omitempty" validate:"omitempty,url"`
	SubscriptionKey string `json:"subscription_key,omitempty"`
}

// KeyVaultConfig locates the cache key in Azure Key Vault.
type KeyVaultConfig struct {
	URL    string `json:"url,omitempty" validate:"omitempty,url"`
	Secret string `json:"secret,omitempty"`
}

// CacheConfig describes where and how the token cache is stored.
type CacheConfig struct {
	File       string                 `json:"file"`
	Protection secretcodec.Protection `json:"protection" validate:"oneof=auto dpapi keyring env keyvault none"`

	// Protection-specific settings
	KeyringUser string         `json:"keyring_user,omitempty"`
	KeyEnv      string         `json:"key_env,omitempty"`
	KeyVault    KeyVaultConfig `json:"key_vault"`
}

// CodecOptions translates the cache settings for secretcodec.Select.
func (c *CacheConfig) CodecOptions() secretcodec.Options {
	return secretcodec.Options{
		Protection:     c.Protection,
		KeyringService: KeyringService,
		KeyringUser:    c.KeyringUser,
		KeyEnv:         c.KeyEnv,
		KeyVaultURL:    c.KeyVault.URL,
		KeyVaultSecret: c.KeyVault.Secret,
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output. The zero value is Info, so the Warn default
	// is seeded by NewConfig rather than filled in by ApplyDefaults.
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json otel"`
	// Timeout bounds a whole login, including the browser step.
	Timeout time.Duration `json:"timeout"`
	Auth    AuthConfig    `json:"auth"`
	API     APIConfig     `json:"api"`
	Cache   CacheConfig   `json:"cache"`
}

// NewConfig returns a Config seeded with the defaults that cannot be told apart
// from an explicit zero value. Decode config sources into it, then call
// ApplyDefaults.
func NewConfig() *Config {
	return &Config{LogLevel: DefaultConfigLogLevel}
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := NewConfig()
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultConfigTimeout
	}
	if c.Auth.RedirectURI == "" {
		c.Auth.RedirectURI = DefaultConfigRedirectURI
	}
	if c.Cache.Protection == "" {
		c.Cache.Protection = DefaultConfigCacheProtection
	}
	if c.Cache.File == "" {
		path, err := tokencache.DefaultPath()
		if err != nil {
			return fmt.Errorf("cache.file required (auto-detect failed: %w)", err)
		}
		c.Cache.File = path
	}

	// Dynamic defaults based on protection
	switch c.Cache.Protection {
	case secretcodec.ProtectionAuto, secretcodec.ProtectionKeyring:
		if c.Cache.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("cache.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Cache.KeyringUser = currentUser.Username
		}
	case secretcodec.ProtectionEnv:
		if c.Cache.KeyEnv == "" {
			c.Cache.KeyEnv = DefaultConfigCacheKeyEnv
		}
	case secretcodec.ProtectionKeyVault:
		// url and secret must be explicitly configured (no sensible default)
	}

	return nil
}

// MissingAuth returns the config keys of required login settings that are unset.
func (c *Config) MissingAuth() []string {
	var missing []string
	if c.Auth.Tenant == "" {
		missing = append(missing, "auth.tenant")
	}
	if c.Auth.ClientID == "" {
		missing = append(missing, "auth.client_id")
	}
	if c.Auth.PolicySignUpSignIn == "" {
		missing = append(missing, "auth.policy_sign_up_sign_in")
	}
	if len(c.Auth.Scopes) == 0 {
		missing = append(missing, "auth.scopes")
	}
	return missing
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if err := validateRedirectURI(c.Auth.RedirectURI); err != nil {
		return err
	}
	return c.validateCache()
}

// ValidateCache validates everything but the login settings, for commands
// that only touch the token cache.
func (c *Config) ValidateCache() error {
	if err := validator.New().StructExcept(c, "Auth"); err != nil {
		return err
	}
	return c.validateCache()
}

func (c *Config) validateCache() error {
	if c.Cache.File == "" {
		return errors.New("cache.file required")
	}

	switch c.Cache.Protection {
	case secretcodec.ProtectionKeyring:
		if c.Cache.KeyringUser == "" {
			return errors.New("keyring_user required for keyring protection")
		}
	case secretcodec.ProtectionEnv:
		if c.Cache.KeyEnv == "" {
			return errors.New("key_env required for env protection")
		}
	case secretcodec.ProtectionKeyVault:
		if c.Cache.KeyVault.URL == "" || c.Cache.KeyVault.Secret == "" {
			return errors.New("key_vault.url and key_vault.secret required for keyvault protection")
		}
	}

	return nil
}

// validateRedirectURI enforces a loopback http URI; interactive login listens on it.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri: %w", err)
	}
	if u.Scheme != "http" {
		return fmt.Errorf("redirect_uri must use http on a loopback address, got %q", raw)
	}
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("redirect_uri must point to a loopback address, got %q", raw)
}
