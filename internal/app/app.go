package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/b2clogin/internal/apiclient"
	"github.com/florianilch/b2clogin/internal/auth"
	"github.com/florianilch/b2clogin/internal/identity"
	"github.com/florianilch/b2clogin/internal/secretcodec"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

// ErrNoAPIEndpoint is returned by CallAPI when api.endpoint is not configured.
var ErrNoAPIEndpoint = errors.New("no API endpoint configured")

// msalEmptyCache is the serialized form of an empty MSAL cache.
var msalEmptyCache = []byte("{}")

// App wires the token cache, identity client, login flow and API client.
type App struct {
	cfg          *Config
	store        *tokencache.Store
	orchestrator *auth.Orchestrator
	api          *apiclient.Client
}

// Option configures an App.
type Option func(*options)

type options struct {
	codec        secretcodec.Codec
	client       identity.Client
	apiOpts      []apiclient.Option
	storeOptions []tokencache.Option
}

// WithCodec skips protection probing and uses codec for the cache.
func WithCodec(codec secretcodec.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// WithIdentityClient replaces the MSAL client.
func WithIdentityClient(client identity.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithAPIOptions passes options to the API client.
func WithAPIOptions(opts ...apiclient.Option) Option {
	return func(o *options) {
		o.apiOpts = append(o.apiOpts, opts...)
	}
}

// WithStoreOptions passes options to the token cache store.
func WithStoreOptions(opts ...tokencache.Option) Option {
	return func(o *options) {
		o.storeOptions = append(o.storeOptions, opts...)
	}
}

// New creates a new App instance. Cache key material is resolved here so no
// key lookup happens while the cache lock is held.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	store, err := OpenCache(ctx, &cfg.Cache, o.codec, o.storeOptions...)
	if err != nil {
		return nil, err
	}

	client := o.client
	if client == nil {
		client, err = identity.NewMSALClient(identity.Config{
			Tenant:      cfg.Auth.Tenant,
			ClientID:    cfg.Auth.ClientID,
			Policy:      cfg.Auth.PolicySignUpSignIn,
			RedirectURI: cfg.Auth.RedirectURI,
		}, store)
		if err != nil {
			return nil, fmt.Errorf("failed to create identity client: %w", err)
		}
	}

	orchestrator := auth.New(client, auth.Config{
		Scopes:      cfg.Auth.Scopes,
		LoginHint:   cfg.Auth.LoginHint,
		ResetPolicy: cfg.Auth.PolicyResetPassword,
	})

	var api *apiclient.Client
	if cfg.API.Endpoint != "" {
		api, err = apiclient.New(cfg.API.Endpoint, cfg.API.SubscriptionKey, o.apiOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create API client: %w", err)
		}
	}

	return &App{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		api:          api,
	}, nil
}

// OpenCache builds the token cache store for cfg. A nil codec is selected
// from cfg.Protection.
func OpenCache(ctx context.Context, cfg *CacheConfig, codec secretcodec.Codec, opts ...tokencache.Option) (*tokencache.Store, error) {
	if codec == nil {
		selected, err := secretcodec.Select(ctx, cfg.CodecOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to set up cache protection: %w", err)
		}
		codec = selected
	}
	if !codec.Protected() {
		slog.WarnContext(ctx, "token cache is stored unencrypted", "path", cfg.File, "mode", codec.Mode())
	}

	cacheCfg, err := tokencache.NewCacheConfig(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("invalid cache location: %w", err)
	}

	opts = append([]tokencache.Option{tokencache.WithEmptyCache(msalEmptyCache)}, opts...)
	store, err := tokencache.New(cacheCfg, codec, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return store, nil
}

// Login runs the silent-then-interactive flow, bounded by the configured timeout.
func (a *App) Login(ctx context.Context) auth.Outcome {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	slog.InfoContext(ctx, "authenticating", "tenant", a.cfg.Auth.Tenant, "login_hint", a.cfg.Auth.LoginHint)
	return a.orchestrator.Authenticate(ctx)
}

// HasAPI reports whether an API endpoint is configured.
func (a *App) HasAPI() bool {
	return a.api != nil
}

// CallAPI calls the configured API with accessToken.
func (a *App) CallAPI(ctx context.Context, accessToken string) (apiclient.Result, error) {
	if a.api == nil {
		return apiclient.Result{}, ErrNoAPIEndpoint
	}
	return a.api.Call(ctx, accessToken)
}

// Cache returns the token cache store.
func (a *App) Cache() *tokencache.Store {
	return a.store
}
