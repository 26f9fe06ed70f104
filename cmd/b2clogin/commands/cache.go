package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/b2clogin/internal/app"
	"github.com/florianilch/b2clogin/internal/observability"
	"github.com/florianilch/b2clogin/internal/secretcodec"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

// cacheStore is the part of tokencache.Store the cache commands use.
type cacheStore interface {
	Path() string
	Stat(ctx context.Context) (tokencache.Status, error)
	Clear(ctx context.Context) error
}

// Compile-time check to ensure tokencache.Store implements cacheStore
var _ cacheStore = (*tokencache.Store)(nil)

// withCache loads the cache settings only, so the cache commands work before
// login settings exist.
func withCache(ctx context.Context, cmd *cli.Command, fn func(context.Context, cacheStore) error) error {
	configPath, explicit := resolveConfigPath(cmd.String("config"))
	cfg, err := readConfig(configPath, explicit, cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateCache(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	// Inspecting or deleting the cache must not provision a keyring key.
	opts := cfg.Cache.CodecOptions()
	opts.NoKeyCreation = true
	codec, err := secretcodec.Select(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to set up cache protection: %w", err)
	}

	store, err := app.OpenCache(ctx, &cfg.Cache, codec)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}
