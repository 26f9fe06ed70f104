package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/b2clogin/internal/app"
	"github.com/florianilch/b2clogin/internal/auth"
	"github.com/florianilch/b2clogin/internal/observability"
)

// errAuthenticationFailed is returned after the failure has been reported.
var errAuthenticationFailed = errors.New("authentication failed")

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:           "b2clogin",
		Usage:          "Azure AD B2C interactive login with a persistent token cache",
		DefaultCommand: "login",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (default: user config dir/b2clogin/config.toml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: app.DefaultConfigLogLevel.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			configCommand(),
			cacheCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// authFlags map onto the auth and api config sections. Aliases keep the
// single-word flag names of earlier releases working.
func authFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "auth--tenant",
			Aliases: []string{"tenantname"},
			Usage:   "Azure AD B2C tenant name",
		},
		&cli.StringFlag{
			Name:    "auth--client-id",
			Aliases: []string{"clientid"},
			Usage:   "application (client) ID",
		},
		&cli.StringFlag{
			Name:    "auth--policy-sign-up-sign-in",
			Aliases: []string{"policysignupsignin", "policysignupsingin"},
			Usage:   "sign-up/sign-in user flow",
		},
		&cli.StringFlag{
			Name:    "auth--policy-reset-password",
			Aliases: []string{"policyresetpassword"},
			Usage:   "password reset user flow",
		},
		&cli.StringFlag{
			Name:    "auth--redirect-uri",
			Aliases: []string{"redirecturi"},
			Usage:   "loopback redirect URI",
			Value:   app.DefaultConfigRedirectURI,
		},
		&cli.StringSliceFlag{
			Name:    "auth--scopes",
			Aliases: []string{"apiscopes"},
			Usage:   "API scopes (repeat or comma-separate)",
		},
		&cli.StringFlag{
			Name:    "auth--login-hint",
			Aliases: []string{"userid"},
			Usage:   "username to pre-fill on the sign-in page",
		},
		&cli.StringFlag{
			Name:    "api--endpoint",
			Aliases: []string{"apiendpoints"},
			Usage:   "API endpoint called with the token",
		},
		&cli.StringFlag{
			Name:    "api--subscription-key",
			Aliases: []string{"apisubscriptionkey"},
			Usage:   "API Management subscription key",
		},
	}
}

func cacheFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "cache--file",
			Usage: "token cache file (default: executable path + .msalcache.bin)",
		},
		&cli.StringFlag{
			Name:  "cache--protection",
			Usage: "cache protection (auto|dpapi|keyring|env|keyvault|none)",
			Value: string(app.DefaultConfigCacheProtection),
		},
	}
}

func loginCommand() *cli.Command {
	flags := append(authFlags(), cacheFlags()...)
	flags = append(flags,
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "upper bound for the whole login",
			Value: app.DefaultConfigTimeout,
		},
		&cli.BoolFlag{
			Name:  "no-prompt",
			Usage: "fail instead of prompting for missing settings",
		},
		&cli.BoolFlag{
			Name:  "token-only",
			Usage: "print only the access token",
		},
	)

	return &cli.Command{
		Name:   "login",
		Usage:  "sign in (silently when possible) and print the access token",
		Flags:  flags,
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	out, errOut := cmd.Root().Writer, cmd.Root().ErrWriter

	configPath, explicit := resolveConfigPath(cmd.String("config"))
	cfg, err := readConfig(configPath, explicit, cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if missing := cfg.MissingAuth(); len(missing) > 0 && !cmd.Bool("no-prompt") && stdinIsTerminal() {
		fmt.Fprintf(errOut, "Missing settings: %s\n", strings.Join(missing, ", "))
		values, err := promptConfig(newTerminalPrompter(errOut), cfg, false)
		if err != nil {
			return err
		}
		if configPath != "" && len(values) > 0 {
			if err := saveConfig(configPath, values); err != nil {
				return err
			}
			fmt.Fprintf(errOut, "Saved settings to %s\n\n", configPath)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	tokenOnly := cmd.Bool("token-only")
	if !tokenOnly {
		printHeader(out, cfg.Auth.Tenant, cfg.Auth.LoginHint)
	}

	switch outcome := application.Login(ctx).(type) {
	case *auth.Failure:
		printFailure(errOut, outcome)
		return errAuthenticationFailed
	case *auth.Success:
		if tokenOnly {
			fmt.Fprintln(out, outcome.AccessToken)
			return nil
		}
		printSuccess(out, outcome)

		if application.HasAPI() {
			fmt.Fprintln(out, "Testing API call...")
			res, err := application.CallAPI(ctx, outcome.AccessToken)
			if err != nil {
				fmt.Fprintf(out, "API call failed: %v\n", err)
				return nil
			}
			printAPIResult(out, res)
		}
	}

	return nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the configuration file",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "prompt for all login settings and save them",
				Flags:  authFlags(),
				Action: configInitAction,
			},
			{
				Name:   "show",
				Usage:  "print the effective configuration (secrets masked)",
				Flags:  append(authFlags(), cacheFlags()...),
				Action: configShowAction,
			},
		},
	}
}

func configInitAction(ctx context.Context, cmd *cli.Command) error {
	errOut := cmd.Root().ErrWriter

	configPath, _ := resolveConfigPath(cmd.String("config"))
	if configPath == "" {
		return errors.New("no config path: pass --config")
	}
	if !stdinIsTerminal() {
		return errors.New("config init needs an interactive terminal")
	}

	cfg, err := readConfig(configPath, false, cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	values, err := promptConfig(newTerminalPrompter(errOut), cfg, true)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := saveConfig(configPath, values); err != nil {
		return err
	}

	fmt.Fprintf(errOut, "Saved settings to %s\n", configPath)
	return nil
}

func configShowAction(ctx context.Context, cmd *cli.Command) error {
	configPath, explicit := resolveConfigPath(cmd.String("config"))
	cfg, err := readConfig(configPath, explicit, cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out, err := renderConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	w := cmd.Root().Writer
	fmt.Fprintf(w, "# %s\n", configPath)
	_, err = w.Write(out)
	return err
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "inspect or clear the token cache",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "show where the token cache is and how it is protected",
				Flags:  cacheFlags(),
				Action: cacheStatusAction,
			},
			{
				Name:   "clear",
				Usage:  "delete the token cache; the next login is interactive",
				Flags:  cacheFlags(),
				Action: cacheClearAction,
			},
		},
	}
}

func cacheStatusAction(ctx context.Context, cmd *cli.Command) error {
	return withCache(ctx, cmd, func(ctx context.Context, store cacheStore) error {
		status, err := store.Stat(ctx)
		if err != nil {
			return fmt.Errorf("failed to inspect token cache: %w", err)
		}
		printCacheStatus(cmd.Root().Writer, status)
		return nil
	})
}

func cacheClearAction(ctx context.Context, cmd *cli.Command) error {
	return withCache(ctx, cmd, func(ctx context.Context, store cacheStore) error {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear token cache: %w", err)
		}
		fmt.Fprintf(cmd.Root().Writer, "Token cache %s cleared.\n", store.Path())
		return nil
	})
}
