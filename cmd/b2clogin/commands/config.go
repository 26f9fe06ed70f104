package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/b2clogin/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., B2CLOGIN_AUTH__CLIENT_ID → auth.client_id)
const envPrefix = "B2CLOGIN_"

// Flags that steer the CLI itself and never map to config keys.
var nonConfigFlags = map[string]bool{
	"config":     true,
	"no-prompt":  true,
	"token-only": true,
}

// defaultConfigPath is used when --config is not given. The file is optional.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "b2clogin", "config.toml")
}

// resolveConfigPath returns the config file to read and write, and whether it
// was requested explicitly.
func resolveConfigPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	return defaultConfigPath(), false
}

// readConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults.
// A missing file at configPath is an error only when required is true. Callers
// validate the result for what their command needs.
func readConfig(configPath string, required bool, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	// 1. Load from config file if provided
	if configPath != "" {
		err := k.Load(file.Provider(configPath), toml.Parser())
		if err != nil && (required || !errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// 2. Load from environment variables
	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	// 3. Load from CLI flags if provided
	if cmd != nil {
		flagValues := extractAndTransformFlags(cmd)
		if err := k.Load(confmap.Provider(flagValues, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	// Unmarshal keeps seeded fields for keys no source provides
	config := app.NewConfig()
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	return config, nil
}

// extractAndTransformFlags transforms CLI flag names to match config structure.
// Includes parent flags. Examples: --auth--client-id → auth.client_id, --log-level → log_level
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// Lineage walks from this command up to the root, so subcommand flags win.
	for _, c := range cmd.Lineage() {
		for _, f := range c.Flags {
			// The first name is canonical; legacy aliases share its value.
			name := f.Names()[0]
			if nonConfigFlags[name] {
				continue
			}

			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			if _, seen := values[key]; seen {
				continue
			}

			// Skip unset flags to preserve precedence from earlier config sources
			if !cmd.IsSet(name) {
				continue
			}

			if value := cmd.Value(name); value != nil {
				values[key] = value
			}
		}
	}

	return values
}

// saveConfig merges values (dotted keys) into the TOML file at path, keeping
// whatever else the file holds. The file is written with owner-only permissions
// since it may contain a subscription key.
func saveConfig(path string, values map[string]any) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading config file: %w", err)
	}
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("merging config values: %w", err)
	}

	out, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// renderConfig encodes the effective configuration as TOML with secrets masked.
func renderConfig(cfg *app.Config) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	m["timeout"] = cfg.Timeout.String()
	if apiSection, ok := m["api"].(map[string]any); ok {
		if key, ok := apiSection["subscription_key"].(string); ok && key != "" {
			apiSection["subscription_key"] = maskSecret(key)
		}
	}

	return toml.Parser().Marshal(m)
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
