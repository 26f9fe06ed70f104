package secretcodec

import (
	"context"
	"fmt"
	"os"
)

// EnvKeySource provides read-only access to a key stored in an environment variable.
// Suitable for headless machines where the secret is injected by external secret management.
type EnvKeySource struct {
	envKey string
}

// Compile-time check to ensure EnvKeySource implements KeySource
var _ KeySource = (*EnvKeySource)(nil)

// NewEnvKeySource creates an EnvKeySource for the given environment variable.
// Returns error if the variable name is empty or not set in the environment.
func NewEnvKeySource(envKey string) (*EnvKeySource, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvKeySource{
		envKey: envKey,
	}, nil
}

// Key decodes the base64 key from the environment variable.
func (e *EnvKeySource) Key(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := decodeKey(os.Getenv(e.envKey))
	if err != nil {
		return nil, fmt.Errorf("environment variable %s: %w", e.envKey, err)
	}
	return key, nil
}
