package secretcodec

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyringKeySource keeps the cache key in the OS-native credential store.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringKeySource struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringKeySource implements KeySource
var _ KeySource = (*KeyringKeySource)(nil)

// NewKeyringKeySource creates a KeyringKeySource for the given service and user identifiers.
func NewKeyringKeySource(service, user string) (*KeyringKeySource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringKeySource{
		service: service,
		user:    user,
	}, nil
}

// ErrKeyNotFound is returned by Lookup when the keyring has no cache key yet.
var ErrKeyNotFound = errors.New("no cache key in keyring")

// Key returns the stored key, generating and storing a new one if the keyring
// has no entry yet.
func (k *KeyringKeySource) Key(ctx context.Context) ([]byte, error) {
	key, err := k.Lookup(ctx)
	if errors.Is(err, ErrKeyNotFound) {
		return k.create(ctx)
	}
	return key, err
}

// Lookup returns the stored key without ever writing to the keyring.
func (k *KeyringKeySource) Lookup(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := keyring.Get(k.service, k.user)
	switch {
	case err == nil:
		key, err := decodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("keyring entry for service %s, user %s: %w", k.service, k.user, err)
		}
		return key, nil
	case errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("%w: service %s, user %s", ErrKeyNotFound, k.service, k.user)
	default:
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
}

// create generates a fresh key and persists it, overwriting any existing value.
func (k *KeyringKeySource) create(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := keyring.Set(k.service, k.user, encodeKey(key)); err != nil {
		return nil, fmt.Errorf("writing keyring: %w", err)
	}
	return key, nil
}

// Delete removes the key from the keyring. Ciphertext sealed under it becomes
// unreadable.
func (k *KeyringKeySource) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
