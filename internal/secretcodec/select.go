package secretcodec

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/crypto/chacha20poly1305"
)

// Protection names a requested protection strategy.
type Protection string

const (
	ProtectionAuto     Protection = "auto"
	ProtectionDPAPI    Protection = "dpapi"
	ProtectionKeyring  Protection = "keyring"
	ProtectionEnv      Protection = "env"
	ProtectionKeyVault Protection = "keyvault"
	ProtectionNone     Protection = "none"
)

// Options describe how Select builds a Codec.
type Options struct {
	Protection Protection

	// Keyring settings
	KeyringService string
	KeyringUser    string

	// Env settings: name of the variable holding a base64 32-byte key
	KeyEnv string

	// Key Vault settings
	KeyVaultURL    string
	KeyVaultSecret string
	// Credential for Key Vault. DefaultAzureCredential is used when nil.
	Credential azcore.TokenCredential

	// NoKeyCreation keeps the keyring untouched when it holds no key yet; an
	// ephemeral key stands in. For commands that only inspect or delete the cache.
	NoKeyCreation bool
}

// Select probes the platform and returns the Codec for the requested protection.
//
// With ProtectionAuto, DPAPI is used on Windows, the OS keyring elsewhere when it
// answers, and NoopCodec otherwise. Explicit strategies fail instead of degrading.
// Key material is resolved here, once, so later Encrypt/Decrypt calls do no I/O.
func Select(ctx context.Context, opts Options) (Codec, error) {
	switch opts.Protection {
	case ProtectionAuto, "":
		return selectAuto(ctx, opts), nil
	case ProtectionDPAPI:
		return newDPAPICodec()
	case ProtectionKeyring:
		return keyringCodec(ctx, opts)
	case ProtectionEnv:
		src, err := NewEnvKeySource(opts.KeyEnv)
		if err != nil {
			return nil, err
		}
		return sealedFrom(ctx, src, ModeEnv)
	case ProtectionKeyVault:
		cred := opts.Credential
		if cred == nil {
			defaultCred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("creating azure credential: %w", err)
			}
			cred = defaultCred
		}
		src, err := NewKeyVaultKeySource(opts.KeyVaultURL, opts.KeyVaultSecret, cred)
		if err != nil {
			return nil, err
		}
		return sealedFrom(ctx, src, ModeKeyVault)
	case ProtectionNone:
		return NoopCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported protection: %s", opts.Protection)
	}
}

func selectAuto(ctx context.Context, opts Options) Codec {
	if dpapiAvailable {
		if codec, err := newDPAPICodec(); err == nil {
			return codec
		}
	}

	codec, err := keyringCodec(ctx, opts)
	if err == nil {
		return codec
	}
	slog.DebugContext(ctx, "os keyring unavailable, falling back to no protection", "error", err)
	return NoopCodec{}
}

func keyringCodec(ctx context.Context, opts Options) (Codec, error) {
	src, err := NewKeyringKeySource(opts.KeyringService, opts.KeyringUser)
	if err != nil {
		return nil, err
	}
	if !opts.NoKeyCreation {
		return sealedFrom(ctx, src, ModeKeyring)
	}

	key, err := src.Lookup(ctx)
	if errors.Is(err, ErrKeyNotFound) {
		// Nothing sealed under a missing key can exist, so any key reports that.
		slog.DebugContext(ctx, "keyring holds no cache key yet", "error", err)
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("resolving %s key: %w", ModeKeyring, err)
	}

	codec, err := NewSealedCodec(key, ModeKeyring)
	if err != nil {
		return nil, err
	}
	return codec, nil
}

func sealedFrom(ctx context.Context, src KeySource, mode Mode) (Codec, error) {
	key, err := src.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving %s key: %w", mode, err)
	}
	codec, err := NewSealedCodec(key, mode)
	if err != nil {
		return nil, err
	}
	return codec, nil
}
