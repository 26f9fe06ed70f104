package secretcodec

import (
	"errors"
)

// ErrUnreadableSecret is returned by Decrypt when the ciphertext was produced
// under a different user, key or protection scope, or is corrupted.
var ErrUnreadableSecret = errors.New("secret is unreadable")

// ErrUnsupported is returned when a protection strategy is not available on
// the running platform.
var ErrUnsupported = errors.New("protection strategy not supported on this platform")

// Mode identifies the protection strategy of a Codec.
type Mode string

const (
	ModeNone     Mode = "none"
	ModeDPAPI    Mode = "dpapi"
	ModeKeyring  Mode = "keyring"
	ModeEnv      Mode = "env"
	ModeKeyVault Mode = "keyvault"
)

// UserScoped reports whether m ties the blob to the current OS user rather
// than to key material that can be copied elsewhere.
func (m Mode) UserScoped() bool {
	return m == ModeDPAPI || m == ModeKeyring
}

// Codec encrypts and decrypts opaque blobs. For every b,
// Decrypt(Encrypt(b)) returns b.
type Codec interface {
	// Encrypt protects plaintext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt. Returns an error wrapping ErrUnreadableSecret
	// if ciphertext cannot be recovered.
	Decrypt(ciphertext []byte) ([]byte, error)

	// Mode reports the active protection strategy.
	Mode() Mode

	// Protected reports whether the blob is encrypted at rest. DPAPI and
	// keyring protection are scoped to the OS user; env and keyvault
	// protection are key-based, so anyone holding the key can read the blob.
	Protected() bool
}
