// Package secretcodec protects the token cache blob at rest.
//
// A Codec encrypts and decrypts opaque byte blobs. Several strategies exist with
// different security and deployment tradeoffs:
//   - DPAPI: Windows Data Protection API scoped to the current user
//   - Keyring: XChaCha20-Poly1305 with a key held in the OS credential store
//     (macOS Keychain, Windows Credential Manager, Linux Secret Service)
//   - Env: XChaCha20-Poly1305 with a key read from an environment variable
//   - KeyVault: XChaCha20-Poly1305 with a key read from an Azure Key Vault secret
//   - None: identity transform, the blob is stored as-is
//
// The None codec is a deliberately weaker guarantee. Callers detect it through
// Codec.Protected and warn the user.
package secretcodec
