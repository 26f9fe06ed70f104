// Package tokencache persists the identity client's serialized token cache.
//
// The Store exposes two hooks the identity client calls around every token
// operation: BeforeAccess loads and decrypts the blob, AfterAccess encrypts
// and writes it back when the in-memory cache changed. Store also implements
// MSAL's cache.ExportReplace so it can be handed to public.WithCache directly.
//
// Writes replace the whole file via temp file + rename, so readers never see
// a half-written blob. Both hooks serialize on a lock scoped to the cache
// path that spans goroutines (in-process registry) and processes (OS
// advisory lock on a sidecar ".lock" file).
//
// Caching is an optimization: unreadable or unwritable caches are logged and
// degrade to re-authentication, never to a failed login.
package tokencache
