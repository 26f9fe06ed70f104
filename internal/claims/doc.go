// Package claims decodes the payload of a compact (JWT-style) token into a
// typed claims map for display.
//
// No signature verification is performed. Decoded claims are informational
// and must never be used to establish trust.
package claims
