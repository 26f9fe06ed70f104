// Package identity is the boundary to the identity provider.
//
// The Client interface is what the login flow needs from a provider SDK:
// cached account lookup, silent acquisition reported as a typed SilentResult,
// and interactive acquisition returning a classified *Error. NewMSALClient
// implements it for Azure AD B2C on top of MSAL for Go.
package identity

import (
	"context"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// Account is a signed-in account known to the token cache.
type Account struct {
	HomeAccountID string
	Username      string
	Environment   string

	// native is the provider's own account value, round-tripped to silent acquisition.
	native *public.Account
}

// Token is the result of a successful acquisition.
type Token struct {
	AccessToken string
	// IDToken is the raw compact ID token, empty when the provider returned none.
	IDToken   string
	ExpiresOn time.Time
	Account   Account
}

// SilentStatus classifies a silent acquisition.
type SilentStatus int

const (
	// SilentAcquired means a token was returned without user interaction.
	SilentAcquired SilentStatus = iota
	// SilentInteractionRequired means the cached session cannot be used and
	// the user has to sign in again. It is an expected outcome, not a fault.
	SilentInteractionRequired
	// SilentFailed covers every other failure (network, configuration).
	SilentFailed
)

func (s SilentStatus) String() string {
	switch s {
	case SilentAcquired:
		return "acquired"
	case SilentInteractionRequired:
		return "interaction_required"
	case SilentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SilentResult is the outcome of AcquireSilent. Token is set for SilentAcquired,
// Err for the other statuses.
type SilentResult struct {
	Status SilentStatus
	Token  Token
	Err    error
}

// Client acquires tokens from the identity provider. Implementations drive the
// token cache hooks themselves; callers never touch the cache.
type Client interface {
	// Accounts lists the accounts in the token cache in provider order.
	Accounts(ctx context.Context) ([]Account, error)
	// AcquireSilent uses the cached session of account.
	AcquireSilent(ctx context.Context, scopes []string, account Account) SilentResult
	// AcquireInteractive runs a browser-mediated login. loginHint pre-fills the
	// username and may be empty. Errors are *Error.
	AcquireInteractive(ctx context.Context, scopes []string, loginHint string) (Token, error)
}
