package auth

import (
	"fmt"
	"time"

	"github.com/florianilch/b2clogin/internal/claims"
	"github.com/florianilch/b2clogin/internal/identity"
)

// Outcome is the terminal result of Authenticate: *Success or *Failure.
type Outcome interface {
	outcome()
}

// Success carries the acquired token.
type Success struct {
	AccessToken string
	IDToken     string
	ExpiresOn   time.Time
	Account     identity.Account
	// Claims are decoded from the ID token without signature verification
	// and are for display only.
	Claims claims.Map
	// Silent is true when the token came from the cached session.
	Silent bool
}

// FailureKind classifies a terminal failure for reporting.
type FailureKind string

const (
	FailureUserCancelled         FailureKind = "user_cancelled"
	FailureClientMisconfigured   FailureKind = "client_misconfigured"
	FailurePasswordResetRequired FailureKind = "password_reset_required"
	FailureProviderError         FailureKind = "provider_error"
)

// Failure describes why no token was obtained. It implements error.
type Failure struct {
	Kind FailureKind
	// Code is the provider's raw error code, if any.
	Code string
	// Detail is the provider's error message.
	Detail      string
	Diagnostics map[string]string
	// ResetPolicy names the password reset user flow, if configured.
	ResetPolicy string
	Err         error
}

func (*Success) outcome() {}
func (*Failure) outcome() {}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.Code != "" {
		msg += " (" + f.Code + ")"
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Remediation returns the user-facing hint for the failure kind.
func (f *Failure) Remediation() string {
	switch f.Kind {
	case FailureUserCancelled:
		return "Sign-in was cancelled or access was denied. Run the command again to retry."
	case FailureClientMisconfigured:
		return "The application is not configured correctly for interactive sign-in. " +
			"Check the client ID, the user flow and the redirect URIs registered for the application in Azure AD B2C."
	case FailurePasswordResetRequired:
		if f.ResetPolicy != "" {
			return fmt.Sprintf("A password reset is required. Reset your password with the %q user flow, then sign in again.", f.ResetPolicy)
		}
		return "A password reset is required. Reset your password through the web interface, then sign in again."
	default:
		if f.Code != "" {
			return fmt.Sprintf("The identity provider rejected the request with %q. Retry later or contact the tenant administrator.", f.Code)
		}
		return "Authentication failed. Retry later or contact the tenant administrator."
	}
}

func failureKind(k identity.ErrorKind) FailureKind {
	switch k {
	case identity.KindUserCancelled:
		return FailureUserCancelled
	case identity.KindClientMisconfigured:
		return FailureClientMisconfigured
	case identity.KindPasswordResetRequired:
		return FailurePasswordResetRequired
	default:
		return FailureProviderError
	}
}
