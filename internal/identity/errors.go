package identity

import (
	"fmt"
	"strings"
)

// ErrorKind classifies an interactive acquisition failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindUserCancelled
	KindClientMisconfigured
	KindPasswordResetRequired
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserCancelled:
		return "user_cancelled"
	case KindClientMisconfigured:
		return "client_misconfigured"
	case KindPasswordResetRequired:
		return "password_reset_required"
	default:
		return "other"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind ErrorKind
	// Code is the provider error code, e.g. "access_denied" or "AADB2C90118".
	Code        string
	Description string
	// Diagnostics holds provider diagnostics such as HTTP status and
	// correlation IDs when the failure came from an HTTP exchange.
	Diagnostics map[string]string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
