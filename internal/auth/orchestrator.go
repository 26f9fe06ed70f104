// Package auth runs the login flow: silent acquisition from the cached session
// first, interactive sign-in only when the session cannot be used.
package auth

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/b2clogin/internal/claims"
	"github.com/florianilch/b2clogin/internal/identity"
)

const tracerName = "github.com/florianilch/b2clogin/internal/auth"

// State is a step of the login state machine.
type State int

const (
	StateStart State = iota
	StateSilentAttempt
	StateInteractiveAttempt
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSilentAttempt:
		return "silent_attempt"
	case StateInteractiveAttempt:
		return "interactive_attempt"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config holds the request parameters of a login.
type Config struct {
	Scopes []string
	// LoginHint pre-fills the username on the sign-in page. It does not skip the prompt.
	LoginHint string
	// ResetPolicy is quoted in the remediation of a password reset failure.
	ResetPolicy string
}

// Orchestrator coordinates silent and interactive acquisition.
type Orchestrator struct {
	client identity.Client
	cfg    Config
	tracer trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracerProvider sets the provider for attempt spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// New creates an Orchestrator.
func New(client identity.Client, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Authenticate runs the state machine to completion and returns *Success or *Failure.
//
// With a cached account, silent acquisition is tried first and only an
// interaction-required result falls through to interactive sign-in. Other
// silent failures are terminal. Without a cached account, interactive sign-in
// runs directly.
func (o *Orchestrator) Authenticate(ctx context.Context) Outcome {
	var (
		state   = StateStart
		account identity.Account
		outcome Outcome
	)

	for state != StateDone {
		var next State

		switch state {
		case StateStart:
			accounts, err := o.client.Accounts(ctx)
			if err != nil {
				slog.WarnContext(ctx, "failed to list cached accounts, signing in interactively", "error", err)
			}
			if len(accounts) > 0 {
				// First account wins; there is no account picker.
				account = accounts[0]
				next = StateSilentAttempt
			} else {
				next = StateInteractiveAttempt
			}

		case StateSilentAttempt:
			res := o.silent(ctx, account)
			switch res.Status {
			case identity.SilentAcquired:
				outcome = o.success(ctx, res.Token, true)
				next = StateDone
			case identity.SilentInteractionRequired:
				slog.InfoContext(ctx, "cached session cannot be used, interactive sign-in required", "reason", res.Err)
				next = StateInteractiveAttempt
			default:
				outcome = o.failure(ctx, res.Err)
				next = StateDone
			}

		case StateInteractiveAttempt:
			tok, err := o.interactive(ctx)
			if err != nil {
				outcome = o.failure(ctx, err)
			} else {
				outcome = o.success(ctx, tok, false)
			}
			next = StateDone
		}

		slog.DebugContext(ctx, "auth state transition", "from", state, "to", next)
		state = next
	}

	return outcome
}

func (o *Orchestrator) silent(ctx context.Context, account identity.Account) identity.SilentResult {
	ctx, span := o.tracer.Start(ctx, "auth.acquire_silent", trace.WithAttributes(
		attribute.StringSlice("auth.scopes", o.cfg.Scopes),
	))
	defer span.End()

	res := o.client.AcquireSilent(ctx, o.cfg.Scopes, account)
	span.SetAttributes(attribute.String("auth.silent_status", res.Status.String()))
	if res.Status == identity.SilentFailed {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "silent acquisition failed")
	}
	return res
}

func (o *Orchestrator) interactive(ctx context.Context) (identity.Token, error) {
	ctx, span := o.tracer.Start(ctx, "auth.acquire_interactive", trace.WithAttributes(
		attribute.StringSlice("auth.scopes", o.cfg.Scopes),
		attribute.Bool("auth.login_hint", o.cfg.LoginHint != ""),
	))
	defer span.End()

	slog.InfoContext(ctx, "opening browser for interactive sign-in")
	tok, err := o.client.AcquireInteractive(ctx, o.cfg.Scopes, o.cfg.LoginHint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "interactive acquisition failed")
	}
	return tok, err
}

func (o *Orchestrator) success(ctx context.Context, tok identity.Token, silent bool) *Success {
	s := &Success{
		AccessToken: tok.AccessToken,
		IDToken:     tok.IDToken,
		ExpiresOn:   tok.ExpiresOn,
		Account:     tok.Account,
		Claims:      claims.Map{},
		Silent:      silent,
	}
	if tok.IDToken != "" {
		// Unverified decode; the claims are only displayed.
		s.Claims = claims.Decode(ctx, tok.IDToken)
	}
	slog.InfoContext(ctx, "authentication succeeded", "silent", silent, "expires_on", tok.ExpiresOn)
	return s
}

func (o *Orchestrator) failure(ctx context.Context, err error) *Failure {
	f := &Failure{
		Kind:        FailureProviderError,
		ResetPolicy: o.cfg.ResetPolicy,
		Err:         err,
	}

	var ie *identity.Error
	if errors.As(err, &ie) {
		f.Kind = failureKind(ie.Kind)
		f.Code = ie.Code
		f.Detail = ie.Description
		f.Diagnostics = ie.Diagnostics
	}
	if f.Detail == "" && err != nil {
		f.Detail = err.Error()
	}

	attrs := []any{"kind", f.Kind, "code", f.Code, "detail", f.Detail}
	for k, v := range f.Diagnostics {
		attrs = append(attrs, k, v)
	}
	slog.ErrorContext(ctx, "authentication failed", attrs...)
	return f
}
