package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	msalerrors "github.com/AzureAD/microsoft-authentication-library-for-go/apps/errors"
)

var (
	// Redirect errors from the local login listener.
	redirectErrorPattern = regexp.MustCompile(`(?s)authentication error: ([^;]*); description: (.*)`)

	// Service-specific codes embedded in error descriptions.
	serviceCodePattern = regexp.MustCompile(`\b(AADB2C\d+|AADSTS\d+)\b`)
)

// Codes meaning the cached session is unusable and the user must sign in.
var interactionRequiredCodes = map[string]bool{
	"invalid_grant":        true,
	"interaction_required": true,
	"login_required":       true,
	"consent_required":     true,
}

// AADB2C90091: the user cancelled a self-asserted page.
var cancelledCodes = map[string]bool{
	"access_denied": true,
	"AADB2C90091":   true,
}

// AADB2C90006 and AADSTS50011: redirect URI not registered.
// AADB2C90007: no reply address. AADB2C90117 and AADSTS700016: unknown application.
var misconfiguredCodes = map[string]bool{
	"unauthorized_client":       true,
	"invalid_client":            true,
	"unsupported_response_type": true,
	"AADB2C90006":               true,
	"AADB2C90007":               true,
	"AADB2C90117":               true,
	"AADSTS50011":               true,
	"AADSTS700016":              true,
}

const passwordResetCode = "AADB2C90118"

// providerError holds what could be recovered from a provider failure.
type providerError struct {
	code        string
	serviceCode string
	description string
	diagnostics map[string]string
}

// errorBody is the OAuth2 error response body, with the Microsoft extensions.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	CorrelationID    string `json:"correlation_id"`
	TraceID          string `json:"trace_id"`
	Timestamp        string `json:"timestamp"`
}

func describe(err error) providerError {
	var pe providerError

	var callErr msalerrors.CallErr
	if errors.As(err, &callErr) {
		pe.diagnostics = map[string]string{}
		if callErr.Resp != nil {
			pe.diagnostics["http_status"] = strconv.Itoa(callErr.Resp.StatusCode)
			for _, h := range []string{"x-ms-request-id", "client-request-id", "x-ms-gateway-requestid"} {
				if v := callErr.Resp.Header.Get(h); v != "" {
					pe.diagnostics[h] = v
				}
			}
		}
		if body, ok := extractErrorBody(callErr.Error()); ok {
			pe.code = body.Error
			pe.description = body.ErrorDescription
			if body.CorrelationID != "" {
				pe.diagnostics["correlation_id"] = body.CorrelationID
			}
			if body.TraceID != "" {
				pe.diagnostics["trace_id"] = body.TraceID
			}
			if body.Timestamp != "" {
				pe.diagnostics["timestamp"] = body.Timestamp
			}
		}
	} else if m := redirectErrorPattern.FindStringSubmatch(err.Error()); m != nil {
		pe.code = strings.TrimSpace(m[1])
		pe.description = strings.TrimSpace(m[2])
	}

	if m := serviceCodePattern.FindStringSubmatch(pe.description); m != nil {
		pe.serviceCode = m[1]
	}
	return pe
}

// extractErrorBody finds the JSON error body MSAL embeds in its HTTP error text.
func extractErrorBody(text string) (errorBody, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return errorBody{}, false
	}
	var body errorBody
	if err := json.Unmarshal([]byte(text[start:end+1]), &body); err != nil || body.Error == "" {
		return errorBody{}, false
	}
	return body, true
}

// classify turns any acquisition error into an *Error.
func classify(err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindUserCancelled, Code: "cancelled", Description: "login was cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindOther, Code: "timeout", Description: "login did not complete in time", Err: err}
	}

	pe := describe(err)
	e := &Error{
		Kind:        KindOther,
		Code:        pe.code,
		Description: pe.description,
		Diagnostics: pe.diagnostics,
		Err:         err,
	}
	if pe.serviceCode != "" {
		if e.Diagnostics == nil {
			e.Diagnostics = map[string]string{}
		}
		e.Diagnostics["service_code"] = pe.serviceCode
	}

	switch {
	case pe.serviceCode == passwordResetCode || strings.Contains(err.Error(), passwordResetCode):
		e.Kind = KindPasswordResetRequired
	case cancelledCodes[pe.code] || cancelledCodes[pe.serviceCode]:
		e.Kind = KindUserCancelled
	case misconfiguredCodes[pe.code] || misconfiguredCodes[pe.serviceCode] || isRedirectMismatch(pe):
		e.Kind = KindClientMisconfigured
	}
	return e
}

func isRedirectMismatch(pe providerError) bool {
	return pe.code == "invalid_request" && strings.Contains(strings.ToLower(pe.description), "redirect_uri")
}

// classifySilent decides whether a silent failure can be fixed by signing in.
func classifySilent(err error) SilentResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SilentResult{Status: SilentFailed, Err: classify(err)}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return SilentResult{Status: SilentFailed, Err: classify(err)}
	}

	var callErr msalerrors.CallErr
	if errors.As(err, &callErr) {
		pe := describe(err)
		if interactionRequiredCodes[pe.code] {
			return SilentResult{Status: SilentInteractionRequired, Err: err}
		}
		return SilentResult{Status: SilentFailed, Err: classify(err)}
	}

	// Anything else is a local cache miss: no access or refresh token for the account.
	return SilentResult{Status: SilentInteractionRequired, Err: err}
}
