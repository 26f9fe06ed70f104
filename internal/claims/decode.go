package claims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Stage names the decoding step that rejected a token.
type Stage string

const (
	StageSegments Stage = "segments"
	StageBase64   Stage = "base64"
	StageJSON     Stage = "json"
)

// DecodeError reports why a token payload could not be decoded.
type DecodeError struct {
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding token claims (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Parse decodes the payload segment of a compact token into claims.
//
// Parse does NOT verify the token signature. The result must only be used
// for display, never to make authorization decisions.
func Parse(token string) (Map, error) {
	segments := strings.Split(token, ".")
	if len(segments) < 2 {
		return nil, &DecodeError{Stage: StageSegments, Err: fmt.Errorf("expected at least 2 segments, got %d", len(segments))}
	}

	// Tolerate payloads encoded with the standard alphabet.
	payload := strings.NewReplacer("+", "-", "/", "_").Replace(segments[1])
	raw, err := segmentParser.DecodeSegment(payload)
	if err != nil {
		return nil, &DecodeError{Stage: StageBase64, Err: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Stage: StageJSON, Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Stage: StageJSON, Err: errors.New("payload is not a JSON object")}
	}

	m := make(Map, len(fields))
	for name, field := range fields {
		m[name] = project(field)
	}
	return m, nil
}

// Decode is the lenient form of Parse: malformed tokens are logged and yield
// an empty Map. Like Parse it performs no signature verification.
func Decode(ctx context.Context, token string) Map {
	m, err := Parse(token)
	if err != nil {
		var de *DecodeError
		stage := Stage("")
		if errors.As(err, &de) {
			stage = de.Stage
		}
		slog.WarnContext(ctx, "failed to decode token claims", "stage", stage, "error", err)
		return Map{}
	}
	return m
}

// project maps one JSON field onto a Value. Shapes without a variant of their
// own (objects, mixed arrays) are kept as their compact JSON text.
func project(field json.RawMessage) Value {
	trimmed := bytes.TrimSpace(field)
	if len(trimmed) == 0 {
		return String("")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return String(s)
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			return Bool(b)
		}
	case 'n':
		return String("")
	case '[':
		if items, ok := stringItems(trimmed); ok {
			return StringList(items)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err == nil {
			if f, err := n.Float64(); err == nil {
				return Number(f, n.String())
			}
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return String(string(trimmed))
	}
	return String(compact.String())
}

// stringItems decodes a JSON array whose elements are all strings. A null or
// any other element type rejects the whole array.
func stringItems(array []byte) ([]string, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(array, &raw); err != nil {
		return nil, false
	}

	items := make([]string, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '"' {
			return nil, false
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, false
		}
		items = append(items, s)
	}
	return items, true
}
