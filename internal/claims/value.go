package claims

import (
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string_list"
	default:
		return "invalid"
	}
}

// Value is a single claim value. Exactly one variant is set, selected by Kind.
// The zero Value is invalid.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []string
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number keeps the literal text so integers like "exp" render without an exponent.
func Number(f float64, literal string) Value {
	if literal == "" {
		literal = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return Value{kind: KindNumber, num: f, str: literal}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func StringList(items []string) Value {
	return Value{kind: KindStringList, list: append([]string{}, items...)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsStringList returns a copy of the list.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return append([]string{}, v.list...), true
}

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStringList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

// Map holds the claims of one token, keyed by claim name.
type Map map[string]Value

// GetString returns the named claim if it holds a string.
func GetString(m Map, name string) (string, bool) {
	v, ok := m[name]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetStringList returns the named claim if it holds a list of strings.
func GetStringList(m Map, name string) ([]string, bool) {
	v, ok := m[name]
	if !ok {
		return nil, false
	}
	return v.AsStringList()
}
