// Package literal parses Python literal expressions found in CSV cells.
//
// Only constants and containers are accepted: numbers, strings, bytes,
// True, False, None, tuples, lists, dicts and sets, plus unary +/- applied
// to a number. Names, calls, attribute access, operators and comprehensions
// are rejected with an error wrapping [ErrSyntax]; nothing is ever evaluated.
//
// Values are returned as:
//
//	int       -> int64
//	float     -> float64
//	str       -> string
//	bytes     -> []byte
//	bool      -> bool
//	None      -> nil
//	tuple     -> Tuple
//	list      -> List
//	dict      -> Dict (insertion ordered)
//	set       -> Set
package literal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("invalid literal")

// SyntaxError describes where and why parsing failed.
type SyntaxError struct {
	Offset int    // byte offset into the input
	Msg    string // what went wrong
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid literal at offset %d: %s", e.Offset, e.Msg)
}

// Is reports ErrSyntax as a match so callers can use errors.Is.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// Tuple is a parsed tuple.
type Tuple []any

// List is a parsed list.
type List []any

// Set is a parsed set in source order. Duplicate members are dropped.
type Set []any

// Pair is one dict entry.
type Pair struct {
	Key   any
	Value any
}

// Dict is a parsed dict in insertion order. A repeated key overwrites the
// earlier value in place, as Python does.
type Dict []Pair

// Get returns the value stored under key.
func (d Dict) Get(key any) (any, bool) {
	for _, p := range d {
		if Equal(p.Key, key) {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys returns the dict keys in order.
func (d Dict) Keys() []any {
	keys := make([]any, len(d))
	for i, p := range d {
		keys[i] = p.Key
	}
	return keys
}

// MarshalJSON encodes the dict as a JSON object when every key is a string
// and as an array of [key, value] pairs otherwise.
func (d Dict) MarshalJSON() ([]byte, error) {
	allStrings := true
	for _, p := range d {
		if _, ok := p.Key.(string); !ok {
			allStrings = false
			break
		}
	}

	var b strings.Builder
	if allStrings {
		b.WriteByte('{')
		for i, p := range d {
			if i > 0 {
				b.WriteByte(',')
			}
			k, err := json.Marshal(p.Key)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(p.Value)
			if err != nil {
				return nil, err
			}
			b.Write(k)
			b.WriteByte(':')
			b.Write(v)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	}

	pairs := make([][2]any, len(d))
	for i, p := range d {
		pairs[i] = [2]any{p.Key, p.Value}
	}
	return json.Marshal(pairs)
}

// Equal compares two parsed values structurally. Integers and floats with
// the same numeric value compare equal, matching Python's 1 == 1.0.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		case bool:
			return x == boolInt(y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		case bool:
			return x == float64(boolInt(y))
		}
	case bool:
		switch y := b.(type) {
		case bool:
			return x == y
		case int64, float64:
			return Equal(b, a)
		}
	}
	return reflect.DeepEqual(a, b)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// AsTuple converts an iterable value to a Tuple the way Python's tuple()
// does: containers yield their members, dicts their keys, strings their
// characters and bytes their integer values.
func AsTuple(v any) (Tuple, error) {
	switch x := v.(type) {
	case Tuple:
		return append(Tuple(nil), x...), nil
	case List:
		return append(Tuple(nil), x...), nil
	case Set:
		return append(Tuple(nil), x...), nil
	case Dict:
		return Tuple(x.Keys()), nil
	case string:
		out := make(Tuple, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	case []byte:
		out := make(Tuple, len(x))
		for i, c := range x {
			out[i] = int64(c)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%T is not iterable", v)
	}
}

// ParseTuple parses s and converts the result with AsTuple.
func ParseTuple(s string) (Tuple, error) {
	v, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return AsTuple(v)
}
