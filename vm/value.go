package vm

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Value: the tagged arithmetic unit moved between tapes, memory and the
// accumulator
// ---------------------------------------------------------------------------

// ValueKind discriminates the contents of a Value.
type ValueKind uint8

const (
	// KindNone marks an empty cell or an empty accumulator.
	KindNone ValueKind = iota
	KindInt
	KindChar
)

// Value is either an integer, a single character, or empty. The zero Value
// is empty, so memory cells and the accumulator need no pointer indirection.
//
// Int arithmetic wraps on overflow (int32 two's complement); it never fails
// for an Int/Int pair.
type Value struct {
	kind ValueKind
	n    int32
	r    rune
}

// Int creates an integer value.
func Int(n int32) Value {
	return Value{kind: KindInt, n: n}
}

// Char creates a character value.
func Char(r rune) Value {
	return Value{kind: KindChar, r: r}
}

// Kind returns the value's kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty reports whether v is the empty value.
func (v Value) IsEmpty() bool { return v.kind == KindNone }

// IsInt reports whether v holds an integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsChar reports whether v holds a character.
func (v Value) IsChar() bool { return v.kind == KindChar }

// IntVal returns the integer contents. Only meaningful when IsInt.
func (v Value) IntVal() int32 { return v.n }

// CharVal returns the character contents. Only meaningful when IsChar.
func (v Value) CharVal() rune { return v.r }

// Add returns v + o. Defined only for Int + Int; every other combination
// returns ErrIncompatibleTypes.
func (v Value) Add(o Value) (Value, error) {
	if v.kind == KindInt && o.kind == KindInt {
		return Int(v.n + o.n), nil
	}
	return Value{}, ErrIncompatibleTypes
}

// Sub returns v - o. Defined for Int - Int, and for Char - Char which
// yields the Int codepoint distance. Mixed pairs return
// ErrIncompatibleTypes.
func (v Value) Sub(o Value) (Value, error) {
	switch {
	case v.kind == KindInt && o.kind == KindInt:
		return Int(v.n - o.n), nil
	case v.kind == KindChar && o.kind == KindChar:
		return Int(int32(v.r) - int32(o.r)), nil
	}
	return Value{}, ErrIncompatibleTypes
}

// IsZero reports whether v is the integer zero. A Char never satisfies the
// zero test.
func (v Value) IsZero() bool { return v.kind == KindInt && v.n == 0 }

// IsNegative reports whether v is a negative integer. A Char never
// satisfies the negative test.
func (v Value) IsNegative() bool { return v.kind == KindInt && v.n < 0 }

// Equal reports whether two values have the same kind and contents.
func (v Value) Equal(o Value) bool { return v == o }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(int64(v.n), 10)
	case KindChar:
		return string(v.r)
	}
	return "(empty)"
}

// ---------------------------------------------------------------------------
// Encoding: values travel as a bare number or a one-character string, the
// shape problem definition files use. Empty encodes as null.
// ---------------------------------------------------------------------------

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(int64(v.n), 10)), nil
	case KindChar:
		return []byte(strconv.Quote(string(v.r))), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*v = Value{}
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("value: bad character literal %s: %w", s, err)
		}
		return v.setChar(unquoted)
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return fmt.Errorf("value: %s is neither an integer nor a character", s)
	}
	*v = Int(int32(n))
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return cbor.Marshal(int64(v.n))
	case KindChar:
		return cbor.Marshal(string(v.r))
	}
	return cbor.Marshal(nil)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Value{}
		return nil
	case int64:
		*v = Int(int32(x))
		return nil
	case uint64:
		*v = Int(int32(x))
		return nil
	case string:
		return v.setChar(x)
	}
	return fmt.Errorf("value: cannot decode %T", raw)
}

// UnmarshalTOML implements toml.Unmarshaler. TOML has no null, so empty
// cells cannot appear in TOML arrays; sparse memory uses the partial form.
func (v *Value) UnmarshalTOML(raw any) error {
	switch x := raw.(type) {
	case int64:
		*v = Int(int32(x))
		return nil
	case string:
		return v.setChar(x)
	}
	return fmt.Errorf("value: cannot decode TOML %T", raw)
}

func (v *Value) setChar(s string) error {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || r == utf8.RuneError {
		return fmt.Errorf("value: %q is not a single character", s)
	}
	*v = Char(r)
	return nil
}
