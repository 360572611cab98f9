package item

import (
	"bytes"
	"fmt"
	"math"

	"github.com/jacentio/arbor/internal/codec"
)

// ValueKind identifies the scalar type held by a Value.
type ValueKind uint8

const (
	NullValue ValueKind = iota
	StringValue
	IntValue
	BoolValue
	FloatValue
	BytesValue
)

// String returns the lower-case name of the kind.
func (k ValueKind) String() string {
	switch k {
	case NullValue:
		return "null"
	case StringValue:
		return "string"
	case IntValue:
		return "int"
	case BoolValue:
		return "bool"
	case FloatValue:
		return "float"
	case BytesValue:
		return "bytes"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Value is a field scalar. The zero Value is null.
type Value struct {
	v any
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a string Value.
func String(s string) Value { return Value{v: s} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{v: i} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{v: b} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{v: f} }

// Bytes returns a byte string Value. The slice is copied.
func Bytes(b []byte) Value { return Value{v: bytes.Clone(b)} }

// ValueOf converts a decoded scalar into a Value. Unsigned integers that
// fit in an int64 and float32 values are widened; anything outside the
// closed set of scalar kinds is rejected with ErrUnsupportedValue.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(t), nil
	case int64:
		return Int(t), nil
	case int:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: integer %d overflows int64", ErrUnsupportedValue, t)
		}
		return Int(int64(t)), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case []byte:
		return Bytes(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

// Kind reports the scalar type held by v.
func (v Value) Kind() ValueKind {
	switch v.v.(type) {
	case string:
		return StringValue
	case int64:
		return IntValue
	case bool:
		return BoolValue
	case float64:
		return FloatValue
	case []byte:
		return BytesValue
	default:
		return NullValue
	}
}

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.v == nil }

// AsString returns the string held by v, or "" and false.
func (v Value) AsString() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// AsInt returns the integer held by v, or 0 and false.
func (v Value) AsInt() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok
}

// AsBool returns the boolean held by v, or false and false.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

// AsFloat returns the float held by v, or 0 and false.
func (v Value) AsFloat() (float64, bool) {
	f, ok := v.v.(float64)
	return f, ok
}

// AsBytes returns the byte string held by v, or nil and false.
func (v Value) AsBytes() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return b, ok
}

// Interface returns the underlying Go value: nil, string, int64, bool,
// float64 or []byte.
func (v Value) Interface() any { return v.v }

// Equal reports whether v and other hold the same kind and value.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	if b, ok := v.v.([]byte); ok {
		return bytes.Equal(b, other.v.([]byte))
	}
	return v.v == other.v
}

func (v Value) String() string {
	switch t := v.v.(type) {
	case nil:
		return "null"
	case []byte:
		return fmt.Sprintf("%x", t)
	default:
		return fmt.Sprint(t)
	}
}

// MarshalCBOR encodes v as the bare CBOR scalar.
func (v Value) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(v.v)
}

// UnmarshalCBOR decodes a bare CBOR scalar into v.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var x any
	if err := codec.Unmarshal(data, &x); err != nil {
		return err
	}
	decoded, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
