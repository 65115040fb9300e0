package resp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Type identifies one variant of the Value set.
type Type uint8

const (
	TypeNull Type = iota
	TypeSimpleString
	TypeError
	TypeInteger
	TypeBulkString
	TypeArray
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeSimpleString:
		return "simple_string"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulkString:
		return "bulk_string"
	case TypeArray:
		return "array"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Value is one RESP value. The variant set is closed: only the types in this
// package implement it.
type Value interface {
	Type() Type
	String() string
	value()
}

var (
	_ Value = SimpleString{}
	_ Value = Error{}
	_ Value = Integer(0)
	_ Value = BulkString(nil)
	_ Value = (*Array)(nil)
	_ Value = Null{}
)

// SimpleString is a single-line ASCII string.
type SimpleString struct {
	text string
}

// NewSimpleString validates s as ASCII without CR or LF.
func NewSimpleString(s string) (SimpleString, error) {
	if err := validateLine(s); err != nil {
		return SimpleString{}, fmt.Errorf("simple string: %w", err)
	}
	return SimpleString{text: s}, nil
}

func (s SimpleString) Type() Type     { return TypeSimpleString }
func (s SimpleString) String() string { return s.text }
func (SimpleString) value()           {}

// Error is a server error reply.
type Error struct {
	msg string
}

// NewError validates msg as ASCII without CR or LF.
func NewError(msg string) (Error, error) {
	if err := validateLine(msg); err != nil {
		return Error{}, fmt.Errorf("error: %w", err)
	}
	return Error{msg: msg}, nil
}

func (e Error) Type() Type     { return TypeError }
func (e Error) String() string { return e.msg }
func (Error) value()           {}

// Message returns the full error text.
func (e Error) Message() string { return e.msg }

// Prefix returns the leading error code word, e.g. "ERR" or "WRONGTYPE".
// It is empty when the first word is not all upper case.
func (e Error) Prefix() string {
	word, _, _ := strings.Cut(e.msg, " ")
	if word == "" || strings.ToUpper(word) != word {
		return ""
	}
	return word
}

// Integer is a signed 64-bit integer.
type Integer int64

func (i Integer) Type() Type     { return TypeInteger }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }
func (Integer) value()           {}

// BulkString is a length-prefixed binary-safe string.
type BulkString []byte

func (b BulkString) Type() Type     { return TypeBulkString }
func (b BulkString) String() string { return string(b) }
func (BulkString) value()           {}

// Null is the nil bulk string and the nil array. The two are not
// distinguished once decoded.
type Null struct{}

func (Null) Type() Type     { return TypeNull }
func (Null) String() string { return "NULL" }
func (Null) value()         {}

// Array is an ordered sequence of values. It is the only mutable variant.
type Array struct {
	items []Value
}

// NewArray builds an array from items, rejecting nil entries.
func NewArray(items ...Value) (*Array, error) {
	a := &Array{items: make([]Value, 0, len(items))}
	for i, item := range items {
		if isNil(item) {
			return nil, fmt.Errorf("%w: array item %d is nil", ErrInvalidArgument, i)
		}
		a.items = append(a.items, item)
	}
	return a, nil
}

// Command builds a command array of bulk strings.
func Command(args ...string) *Array {
	a := &Array{items: make([]Value, 0, len(args))}
	for _, arg := range args {
		a.items = append(a.items, BulkString(arg))
	}
	return a
}

func (a *Array) Type() Type { return TypeArray }

func (a *Array) String() string {
	parts := make([]string, 0, a.Len())
	for _, item := range a.Items() {
		parts = append(parts, item.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (*Array) value() {}

func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

// At returns the item at index i. It panics when i is out of range, like a
// slice index.
func (a *Array) At(i int) Value {
	return a.items[i]
}

// Items returns a copy of the item list.
func (a *Array) Items() []Value {
	if a == nil {
		return nil
	}
	out := make([]Value, len(a.items))
	copy(out, a.items)
	return out
}

func (a *Array) Append(v Value) error {
	if isNil(v) {
		return fmt.Errorf("%w: append nil value", ErrInvalidArgument)
	}
	a.items = append(a.items, v)
	return nil
}

func (a *Array) Set(i int, v Value) error {
	if isNil(v) {
		return fmt.Errorf("%w: set nil value", ErrInvalidArgument)
	}
	if i < 0 || i >= len(a.items) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidArgument, i, len(a.items))
	}
	a.items[i] = v
	return nil
}

// isNil reports a nil interface or a nil *Array held in one.
func isNil(v Value) bool {
	if v == nil {
		return true
	}
	a, ok := v.(*Array)
	return ok && a == nil
}

// Equal reports whether a and b are the same variant with equal payloads.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case SimpleString:
		return av.text == b.(SimpleString).text
	case Error:
		return av.msg == b.(Error).msg
	case Integer:
		return av == b.(Integer)
	case BulkString:
		return bytes.Equal(av, b.(BulkString))
	case Null:
		return true
	case *Array:
		bv := b.(*Array)
		if av.Len() != bv.Len() {
			return false
		}
		for i := range av.Len() {
			if !Equal(av.items[i], bv.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func validateLine(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7f {
			return fmt.Errorf("%w: non-ascii byte 0x%02x at %d", ErrInvalidArgument, c, i)
		}
		if c == '\r' || c == '\n' {
			return fmt.Errorf("%w: line break at %d", ErrInvalidArgument, i)
		}
	}
	return nil
}
