// Package schema describes message layouts declaratively and runs a
// generic runtime codec over them: an ordered list of elements (stored
// fields, let elements, unused bytes, lists, bitmask-optional sets,
// nested structures) is evaluated field by field against a wire cursor
// and a per-message context stack. Hand-written per-message encode
// loops never exist, so padding and context logic cannot diverge
// between messages.
//
// Descriptions are built programmatically or loaded from YAML. The
// message envelope semantics (headers, declared lengths, the metabyte
// position) belong to the x11 package; schema only covers bodies.
package schema

import (
	"fmt"

	"xwire/pkg/codec"
	"xwire/pkg/wire"
)

// Value holds a decoded or to-be-encoded message body: one entry per
// stored field, keyed by field name. Let elements, unused bytes and
// padding never appear; they are re-derived on encode.
type Value map[string]any

// Struct is an ordered list of elements making up a message body or a
// nested structure.
type Struct struct {
	Name     string
	Elements []Element
}

// Encode writes v's fields element by element. Let elements and
// padding are derived, not taken from v.
func (s *Struct) Encode(w *wire.Writer, cx *codec.Context, v Value) error {
	for _, e := range s.Elements {
		if err := e.encode(w, cx, v); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

// Decode reads fields element by element into a new Value. end is the
// absolute end offset of the enclosing message, used by implicit
// length lists and trailing byte fields.
func (s *Struct) Decode(r *wire.Reader, cx *codec.Context, end int) (Value, error) {
	v := make(Value)
	for _, e := range s.Elements {
		if err := e.decode(r, cx, end, v); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return v, nil
}

// Element is one member of a structure layout.
type Element interface {
	encode(w *wire.Writer, cx *codec.Context, v Value) error
	decode(r *wire.Reader, cx *codec.Context, end int, into Value) error
}

// EncodeElement runs one element outside a Struct. Message envelopes
// use it for the metabyte, which lives in the header rather than the
// body.
func EncodeElement(e Element, w *wire.Writer, cx *codec.Context, v Value) error {
	return e.encode(w, cx, v)
}

// DecodeElement is the decode counterpart of EncodeElement.
func DecodeElement(e Element, r *wire.Reader, cx *codec.Context, end int, into Value) error {
	return e.decode(r, cx, end, into)
}

// Source derives a let element's value from the stored fields of the
// structure being encoded.
type Source func(v Value) (uint64, error)

// LenOf derives the element count of a stored list, byte string or
// text field.
func LenOf(field string) Source {
	return func(v Value) (uint64, error) {
		x, ok := v[field]
		if !ok {
			return 0, fmt.Errorf("length source field %q missing", field)
		}
		switch t := x.(type) {
		case []any:
			return uint64(len(t)), nil
		case []byte:
			return uint64(len(t)), nil
		case string:
			return uint64(len(t)), nil
		}
		return 0, fmt.Errorf("length source field %q is %T, want list, bytes or string", field, x)
	}
}

// Const is a fixed-value source.
func Const(n uint64) Source {
	return func(Value) (uint64, error) { return n, nil }
}
