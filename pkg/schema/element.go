package schema

import (
	"bytes"
	"fmt"

	"xwire/pkg/codec"
	"xwire/pkg/wire"
)

// Field is a stored field: it has a runtime value kept on the decoded
// structure. If Publish is set, the decoded value is also pushed onto
// the context stack for later fields of the same message.
type Field struct {
	Name    string
	Codec   codec.Codec
	Publish *codec.Role
}

func (f *Field) encode(w *wire.Writer, cx *codec.Context, v Value) error {
	x, ok := v[f.Name]
	if !ok {
		return fmt.Errorf("field %q missing from value", f.Name)
	}
	if err := f.Codec.Encode(w, cx, x); err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	return nil
}

func (f *Field) decode(r *wire.Reader, cx *codec.Context, _ int, into Value) error {
	x, err := f.Codec.Decode(r, cx)
	if err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	into[f.Name] = x
	if f.Publish != nil {
		n, err := codec.Uint(x)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		cx.Publish(f.Publish, n)
	}
	return nil
}

// Let is a computed field: written to the wire but not retained on the
// decoded structure. On encode its value is derived from stored fields
// by Source; on decode it is read, published under Role for later
// fields to consult, and then discarded.
type Let struct {
	Role   *codec.Role
	Codec  codec.Codec
	Source Source
}

func (l *Let) encode(w *wire.Writer, cx *codec.Context, v Value) error {
	n, err := l.Source(v)
	if err != nil {
		return fmt.Errorf("let %s: %w", l.Role, err)
	}
	if err := codec.EncodeUint(l.Codec, w, cx, n); err != nil {
		return fmt.Errorf("let %s: %w", l.Role, err)
	}
	return nil
}

func (l *Let) decode(r *wire.Reader, cx *codec.Context, _ int, _ Value) error {
	x, err := l.Codec.Decode(r, cx)
	if err != nil {
		return fmt.Errorf("let %s: %w", l.Role, err)
	}
	n, err := codec.Uint(x)
	if err != nil {
		return fmt.Errorf("let %s: %w", l.Role, err)
	}
	cx.Publish(l.Role, n)
	return nil
}

// Pad is a fixed run of unused bytes: written as zeros, skipped on
// decode (verified zero under the Strict policy).
type Pad struct {
	Bytes int
}

func (p *Pad) encode(w *wire.Writer, _ *codec.Context, _ Value) error {
	w.WriteZeros(p.Bytes)
	return nil
}

func (p *Pad) decode(r *wire.Reader, _ *codec.Context, _ int, _ Value) error {
	return r.SkipPadding(p.Bytes)
}

// AlignPad pads the cursor to the protocol alignment unit. Placed
// after every variable-length element, per the alignment contract.
type AlignPad struct{}

func (AlignPad) encode(w *wire.Writer, _ *codec.Context, _ Value) error {
	w.Pad(wire.Align)
	return nil
}

func (AlignPad) decode(r *wire.Reader, _ *codec.Context, _ int, _ Value) error {
	return r.Pad(wire.Align)
}

// CountSpec tells a list-shaped element how many elements (or bytes)
// to decode: a count published on the context stack, a fixed count, or
// "consume until the enclosing message's declared end".
type CountSpec struct {
	role  *codec.Role
	fixed uint64
	kind  countKind
}

type countKind int

const (
	countFromRole countKind = iota
	countFixed
	countToEnd
)

// CountFrom draws the count from a context role published by an
// earlier field or let element.
func CountFrom(role *codec.Role) CountSpec {
	return CountSpec{role: role, kind: countFromRole}
}

// FixedCount is a count fixed by the schema itself.
func FixedCount(n uint64) CountSpec {
	return CountSpec{fixed: n, kind: countFixed}
}

// ToEnd consumes elements until the enclosing declared length is
// exhausted.
func ToEnd() CountSpec {
	return CountSpec{kind: countToEnd}
}

func (c CountSpec) resolve(cx *codec.Context) (uint64, bool, error) {
	switch c.kind {
	case countFromRole:
		n, err := cx.Resolve(c.role)
		return n, false, err
	case countFixed:
		return c.fixed, false, nil
	default:
		return 0, true, nil
	}
}

// List is an ordered sequence of homogeneous elements, stored as
// []any. Zero-length lists are valid and produce no bytes.
type List struct {
	Name  string
	Elem  codec.Codec
	Count CountSpec
}

func (l *List) encode(w *wire.Writer, cx *codec.Context, v Value) error {
	x, ok := v[l.Name]
	if !ok {
		return fmt.Errorf("list %q missing from value", l.Name)
	}
	elems, ok := x.([]any)
	if !ok {
		return fmt.Errorf("list %q is %T, want []any", l.Name, x)
	}
	if err := codec.EncodeList(w, cx, l.Elem, elems); err != nil {
		return fmt.Errorf("list %q: %w", l.Name, err)
	}
	return nil
}

func (l *List) decode(r *wire.Reader, cx *codec.Context, end int, into Value) error {
	n, toEnd, err := l.Count.resolve(cx)
	if err != nil {
		return fmt.Errorf("list %q: %w", l.Name, err)
	}
	var elems []any
	if toEnd {
		elems, err = codec.DecodeListUntil(r, cx, l.Elem, end)
	} else {
		elems, err = codec.DecodeListCount(r, cx, l.Elem, n)
	}
	if err != nil {
		return fmt.Errorf("list %q: %w", l.Name, err)
	}
	if elems == nil {
		elems = []any{}
	}
	into[l.Name] = elems
	return nil
}

// BytesField is a contiguous run of raw bytes, stored as []byte. The
// decode copies out of the cursor's buffer so the value survives the
// decode call.
type BytesField struct {
	Name  string
	Count CountSpec
}

func (b *BytesField) encode(w *wire.Writer, _ *codec.Context, v Value) error {
	x, ok := v[b.Name]
	if !ok {
		return fmt.Errorf("bytes %q missing from value", b.Name)
	}
	data, ok := x.([]byte)
	if !ok {
		return fmt.Errorf("bytes %q is %T, want []byte", b.Name, x)
	}
	w.WriteBytes(data)
	return nil
}

func (b *BytesField) decode(r *wire.Reader, cx *codec.Context, end int, into Value) error {
	data, err := readRaw(r, cx, b.Count, end)
	if err != nil {
		return fmt.Errorf("bytes %q: %w", b.Name, err)
	}
	into[b.Name] = append([]byte(nil), data...)
	return nil
}

// Text is a length-counted byte string stored as a Go string
// (STRING8 in protocol terms).
type Text struct {
	Name  string
	Count CountSpec
	// TrimPadding strips trailing NUL bytes on decode. For strings
	// framed to the message end without their own length field, the
	// alignment padding is indistinguishable from string content; a
	// string that itself ends in NUL cannot survive such a layout.
	TrimPadding bool
}

func (t *Text) encode(w *wire.Writer, _ *codec.Context, v Value) error {
	x, ok := v[t.Name]
	if !ok {
		return fmt.Errorf("text %q missing from value", t.Name)
	}
	s, ok := x.(string)
	if !ok {
		return fmt.Errorf("text %q is %T, want string", t.Name, x)
	}
	w.WriteBytes([]byte(s))
	return nil
}

func (t *Text) decode(r *wire.Reader, cx *codec.Context, end int, into Value) error {
	data, err := readRaw(r, cx, t.Count, end)
	if err != nil {
		return fmt.Errorf("text %q: %w", t.Name, err)
	}
	if t.TrimPadding {
		data = bytes.TrimRight(data, "\x00")
	}
	into[t.Name] = string(data)
	return nil
}

func readRaw(r *wire.Reader, cx *codec.Context, count CountSpec, end int) ([]byte, error) {
	n, toEnd, err := count.resolve(cx)
	if err != nil {
		return nil, err
	}
	if toEnd {
		if r.Pos() > end {
			return nil, fmt.Errorf("cursor at %d past declared end %d: %w", r.Pos(), end, wire.ErrTrailingData)
		}
		return r.ReadBytes(end - r.Pos())
	}
	return r.ReadBytes(int(n))
}

// OptionalSet is a bitmask-gated set of optional slots, stored as a
// map[string]any under Name with one entry per slot (absent slots get
// their defaults).
type OptionalSet struct {
	Name string
	Set  *codec.OptionalSet
}

func (o *OptionalSet) encode(w *wire.Writer, cx *codec.Context, v Value) error {
	x, ok := v[o.Name]
	if !ok {
		return fmt.Errorf("optional set %q missing from value", o.Name)
	}
	var values map[string]any
	switch m := x.(type) {
	case map[string]any:
		values = m
	case Value:
		values = m
	default:
		return fmt.Errorf("optional set %q is %T, want map[string]any", o.Name, x)
	}
	if err := o.Set.Encode(w, cx, values); err != nil {
		return fmt.Errorf("optional set %q: %w", o.Name, err)
	}
	return nil
}

func (o *OptionalSet) decode(r *wire.Reader, cx *codec.Context, _ int, into Value) error {
	values, err := o.Set.Decode(r, cx)
	if err != nil {
		return fmt.Errorf("optional set %q: %w", o.Name, err)
	}
	into[o.Name] = values
	return nil
}

// Nested embeds a sub-structure, stored as a Value under Name. The
// sub-structure decodes in a nested context scope: it can resolve the
// enclosing message's publications, but its own publications vanish
// when it completes.
type Nested struct {
	Name   string
	Struct *Struct
}

func (n *Nested) encode(w *wire.Writer, cx *codec.Context, v Value) error {
	x, ok := v[n.Name]
	if !ok {
		return fmt.Errorf("struct %q missing from value", n.Name)
	}
	inner, ok := x.(Value)
	if !ok {
		return fmt.Errorf("struct %q is %T, want schema.Value", n.Name, x)
	}
	return n.Struct.Encode(w, cx.Enter(), inner)
}

func (n *Nested) decode(r *wire.Reader, cx *codec.Context, end int, into Value) error {
	inner, err := n.Struct.Decode(r, cx.Enter(), end)
	if err != nil {
		return err
	}
	into[n.Name] = inner
	return nil
}

// StructCodec adapts a fixed-shape Struct to codec.Codec so structured
// elements can appear inside lists (LISTofPOINT and the like). The
// adapted struct must not contain ToEnd elements: a list element has
// no declared end of its own.
type StructCodec struct {
	Struct *Struct
}

func (c StructCodec) Name() string { return c.Struct.Name }

func (c StructCodec) Encode(w *wire.Writer, cx *codec.Context, v any) error {
	inner, ok := v.(Value)
	if !ok {
		return fmt.Errorf("%s: value is %T, want schema.Value", c.Struct.Name, v)
	}
	return c.Struct.Encode(w, cx.Enter(), inner)
}

func (c StructCodec) Decode(r *wire.Reader, cx *codec.Context) (any, error) {
	return c.Struct.Decode(r, cx.Enter(), r.Pos()+r.Remaining())
}
