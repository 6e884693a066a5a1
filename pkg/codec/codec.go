// Package codec composes the wire primitives into the building blocks
// of X11 message bodies: a per-message context stack for fields whose
// size or count depends on earlier fields, ordered sequences with
// explicit or implicit lengths, discriminated unions, and
// bitmask-gated optional field sets.
//
// A Codec encodes and decodes one value. Values are dynamically typed
// (any) because message schemas are composed at runtime; each concrete
// codec documents the Go type it produces and accepts. Scalar codecs
// decode to the minimal Go type that losslessly holds the declared
// wire range.
package codec

import (
	"fmt"
	"math"

	"xwire/pkg/wire"
)

// Codec encodes and decodes a single value. Decode may consult the
// context stack for values published by earlier fields of the same
// message.
type Codec interface {
	Encode(w *wire.Writer, cx *Context, v any) error
	Decode(r *wire.Reader, cx *Context) (any, error)

	// Name identifies the codec in diagnostics and schema dumps.
	Name() string
}

// Scalar codecs. Each is a stateless singleton.
var (
	U8   Codec = scalarCodec{"u8"}
	U16  Codec = scalarCodec{"u16"}
	U32  Codec = scalarCodec{"u32"}
	U64  Codec = scalarCodec{"u64"}
	I8   Codec = scalarCodec{"i8"}
	I16  Codec = scalarCodec{"i16"}
	I32  Codec = scalarCodec{"i32"}
	I64  Codec = scalarCodec{"i64"}
	Bool Codec = scalarCodec{"bool"}
)

type scalarCodec struct {
	name string
}

func (c scalarCodec) Name() string { return c.name }

func (c scalarCodec) Encode(w *wire.Writer, _ *Context, v any) error {
	switch c.name {
	case "u8":
		n, err := asUint(v, math.MaxUint8)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteUint8(uint8(n))
	case "u16":
		n, err := asUint(v, math.MaxUint16)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteUint16(uint16(n))
	case "u32":
		n, err := asUint(v, math.MaxUint32)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteUint32(uint32(n))
	case "u64":
		n, err := asUint(v, math.MaxUint64)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteUint64(n)
	case "i8":
		n, err := asInt(v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteInt8(int8(n))
	case "i16":
		n, err := asInt(v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteInt16(int16(n))
	case "i32":
		n, err := asInt(v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteInt32(int32(n))
	case "i64":
		n, err := asInt(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		w.WriteInt64(n)
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("bool: value is %T, want bool", v)
		}
		w.WriteBool(b)
	}
	return nil
}

func (c scalarCodec) Decode(r *wire.Reader, _ *Context) (any, error) {
	switch c.name {
	case "u8":
		return r.ReadUint8()
	case "u16":
		return r.ReadUint16()
	case "u32":
		return r.ReadUint32()
	case "u64":
		return r.ReadUint64()
	case "i8":
		return r.ReadInt8()
	case "i16":
		return r.ReadInt16()
	case "i32":
		return r.ReadInt32()
	case "i64":
		return r.ReadInt64()
	case "bool":
		return r.ReadBool()
	}
	panic("unreachable scalar codec " + c.name)
}

// asUint widens any unsigned or non-negative integer value to uint64,
// rejecting values outside [0, max].
func asUint(v any, max uint64) (uint64, error) {
	var n uint64
	switch x := v.(type) {
	case uint8:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint32:
		n = uint64(x)
	case uint64:
		n = x
	case uint:
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, fmt.Errorf("value %d is negative", x)
		}
		n = uint64(x)
	default:
		return 0, fmt.Errorf("value is %T, want unsigned integer", v)
	}
	if n > max {
		return 0, fmt.Errorf("value %d exceeds field range %d", n, max)
	}
	return n, nil
}

// asInt widens any signed integer value to int64, rejecting values
// outside [min, max].
func asInt(v any, min, max int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	default:
		return 0, fmt.Errorf("value is %T, want signed integer", v)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("value %d outside field range [%d, %d]", n, min, max)
	}
	return n, nil
}

// EncodeUint encodes n with an unsigned scalar codec, narrowing to the
// codec's declared width. Used for counts, sizes and discriminants
// whose in-memory form is uint64.
func EncodeUint(c Codec, w *wire.Writer, cx *Context, n uint64) error {
	switch c.Name() {
	case "u8":
		if n > math.MaxUint8 {
			return fmt.Errorf("value %d exceeds u8 range", n)
		}
		return c.Encode(w, cx, uint8(n))
	case "u16":
		if n > math.MaxUint16 {
			return fmt.Errorf("value %d exceeds u16 range", n)
		}
		return c.Encode(w, cx, uint16(n))
	case "u32":
		if n > math.MaxUint32 {
			return fmt.Errorf("value %d exceeds u32 range", n)
		}
		return c.Encode(w, cx, uint32(n))
	case "u64":
		return c.Encode(w, cx, n)
	case "bool":
		return c.Encode(w, cx, n != 0)
	}
	return fmt.Errorf("codec %s cannot carry an unsigned value", c.Name())
}

// Uint widens a decoded scalar to uint64 for use as a count, size or
// discriminant. Booleans map to 0 and 1.
func Uint(v any) (uint64, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int8, int16, int32, int64, int:
		n, err := asInt(v, 0, math.MaxInt64)
		return uint64(n), err
	}
	return asUint(v, math.MaxUint64)
}
