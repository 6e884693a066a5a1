// Package wire provides the byte-level substrate for the X11 wire
// format: position-tracked read and write cursors over contiguous
// buffers, fixed-width scalar codecs at a per-connection byte order,
// and the 4-byte alignment padding rule.
//
// Cursors are single-pass: all consumption is strictly forward,
// matching the wire protocol. A cursor is created per message
// operation and discarded when the operation completes; cursors are
// never shared between goroutines.
package wire

import "encoding/binary"

// Align is the protocol alignment unit. Every message is padded to a
// multiple of Align bytes and declared-length fields count Align-byte
// units.
const Align = 4

// ByteOrder is the per-connection byte order. The X11 setup request's
// first byte fixes it for the lifetime of the connection; it is never
// a per-field choice.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

var (
	// BigEndian is the byte order selected by a 0x42 ('B') setup byte.
	BigEndian ByteOrder = binary.BigEndian
	// LittleEndian is the byte order selected by a 0x6C ('l') setup byte.
	LittleEndian ByteOrder = binary.LittleEndian
)

// Policy selects how a decoder treats redundant wire data: padding
// bytes and undefined bitmask bits.
type Policy int

const (
	// Lenient ignores nonzero padding and undefined mask bits.
	Lenient Policy = iota
	// Strict rejects nonzero padding (ErrMalformedPadding) and
	// undefined mask bits (InvalidMaskError).
	Strict
)

// Padding returns the number of filler bytes needed to advance pos to
// the next multiple of align.
func Padding(pos, align int) int {
	return (align - pos%align) % align
}
