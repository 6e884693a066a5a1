package wire

import (
	"errors"
	"fmt"
)

// Decode failure kinds. All of them abort decoding of the current
// message only; callers resynchronize on the next message using the
// declared length when it was decodable.
var (
	// ErrUnexpectedEnd reports a buffer exhausted mid-field. Always a
	// hard decode failure.
	ErrUnexpectedEnd = errors.New("unexpected end of buffer")

	// ErrTrailingData reports an implicit-length sequence or message
	// body that overshot its computed end offset.
	ErrTrailingData = errors.New("data extends past declared end")

	// ErrLengthMismatch reports a declared length that disagrees with
	// the actual decoded size. Usually a peer or protocol-version
	// mismatch.
	ErrLengthMismatch = errors.New("declared length mismatch")

	// ErrMissingContext reports a field that requires a context value
	// that was never published. This is a schema bug, not a runtime
	// condition; schema-level tests should catch it.
	ErrMissingContext = errors.New("missing context value")

	// ErrMalformedPadding reports a nonzero padding byte under the
	// Strict policy.
	ErrMalformedPadding = errors.New("nonzero padding byte")
)

// UnknownDiscriminantError reports a union discriminant with no
// registered variant. It is recoverable: peers may legitimately send
// messages from protocol extensions unknown to this build, and the
// caller can skip the message using its declared length.
type UnknownDiscriminantError struct {
	Value uint64
}

func (e *UnknownDiscriminantError) Error() string {
	return fmt.Sprintf("unknown discriminant %d", e.Value)
}

// InvalidMaskError reports a bitmask bit set for a slot index the
// schema does not define. Raised only under the Strict policy.
type InvalidMaskError struct {
	Bit  uint
	Mask uint64
}

func (e *InvalidMaskError) Error() string {
	return fmt.Sprintf("mask %#x sets undefined bit %d", e.Mask, e.Bit)
}
