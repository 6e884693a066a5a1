package codec

import (
	"fmt"

	"xwire/pkg/wire"
)

// Variant is one layout of a discriminated union.
type Variant struct {
	Name    string
	Payload Codec
}

// Union encodes and decodes variant layouts selected by a fixed-width
// discriminant. Message-level unions (request opcodes, event codes)
// read their discriminant from the message header instead; they use
// DecodeVariant with the already-read value.
type Union struct {
	// Tag is the discriminant's scalar codec (U8, U16 or U32).
	Tag Codec
	// Variants maps discriminant values to payload layouts.
	Variants map[uint64]Variant
}

// EncodeVariant writes the discriminant, then the payload of the
// selected variant.
func (u *Union) EncodeVariant(w *wire.Writer, cx *Context, tag uint64, payload any) error {
	variant, ok := u.Variants[tag]
	if !ok {
		return fmt.Errorf("encode: %w", &wire.UnknownDiscriminantError{Value: tag})
	}
	if err := EncodeUint(u.Tag, w, cx, tag); err != nil {
		return err
	}
	if err := variant.Payload.Encode(w, cx, payload); err != nil {
		return fmt.Errorf("variant %s: %w", variant.Name, err)
	}
	return nil
}

// Decode reads the discriminant and dispatches to the matching variant.
func (u *Union) Decode(r *wire.Reader, cx *Context) (uint64, any, error) {
	raw, err := u.Tag.Decode(r, cx)
	if err != nil {
		return 0, nil, err
	}
	tag, err := Uint(raw)
	if err != nil {
		return 0, nil, err
	}
	v, err := u.DecodeVariant(r, cx, tag)
	return tag, v, err
}

// Unknown is the catch-all variant: the raw discriminant plus the
// opaque payload bytes of a layout that is not registered. Nothing is
// thrown away, so unrecognized messages can be logged or re-emitted.
type Unknown struct {
	Tag     uint64
	Payload []byte
}

// DecodeVariantUntil dispatches like DecodeVariant but, instead of
// failing on an unmatched discriminant, captures the payload bytes up
// to end as an Unknown value. Callers that know the enclosing declared
// length use this to keep unrecognized variants intact.
func (u *Union) DecodeVariantUntil(r *wire.Reader, cx *Context, tag uint64, end int) (any, error) {
	if variant, ok := u.Variants[tag]; ok {
		v, err := variant.Payload.Decode(r, cx)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", variant.Name, err)
		}
		return v, nil
	}
	if end < r.Pos() {
		return nil, fmt.Errorf("unknown variant %d: end %d behind cursor %d: %w",
			tag, end, r.Pos(), wire.ErrLengthMismatch)
	}
	data, err := r.ReadBytes(end - r.Pos())
	if err != nil {
		return nil, err
	}
	return Unknown{Tag: tag, Payload: append([]byte(nil), data...)}, nil
}

// DecodeVariant dispatches on a discriminant that was already read,
// for message families that carry it in the header. An unmatched
// discriminant is a recoverable *wire.UnknownDiscriminantError; no
// payload bytes are consumed in that case, so the caller can skip the
// message by its declared length.
func (u *Union) DecodeVariant(r *wire.Reader, cx *Context, tag uint64) (any, error) {
	variant, ok := u.Variants[tag]
	if !ok {
		return nil, &wire.UnknownDiscriminantError{Value: tag}
	}
	v, err := variant.Payload.Decode(r, cx)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", variant.Name, err)
	}
	return v, nil
}
