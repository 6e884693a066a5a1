package codec

import (
	"fmt"

	"xwire/pkg/wire"
)

// EncodeList writes each element in order with elem. The wire format
// carries no separator; element boundaries are recovered from fixed or
// context-derived sizes.
func EncodeList(w *wire.Writer, cx *Context, elem Codec, values []any) error {
	for i, v := range values {
		if err := elem.Encode(w, cx, v); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// DecodeListCount decodes exactly count elements. The count usually
// comes from the context stack (a count field or let element decoded
// earlier in the message).
func DecodeListCount(r *wire.Reader, cx *Context, elem Codec, count uint64) ([]any, error) {
	values := make([]any, 0, listPrealloc(r, count))
	for i := uint64(0); i < count; i++ {
		v, err := elem.Decode(r, cx)
		if err != nil {
			return nil, fmt.Errorf("element %d of %d: %w", i, count, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// DecodeListUntil decodes elements until the cursor reaches the
// absolute end offset, normally the enclosing message's declared end.
// Landing past end is ErrTrailingData. A cursor already at end yields
// an empty list.
func DecodeListUntil(r *wire.Reader, cx *Context, elem Codec, end int) ([]any, error) {
	var values []any
	for r.Pos() < end {
		v, err := elem.Decode(r, cx)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", len(values), err)
		}
		if r.Pos() > end {
			return nil, fmt.Errorf("element %d ends at offset %d, declared end %d: %w",
				len(values), r.Pos(), end, wire.ErrTrailingData)
		}
		values = append(values, v)
	}
	return values, nil
}

// listPrealloc caps list preallocation by the bytes actually left in
// the buffer, so a hostile count cannot force a huge allocation before
// ErrUnexpectedEnd surfaces.
func listPrealloc(r *wire.Reader, count uint64) int {
	if count > uint64(r.Remaining()) {
		return r.Remaining()
	}
	return int(count)
}
