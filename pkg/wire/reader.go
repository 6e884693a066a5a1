package wire

import "fmt"

// Reader is a forward-only read cursor over a byte buffer. It borrows
// the buffer; slices returned by ReadBytes alias it and must be copied
// if retained past the decode call.
type Reader struct {
	buf    []byte
	pos    int
	order  ByteOrder
	policy Policy
}

// NewReader creates a read cursor over buf at the given byte order
// with the Lenient policy.
func NewReader(buf []byte, order ByteOrder) *Reader {
	return &Reader{buf: buf, order: order}
}

// SetPolicy switches the decode policy. The default is Lenient.
func (r *Reader) SetPolicy(p Policy) { r.policy = p }

// Policy returns the active decode policy.
func (r *Reader) Policy() Policy { return r.policy }

// Order returns the cursor's byte order.
func (r *Reader) Order() ByteOrder { return r.order }

// Pos returns the current offset from the start of the buffer.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// ReadBytes returns the next n bytes and advances the cursor.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("read %d bytes at offset %d: %w", n, r.pos, ErrUnexpectedEnd)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without inspecting them.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// Pad consumes the filler bytes needed to align the cursor to a
// multiple of align. Under the Strict policy every filler byte must be
// zero.
func (r *Reader) Pad(align int) error {
	return r.SkipPadding(Padding(r.pos, align))
}

// SkipPadding consumes n filler bytes. Under the Strict policy every
// filler byte must be zero.
func (r *Reader) SkipPadding(n int) error {
	b, err := r.ReadBytes(n)
	if err != nil {
		return err
	}
	if r.policy == Strict {
		for i, c := range b {
			if c != 0 {
				return fmt.Errorf("padding byte at offset %d: %w", r.pos-n+i, ErrMalformedPadding)
			}
		}
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadBool reads one byte; any nonzero value decodes as true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}
