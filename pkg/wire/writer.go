package wire

// Writer is an append-only write cursor. The buffer grows as needed;
// writes cannot fail. Reserve/Patch support back-patching a
// declared-length header field after the body size is known.
type Writer struct {
	buf   []byte
	order ByteOrder
}

// NewWriter creates an empty write cursor at the given byte order.
func NewWriter(order ByteOrder) *Writer {
	return &Writer{order: order}
}

// Order returns the cursor's byte order.
func (w *Writer) Order() ByteOrder { return w.order }

// Pos returns the number of bytes written so far.
func (w *Writer) Pos() int { return len(w.buf) }

// Bytes returns the encoded buffer. The slice is owned by the Writer
// until the Writer is discarded.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteBytes appends b at the current offset.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Pad appends the zero filler needed to align the cursor to a multiple
// of align. Padding bytes are always written as zero.
func (w *Writer) Pad(align int) {
	w.WriteZeros(Padding(len(w.buf), align))
}

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n int) {
	for ; n > 0; n-- {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = w.order.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = w.order.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buf = w.order.AppendUint64(w.buf, v)
}

func (w *Writer) WriteInt8(v int8)   { w.WriteUint8(uint8(v)) }
func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteBool writes one byte: 1 for true, 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// ReserveUint16 writes a two-byte placeholder and returns its offset
// for a later PatchUint16.
func (w *Writer) ReserveUint16() int {
	off := len(w.buf)
	w.WriteUint16(0)
	return off
}

// ReserveUint32 writes a four-byte placeholder and returns its offset
// for a later PatchUint32.
func (w *Writer) ReserveUint32() int {
	off := len(w.buf)
	w.WriteUint32(0)
	return off
}

// PatchUint16 overwrites a previously reserved two-byte slot.
func (w *Writer) PatchUint16(off int, v uint16) {
	w.order.PutUint16(w.buf[off:off+2], v)
}

// PatchUint32 overwrites a previously reserved four-byte slot.
func (w *Writer) PatchUint32(off int, v uint32) {
	w.order.PutUint32(w.buf[off:off+4], v)
}
