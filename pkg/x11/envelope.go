package x11

import (
	"fmt"

	"xwire/pkg/codec"
	"xwire/pkg/schema"
	"xwire/pkg/wire"
)

const (
	// replyMarker is the first byte of every reply.
	replyMarker = 1
	// errorMarker is the first byte of every error.
	errorMarker = 0

	// replyBaseLen is the minimum reply size. The reply length field
	// counts 4-byte units beyond this base.
	replyBaseLen = 32
	// eventLen is the fixed size of every core event.
	eventLen = 32
	// errorLen is the fixed size of every error.
	errorLen = 32

	// sendEventFlag marks an event as synthesized by SendEvent. It is
	// stripped before code dispatch.
	sendEventFlag = 0x80

	// bigRequestSentinel in the 16-bit request length field means an
	// extended 32-bit unit count follows the header (BIG-REQUESTS).
	bigRequestSentinel = 0

	// requestHeaderLen covers opcode, metabyte and the 16-bit length.
	requestHeaderLen = 4
	// bigRequestHeaderLen adds the extended 32-bit length.
	bigRequestHeaderLen = 8
	// serverHeaderLen covers the marker, metabyte, sequence and, for
	// replies, the 32-bit extra length.
	serverHeaderLen = 8
)

// RequestDef is the wire layout of one request: major opcode, optional
// metabyte element, body structure.
type RequestDef struct {
	Name string
	// Opcode is the major opcode.
	Opcode uint8
	// Metabyte occupies the second header byte. nil leaves it unused:
	// written zero, skipped on decode.
	Metabyte schema.Element
	// Body is the layout after the 4-byte header. nil means no body.
	Body *schema.Struct
}

// Encode produces the full framed request: header, body, padding to
// the 4-byte unit, and the back-patched length field. Requests whose
// padded size exceeds 65535 units take the extended big-request form
// with a zero 16-bit length and a 32-bit unit count after the header.
func (d *RequestDef) Encode(order wire.ByteOrder, v schema.Value) ([]byte, error) {
	w := wire.NewWriter(order)
	cx := codec.NewContext()

	w.WriteUint8(d.Opcode)
	if err := encodeMetabyte(w, cx, d.Metabyte, v); err != nil {
		return nil, fmt.Errorf("%s metabyte: %w", d.Name, err)
	}
	lenOff := w.ReserveUint16()
	if d.Body != nil {
		if err := d.Body.Encode(w, cx, v); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	w.Pad(wire.Align)

	units := w.Pos() / wire.Align
	if units <= 0xFFFF {
		w.PatchUint16(lenOff, uint16(units))
		return w.Bytes(), nil
	}

	// Extended form. Inserting the 32-bit count after the header grows
	// the request by exactly one unit, so body alignment is preserved
	// and the unit count only shifts by one.
	buf := w.Bytes()
	ext := wire.NewWriter(order)
	ext.WriteBytes(buf[:2])
	ext.WriteUint16(bigRequestSentinel)
	ext.WriteUint32(uint32(units + 1))
	ext.WriteBytes(buf[requestHeaderLen:])
	return ext.Bytes(), nil
}

// decodeAfterOpcode picks up right after the registry consumed the
// opcode byte. data framing puts the message start at reader offset 0.
func (d *RequestDef) decodeAfterOpcode(r *wire.Reader) (*Message, error) {
	cx := codec.NewContext()
	fields := make(schema.Value)
	if err := decodeMetabyte(r, cx, d.Metabyte, fields); err != nil {
		return nil, fmt.Errorf("%s metabyte: %w", d.Name, err)
	}

	units16, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%s length: %w", d.Name, err)
	}
	units := int(units16)
	if units16 == bigRequestSentinel {
		ext, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%s extended length: %w", d.Name, err)
		}
		units = int(ext)
	}
	end := units * wire.Align

	if end < r.Pos() {
		return nil, fmt.Errorf("%s: declared length %d bytes ends inside the header: %w",
			d.Name, end, wire.ErrLengthMismatch)
	}
	if total := r.Pos() + r.Remaining(); end > total {
		return nil, fmt.Errorf("%s: declared length %d bytes, have %d: %w",
			d.Name, end, total, wire.ErrUnexpectedEnd)
	}

	if d.Body != nil {
		body, err := d.Body.Decode(r, cx, end)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		for k, v := range body {
			fields[k] = v
		}
	}
	if err := r.Pad(wire.Align); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	if r.Pos() != end {
		return nil, fmt.Errorf("%s: decoded %d bytes, declared %d: %w",
			d.Name, r.Pos(), end, wire.ErrLengthMismatch)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%s: %d bytes after declared end: %w",
			d.Name, r.Remaining(), wire.ErrTrailingData)
	}

	return &Message{Kind: KindRequest, Name: d.Name, Code: d.Opcode, Fields: fields}, nil
}

// ReplyDef is the wire layout of the reply to one request, keyed by
// the request's major opcode (replies carry no opcode on the wire).
type ReplyDef struct {
	Name     string
	Opcode   uint8
	Metabyte schema.Element
	Body     *schema.Struct
}

// Encode produces the full framed reply, zero-filled to the 32-byte
// base length and with the extra-length field back-patched.
func (d *ReplyDef) Encode(order wire.ByteOrder, sequence uint16, v schema.Value) ([]byte, error) {
	w := wire.NewWriter(order)
	cx := codec.NewContext()

	w.WriteUint8(replyMarker)
	if err := encodeMetabyte(w, cx, d.Metabyte, v); err != nil {
		return nil, fmt.Errorf("%s metabyte: %w", d.Name, err)
	}
	w.WriteUint16(sequence)
	lenOff := w.ReserveUint32()
	if d.Body != nil {
		if err := d.Body.Encode(w, cx, v); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	w.Pad(wire.Align)
	if w.Pos() < replyBaseLen {
		w.WriteZeros(replyBaseLen - w.Pos())
	}
	w.PatchUint32(lenOff, uint32((w.Pos()-replyBaseLen)/wire.Align))
	return w.Bytes(), nil
}

// decodeAfterMarker picks up right after the registry consumed the
// reply marker byte.
func (d *ReplyDef) decodeAfterMarker(r *wire.Reader) (*Message, error) {
	cx := codec.NewContext()
	fields := make(schema.Value)
	if err := decodeMetabyte(r, cx, d.Metabyte, fields); err != nil {
		return nil, fmt.Errorf("%s metabyte: %w", d.Name, err)
	}
	sequence, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%s sequence: %w", d.Name, err)
	}
	extra, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%s length: %w", d.Name, err)
	}
	end := replyBaseLen + int(extra)*wire.Align
	if total := r.Pos() + r.Remaining(); end > total {
		return nil, fmt.Errorf("%s: declared length %d bytes, have %d: %w",
			d.Name, end, total, wire.ErrUnexpectedEnd)
	}

	if d.Body != nil {
		body, err := d.Body.Decode(r, cx, end)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		for k, v := range body {
			fields[k] = v
		}
	}
	if err := r.Pad(wire.Align); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	if r.Pos() != end {
		return nil, fmt.Errorf("%s: decoded %d bytes, declared %d: %w",
			d.Name, r.Pos(), end, wire.ErrLengthMismatch)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%s: %d bytes after declared end: %w",
			d.Name, r.Remaining(), wire.ErrTrailingData)
	}

	return &Message{Kind: KindReply, Name: d.Name, Code: d.Opcode, Sequence: sequence, Fields: fields}, nil
}

// EventDef is the wire layout of one event. Core events are exactly
// 32 bytes; the body structure must account for all 28 bytes after
// the header, explicit trailing padding included.
type EventDef struct {
	Name     string
	Code     uint8
	Metabyte schema.Element
	Body     *schema.Struct
}

// Encode produces the full framed 32-byte event.
func (d *EventDef) Encode(order wire.ByteOrder, sequence uint16, sendEvent bool, v schema.Value) ([]byte, error) {
	w := wire.NewWriter(order)
	cx := codec.NewContext()

	code := d.Code
	if sendEvent {
		code |= sendEventFlag
	}
	w.WriteUint8(code)
	if err := encodeMetabyte(w, cx, d.Metabyte, v); err != nil {
		return nil, fmt.Errorf("%s metabyte: %w", d.Name, err)
	}
	w.WriteUint16(sequence)
	if d.Body != nil {
		if err := d.Body.Encode(w, cx, v); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	if w.Pos() != eventLen {
		return nil, fmt.Errorf("%s: body encodes to %d bytes, want %d", d.Name, w.Pos(), eventLen)
	}
	return w.Bytes(), nil
}

func (d *EventDef) decodeAfterCode(r *wire.Reader, sendEvent bool) (*Message, error) {
	cx := codec.NewContext()
	fields := make(schema.Value)
	if err := decodeMetabyte(r, cx, d.Metabyte, fields); err != nil {
		return nil, fmt.Errorf("%s metabyte: %w", d.Name, err)
	}
	sequence, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%s sequence: %w", d.Name, err)
	}

	if total := r.Pos() + r.Remaining(); total < eventLen {
		return nil, fmt.Errorf("%s: have %d bytes, want %d: %w",
			d.Name, total, eventLen, wire.ErrUnexpectedEnd)
	}
	if d.Body != nil {
		body, err := d.Body.Decode(r, cx, eventLen)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		for k, v := range body {
			fields[k] = v
		}
	}
	if r.Pos() != eventLen {
		return nil, fmt.Errorf("%s: decoded %d bytes, want %d: %w",
			d.Name, r.Pos(), eventLen, wire.ErrLengthMismatch)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%s: %d bytes after event end: %w",
			d.Name, r.Remaining(), wire.ErrTrailingData)
	}

	return &Message{
		Kind:      KindEvent,
		Name:      d.Name,
		Code:      d.Code,
		Sequence:  sequence,
		SendEvent: sendEvent,
		Fields:    fields,
	}, nil
}

// ErrorDef names one error code. All errors share a single 32-byte
// layout, so a definition carries no body of its own.
type ErrorDef struct {
	Name string
	Code uint8
}

// errorBody is the layout shared by every error after the marker,
// error code and sequence: 4 bytes of code-specific data, then the
// failing request's minor and major opcodes.
var errorBody = &schema.Struct{Name: "Error", Elements: []schema.Element{
	&schema.Field{Name: "data", Codec: codec.U32},
	&schema.Field{Name: "minor_opcode", Codec: codec.U16},
	&schema.Field{Name: "major_opcode", Codec: codec.U8},
	&schema.Pad{Bytes: 21},
}}

// Encode produces the full framed 32-byte error.
func (d *ErrorDef) Encode(order wire.ByteOrder, sequence uint16, v schema.Value) ([]byte, error) {
	w := wire.NewWriter(order)
	w.WriteUint8(errorMarker)
	w.WriteUint8(d.Code)
	w.WriteUint16(sequence)
	if err := errorBody.Encode(w, codec.NewContext(), v); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	return w.Bytes(), nil
}

func (d *ErrorDef) decodeAfterCode(r *wire.Reader) (*Message, error) {
	sequence, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%s sequence: %w", d.Name, err)
	}
	fields, err := errorBody.Decode(r, codec.NewContext(), errorLen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	if r.Pos() != errorLen {
		return nil, fmt.Errorf("%s: decoded %d bytes, want %d: %w",
			d.Name, r.Pos(), errorLen, wire.ErrLengthMismatch)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%s: %d bytes after error end: %w",
			d.Name, r.Remaining(), wire.ErrTrailingData)
	}
	return &Message{Kind: KindError, Name: d.Name, Code: d.Code, Sequence: sequence, Fields: fields}, nil
}

func encodeMetabyte(w *wire.Writer, cx *codec.Context, el schema.Element, v schema.Value) error {
	if el == nil {
		w.WriteZeros(1)
		return nil
	}
	before := w.Pos()
	if err := schema.EncodeElement(el, w, cx, v); err != nil {
		return err
	}
	if w.Pos()-before != 1 {
		return fmt.Errorf("metabyte element wrote %d bytes, want 1", w.Pos()-before)
	}
	return nil
}

func decodeMetabyte(r *wire.Reader, cx *codec.Context, el schema.Element, into schema.Value) error {
	if el == nil {
		// An unused metabyte may carry garbage from some servers, so
		// it is skipped without the strict zero check.
		return r.Skip(1)
	}
	before := r.Pos()
	if err := schema.DecodeElement(el, r, cx, before+1, into); err != nil {
		return err
	}
	if r.Pos()-before != 1 {
		return fmt.Errorf("metabyte element read %d bytes, want 1", r.Pos()-before)
	}
	return nil
}

// RequestWireLength reports the framed size in bytes of the request
// starting at data[0], reading only the header. It needs 4 bytes, or
// 8 for the extended big-request form.
func RequestWireLength(data []byte, order wire.ByteOrder) (int, error) {
	if len(data) < requestHeaderLen {
		return 0, fmt.Errorf("request header: have %d bytes, want %d: %w",
			len(data), requestHeaderLen, wire.ErrUnexpectedEnd)
	}
	units := int(order.Uint16(data[2:4]))
	if units != bigRequestSentinel {
		return units * wire.Align, nil
	}
	if len(data) < bigRequestHeaderLen {
		return 0, fmt.Errorf("extended request header: have %d bytes, want %d: %w",
			len(data), bigRequestHeaderLen, wire.ErrUnexpectedEnd)
	}
	ext := int(order.Uint32(data[4:8]))
	if ext*wire.Align < bigRequestHeaderLen {
		return 0, fmt.Errorf("extended request length %d units: %w", ext, wire.ErrLengthMismatch)
	}
	return ext * wire.Align, nil
}

// ServerWireLength reports the framed size in bytes of the server
// message starting at data[0]. Events and errors are fixed at 32
// bytes; replies add their declared extra length. It needs 8 bytes.
func ServerWireLength(data []byte, order wire.ByteOrder) (int, error) {
	if len(data) < serverHeaderLen {
		return 0, fmt.Errorf("server header: have %d bytes, want %d: %w",
			len(data), serverHeaderLen, wire.ErrUnexpectedEnd)
	}
	if data[0] != replyMarker {
		return eventLen, nil
	}
	extra := int(order.Uint32(data[4:8]))
	return replyBaseLen + extra*wire.Align, nil
}
