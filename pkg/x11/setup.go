package x11

import (
	"fmt"

	"xwire/pkg/codec"
	"xwire/pkg/schema"
	"xwire/pkg/wire"
)

// Byte-order bytes opening a connection. The first byte of the setup
// request fixes the byte order of everything that follows on the
// connection.
const (
	orderByteBig    = 0x42 // 'B'
	orderByteLittle = 0x6C // 'l'
)

// Setup reply status codes.
const (
	SetupFailed       = 0
	SetupSuccess      = 1
	SetupAuthenticate = 2
)

// setupHeaderLen covers a setup reply's status byte through its
// additional-data length field.
const setupHeaderLen = 8

// setupRequestHeaderLen covers the fixed part of the setup request,
// through the second unused padding field.
const setupRequestHeaderLen = 12

// SetupRequestWireLength reports the framed size in bytes of the setup
// request starting at data[0], along with the byte order its first
// byte selects. An unrecognized byte-order byte is an unknown
// discriminant; without it the request cannot even be framed.
func SetupRequestWireLength(data []byte) (int, wire.ByteOrder, error) {
	if len(data) < setupRequestHeaderLen {
		return 0, nil, fmt.Errorf("setup request header: have %d bytes, want %d: %w",
			len(data), setupRequestHeaderLen, wire.ErrUnexpectedEnd)
	}
	var order wire.ByteOrder
	switch data[0] {
	case orderByteBig:
		order = wire.BigEndian
	case orderByteLittle:
		order = wire.LittleEndian
	default:
		return 0, nil, &wire.UnknownDiscriminantError{Value: uint64(data[0])}
	}
	pad := func(n int) int { return n + wire.Padding(n, wire.Align) }
	nameLen := int(order.Uint16(data[6:8]))
	dataLen := int(order.Uint16(data[8:10]))
	return setupRequestHeaderLen + pad(nameLen) + pad(dataLen), order, nil
}

var setupRequestBody = func() *schema.Struct {
	nameLen := codec.NewRole("auth_name_len")
	dataLen := codec.NewRole("auth_data_len")
	return &schema.Struct{Name: "SetupRequest", Elements: []schema.Element{
		&schema.Pad{Bytes: 1},
		&schema.Field{Name: "protocol_major", Codec: codec.U16},
		&schema.Field{Name: "protocol_minor", Codec: codec.U16},
		&schema.Let{Role: nameLen, Codec: codec.U16, Source: schema.LenOf("auth_name")},
		&schema.Let{Role: dataLen, Codec: codec.U16, Source: schema.LenOf("auth_data")},
		&schema.Pad{Bytes: 2},
		&schema.Text{Name: "auth_name", Count: schema.CountFrom(nameLen)},
		schema.AlignPad{},
		&schema.BytesField{Name: "auth_data", Count: schema.CountFrom(dataLen)},
		schema.AlignPad{},
	}}
}()

// EncodeSetupRequest produces the connection-opening request. The
// byte-order byte is derived from order, so the same Value encodes to
// either wire form.
func EncodeSetupRequest(order wire.ByteOrder, v schema.Value) ([]byte, error) {
	w := wire.NewWriter(order)
	switch order {
	case wire.BigEndian:
		w.WriteUint8(orderByteBig)
	case wire.LittleEndian:
		w.WriteUint8(orderByteLittle)
	default:
		return nil, fmt.Errorf("setup request: unsupported byte order %v", order)
	}
	if err := setupRequestBody.Encode(w, codec.NewContext(), v); err != nil {
		return nil, fmt.Errorf("setup request: %w", err)
	}
	return w.Bytes(), nil
}

// DecodeSetupRequest decodes the connection-opening request and
// reports the byte order it selects for the rest of the connection.
// An unrecognized byte-order byte is an unknown discriminant.
func DecodeSetupRequest(data []byte, policy wire.Policy) (*Message, wire.ByteOrder, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("setup request: %w", wire.ErrUnexpectedEnd)
	}
	var order wire.ByteOrder
	switch data[0] {
	case orderByteBig:
		order = wire.BigEndian
	case orderByteLittle:
		order = wire.LittleEndian
	default:
		return nil, nil, &wire.UnknownDiscriminantError{Value: uint64(data[0])}
	}

	r := wire.NewReader(data, order)
	r.SetPolicy(policy)
	if err := r.Skip(1); err != nil {
		return nil, nil, err
	}
	fields, err := setupRequestBody.Decode(r, codec.NewContext(), len(data))
	if err != nil {
		return nil, nil, fmt.Errorf("setup request: %w", err)
	}
	if r.Remaining() != 0 {
		return nil, nil, fmt.Errorf("setup request: %d trailing bytes: %w", r.Remaining(), wire.ErrTrailingData)
	}
	return &Message{Kind: KindSetupRequest, Name: "SetupRequest", Fields: fields}, order, nil
}

// paddedUnitsOf is a length source reporting len(field) rounded up to
// the alignment unit, in 4-byte units.
func paddedUnitsOf(field string) schema.Source {
	inner := schema.LenOf(field)
	return func(v schema.Value) (uint64, error) {
		n, err := inner(v)
		if err != nil {
			return 0, err
		}
		return (n + uint64(wire.Align) - 1) / uint64(wire.Align), nil
	}
}

var setupFailedBody = func() *schema.Struct {
	reasonLen := codec.NewRole("reason_len")
	adLen := codec.NewRole("ad_len")
	return &schema.Struct{Name: "SetupFailed", Elements: []schema.Element{
		&schema.Let{Role: reasonLen, Codec: codec.U8, Source: schema.LenOf("reason")},
		&schema.Field{Name: "protocol_major", Codec: codec.U16},
		&schema.Field{Name: "protocol_minor", Codec: codec.U16},
		&schema.Let{Role: adLen, Codec: codec.U16, Source: paddedUnitsOf("reason")},
		&schema.Text{Name: "reason", Count: schema.CountFrom(reasonLen)},
		schema.AlignPad{},
	}}
}()

var setupSuccessBody = func() *schema.Struct {
	adLen := codec.NewRole("ad_len")
	vendorLen := codec.NewRole("vendor_len")
	// The additional-data length counts everything after the 8-byte
	// setup header in 4-byte units: 32 fixed bytes, the padded vendor
	// string, and the opaque pixmap-format and screen tail.
	adSource := func(v schema.Value) (uint64, error) {
		vendor, err := schema.LenOf("vendor")(v)
		if err != nil {
			return 0, err
		}
		tail, err := schema.LenOf("tail")(v)
		if err != nil {
			return 0, err
		}
		if tail%uint64(wire.Align) != 0 {
			return 0, fmt.Errorf("tail length %d is not 4-byte aligned", tail)
		}
		padded := (vendor + uint64(wire.Align) - 1) / uint64(wire.Align) * uint64(wire.Align)
		return (32 + padded + tail) / uint64(wire.Align), nil
	}
	return &schema.Struct{Name: "SetupSuccess", Elements: []schema.Element{
		&schema.Pad{Bytes: 1},
		&schema.Field{Name: "protocol_major", Codec: codec.U16},
		&schema.Field{Name: "protocol_minor", Codec: codec.U16},
		&schema.Let{Role: adLen, Codec: codec.U16, Source: adSource},
		&schema.Field{Name: "release_number", Codec: codec.U32},
		&schema.Field{Name: "resource_id_base", Codec: codec.U32},
		&schema.Field{Name: "resource_id_mask", Codec: codec.U32},
		&schema.Field{Name: "motion_buffer_size", Codec: codec.U32},
		&schema.Let{Role: vendorLen, Codec: codec.U16, Source: schema.LenOf("vendor")},
		&schema.Field{Name: "maximum_request_length", Codec: codec.U16},
		&schema.Field{Name: "roots_count", Codec: codec.U8},
		&schema.Field{Name: "pixmap_formats_count", Codec: codec.U8},
		&schema.Field{Name: "image_byte_order", Codec: codec.U8},
		&schema.Field{Name: "bitmap_bit_order", Codec: codec.U8},
		&schema.Field{Name: "bitmap_scanline_unit", Codec: codec.U8},
		&schema.Field{Name: "bitmap_scanline_pad", Codec: codec.U8},
		&schema.Field{Name: "min_keycode", Codec: codec.U8},
		&schema.Field{Name: "max_keycode", Codec: codec.U8},
		&schema.Pad{Bytes: 4},
		&schema.Text{Name: "vendor", Count: schema.CountFrom(vendorLen)},
		schema.AlignPad{},
		// Pixmap formats and screens, kept opaque. Decoding them needs
		// nothing the core layouts do not already exercise, and tools
		// rarely look past the vendor string.
		&schema.BytesField{Name: "tail", Count: schema.ToEnd()},
	}}
}()

var setupAuthenticateBody = func() *schema.Struct {
	adLen := codec.NewRole("ad_len")
	// Unlike the Failed reply, Authenticate carries no reason length,
	// only the padded additional-data count. Trailing NULs are trimmed
	// on decode so the alignment padding does not leak into the field;
	// a reason that itself ends in NUL cannot survive this layout.
	return &schema.Struct{Name: "SetupAuthenticate", Elements: []schema.Element{
		&schema.Pad{Bytes: 5},
		&schema.Let{Role: adLen, Codec: codec.U16, Source: paddedUnitsOf("reason")},
		&schema.Text{Name: "reason", Count: schema.ToEnd(), TrimPadding: true},
		schema.AlignPad{},
	}}
}()

// SetupReplyWireLength reports the framed size in bytes of the setup
// reply starting at data[0]. It needs the 8-byte setup header.
func SetupReplyWireLength(data []byte, order wire.ByteOrder) (int, error) {
	if len(data) < setupHeaderLen {
		return 0, fmt.Errorf("setup reply header: have %d bytes, want %d: %w",
			len(data), setupHeaderLen, wire.ErrUnexpectedEnd)
	}
	return setupHeaderLen + int(order.Uint16(data[6:8]))*wire.Align, nil
}

// EncodeSetupReply produces a framed setup reply for the given status.
func EncodeSetupReply(order wire.ByteOrder, status uint8, v schema.Value) ([]byte, error) {
	var body *schema.Struct
	switch status {
	case SetupFailed:
		body = setupFailedBody
	case SetupSuccess:
		body = setupSuccessBody
	case SetupAuthenticate:
		body = setupAuthenticateBody
	default:
		return nil, fmt.Errorf("setup reply: %w", &wire.UnknownDiscriminantError{Value: uint64(status)})
	}
	w := wire.NewWriter(order)
	w.WriteUint8(status)
	if err := body.Encode(w, codec.NewContext(), v); err != nil {
		return nil, fmt.Errorf("%s: %w", body.Name, err)
	}
	return w.Bytes(), nil
}

// DecodeSetupReply decodes a framed setup reply, dispatching on the
// status byte. data must be the exact framed slice
// (SetupReplyWireLength bytes).
func DecodeSetupReply(data []byte, order wire.ByteOrder, policy wire.Policy) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("setup reply: %w", wire.ErrUnexpectedEnd)
	}
	var body *schema.Struct
	switch data[0] {
	case SetupFailed:
		body = setupFailedBody
	case SetupSuccess:
		body = setupSuccessBody
	case SetupAuthenticate:
		body = setupAuthenticateBody
	default:
		return nil, &wire.UnknownDiscriminantError{Value: uint64(data[0])}
	}

	end, err := SetupReplyWireLength(data, order)
	if err != nil {
		return nil, err
	}
	if end > len(data) {
		return nil, fmt.Errorf("%s: declared length %d bytes, have %d: %w",
			body.Name, end, len(data), wire.ErrUnexpectedEnd)
	}

	r := wire.NewReader(data, order)
	r.SetPolicy(policy)
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	fields, err := body.Decode(r, codec.NewContext(), end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", body.Name, err)
	}
	if r.Pos() != end {
		return nil, fmt.Errorf("%s: decoded %d bytes, declared %d: %w",
			body.Name, r.Pos(), end, wire.ErrLengthMismatch)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%s: %d bytes after declared end: %w",
			body.Name, r.Remaining(), wire.ErrTrailingData)
	}
	return &Message{Kind: KindSetupReply, Name: body.Name, Code: data[0], Fields: fields}, nil
}
