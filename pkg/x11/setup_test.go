package x11

import (
	"bytes"
	"errors"
	"testing"

	"xwire/pkg/schema"
	"xwire/pkg/wire"
)

func TestSetupRequestRoundTrip(t *testing.T) {
	v := schema.Value{
		"protocol_major": uint16(11),
		"protocol_minor": uint16(0),
		"auth_name":      "MIT-MAGIC-COOKIE-1",
		"auth_data":      []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
	}

	for _, order := range []wire.ByteOrder{wire.LittleEndian, wire.BigEndian} {
		data, err := EncodeSetupRequest(order, v)
		if err != nil {
			t.Fatal(err)
		}
		if len(data)%wire.Align != 0 {
			t.Fatalf("length %d not aligned", len(data))
		}

		wantFirst := byte(orderByteLittle)
		if order == wire.BigEndian {
			wantFirst = orderByteBig
		}
		if data[0] != wantFirst {
			t.Fatalf("byte-order byte: %#x", data[0])
		}

		n, gotOrder, err := SetupRequestWireLength(data)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(data) {
			t.Fatalf("wire length %d, buffer %d", n, len(data))
		}
		if gotOrder != order {
			t.Fatal("order not recovered from the byte-order byte")
		}

		msg, decOrder, err := DecodeSetupRequest(data, wire.Strict)
		if err != nil {
			t.Fatal(err)
		}
		if decOrder != order {
			t.Fatal("decode picked the wrong order")
		}
		if msg.Kind != KindSetupRequest {
			t.Errorf("kind: %s", msg.Kind)
		}
		if msg.Fields["auth_name"] != "MIT-MAGIC-COOKIE-1" {
			t.Errorf("auth_name: %v", msg.Fields["auth_name"])
		}
		if !bytes.Equal(msg.Fields["auth_data"].([]byte), v["auth_data"].([]byte)) {
			t.Errorf("auth_data: % x", msg.Fields["auth_data"])
		}
		if msg.Fields["protocol_major"] != uint16(11) {
			t.Errorf("protocol_major: %v", msg.Fields["protocol_major"])
		}
	}
}

func TestSetupRequestBadOrderByte(t *testing.T) {
	data := make([]byte, 12)
	data[0] = 'x'
	_, _, err := DecodeSetupRequest(data, wire.Lenient)
	var unknown *wire.UnknownDiscriminantError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownDiscriminantError, got %v", err)
	}
}

func TestSetupFailedRoundTrip(t *testing.T) {
	v := schema.Value{
		"protocol_major": uint16(11),
		"protocol_minor": uint16(0),
		"reason":         "Authentication rejected",
	}
	data, err := EncodeSetupReply(wire.LittleEndian, SetupFailed, v)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := SetupReplyWireLength(data, wire.LittleEndian); n != len(data) {
		t.Fatalf("wire length %d, buffer %d", n, len(data))
	}

	msg, err := DecodeSetupReply(data, wire.LittleEndian, wire.Lenient)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Name != "SetupFailed" || msg.Code != SetupFailed {
		t.Fatalf("decoded %s/%d", msg.Name, msg.Code)
	}
	if msg.Fields["reason"] != "Authentication rejected" {
		t.Errorf("reason: %v", msg.Fields["reason"])
	}
}

func TestSetupAuthenticateRoundTrip(t *testing.T) {
	// 21 bytes, so the encoded reason carries 3 alignment NULs that the
	// decode must not absorb into the field.
	reason := "More authentication??"
	data, err := EncodeSetupReply(wire.LittleEndian, SetupAuthenticate, schema.Value{"reason": reason})
	if err != nil {
		t.Fatal(err)
	}
	if len(data)%wire.Align != 0 {
		t.Fatalf("length %d not aligned", len(data))
	}
	if n, _ := SetupReplyWireLength(data, wire.LittleEndian); n != len(data) {
		t.Fatalf("wire length %d, buffer %d", n, len(data))
	}

	msg, err := DecodeSetupReply(data, wire.LittleEndian, wire.Strict)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Name != "SetupAuthenticate" || msg.Code != SetupAuthenticate {
		t.Fatalf("decoded %s/%d", msg.Name, msg.Code)
	}
	if msg.Fields["reason"] != reason {
		t.Errorf("reason: %q", msg.Fields["reason"])
	}

	again, err := EncodeSetupReply(wire.LittleEndian, SetupAuthenticate, msg.Fields)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("re-encode differs")
	}
}

func TestSetupSuccessRoundTrip(t *testing.T) {
	tail := make([]byte, 48) // opaque pixmap formats and screens
	for i := range tail {
		tail[i] = byte(i)
	}
	v := schema.Value{
		"protocol_major":         uint16(11),
		"protocol_minor":         uint16(0),
		"release_number":         uint32(12101007),
		"resource_id_base":       uint32(0x00400000),
		"resource_id_mask":       uint32(0x003FFFFF),
		"motion_buffer_size":     uint32(256),
		"maximum_request_length": uint16(0xFFFF),
		"roots_count":            uint8(1),
		"pixmap_formats_count":   uint8(2),
		"image_byte_order":       uint8(0),
		"bitmap_bit_order":       uint8(0),
		"bitmap_scanline_unit":   uint8(32),
		"bitmap_scanline_pad":    uint8(32),
		"min_keycode":            uint8(8),
		"max_keycode":            uint8(255),
		"vendor":                 "The X.Org Foundation",
		"tail":                   tail,
	}
	data, err := EncodeSetupReply(wire.BigEndian, SetupSuccess, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(data)%wire.Align != 0 {
		t.Fatalf("length %d not aligned", len(data))
	}
	if n, _ := SetupReplyWireLength(data, wire.BigEndian); n != len(data) {
		t.Fatalf("wire length %d, buffer %d", n, len(data))
	}

	msg, err := DecodeSetupReply(data, wire.BigEndian, wire.Strict)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Name != "SetupSuccess" {
		t.Fatalf("decoded %s", msg.Name)
	}
	if msg.Fields["vendor"] != "The X.Org Foundation" {
		t.Errorf("vendor: %v", msg.Fields["vendor"])
	}
	if msg.Fields["max_keycode"] != uint8(255) {
		t.Errorf("max_keycode: %v", msg.Fields["max_keycode"])
	}
	if !bytes.Equal(msg.Fields["tail"].([]byte), tail) {
		t.Error("tail not preserved")
	}

	// Byte stability across the re-derived length fields.
	again, err := EncodeSetupReply(wire.BigEndian, SetupSuccess, msg.Fields)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("re-encode differs")
	}
}

func TestSetupReplyUnknownStatus(t *testing.T) {
	data := make([]byte, 8)
	data[0] = 9
	_, err := DecodeSetupReply(data, wire.LittleEndian, wire.Lenient)
	var unknown *wire.UnknownDiscriminantError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownDiscriminantError, got %v", err)
	}
	if unknown.Value != 9 {
		t.Errorf("value: %d", unknown.Value)
	}
}
