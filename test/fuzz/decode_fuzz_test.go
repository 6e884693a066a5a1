package fuzz

import (
	"reflect"
	"testing"

	"xwire/pkg/schema"
	"xwire/pkg/wire"
	"xwire/pkg/x11"
)

func orderFor(big bool) wire.ByteOrder {
	if big {
		return wire.BigEndian
	}
	return wire.LittleEndian
}

// FuzzDecodeRequest feeds arbitrary framed bytes to the request decoder.
// Decoding must never panic, and any successfully decoded request must
// re-encode and decode again to the same fields. Byte-for-byte stability
// does not hold in general: decoding fills bitmask defaults in, so the
// re-encoded form may carry more mask bits than the input.
func FuzzDecodeRequest(f *testing.F) {
	reg := x11.Core()

	seed := func(opcode uint8, v schema.Value) {
		def, _ := reg.Request(opcode)
		for _, big := range []bool{false, true} {
			if data, err := def.Encode(orderFor(big), v); err == nil {
				f.Add(data, big)
			}
		}
	}
	seed(x11.OpInternAtom, schema.Value{"only_if_exists": false, "name": "WM_NAME"})
	seed(x11.OpGetGeometry, schema.Value{"drawable": uint32(0x2A)})
	seed(x11.OpConfigureWindow, schema.Value{
		"window":  uint32(1),
		"changes": schema.Value{"x": int32(-5), "stack_mode": uint32(0)},
	})
	seed(x11.OpPolyLine, schema.Value{
		"drawable": uint32(1), "gc": uint32(2), "coordinate_mode": uint8(0),
		"points": []any{schema.Value{"x": int16(0), "y": int16(0)}},
	})

	// Malformed headers
	f.Add([]byte{}, false)
	f.Add([]byte{16}, false)
	// Big-request sentinel with no extended length word.
	f.Add([]byte{16, 0, 0, 0}, false)
	// Declares far beyond the buffer.
	f.Add([]byte{16, 0, 0xFF, 0xFF}, false)
	// Unknown opcode.
	f.Add([]byte{0xFF, 0, 1, 0}, true)
	f.Add([]byte{12, 0, 2, 0, 0, 0, 0, 0}, false)

	f.Fuzz(func(t *testing.T, data []byte, big bool) {
		order := orderFor(big)

		msg, err := reg.DecodeRequest(data, order, wire.Strict)
		if err != nil {
			// Lenient mode may still accept it; it must not panic.
			_, _ = reg.DecodeRequest(data, order, wire.Lenient)
			return
		}

		def, ok := reg.Request(msg.Code)
		if !ok {
			t.Fatalf("decoded unregistered opcode %d", msg.Code)
		}
		again, err := def.Encode(order, msg.Fields)
		if err != nil {
			t.Fatalf("re-encode of strict-decoded %s: %v", msg.Name, err)
		}
		msg2, err := reg.DecodeRequest(again, order, wire.Strict)
		if err != nil {
			t.Fatalf("decode of re-encoded %s: %v", msg.Name, err)
		}
		if !reflect.DeepEqual(msg.Fields, msg2.Fields) {
			t.Fatalf("%s fields drift across a round trip:\n %v\n %v", msg.Name, msg.Fields, msg2.Fields)
		}
	})
}

// FuzzDecodeServerMessage covers the reply, event and error decoders.
func FuzzDecodeServerMessage(f *testing.F) {
	reg := x11.Core()
	resolve := func(seq uint16) (uint8, bool) {
		// Every sequence maps to GetGeometry so fuzzed replies have a
		// definition to decode against.
		return x11.OpGetGeometry, true
	}

	eventDef, _ := reg.Event(x11.EvKeyPress)
	if data, err := eventDef.Encode(wire.LittleEndian, 7, false, schema.Value{
		"detail": uint8(38), "time": uint32(1000),
		"root": uint32(1), "event": uint32(2), "child": uint32(0),
		"root_x": int16(10), "root_y": int16(20),
		"event_x": int16(1), "event_y": int16(2),
		"state": uint16(0), "same_screen": true,
	}); err == nil {
		f.Add(data, false)
	}
	errDef, _ := reg.Error(x11.ErrCodeWindow)
	if data, err := errDef.Encode(wire.BigEndian, 9, schema.Value{
		"data": uint32(0x5), "minor_opcode": uint16(0), "major_opcode": uint8(x11.OpGetGeometry),
	}); err == nil {
		f.Add(data, true)
	}
	replyDef, _ := reg.Reply(x11.OpGetGeometry)
	if data, err := replyDef.Encode(wire.LittleEndian, 3, schema.Value{
		"depth": uint8(24), "root": uint32(1),
		"x": int16(0), "y": int16(0),
		"width": uint16(100), "height": uint16(100), "border_width": uint16(1),
	}); err == nil {
		f.Add(data, false)
	}

	// Error marker with code 0.
	f.Add(make([]byte, 32), false)
	// Reply declaring no extra length.
	f.Add(append([]byte{1}, make([]byte, 31)...), false)
	// Truncated sent event.
	f.Add([]byte{0x80 | 12}, true)

	f.Fuzz(func(t *testing.T, data []byte, big bool) {
		order := orderFor(big)
		_, _ = reg.DecodeServerMessage(data, order, wire.Lenient, resolve)
		_, _ = reg.DecodeServerMessage(data, order, wire.Strict, nil)
	})
}

// FuzzSetupDecode covers both sides of the connection setup exchange.
func FuzzSetupDecode(f *testing.F) {
	if data, err := x11.EncodeSetupRequest(wire.LittleEndian, schema.Value{
		"protocol_major": uint16(11), "protocol_minor": uint16(0),
		"auth_name": "MIT-MAGIC-COOKIE-1", "auth_data": make([]byte, 16),
	}); err == nil {
		f.Add(data, false)
	}
	if data, err := x11.EncodeSetupReply(wire.BigEndian, x11.SetupFailed, schema.Value{
		"protocol_major": uint16(11), "protocol_minor": uint16(0),
		"reason": "no",
	}); err == nil {
		f.Add(data, true)
	}
	f.Add([]byte{0x42}, true)
	f.Add([]byte{0x6C, 0, 11, 0, 0, 0, 0, 0, 0, 0, 0, 0}, false)
	f.Add(make([]byte, 8), false)

	f.Fuzz(func(t *testing.T, data []byte, big bool) {
		order := orderFor(big)
		_, _, _ = x11.DecodeSetupRequest(data, wire.Lenient)
		_, _, _ = x11.DecodeSetupRequest(data, wire.Strict)
		_, _ = x11.DecodeSetupReply(data, order, wire.Lenient)
	})
}
