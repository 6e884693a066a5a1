package schema

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"xwire/pkg/codec"
	"xwire/pkg/wire"
)

// countedElements is a body with a computed element count: the count
// is written to the wire but never stored on the decoded value.
func countedElements() *Struct {
	count := codec.NewRole("count")
	return &Struct{Name: "Counted", Elements: []Element{
		&Let{Role: count, Codec: codec.U16, Source: LenOf("elements")},
		&List{Name: "elements", Elem: codec.U32, Count: CountFrom(count)},
		AlignPad{},
	}}
}

func TestCountedListDecode(t *testing.T) {
	// count = 3 as raw 03 00, then three 4-byte elements, then two
	// bytes of padding to the 4-byte boundary.
	buf := []byte{
		0x03, 0x00,
		0xAA, 0xAA, 0xAA, 0xAA,
		0xBB, 0xBB, 0xBB, 0xBB,
		0xCC, 0xCC, 0xCC, 0xCC,
		0x00, 0x00,
	}
	s := countedElements()
	r := wire.NewReader(buf, wire.LittleEndian)
	v, err := s.Decode(r, codec.NewContext(), len(buf))
	if err != nil {
		t.Fatal(err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("%d bytes left", r.Remaining())
	}

	// The count is computed, not part of the public value.
	if _, ok := v["count"]; ok {
		t.Error("count leaked into decoded value")
	}
	want := []any{uint32(0xAAAAAAAA), uint32(0xBBBBBBBB), uint32(0xCCCCCCCC)}
	if diff := cmp.Diff(want, v["elements"]); diff != "" {
		t.Errorf("elements mismatch (-want +got):\n%s", diff)
	}

	// Re-encoding re-derives the count and reproduces the bytes.
	w := wire.NewWriter(wire.LittleEndian)
	if err := s.Encode(w, codec.NewContext(), v); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w.Bytes(), buf) {
		t.Errorf("re-encode:\n got % x\nwant % x", w.Bytes(), buf)
	}
}

func TestCountedListZeroLength(t *testing.T) {
	s := countedElements()
	w := wire.NewWriter(wire.LittleEndian)
	if err := s.Encode(w, codec.NewContext(), Value{"elements": []any{}}); err != nil {
		t.Fatal(err)
	}
	// Count field plus padding only; no element bytes.
	want := []byte{0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("got % x, want % x", w.Bytes(), want)
	}

	r := wire.NewReader(w.Bytes(), wire.LittleEndian)
	v, err := s.Decode(r, codec.NewContext(), len(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got := v["elements"].([]any); len(got) != 0 {
		t.Errorf("got %d elements", len(got))
	}
}

func TestFieldPublish(t *testing.T) {
	// A stored field can feed a later count, like a let element does,
	// while remaining on the decoded value.
	n := codec.NewRole("n")
	s := &Struct{Name: "Stored", Elements: []Element{
		&Field{Name: "n", Codec: codec.U8, Publish: n},
		&BytesField{Name: "payload", Count: CountFrom(n)},
		AlignPad{},
	}}

	buf := []byte{0x02, 0xAB, 0xCD, 0x00}
	r := wire.NewReader(buf, wire.LittleEndian)
	v, err := s.Decode(r, codec.NewContext(), len(buf))
	if err != nil {
		t.Fatal(err)
	}
	if v["n"] != uint8(2) {
		t.Errorf("n: got %v", v["n"])
	}
	if !bytes.Equal(v["payload"].([]byte), []byte{0xAB, 0xCD}) {
		t.Errorf("payload: got % x", v["payload"])
	}
}

func TestMissingLengthContextIsFatal(t *testing.T) {
	// A list whose count role was never published is a schema bug, not
	// a data problem.
	orphan := codec.NewRole("orphan")
	s := &Struct{Name: "Broken", Elements: []Element{
		&List{Name: "xs", Elem: codec.U8, Count: CountFrom(orphan)},
	}}
	r := wire.NewReader([]byte{0x01}, wire.LittleEndian)
	_, err := s.Decode(r, codec.NewContext(), 1)
	if !errors.Is(err, wire.ErrMissingContext) {
		t.Fatalf("want ErrMissingContext, got %v", err)
	}
}

func TestTextRoundTrip(t *testing.T) {
	n := codec.NewRole("n")
	s := &Struct{Name: "Named", Elements: []Element{
		&Let{Role: n, Codec: codec.U16, Source: LenOf("name")},
		&Pad{Bytes: 2},
		&Text{Name: "name", Count: CountFrom(n)},
		AlignPad{},
	}}

	v := Value{"name": "WM_PROTOCOLS"}
	w := wire.NewWriter(wire.BigEndian)
	if err := s.Encode(w, codec.NewContext(), v); err != nil {
		t.Fatal(err)
	}
	if len(w.Bytes())%wire.Align != 0 {
		t.Fatalf("length %d not aligned", len(w.Bytes()))
	}

	r := wire.NewReader(w.Bytes(), wire.BigEndian)
	got, err := s.Decode(r, codec.NewContext(), len(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "WM_PROTOCOLS" {
		t.Errorf("name: got %v", got["name"])
	}
}

func TestNestedScope(t *testing.T) {
	// The nested structure publishes its own count in a child scope;
	// the enclosing structure's identically-named role is untouched.
	innerN := codec.NewRole("n")
	outerN := codec.NewRole("n")

	inner := &Struct{Name: "Inner", Elements: []Element{
		&Let{Role: innerN, Codec: codec.U8, Source: LenOf("data")},
		&BytesField{Name: "data", Count: CountFrom(innerN)},
	}}
	outer := &Struct{Name: "Outer", Elements: []Element{
		&Let{Role: outerN, Codec: codec.U8, Source: LenOf("tail")},
		&Nested{Name: "inner", Struct: inner},
		&BytesField{Name: "tail", Count: CountFrom(outerN)},
	}}

	v := Value{
		"inner": Value{"data": []byte{0xAA, 0xBB, 0xCC}},
		"tail":  []byte{0x01},
	}
	w := wire.NewWriter(wire.LittleEndian)
	if err := outer.Encode(w, codec.NewContext(), v); err != nil {
		t.Fatal(err)
	}

	r := wire.NewReader(w.Bytes(), wire.LittleEndian)
	got, err := outer.Decode(r, codec.NewContext(), len(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	innerGot := got["inner"].(Value)
	if !bytes.Equal(innerGot["data"].([]byte), []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("inner data: % x", innerGot["data"])
	}
	if !bytes.Equal(got["tail"].([]byte), []byte{0x01}) {
		t.Errorf("tail: % x", got["tail"])
	}
}

func TestStructCodecInList(t *testing.T) {
	point := StructCodec{Struct: &Struct{Name: "POINT", Elements: []Element{
		&Field{Name: "x", Codec: codec.I16},
		&Field{Name: "y", Codec: codec.I16},
	}}}

	points := []any{
		Value{"x": int16(1), "y": int16(-2)},
		Value{"x": int16(30), "y": int16(40)},
	}
	w := wire.NewWriter(wire.LittleEndian)
	if err := codec.EncodeList(w, codec.NewContext(), point, points); err != nil {
		t.Fatal(err)
	}
	if w.Pos() != 8 {
		t.Fatalf("two points encoded to %d bytes", w.Pos())
	}

	r := wire.NewReader(w.Bytes(), wire.LittleEndian)
	got, err := codec.DecodeListCount(r, codec.NewContext(), point, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(points, got); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeMissingField(t *testing.T) {
	s := &Struct{Name: "S", Elements: []Element{
		&Field{Name: "x", Codec: codec.U8},
	}}
	w := wire.NewWriter(wire.LittleEndian)
	if err := s.Encode(w, codec.NewContext(), Value{}); err == nil {
		t.Fatal("want error for missing field")
	}
}
