package schema

import (
	"bytes"
	"testing"

	"xwire/pkg/codec"
	"xwire/pkg/wire"
)

const sampleSchema = `
requests:
  - name: InternAtom
    opcode: 16
    metabyte: {field: {name: only_if_exists, type: bool}}
    body:
      - let: {name: name_len, type: u16, len_of: name}
      - pad: {bytes: 2}
      - text: {name: name, count_from: name_len}
      - align: {}
  - name: ChangeHosts
    opcode: 109
    metabyte: {field: {name: mode, type: u8}}
    body:
      - field: {name: family, type: u8}
      - pad: {bytes: 1}
      - field: {name: address_len, type: u16}
      - bytes: {name: address, count_from: address_len}
      - align: {}
events:
  - name: MappingNotify
    code: 34
    body:
      - field: {name: request, type: u8}
      - field: {name: first_keycode, type: u8}
      - field: {name: count, type: u8}
      - pad: {bytes: 25}
`

func TestParseSampleSchema(t *testing.T) {
	doc, err := Parse([]byte(sampleSchema))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Requests) != 2 || len(doc.Events) != 1 {
		t.Fatalf("got %d requests, %d events", len(doc.Requests), len(doc.Events))
	}

	ia := doc.Requests[0]
	if ia.Name != "InternAtom" || ia.Code != 16 {
		t.Errorf("first request: %s/%d", ia.Name, ia.Code)
	}
	if ia.Metabyte == nil {
		t.Error("InternAtom metabyte missing")
	}

	ev := doc.Events[0]
	if ev.Name != "MappingNotify" || ev.Code != 34 {
		t.Errorf("event: %s/%d", ev.Name, ev.Code)
	}
	if ev.Metabyte != nil {
		t.Error("MappingNotify metabyte should be unused")
	}
}

func TestLoadedLayoutRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(sampleSchema))
	if err != nil {
		t.Fatal(err)
	}
	body := doc.Requests[0].Body

	v := Value{"name": "UTF8_STRING"}
	w := wire.NewWriter(wire.LittleEndian)
	if err := body.Encode(w, codec.NewContext(), v); err != nil {
		t.Fatal(err)
	}
	// let(2) + pad(2) + 11 name bytes + 1 pad = 16
	if len(w.Bytes()) != 16 {
		t.Fatalf("encoded %d bytes, want 16", len(w.Bytes()))
	}

	r := wire.NewReader(w.Bytes(), wire.LittleEndian)
	got, err := body.Decode(r, codec.NewContext(), len(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "UTF8_STRING" {
		t.Errorf("name: got %v", got["name"])
	}
	if _, ok := got["name_len"]; ok {
		t.Error("let element leaked into value")
	}
}

func TestStoredFieldAsCount(t *testing.T) {
	// ChangeHosts sizes its address by a stored field, not a let; the
	// field must appear on the decoded value and still feed the count.
	doc, err := Parse([]byte(sampleSchema))
	if err != nil {
		t.Fatal(err)
	}
	body := doc.Requests[1].Body

	v := Value{
		"family":      uint8(0),
		"address_len": uint16(4),
		"address":     []byte{10, 0, 0, 1},
	}
	w := wire.NewWriter(wire.BigEndian)
	if err := body.Encode(w, codec.NewContext(), v); err != nil {
		t.Fatal(err)
	}

	r := wire.NewReader(w.Bytes(), wire.BigEndian)
	got, err := body.Decode(r, codec.NewContext(), len(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got["address_len"] != uint16(4) {
		t.Errorf("address_len: got %v", got["address_len"])
	}
	if !bytes.Equal(got["address"].([]byte), []byte{10, 0, 0, 1}) {
		t.Errorf("address: % x", got["address"])
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no name", `requests: [{opcode: 1, body: []}]`},
		{"no opcode", `requests: [{name: X, body: []}]`},
		{"dangling count_from", `
requests:
  - name: X
    opcode: 1
    body:
      - list: {name: xs, type: u8, count_from: nowhere}
`},
		{"count_from and to_end", `
requests:
  - name: X
    opcode: 1
    body:
      - let: {name: n, type: u8, len_of: xs}
      - list: {name: xs, type: u8, count_from: n, to_end: true}
`},
		{"wide metabyte", `
requests:
  - name: X
    opcode: 1
    metabyte: {field: {name: n, type: u32}}
    body: []
`},
		{"unknown scalar", `
requests:
  - name: X
    opcode: 1
    body:
      - field: {name: n, type: f32}
`},
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c.doc)); err == nil {
			t.Errorf("%s: want parse error", c.name)
		}
	}
}
