package x11

import (
	"fmt"
	"sort"

	"xwire/pkg/schema"
	"xwire/pkg/wire"
)

// ReplyResolver maps a reply's sequence number to the major opcode of
// the request it answers. Replies carry no opcode on the wire, so
// decoding one requires pairing with the client stream. A nil resolver
// makes every reply an unknown discriminant.
type ReplyResolver func(sequence uint16) (opcode uint8, ok bool)

// Registry maps discriminants to message definitions and drives
// decoding of framed messages. The zero registry is not usable; use
// NewRegistry or Core.
type Registry struct {
	requests map[uint8]*RequestDef
	replies  map[uint8]*ReplyDef
	events   map[uint8]*EventDef
	errors   map[uint8]*ErrorDef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[uint8]*RequestDef),
		replies:  make(map[uint8]*ReplyDef),
		events:   make(map[uint8]*EventDef),
		errors:   make(map[uint8]*ErrorDef),
	}
}

// AddRequest registers a request definition. Duplicate opcodes are
// schema bugs and rejected.
func (g *Registry) AddRequest(d *RequestDef) error {
	if prev, ok := g.requests[d.Opcode]; ok {
		return fmt.Errorf("opcode %d already registered to %s", d.Opcode, prev.Name)
	}
	g.requests[d.Opcode] = d
	return nil
}

// AddReply registers the reply layout for a request opcode.
func (g *Registry) AddReply(d *ReplyDef) error {
	if prev, ok := g.replies[d.Opcode]; ok {
		return fmt.Errorf("reply for opcode %d already registered to %s", d.Opcode, prev.Name)
	}
	g.replies[d.Opcode] = d
	return nil
}

// AddEvent registers an event definition.
func (g *Registry) AddEvent(d *EventDef) error {
	if prev, ok := g.events[d.Code]; ok {
		return fmt.Errorf("event code %d already registered to %s", d.Code, prev.Name)
	}
	g.events[d.Code] = d
	return nil
}

// AddError registers an error code name.
func (g *Registry) AddError(d *ErrorDef) error {
	if prev, ok := g.errors[d.Code]; ok {
		return fmt.Errorf("error code %d already registered to %s", d.Code, prev.Name)
	}
	g.errors[d.Code] = d
	return nil
}

// AddDocument registers every request and event of a loaded schema
// document. Used for extension layouts defined in YAML rather than in
// code.
func (g *Registry) AddDocument(doc *schema.Document) error {
	for _, m := range doc.Requests {
		if m.Code > 0xFF {
			return fmt.Errorf("request %s: opcode %d out of range", m.Name, m.Code)
		}
		d := &RequestDef{Name: m.Name, Opcode: uint8(m.Code), Metabyte: m.Metabyte, Body: m.Body}
		if err := g.AddRequest(d); err != nil {
			return err
		}
	}
	for _, m := range doc.Events {
		if m.Code > 0x7F {
			return fmt.Errorf("event %s: code %d out of range", m.Name, m.Code)
		}
		d := &EventDef{Name: m.Name, Code: uint8(m.Code), Metabyte: m.Metabyte, Body: m.Body}
		if err := g.AddEvent(d); err != nil {
			return err
		}
	}
	return nil
}

// Request looks up a request definition by opcode.
func (g *Registry) Request(opcode uint8) (*RequestDef, bool) {
	d, ok := g.requests[opcode]
	return d, ok
}

// RequestByName looks up a request definition by name.
func (g *Registry) RequestByName(name string) (*RequestDef, bool) {
	for _, d := range g.requests {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Reply looks up the reply definition for a request opcode.
func (g *Registry) Reply(opcode uint8) (*ReplyDef, bool) {
	d, ok := g.replies[opcode]
	return d, ok
}

// Event looks up an event definition by code.
func (g *Registry) Event(code uint8) (*EventDef, bool) {
	d, ok := g.events[code]
	return d, ok
}

// Error looks up an error definition by code.
func (g *Registry) Error(code uint8) (*ErrorDef, bool) {
	d, ok := g.errors[code]
	return d, ok
}

// Names lists every registered message name, sorted, for diagnostics.
func (g *Registry) Names() []string {
	var names []string
	for _, d := range g.requests {
		names = append(names, d.Name)
	}
	for _, d := range g.replies {
		names = append(names, d.Name)
	}
	for _, d := range g.events {
		names = append(names, d.Name)
	}
	for _, d := range g.errors {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// DecodeRequest decodes one framed client request. data must be the
// exact framed slice (RequestWireLength bytes). An unregistered opcode
// is a recoverable *wire.UnknownDiscriminantError.
func (g *Registry) DecodeRequest(data []byte, order wire.ByteOrder, policy wire.Policy) (*Message, error) {
	r := wire.NewReader(data, order)
	r.SetPolicy(policy)
	opcode, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("request opcode: %w", err)
	}
	d, ok := g.requests[opcode]
	if !ok {
		return nil, &wire.UnknownDiscriminantError{Value: uint64(opcode)}
	}
	return d.decodeAfterOpcode(r)
}

// DecodeServerMessage decodes one framed server-to-client message,
// dispatching on the first byte: 0 selects the error layout, 1 a
// reply (resolved to its request opcode via resolve), anything else
// an event. Unregistered codes and unresolvable replies are
// recoverable *wire.UnknownDiscriminantError values.
func (g *Registry) DecodeServerMessage(data []byte, order wire.ByteOrder, policy wire.Policy, resolve ReplyResolver) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("server message: %w", wire.ErrUnexpectedEnd)
	}
	switch data[0] {
	case errorMarker:
		return g.decodeError(data, order, policy)
	case replyMarker:
		return g.decodeReply(data, order, policy, resolve)
	default:
		return g.decodeEvent(data, order, policy)
	}
}

func (g *Registry) decodeReply(data []byte, order wire.ByteOrder, policy wire.Policy, resolve ReplyResolver) (*Message, error) {
	if len(data) < serverHeaderLen {
		return nil, fmt.Errorf("reply header: have %d bytes, want %d: %w",
			len(data), serverHeaderLen, wire.ErrUnexpectedEnd)
	}
	// The definition is needed before the metabyte can be interpreted,
	// so the sequence is peeked out of order here and re-read in
	// stream order by the definition.
	sequence := order.Uint16(data[2:4])
	if resolve == nil {
		return nil, &wire.UnknownDiscriminantError{Value: uint64(sequence)}
	}
	opcode, ok := resolve(sequence)
	if !ok {
		return nil, &wire.UnknownDiscriminantError{Value: uint64(sequence)}
	}
	d, ok := g.replies[opcode]
	if !ok {
		return nil, &wire.UnknownDiscriminantError{Value: uint64(opcode)}
	}

	r := wire.NewReader(data, order)
	r.SetPolicy(policy)
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	return d.decodeAfterMarker(r)
}

func (g *Registry) decodeEvent(data []byte, order wire.ByteOrder, policy wire.Policy) (*Message, error) {
	sendEvent := data[0]&sendEventFlag != 0
	code := data[0] &^ sendEventFlag
	d, ok := g.events[code]
	if !ok {
		return nil, &wire.UnknownDiscriminantError{Value: uint64(code)}
	}
	r := wire.NewReader(data, order)
	r.SetPolicy(policy)
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	return d.decodeAfterCode(r, sendEvent)
}

func (g *Registry) decodeError(data []byte, order wire.ByteOrder, policy wire.Policy) (*Message, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("error header: %w", wire.ErrUnexpectedEnd)
	}
	d, ok := g.errors[data[1]]
	if !ok {
		return nil, &wire.UnknownDiscriminantError{Value: uint64(data[1])}
	}
	r := wire.NewReader(data, order)
	r.SetPolicy(policy)
	if err := r.Skip(2); err != nil {
		return nil, err
	}
	return d.decodeAfterCode(r)
}
