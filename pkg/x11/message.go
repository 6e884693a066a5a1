// Package x11 frames the four core protocol message families
// (requests, replies, events, errors) plus the connection setup
// exchange. It owns everything the schema package deliberately does
// not: header layouts, the metabyte position, declared-length
// back-patching and verification, and opcode/code dispatch.
package x11

import "xwire/pkg/schema"

// Kind identifies a message family.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindReply
	KindEvent
	KindError
	KindSetupRequest
	KindSetupReply
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	case KindEvent:
		return "event"
	case KindError:
		return "error"
	case KindSetupRequest:
		return "setup-request"
	case KindSetupReply:
		return "setup-reply"
	}
	return "unknown"
}

// Message is one decoded protocol message. Fields holds the body's
// stored fields; computed lengths, padding and the mask of an optional
// set never appear (they are re-derived on encode).
type Message struct {
	Kind Kind
	Name string
	// Code is the family discriminant: the major opcode of a request
	// or reply, the event code, or the error code.
	Code uint8
	// Sequence is the low 16 bits of the request sequence number.
	// Zero for requests (clients never send one on the wire).
	Sequence uint16
	// SendEvent is set when an event arrived with the high bit of its
	// code byte set, marking it as synthesized by SendEvent.
	SendEvent bool
	Fields    schema.Value
}
