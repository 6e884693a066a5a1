// Package stream frames and decodes one direction of a captured
// connection byte stream. The scanner cuts the stream into messages by
// their declared lengths, decodes what it can, and resynchronizes at
// the next message boundary when a message is unknown or malformed.
package stream

import (
	"errors"
	"fmt"
	"io"

	"xwire/internal/metrics"
	"xwire/pkg/wire"
	"xwire/pkg/x11"
)

// Direction tells the scanner which message families to expect.
type Direction int

const (
	// ClientToServer streams carry requests.
	ClientToServer Direction = iota
	// ServerToClient streams carry replies, events and errors.
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client-to-server"
	}
	return "server-to-client"
}

// Record is one framed message from the stream. Either Message or Err
// is set; Raw always holds the framed bytes so callers can hex-dump
// what failed to decode.
type Record struct {
	// Offset is the message's start offset in the scanned stream.
	Offset  int
	Raw     []byte
	Message *x11.Message
	// Err is the decode failure for this frame. The scanner already
	// advanced past the frame; scanning can continue.
	Err error
}

// Scanner walks one direction of a connection stream.
type Scanner struct {
	buf    []byte
	pos    int
	order  wire.ByteOrder
	policy wire.Policy

	reg     *x11.Registry
	dir     Direction
	resolve x11.ReplyResolver

	// expectSetup marks the stream as starting with the connection
	// setup exchange rather than mid-connection.
	expectSetup bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPolicy selects the decode policy; the default is Lenient.
func WithPolicy(p wire.Policy) Option {
	return func(s *Scanner) { s.policy = p }
}

// WithReplyResolver supplies the sequence-to-opcode pairing needed to
// decode replies. Without one every reply is an unknown discriminant.
func WithReplyResolver(r x11.ReplyResolver) Option {
	return func(s *Scanner) { s.resolve = r }
}

// WithSetupPrefix tells the scanner the stream starts at connection
// open: the first message is the setup request (client side) or setup
// reply (server side). On the client side the setup request's
// byte-order byte overrides the configured order for the rest of the
// stream.
func WithSetupPrefix() Option {
	return func(s *Scanner) { s.expectSetup = true }
}

// NewScanner scans buf as one direction of a connection.
func NewScanner(buf []byte, order wire.ByteOrder, reg *x11.Registry, dir Direction, opts ...Option) *Scanner {
	s := &Scanner{buf: buf, order: order, policy: wire.Lenient, reg: reg, dir: dir}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Order reports the scanner's current byte order. After a setup
// request has been scanned this is the order the connection selected.
func (s *Scanner) Order() wire.ByteOrder { return s.order }

// Pos reports the stream offset of the next unscanned byte.
func (s *Scanner) Pos() int { return s.pos }

// Next returns the next framed message. A frame that fails to decode
// comes back as a Record with Err set; scanning continues at the next
// boundary. io.EOF signals a clean end at a message boundary. A
// truncated final message is an error wrapping wire.ErrUnexpectedEnd:
// without its full declared length there is no next boundary to
// resynchronize at.
func (s *Scanner) Next() (*Record, error) {
	if s.pos >= len(s.buf) {
		return nil, io.EOF
	}
	start := s.pos
	rest := s.buf[start:]

	if s.expectSetup {
		return s.nextSetup(start, rest)
	}

	var (
		n   int
		err error
	)
	if s.dir == ClientToServer {
		n, err = x11.RequestWireLength(rest, s.order)
	} else {
		n, err = x11.ServerWireLength(rest, s.order)
	}
	if err != nil {
		return nil, fmt.Errorf("frame at offset %d: %w", start, err)
	}
	if n <= 0 || start+n > len(s.buf) {
		return nil, fmt.Errorf("frame at offset %d: declared %d bytes, have %d: %w",
			start, n, len(s.buf)-start, wire.ErrUnexpectedEnd)
	}
	raw := s.buf[start : start+n]
	s.pos = start + n
	metrics.AddBytesScanned(int64(n))

	var msg *x11.Message
	if s.dir == ClientToServer {
		msg, err = s.reg.DecodeRequest(raw, s.order, s.policy)
	} else {
		msg, err = s.reg.DecodeServerMessage(raw, s.order, s.policy, s.resolve)
	}
	return s.record(start, raw, msg, err), nil
}

func (s *Scanner) nextSetup(start int, rest []byte) (*Record, error) {
	var (
		n   int
		msg *x11.Message
		err error
	)
	if s.dir == ClientToServer {
		var order wire.ByteOrder
		n, order, err = x11.SetupRequestWireLength(rest)
		if err != nil {
			return nil, fmt.Errorf("setup request at offset %d: %w", start, err)
		}
		if start+n > len(s.buf) {
			return nil, fmt.Errorf("setup request at offset %d: declared %d bytes, have %d: %w",
				start, n, len(s.buf)-start, wire.ErrUnexpectedEnd)
		}
		s.order = order
		msg, _, err = x11.DecodeSetupRequest(s.buf[start:start+n], s.policy)
	} else {
		n, err = x11.SetupReplyWireLength(rest, s.order)
		if err != nil {
			return nil, fmt.Errorf("setup reply at offset %d: %w", start, err)
		}
		if start+n > len(s.buf) {
			return nil, fmt.Errorf("setup reply at offset %d: declared %d bytes, have %d: %w",
				start, n, len(s.buf)-start, wire.ErrUnexpectedEnd)
		}
		msg, err = x11.DecodeSetupReply(s.buf[start:start+n], s.order, s.policy)
	}

	raw := s.buf[start : start+n]
	s.pos = start + n
	s.expectSetup = false
	metrics.AddBytesScanned(int64(n))
	return s.record(start, raw, msg, err), nil
}

func (s *Scanner) record(offset int, raw []byte, msg *x11.Message, err error) *Record {
	metrics.IncRecords()
	if err != nil {
		var unknown *wire.UnknownDiscriminantError
		if errors.As(err, &unknown) {
			metrics.IncUnknown()
		} else {
			metrics.IncDecodeErrors()
		}
		return &Record{Offset: offset, Raw: raw, Err: err}
	}
	metrics.IncDecoded(msg.Kind.String())
	return &Record{Offset: offset, Raw: raw, Message: msg}
}

// ScanAll drains the scanner, returning every record. Truncation of
// the final message surfaces as the returned error alongside the
// records scanned before it.
func ScanAll(s *Scanner) ([]*Record, error) {
	var records []*Record
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
