package schema

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"xwire/pkg/codec"
)

// Message is one message layout produced by the definition layer: a
// discriminant code, an optional metabyte element, and the body
// structure. Envelope interpretation of the code (request opcode,
// event code) belongs to the caller.
type Message struct {
	Name     string
	Code     uint64
	Metabyte Element // nil means the metabyte position is unused
	Body     *Struct
}

// Document is a set of message layouts loaded from one schema file.
type Document struct {
	Requests []*Message
	Events   []*Message
}

// LoadFile reads and parses a YAML schema file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return doc, nil
}

// Parse builds message layouts from YAML schema text.
//
// Example:
//
//	requests:
//	  - name: InternAtom
//	    opcode: 16
//	    metabyte: {field: {name: only_if_exists, type: bool}}
//	    body:
//	      - let: {name: name_len, type: u16, len_of: name}
//	      - pad: {bytes: 2}
//	      - text: {name: name, count_from: name_len}
//	      - align: {}
func Parse(data []byte) (*Document, error) {
	var raw yamlDoc
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	doc := &Document{}
	for _, m := range raw.Requests {
		msg, err := buildMessage(m, m.Opcode)
		if err != nil {
			return nil, fmt.Errorf("request %q: %w", m.Name, err)
		}
		doc.Requests = append(doc.Requests, msg)
	}
	for _, m := range raw.Events {
		msg, err := buildMessage(m, m.Code)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", m.Name, err)
		}
		doc.Events = append(doc.Events, msg)
	}
	return doc, nil
}

type yamlDoc struct {
	Requests []yamlMessage `yaml:"requests"`
	Events   []yamlMessage `yaml:"events"`
}

type yamlMessage struct {
	Name     string        `yaml:"name"`
	Opcode   *uint64       `yaml:"opcode"`
	Code     *uint64       `yaml:"code"`
	Metabyte *yamlElement  `yaml:"metabyte"`
	Body     []yamlElement `yaml:"body"`
}

type yamlElement struct {
	Field    *yamlField    `yaml:"field"`
	Let      *yamlLet      `yaml:"let"`
	Pad      *yamlPad      `yaml:"pad"`
	Align    *struct{}     `yaml:"align"`
	List     *yamlList     `yaml:"list"`
	Bytes    *yamlRaw      `yaml:"bytes"`
	Text     *yamlRaw      `yaml:"text"`
	Optional *yamlOptional `yaml:"optional"`
}

type yamlField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlLet struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	LenOf string `yaml:"len_of"`
}

type yamlPad struct {
	Bytes int `yaml:"bytes"`
}

type yamlList struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	CountFrom string `yaml:"count_from"`
	ToEnd     bool   `yaml:"to_end"`
}

type yamlRaw struct {
	Name      string `yaml:"name"`
	CountFrom string `yaml:"count_from"`
	ToEnd     bool   `yaml:"to_end"`
}

type yamlOptional struct {
	Name     string     `yaml:"name"`
	MaskBits int        `yaml:"mask_bits"`
	Slots    []yamlSlot `yaml:"slots"`
}

type yamlSlot struct {
	Bit     uint    `yaml:"bit"`
	Name    string  `yaml:"name"`
	Type    string  `yaml:"type"`
	Default *uint64 `yaml:"default"`
}

func buildMessage(m yamlMessage, code *uint64) (*Message, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("message has no name")
	}
	if code == nil {
		return nil, fmt.Errorf("message has no opcode/code")
	}

	// Roles are allocated per message: one per let element, plus one
	// per stored field referenced by a count_from.
	roles := make(map[string]*codec.Role)
	referenced := make(map[string]bool)
	for _, e := range m.Body {
		if e.List != nil && e.List.CountFrom != "" {
			referenced[e.List.CountFrom] = true
		}
		if e.Bytes != nil && e.Bytes.CountFrom != "" {
			referenced[e.Bytes.CountFrom] = true
		}
		if e.Text != nil && e.Text.CountFrom != "" {
			referenced[e.Text.CountFrom] = true
		}
	}
	for _, e := range m.Body {
		switch {
		case e.Let != nil:
			roles[e.Let.Name] = codec.NewRole(e.Let.Name)
		case e.Field != nil && referenced[e.Field.Name]:
			roles[e.Field.Name] = codec.NewRole(e.Field.Name)
		}
	}
	for name := range referenced {
		if roles[name] == nil {
			return nil, fmt.Errorf("count_from %q names no let element or stored field", name)
		}
	}

	var elements []Element
	for i, e := range m.Body {
		el, err := buildElement(e, roles)
		if err != nil {
			return nil, fmt.Errorf("body element %d: %w", i, err)
		}
		elements = append(elements, el)
	}

	msg := &Message{
		Name: m.Name,
		Code: *code,
		Body: &Struct{Name: m.Name, Elements: elements},
	}

	if m.Metabyte != nil {
		el, err := buildElement(*m.Metabyte, roles)
		if err != nil {
			return nil, fmt.Errorf("metabyte: %w", err)
		}
		if err := checkMetabyte(el); err != nil {
			return nil, err
		}
		msg.Metabyte = el
	}
	return msg, nil
}

// checkMetabyte rejects elements that do not occupy exactly one byte:
// the metabyte is a single reserved header position.
func checkMetabyte(el Element) error {
	switch e := el.(type) {
	case *Field:
		if w := scalarWidth(e.Codec); w != 1 {
			return fmt.Errorf("metabyte field %q is %d bytes, want 1", e.Name, w)
		}
	case *Let:
		if w := scalarWidth(e.Codec); w != 1 {
			return fmt.Errorf("metabyte let %s is %d bytes, want 1", e.Role, w)
		}
	case *Pad:
		if e.Bytes != 1 {
			return fmt.Errorf("metabyte pad is %d bytes, want 1", e.Bytes)
		}
	default:
		return fmt.Errorf("metabyte element must be a field, let or pad")
	}
	return nil
}

func scalarWidth(c codec.Codec) int {
	switch c.Name() {
	case "u8", "i8", "bool":
		return 1
	case "u16", "i16":
		return 2
	case "u32", "i32":
		return 4
	case "u64", "i64":
		return 8
	}
	return 0
}

func buildElement(e yamlElement, roles map[string]*codec.Role) (Element, error) {
	switch {
	case e.Field != nil:
		c, err := scalarByName(e.Field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Field.Name, err)
		}
		return &Field{Name: e.Field.Name, Codec: c, Publish: roles[e.Field.Name]}, nil

	case e.Let != nil:
		c, err := scalarByName(e.Let.Type)
		if err != nil {
			return nil, fmt.Errorf("let %q: %w", e.Let.Name, err)
		}
		if e.Let.LenOf == "" {
			return nil, fmt.Errorf("let %q: missing len_of source", e.Let.Name)
		}
		return &Let{Role: roles[e.Let.Name], Codec: c, Source: LenOf(e.Let.LenOf)}, nil

	case e.Pad != nil:
		if e.Pad.Bytes <= 0 {
			return nil, fmt.Errorf("pad: bytes must be positive")
		}
		return &Pad{Bytes: e.Pad.Bytes}, nil

	case e.Align != nil:
		return AlignPad{}, nil

	case e.List != nil:
		c, err := scalarByName(e.List.Type)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", e.List.Name, err)
		}
		count, err := countSpec(e.List.CountFrom, e.List.ToEnd, roles)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", e.List.Name, err)
		}
		return &List{Name: e.List.Name, Elem: c, Count: count}, nil

	case e.Bytes != nil:
		count, err := countSpec(e.Bytes.CountFrom, e.Bytes.ToEnd, roles)
		if err != nil {
			return nil, fmt.Errorf("bytes %q: %w", e.Bytes.Name, err)
		}
		return &BytesField{Name: e.Bytes.Name, Count: count}, nil

	case e.Text != nil:
		count, err := countSpec(e.Text.CountFrom, e.Text.ToEnd, roles)
		if err != nil {
			return nil, fmt.Errorf("text %q: %w", e.Text.Name, err)
		}
		return &Text{Name: e.Text.Name, Count: count}, nil

	case e.Optional != nil:
		slots := make([]codec.MaskSlot, 0, len(e.Optional.Slots))
		for _, s := range e.Optional.Slots {
			c, err := scalarByName(s.Type)
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", s.Name, err)
			}
			def := uint64(0)
			if s.Default != nil {
				def = *s.Default
			}
			dv, err := defaultFor(c, def)
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", s.Name, err)
			}
			slots = append(slots, codec.MaskSlot{Bit: s.Bit, Name: s.Name, Codec: c, Default: dv})
		}
		set, err := codec.NewOptionalSet(e.Optional.MaskBits, slots)
		if err != nil {
			return nil, fmt.Errorf("optional %q: %w", e.Optional.Name, err)
		}
		return &OptionalSet{Name: e.Optional.Name, Set: set}, nil
	}
	return nil, fmt.Errorf("element has no recognized kind")
}

func countSpec(from string, toEnd bool, roles map[string]*codec.Role) (CountSpec, error) {
	switch {
	case toEnd && from != "":
		return CountSpec{}, fmt.Errorf("count_from and to_end are mutually exclusive")
	case toEnd:
		return ToEnd(), nil
	case from != "":
		role, ok := roles[from]
		if !ok {
			return CountSpec{}, fmt.Errorf("count_from %q names no let element or stored field", from)
		}
		return CountFrom(role), nil
	}
	return CountSpec{}, fmt.Errorf("missing count_from or to_end")
}

func scalarByName(name string) (codec.Codec, error) {
	switch name {
	case "u8":
		return codec.U8, nil
	case "u16":
		return codec.U16, nil
	case "u32":
		return codec.U32, nil
	case "u64":
		return codec.U64, nil
	case "i8":
		return codec.I8, nil
	case "i16":
		return codec.I16, nil
	case "i32":
		return codec.I32, nil
	case "i64":
		return codec.I64, nil
	case "bool":
		return codec.Bool, nil
	}
	return nil, fmt.Errorf("unknown scalar type %q", name)
}

// defaultFor converts a schema-level default (an unsigned literal)
// into the slot codec's in-memory type.
func defaultFor(c codec.Codec, n uint64) (any, error) {
	switch c.Name() {
	case "u8":
		return uint8(n), nil
	case "u16":
		return uint16(n), nil
	case "u32":
		return uint32(n), nil
	case "u64":
		return n, nil
	case "i8":
		return int8(n), nil
	case "i16":
		return int16(n), nil
	case "i32":
		return int32(n), nil
	case "i64":
		return int64(n), nil
	case "bool":
		return n != 0, nil
	}
	return nil, fmt.Errorf("no default for codec %s", c.Name())
}
