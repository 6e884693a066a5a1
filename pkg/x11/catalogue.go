package x11

import (
	"xwire/pkg/codec"
	"xwire/pkg/schema"
)

// Major opcodes of the core requests in the built-in catalogue.
const (
	OpCreateWindow    = 1
	OpConfigureWindow = 12
	OpGetGeometry     = 14
	OpInternAtom      = 16
	OpPolyLine        = 65
)

// Core event codes in the built-in catalogue.
const (
	EvKeyPress = 2
	EvExpose   = 12
)

// Core error codes.
const (
	ErrCodeRequest        = 1
	ErrCodeValue          = 2
	ErrCodeWindow         = 3
	ErrCodePixmap         = 4
	ErrCodeAtom           = 5
	ErrCodeCursor         = 6
	ErrCodeFont           = 7
	ErrCodeMatch          = 8
	ErrCodeDrawable       = 9
	ErrCodeAccess         = 10
	ErrCodeAlloc          = 11
	ErrCodeColormap       = 12
	ErrCodeGContext       = 13
	ErrCodeIDChoice       = 14
	ErrCodeName           = 15
	ErrCodeLength         = 16
	ErrCodeImplementation = 17
)

// Point is the 4-byte POINT structure, usable as a list element.
var Point = schema.StructCodec{Struct: &schema.Struct{
	Name: "POINT",
	Elements: []schema.Element{
		&schema.Field{Name: "x", Codec: codec.I16},
		&schema.Field{Name: "y", Codec: codec.I16},
	},
}}

// Core returns a registry preloaded with the built-in catalogue: a
// representative slice of the core protocol exercising every layout
// shape (bitmask-optional sets, counted and implicit-length lists,
// metabyte fields, structured list elements, replies, events,
// errors).
func Core() *Registry {
	g := NewRegistry()
	must := func(err error) {
		if err != nil {
			// Static definitions below; a failure here is a bug in
			// this file, not in input data.
			panic(err)
		}
	}

	must(g.AddRequest(createWindow()))
	must(g.AddRequest(configureWindow()))
	must(g.AddRequest(getGeometry()))
	must(g.AddReply(getGeometryReply()))
	must(g.AddRequest(internAtom()))
	must(g.AddReply(internAtomReply()))
	must(g.AddRequest(polyLine()))

	must(g.AddEvent(keyPress()))
	must(g.AddEvent(expose()))

	for code, name := range map[uint8]string{
		ErrCodeRequest:        "Request",
		ErrCodeValue:          "Value",
		ErrCodeWindow:         "Window",
		ErrCodePixmap:         "Pixmap",
		ErrCodeAtom:           "Atom",
		ErrCodeCursor:         "Cursor",
		ErrCodeFont:           "Font",
		ErrCodeMatch:          "Match",
		ErrCodeDrawable:       "Drawable",
		ErrCodeAccess:         "Access",
		ErrCodeAlloc:          "Alloc",
		ErrCodeColormap:       "Colormap",
		ErrCodeGContext:       "GContext",
		ErrCodeIDChoice:       "IDChoice",
		ErrCodeName:           "Name",
		ErrCodeLength:         "Length",
		ErrCodeImplementation: "Implementation",
	} {
		must(g.AddError(&ErrorDef{Name: name, Code: code}))
	}

	return g
}

func createWindow() *RequestDef {
	// Window attribute VALUEs are each carried in 4 bytes regardless
	// of their logical width. Defaults follow the protocol's documented
	// attribute defaults.
	attrs := &codec.OptionalSet{MaskBits: 32, Slots: []codec.MaskSlot{
		{Bit: 0, Name: "background_pixmap", Codec: codec.U32, Default: uint32(0)},
		{Bit: 1, Name: "background_pixel", Codec: codec.U32, Default: uint32(0)},
		{Bit: 2, Name: "border_pixmap", Codec: codec.U32, Default: uint32(0)},
		{Bit: 3, Name: "border_pixel", Codec: codec.U32, Default: uint32(0)},
		{Bit: 4, Name: "bit_gravity", Codec: codec.U32, Default: uint32(0)},
		{Bit: 5, Name: "win_gravity", Codec: codec.U32, Default: uint32(1)},
		{Bit: 6, Name: "backing_store", Codec: codec.U32, Default: uint32(0)},
		{Bit: 7, Name: "backing_planes", Codec: codec.U32, Default: uint32(0xFFFFFFFF)},
		{Bit: 8, Name: "backing_pixel", Codec: codec.U32, Default: uint32(0)},
		{Bit: 9, Name: "override_redirect", Codec: codec.U32, Default: uint32(0)},
		{Bit: 10, Name: "save_under", Codec: codec.U32, Default: uint32(0)},
		{Bit: 11, Name: "event_mask", Codec: codec.U32, Default: uint32(0)},
		{Bit: 12, Name: "do_not_propagate_mask", Codec: codec.U32, Default: uint32(0)},
		{Bit: 13, Name: "colormap", Codec: codec.U32, Default: uint32(0)},
		{Bit: 14, Name: "cursor", Codec: codec.U32, Default: uint32(0)},
	}}
	return &RequestDef{
		Name:     "CreateWindow",
		Opcode:   OpCreateWindow,
		Metabyte: &schema.Field{Name: "depth", Codec: codec.U8},
		Body: &schema.Struct{Name: "CreateWindow", Elements: []schema.Element{
			&schema.Field{Name: "wid", Codec: codec.U32},
			&schema.Field{Name: "parent", Codec: codec.U32},
			&schema.Field{Name: "x", Codec: codec.I16},
			&schema.Field{Name: "y", Codec: codec.I16},
			&schema.Field{Name: "width", Codec: codec.U16},
			&schema.Field{Name: "height", Codec: codec.U16},
			&schema.Field{Name: "border_width", Codec: codec.U16},
			&schema.Field{Name: "class", Codec: codec.U16},
			&schema.Field{Name: "visual", Codec: codec.U32},
			&schema.OptionalSet{Name: "attributes", Set: attrs},
		}},
	}
}

func configureWindow() *RequestDef {
	// The 16-bit change mask is padded to the next 4-byte boundary
	// before the VALUEs.
	changes := &codec.OptionalSet{MaskBits: 16, PadAfterMask: 2, Slots: []codec.MaskSlot{
		{Bit: 0, Name: "x", Codec: codec.I32, Default: int32(0)},
		{Bit: 1, Name: "y", Codec: codec.I32, Default: int32(0)},
		{Bit: 2, Name: "width", Codec: codec.U32, Default: uint32(0)},
		{Bit: 3, Name: "height", Codec: codec.U32, Default: uint32(0)},
		{Bit: 4, Name: "border_width", Codec: codec.U32, Default: uint32(0)},
		{Bit: 5, Name: "sibling", Codec: codec.U32, Default: uint32(0)},
		{Bit: 6, Name: "stack_mode", Codec: codec.U32, Default: uint32(0)},
	}}
	return &RequestDef{
		Name:   "ConfigureWindow",
		Opcode: OpConfigureWindow,
		Body: &schema.Struct{Name: "ConfigureWindow", Elements: []schema.Element{
			&schema.Field{Name: "window", Codec: codec.U32},
			&schema.OptionalSet{Name: "changes", Set: changes},
		}},
	}
}

func getGeometry() *RequestDef {
	return &RequestDef{
		Name:   "GetGeometry",
		Opcode: OpGetGeometry,
		Body: &schema.Struct{Name: "GetGeometry", Elements: []schema.Element{
			&schema.Field{Name: "drawable", Codec: codec.U32},
		}},
	}
}

func getGeometryReply() *ReplyDef {
	return &ReplyDef{
		Name:     "GetGeometryReply",
		Opcode:   OpGetGeometry,
		Metabyte: &schema.Field{Name: "depth", Codec: codec.U8},
		Body: &schema.Struct{Name: "GetGeometryReply", Elements: []schema.Element{
			&schema.Field{Name: "root", Codec: codec.U32},
			&schema.Field{Name: "x", Codec: codec.I16},
			&schema.Field{Name: "y", Codec: codec.I16},
			&schema.Field{Name: "width", Codec: codec.U16},
			&schema.Field{Name: "height", Codec: codec.U16},
			&schema.Field{Name: "border_width", Codec: codec.U16},
			&schema.Pad{Bytes: 10},
		}},
	}
}

func internAtom() *RequestDef {
	nameLen := codec.NewRole("name_len")
	return &RequestDef{
		Name:     "InternAtom",
		Opcode:   OpInternAtom,
		Metabyte: &schema.Field{Name: "only_if_exists", Codec: codec.Bool},
		Body: &schema.Struct{Name: "InternAtom", Elements: []schema.Element{
			&schema.Let{Role: nameLen, Codec: codec.U16, Source: schema.LenOf("name")},
			&schema.Pad{Bytes: 2},
			&schema.Text{Name: "name", Count: schema.CountFrom(nameLen)},
			schema.AlignPad{},
		}},
	}
}

func internAtomReply() *ReplyDef {
	return &ReplyDef{
		Name:   "InternAtomReply",
		Opcode: OpInternAtom,
		Body: &schema.Struct{Name: "InternAtomReply", Elements: []schema.Element{
			&schema.Field{Name: "atom", Codec: codec.U32},
			&schema.Pad{Bytes: 20},
		}},
	}
}

func polyLine() *RequestDef {
	return &RequestDef{
		Name:     "PolyLine",
		Opcode:   OpPolyLine,
		Metabyte: &schema.Field{Name: "coordinate_mode", Codec: codec.U8},
		Body: &schema.Struct{Name: "PolyLine", Elements: []schema.Element{
			&schema.Field{Name: "drawable", Codec: codec.U32},
			&schema.Field{Name: "gc", Codec: codec.U32},
			// The point list has no explicit count; it runs to the
			// declared end of the request.
			&schema.List{Name: "points", Elem: Point, Count: schema.ToEnd()},
		}},
	}
}

func keyPress() *EventDef {
	return &EventDef{
		Name:     "KeyPress",
		Code:     EvKeyPress,
		Metabyte: &schema.Field{Name: "detail", Codec: codec.U8},
		Body: &schema.Struct{Name: "KeyPress", Elements: []schema.Element{
			&schema.Field{Name: "time", Codec: codec.U32},
			&schema.Field{Name: "root", Codec: codec.U32},
			&schema.Field{Name: "event", Codec: codec.U32},
			&schema.Field{Name: "child", Codec: codec.U32},
			&schema.Field{Name: "root_x", Codec: codec.I16},
			&schema.Field{Name: "root_y", Codec: codec.I16},
			&schema.Field{Name: "event_x", Codec: codec.I16},
			&schema.Field{Name: "event_y", Codec: codec.I16},
			&schema.Field{Name: "state", Codec: codec.U16},
			&schema.Field{Name: "same_screen", Codec: codec.Bool},
			&schema.Pad{Bytes: 1},
		}},
	}
}

func expose() *EventDef {
	return &EventDef{
		Name: "Expose",
		Code: EvExpose,
		Body: &schema.Struct{Name: "Expose", Elements: []schema.Element{
			&schema.Field{Name: "window", Codec: codec.U32},
			&schema.Field{Name: "x", Codec: codec.U16},
			&schema.Field{Name: "y", Codec: codec.U16},
			&schema.Field{Name: "width", Codec: codec.U16},
			&schema.Field{Name: "height", Codec: codec.U16},
			&schema.Field{Name: "count", Codec: codec.U16},
			&schema.Pad{Bytes: 14},
		}},
	}
}
