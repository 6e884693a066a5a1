// Package generators provides rapid generators for protocol message
// values, shared by property and integration tests.
package generators

import (
	"pgregory.net/rapid"

	"xwire/pkg/schema"
	"xwire/pkg/wire"
)

// Order generates a wire byte order.
func Order() *rapid.Generator[wire.ByteOrder] {
	return rapid.SampledFrom([]wire.ByteOrder{wire.LittleEndian, wire.BigEndian})
}

// AtomName generates names for InternAtom requests.
// Length range: 1-64 bytes of printable ASCII, the shape real atom
// names take (WM_NAME, _NET_WM_STATE, UTF8_STRING).
func AtomName() *rapid.Generator[string] {
	return rapid.StringOfN(rapid.RuneFrom([]rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ_0123456789")), 1, 64, -1)
}

// ResourceID generates X resource identifiers (windows, drawables,
// graphics contexts). The top three bits are always clear.
func ResourceID() *rapid.Generator[uint32] {
	return rapid.Uint32Range(1, 0x1FFFFFFF)
}

// Point generates one POINT structure value.
func Point() *rapid.Generator[schema.Value] {
	return rapid.Custom(func(t *rapid.T) schema.Value {
		return schema.Value{
			"x": rapid.Int16().Draw(t, "x"),
			"y": rapid.Int16().Draw(t, "y"),
		}
	})
}

// Points generates a PolyLine point list.
// Size range: 0-256 points.
func Points() *rapid.Generator[[]any] {
	return rapid.Custom(func(t *rapid.T) []any {
		n := rapid.IntRange(0, 256).Draw(t, "n")
		points := make([]any, n)
		for i := range points {
			points[i] = Point().Draw(t, "point")
		}
		return points
	})
}

// windowAttributeNames are the optional CreateWindow attribute slots.
var windowAttributeNames = []string{
	"background_pixmap", "background_pixel", "border_pixmap",
	"border_pixel", "bit_gravity", "win_gravity", "backing_store",
	"backing_planes", "backing_pixel", "override_redirect",
	"save_under", "event_mask", "do_not_propagate_mask",
	"colormap", "cursor",
}

// WindowAttributes generates a random subset of CreateWindow's
// bitmask-gated attributes, each carried as a 32-bit value.
func WindowAttributes() *rapid.Generator[schema.Value] {
	return rapid.Custom(func(t *rapid.T) schema.Value {
		attrs := schema.Value{}
		for _, name := range windowAttributeNames {
			if rapid.Bool().Draw(t, "has_"+name) {
				attrs[name] = rapid.Uint32().Draw(t, name)
			}
		}
		return attrs
	})
}

// InternAtomValue generates a complete InternAtom request value.
func InternAtomValue() *rapid.Generator[schema.Value] {
	return rapid.Custom(func(t *rapid.T) schema.Value {
		return schema.Value{
			"only_if_exists": rapid.Bool().Draw(t, "only_if_exists"),
			"name":           AtomName().Draw(t, "name"),
		}
	})
}

// PolyLineValue generates a complete PolyLine request value.
func PolyLineValue() *rapid.Generator[schema.Value] {
	return rapid.Custom(func(t *rapid.T) schema.Value {
		return schema.Value{
			"coordinate_mode": rapid.SampledFrom([]uint8{0, 1}).Draw(t, "coordinate_mode"),
			"drawable":        ResourceID().Draw(t, "drawable"),
			"gc":              ResourceID().Draw(t, "gc"),
			"points":          Points().Draw(t, "points"),
		}
	})
}

// CreateWindowValue generates a complete CreateWindow request value.
func CreateWindowValue() *rapid.Generator[schema.Value] {
	return rapid.Custom(func(t *rapid.T) schema.Value {
		return schema.Value{
			"depth":        rapid.SampledFrom([]uint8{0, 24, 32}).Draw(t, "depth"),
			"wid":          ResourceID().Draw(t, "wid"),
			"parent":       ResourceID().Draw(t, "parent"),
			"x":            rapid.Int16().Draw(t, "x"),
			"y":            rapid.Int16().Draw(t, "y"),
			"width":        rapid.Uint16Range(1, 4096).Draw(t, "width"),
			"height":       rapid.Uint16Range(1, 4096).Draw(t, "height"),
			"border_width": rapid.Uint16Range(0, 64).Draw(t, "border_width"),
			"class":        rapid.SampledFrom([]uint16{0, 1, 2}).Draw(t, "class"),
			"visual":       ResourceID().Draw(t, "visual"),
			"attributes":   WindowAttributes().Draw(t, "attributes"),
		}
	})
}
