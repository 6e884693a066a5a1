package generators_test

import (
	"testing"

	"pgregory.net/rapid"

	"xwire/pkg/schema"
	"xwire/test/generators"
)

// Property: generated atom names are non-empty, bounded, and drawn from
// the character set real atom names use.
func TestPropertyAtomNameShape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := generators.AtomName().Draw(t, "name")
		if len(name) == 0 || len(name) > 64 {
			t.Fatalf("name length %d out of range", len(name))
		}
		for _, c := range name {
			if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
				t.Fatalf("name contains %q", c)
			}
		}
	})
}

// Property: resource identifiers never use the top three bits, which
// the server reserves for client ID bases.
func TestPropertyResourceIDRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := generators.ResourceID().Draw(t, "id")
		if id == 0 || id > 0x1FFFFFFF {
			t.Fatalf("resource id %#x out of range", id)
		}
	})
}

// Property: generated window attributes only use defined slot names.
func TestPropertyWindowAttributeNames(t *testing.T) {
	defined := map[string]bool{
		"background_pixmap": true, "background_pixel": true,
		"border_pixmap": true, "border_pixel": true,
		"bit_gravity": true, "win_gravity": true,
		"backing_store": true, "backing_planes": true,
		"backing_pixel": true, "override_redirect": true,
		"save_under": true, "event_mask": true,
		"do_not_propagate_mask": true, "colormap": true, "cursor": true,
	}
	rapid.Check(t, func(t *rapid.T) {
		attrs := generators.WindowAttributes().Draw(t, "attrs")
		for name := range attrs {
			if !defined[name] {
				t.Fatalf("unknown attribute %q", name)
			}
		}
	})
}

// Property: generated point lists stay within the size a short-form
// request can carry.
func TestPropertyPointsBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		points := generators.Points().Draw(t, "points")
		if len(points) > 256 {
			t.Fatalf("%d points", len(points))
		}
		for _, p := range points {
			if _, ok := p.(schema.Value); !ok {
				t.Fatalf("point has type %T", p)
			}
		}
	})
}
