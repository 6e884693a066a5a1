package codec

import (
	"errors"
	"testing"

	"xwire/pkg/wire"
)

func TestContextPublishResolve(t *testing.T) {
	count := NewRole("count")
	cx := NewContext()
	cx.Publish(count, 7)

	got, err := cx.Resolve(count)
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestContextMissing(t *testing.T) {
	count := NewRole("count")
	cx := NewContext()
	if _, err := cx.Resolve(count); !errors.Is(err, wire.ErrMissingContext) {
		t.Fatalf("want ErrMissingContext, got %v", err)
	}
}

func TestContextRoleIdentity(t *testing.T) {
	// Two roles with the same display name are distinct: resolution is
	// by identity, not by string.
	a := NewRole("n")
	b := NewRole("n")
	cx := NewContext()
	cx.Publish(a, 1)
	if _, err := cx.Resolve(b); !errors.Is(err, wire.ErrMissingContext) {
		t.Fatalf("want ErrMissingContext for distinct role, got %v", err)
	}
}

func TestContextNestedScopes(t *testing.T) {
	outer := NewRole("outer")
	shadow := NewRole("shadow")

	cx := NewContext()
	cx.Publish(outer, 1)
	cx.Publish(shadow, 10)

	inner := cx.Enter()
	inner.Publish(shadow, 20)

	// Inner scope sees its own publication first, and falls back to
	// the enclosing scope for everything else.
	if got, _ := inner.Resolve(shadow); got != 20 {
		t.Errorf("inner shadow: got %d, want 20", got)
	}
	if got, _ := inner.Resolve(outer); got != 1 {
		t.Errorf("inner outer: got %d, want 1", got)
	}

	// The enclosing scope never sees inner publications.
	if got, _ := cx.Resolve(shadow); got != 10 {
		t.Errorf("outer shadow: got %d, want 10", got)
	}
}

func TestContextLatestWins(t *testing.T) {
	n := NewRole("n")
	cx := NewContext()
	cx.Publish(n, 1)
	cx.Publish(n, 2)
	if got, _ := cx.Resolve(n); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}
