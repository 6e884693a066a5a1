package codec

import (
	"fmt"

	"xwire/pkg/wire"
)

// Role identifies a context value by identity, not by name: two roles
// created with the same name are distinct. Schemas allocate their
// roles once at construction time, which rules out stringly-typed
// lookup mistakes at decode time.
type Role struct {
	name string
}

// NewRole allocates a role. The name appears only in diagnostics.
func NewRole(name string) *Role { return &Role{name: name} }

func (r *Role) String() string { return r.name }

type contextEntry struct {
	role  *Role
	value uint64
}

// Context is the per-message stack of values decoded (or about to be
// encoded) earlier in the same message, so later fields can be sized
// or counted from them. It is scoped to one in-flight message and
// never shared between messages or goroutines.
//
// Scopes nest: a nested structure resolves outward through its
// parents, but its own publications become invisible once its scope
// is dropped. When the same role is published in both an inner and an
// outer scope, the innermost publication wins.
type Context struct {
	parent  *Context
	entries []contextEntry
}

// NewContext creates the root scope for one message.
func NewContext() *Context { return &Context{} }

// Enter pushes a nested scope. Dropping the returned scope pops it.
func (c *Context) Enter() *Context { return &Context{parent: c} }

// Publish records a value under role in the current scope.
func (c *Context) Publish(role *Role, v uint64) {
	c.entries = append(c.entries, contextEntry{role: role, value: v})
}

// Resolve returns the value most recently published under role in the
// current scope chain, innermost scope first.
func (c *Context) Resolve(role *Role) (uint64, error) {
	for s := c; s != nil; s = s.parent {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if s.entries[i].role == role {
				return s.entries[i].value, nil
			}
		}
	}
	return 0, fmt.Errorf("role %q: %w", role.name, wire.ErrMissingContext)
}
