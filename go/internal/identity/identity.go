// Package identity carries the caller's permission level through the
// engine. The actual authentication happens at the gateway; everything
// below it only sees an Identity.
package identity

import (
	"context"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Identity is the authenticated caller: a stable id used as the
// createdBy/ownership key, and a permission level.
type Identity struct {
	ID   string
	Role models.Role
}

// Anonymous is the identity of an unauthenticated caller.
var Anonymous = Identity{Role: models.RoleGuest}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

// CanWrite reports whether the caller may create documents at all.
func (i Identity) CanWrite() bool {
	return i.Role == models.RoleUser || i.Role == models.RoleAdmin
}

// CanMutate applies the ownership rule for active races: admin, or the
// identity recorded as createdBy on the document.
func (i Identity) CanMutate(createdBy string) bool {
	if i.IsAdmin() {
		return true
	}
	return i.CanWrite() && createdBy != "" && createdBy == i.ID
}

type ctxKey struct{}

// NewContext attaches the identity to a request context.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the caller identity, Anonymous when absent.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Anonymous
}
