package shared

import (
	"context"
	"strings"
)

// Identity is the authenticated caller forwarded by the gateway.
type Identity struct {
	UserID int64
	Email  string
	Roles  []string
}

// HasRole reports whether the identity carries role (case-insensitive).
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Anonymous reports whether no identity was supplied.
func (i Identity) Anonymous() bool {
	return i.UserID == 0 && i.Email == ""
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// ActorID returns the user id of the caller or zero.
func ActorID(ctx context.Context) int64 {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}
