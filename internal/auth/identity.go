package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated user's profile as reported by the events API.
type Identity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleID   string `json:"roleId,omitempty"`
	RoleName string `json:"roleName,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Role returns the lower-cased role tag used for authorization. RoleID takes
// precedence over RoleName; an identity with neither has role "".
func (id *Identity) Role() string {
	if id == nil {
		return ""
	}
	if id.RoleID != "" {
		return strings.ToLower(strings.TrimSpace(id.RoleID))
	}
	return strings.ToLower(strings.TrimSpace(id.RoleName))
}

// Equal reports whether two identities carry the same values. Two nil
// identities are equal.
func (id *Identity) Equal(other *Identity) bool {
	if id == nil || other == nil {
		return id == other
	}
	return *id == *other
}

// Clone returns a copy that callers may hold without sharing state.
func (id *Identity) Clone() *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// DisplayName returns the name to show in page headers.
func (id *Identity) DisplayName() string {
	if id == nil {
		return ""
	}
	if id.Name != "" {
		return id.Name
	}
	return id.Email
}

type contextKey struct{}

// WithIdentity stores an Identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
