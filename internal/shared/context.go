package shared

import "context"

// Principal describes the authenticated caller for the remainder of a
// request: the token subject plus the roles resolved from storage at request
// time. It is carried explicitly through the context, never in package state.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal holds the named role.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. It returns nil
// for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
