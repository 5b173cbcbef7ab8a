// Package rbac implements the dynamic authorization layer: persisted
// role/page grants, the path matcher, and the per-request decision engine.
package rbac

import "time"

// Role is a named permission grouping attachable to accounts.
// Names follow the "ROLE_" prefix convention, e.g. "ROLE_ADMIN".
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccessPage is a stored URL path pattern protecting a resource boundary.
// A pattern is a literal path, a "/*" single-segment suffix, or a "/**"
// recursive suffix.
type AccessPage struct {
	ID        int64
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccessRule grants a role access to a page pattern. The (role, page) pair
// is unique; duplicate grants fail rather than silently succeeding.
type AccessRule struct {
	ID        int64
	RoleID    int64
	PageID    int64
	CreatedAt time.Time
}

// RuleDetail is the read model for a rule with its role and page resolved.
// The engine consumes Path during pattern matching; the admin API returns
// the full shape.
type RuleDetail struct {
	ID       int64
	RoleID   int64
	RoleName string
	PageID   int64
	Path     string
}

// DefaultRoleUser is attached to every account at signup.
const DefaultRoleUser = "ROLE_USER"

// DefaultRoleAdmin gates the admin management surface.
const DefaultRoleAdmin = "ROLE_ADMIN"
