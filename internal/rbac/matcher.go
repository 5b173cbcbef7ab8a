package rbac

import "strings"

// Matches reports whether a concrete request path satisfies a stored
// pattern. Patterns use Ant-style suffixes: "/**" matches any nesting below
// the prefix, "/*" matches exactly one extra segment, anything else is
// literal equality.
//
// Only the asterisks are stripped, so the slash stays in the prefix:
// "/admin/**" yields prefix "/admin/" and does not match "/admin" itself or
// "/administrator". No regex, no case folding, no trailing-slash
// normalization: callers must supply paths in the same normalized form
// patterns were stored in.
func Matches(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "**")
		return strings.HasPrefix(path, prefix)
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(path, prefix) && !strings.Contains(path[len(prefix):], "/")
	}
	return pattern == path
}
