package rbac

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// PermissionReader is the slice of the store the decision engine needs.
type PermissionReader interface {
	ExactRuleExists(ctx context.Context, roleNames []string, path string) (bool, error)
	PermissionsForRoles(ctx context.Context, roleNames []string) ([]RuleDetail, error)
}

// Engine is the authorization decision function: given a request path and
// the caller's resolved role set, it answers allow or deny by combining an
// exact-match lookup with a wildcard-pattern scan over the stored rules.
type Engine struct {
	store  PermissionReader
	cache  *DecisionCache
	logger *slog.Logger
	group  singleflight.Group
}

// NewEngine constructs an Engine. The cache may be nil, in which case every
// check evaluates against the store directly.
func NewEngine(store PermissionReader, cache *DecisionCache, logger *slog.Logger) *Engine {
	return &Engine{store: store, cache: cache, logger: logger}
}

// HasPermission decides whether the role set may access the request path.
//
// An empty role set is denied without touching storage: a role-less
// principal has zero permissions, never implicit trust. Storage or cache
// failures are logged and answered with deny; an evaluation error must
// never default to allow, so this method deliberately returns no error.
func (e *Engine) HasPermission(ctx context.Context, requestPath string, roleNames []string) bool {
	if len(roleNames) == 0 {
		return false
	}

	sorted := make([]string, len(roleNames))
	copy(sorted, roleNames)
	sort.Strings(sorted)

	cacheKey := ""
	if e.cache != nil {
		key, err := e.cache.Key(ctx, sorted, requestPath)
		if err == nil {
			cacheKey = key
			if allowed, ok, err := e.cache.Get(ctx, key); err == nil && ok {
				return allowed
			} else if err != nil {
				e.logWarn("authz cache read", err)
			}
		} else {
			e.logWarn("authz cache key", err)
		}
	}

	flightKey := strings.Join(sorted, ",") + "|" + requestPath
	result, err, _ := e.group.Do(flightKey, func() (any, error) {
		return e.evaluate(ctx, requestPath, sorted)
	})
	if err != nil {
		e.logWarn("authz evaluation failed, denying", err)
		return false
	}
	allowed := result.(bool)

	if cacheKey != "" {
		if err := e.cache.Set(ctx, cacheKey, allowed); err != nil {
			e.logWarn("authz cache write", err)
		}
	}
	return allowed
}

// evaluate runs the two-phase check: exact path match first, then a pattern
// scan over every rule the role set holds, short-circuiting on the first hit.
func (e *Engine) evaluate(ctx context.Context, requestPath string, roleNames []string) (bool, error) {
	exact, err := e.store.ExactRuleExists(ctx, roleNames, requestPath)
	if err != nil {
		return false, err
	}
	if exact {
		return true, nil
	}

	rules, err := e.store.PermissionsForRoles(ctx, roleNames)
	if err != nil {
		return false, err
	}
	for _, rule := range rules {
		if Matches(rule.Path, requestPath) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) logWarn(msg string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, slog.Any("error", err))
	}
}
