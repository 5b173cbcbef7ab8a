package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hilite-app/hilite/internal/platform/db"
	"github.com/hilite-app/hilite/internal/shared"
)

// Domain errors for the admin management surface.
var (
	ErrRoleNotFound  = shared.NewError(shared.KindNotFound, "ROLE_NOT_FOUND", "role not found")
	ErrPageNotFound  = shared.NewError(shared.KindNotFound, "PAGE_NOT_FOUND", "access page not found")
	ErrRuleNotFound  = shared.NewError(shared.KindNotFound, "PERMISSION_NOT_FOUND", "permission not found")
	ErrDuplicateRole = shared.NewError(shared.KindConflict, "DUPLICATE_ROLE", "role already exists")
	ErrDuplicatePath = shared.NewError(shared.KindConflict, "DUPLICATE_PATH", "access page already exists")
	ErrDuplicateRule = shared.NewError(shared.KindConflict, "DUPLICATE_PERMISSION", "permission already exists")
)

// RepositoryPort defines the persistence operations the service needs.
type RepositoryPort interface {
	PermissionReader

	CreateRole(ctx context.Context, name string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRoleCascade(ctx context.Context, id int64) (int64, error)

	CreateAccessPage(ctx context.Context, path string) (AccessPage, error)
	GetAccessPage(ctx context.Context, id int64) (AccessPage, error)
	AccessPageExists(ctx context.Context, path string) (bool, error)
	ListAccessPages(ctx context.Context) ([]AccessPage, error)
	DeleteAccessPageCascade(ctx context.Context, id int64) (int64, error)

	RuleExists(ctx context.Context, roleID, pageID int64) (bool, error)
	CreateRule(ctx context.Context, roleID, pageID int64) (AccessRule, error)
	DeleteRule(ctx context.Context, id int64) (int64, error)
	ListRules(ctx context.Context) ([]RuleDetail, error)
	ListRulesByRoleName(ctx context.Context, roleName string) ([]RuleDetail, error)
	ReplaceRulesForRole(ctx context.Context, roleID int64, pageIDs []int64) error
}

// Service orchestrates admin-facing permission management. Every mutation
// bumps the decision cache generation so revoked or granted rules take
// effect on the next check.
type Service struct {
	repo   RepositoryPort
	cache  *DecisionCache
	logger *slog.Logger
}

// NewService constructs a Service. The cache may be nil.
func NewService(repo RepositoryPort, cache *DecisionCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// CreateRole inserts a new role, failing on duplicate names.
func (s *Service) CreateRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "role name required")
	}
	exists, err := s.repo.RoleExists(ctx, name)
	if err != nil {
		return Role{}, shared.ErrInternal.WithCause(err)
	}
	if exists {
		return Role{}, ErrDuplicateRole
	}
	role, err := s.repo.CreateRole(ctx, name)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, shared.ErrInternal.WithCause(err)
	}
	s.bump(ctx)
	return role, nil
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	return roles, nil
}

// DeleteRole removes a role and cascades to its rules and assignments.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteRoleCascade(ctx, id)
	if err != nil {
		return shared.ErrInternal.WithCause(err)
	}
	if deleted == 0 {
		return ErrRoleNotFound
	}
	s.bump(ctx)
	return nil
}

// CreateAccessPage stores a new protected path pattern.
func (s *Service) CreateAccessPage(ctx context.Context, path string) (AccessPage, error) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "/") {
		return AccessPage{}, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "path must start with /")
	}
	exists, err := s.repo.AccessPageExists(ctx, path)
	if err != nil {
		return AccessPage{}, shared.ErrInternal.WithCause(err)
	}
	if exists {
		return AccessPage{}, ErrDuplicatePath
	}
	page, err := s.repo.CreateAccessPage(ctx, path)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return AccessPage{}, ErrDuplicatePath
		}
		return AccessPage{}, shared.ErrInternal.WithCause(err)
	}
	s.bump(ctx)
	return page, nil
}

// ListAccessPages returns all stored patterns.
func (s *Service) ListAccessPages(ctx context.Context) ([]AccessPage, error) {
	pages, err := s.repo.ListAccessPages(ctx)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	return pages, nil
}

// DeleteAccessPage removes a pattern and cascades to its rules.
func (s *Service) DeleteAccessPage(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteAccessPageCascade(ctx, id)
	if err != nil {
		return shared.ErrInternal.WithCause(err)
	}
	if deleted == 0 {
		return ErrPageNotFound
	}
	s.bump(ctx)
	return nil
}

// CreateRule grants a role access to a page pattern. Duplicate grants are
// an explicit conflict, never a silent success.
func (s *Service) CreateRule(ctx context.Context, roleID, pageID int64) (RuleDetail, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RuleDetail{}, ErrRoleNotFound
		}
		return RuleDetail{}, shared.ErrInternal.WithCause(err)
	}
	page, err := s.repo.GetAccessPage(ctx, pageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RuleDetail{}, ErrPageNotFound
		}
		return RuleDetail{}, shared.ErrInternal.WithCause(err)
	}
	exists, err := s.repo.RuleExists(ctx, roleID, pageID)
	if err != nil {
		return RuleDetail{}, shared.ErrInternal.WithCause(err)
	}
	if exists {
		return RuleDetail{}, ErrDuplicateRule
	}
	rule, err := s.repo.CreateRule(ctx, roleID, pageID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return RuleDetail{}, ErrDuplicateRule
		}
		return RuleDetail{}, shared.ErrInternal.WithCause(err)
	}
	s.bump(ctx)
	return RuleDetail{
		ID:       rule.ID,
		RoleID:   role.ID,
		RoleName: role.Name,
		PageID:   page.ID,
		Path:     page.Path,
	}, nil
}

// DeleteRule revokes a grant by ID.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteRule(ctx, id)
	if err != nil {
		return shared.ErrInternal.WithCause(err)
	}
	if deleted == 0 {
		return ErrRuleNotFound
	}
	s.bump(ctx)
	return nil
}

// ListRules returns all grants with role and page detail.
func (s *Service) ListRules(ctx context.Context) ([]RuleDetail, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	return rules, nil
}

// RulesByRole returns the grants held by the named role.
func (s *Service) RulesByRole(ctx context.Context, roleName string) ([]RuleDetail, error) {
	if _, err := s.repo.GetRoleByName(ctx, roleName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, shared.ErrInternal.WithCause(err)
	}
	rules, err := s.repo.ListRulesByRoleName(ctx, roleName)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	return rules, nil
}

// ReplaceRulesForRole swaps the role's entire grant set for the given pages.
func (s *Service) ReplaceRulesForRole(ctx context.Context, roleID int64, pageIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoleNotFound
		}
		return shared.ErrInternal.WithCause(err)
	}
	for _, pageID := range pageIDs {
		if _, err := s.repo.GetAccessPage(ctx, pageID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPageNotFound
			}
			return shared.ErrInternal.WithCause(err)
		}
	}
	if err := s.repo.ReplaceRulesForRole(ctx, roleID, pageIDs); err != nil {
		return shared.ErrInternal.WithCause(err)
	}
	s.bump(ctx)
	return nil
}

// EnsureDefaultRoles provisions ROLE_USER and ROLE_ADMIN at startup so the
// signup default-role invariant holds from the first request. Concurrent
// boots racing on the insert are resolved by the unique constraint.
func (s *Service) EnsureDefaultRoles(ctx context.Context) error {
	for _, name := range []string{DefaultRoleUser, DefaultRoleAdmin} {
		exists, err := s.repo.RoleExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.repo.CreateRole(ctx, name); err != nil && !db.IsUniqueViolation(err) {
			return err
		}
	}
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("authz cache bump", slog.Any("error", err))
	}
}
