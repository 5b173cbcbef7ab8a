package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/hilite-app/hilite/internal/platform/db"
	"github.com/hilite-app/hilite/internal/shared"
)

// Domain errors for account management.
var (
	ErrPasswordMismatch    = shared.NewError(shared.KindValidation, "PASSWORD_MISMATCH", "password and confirmation do not match")
	ErrDuplicateUsername   = shared.NewError(shared.KindConflict, "DUPLICATE_USERNAME", "username already exists")
	ErrDuplicateEmail      = shared.NewError(shared.KindConflict, "DUPLICATE_EMAIL", "email already exists")
	ErrMissingDefaultRole  = shared.NewError(shared.KindInternal, "MISSING_DEFAULT_ROLE", "default role is not provisioned")
	ErrUserNotFound        = shared.NewError(shared.KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrRoleNotFound        = shared.NewError(shared.KindNotFound, "ROLE_NOT_FOUND", "role not found")
	ErrDuplicateAssignment = shared.NewError(shared.KindConflict, "DUPLICATE_ASSIGNMENT", "account already holds this role")
	ErrAssignmentNotFound  = shared.NewError(shared.KindNotFound, "ASSIGNMENT_NOT_FOUND", "account does not hold this role")
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateWithRole(ctx context.Context, username, passwordHash, email string, roleID int64) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	RoleIDByName(ctx context.Context, name string) (int64, error)
	HasRole(ctx context.Context, accountID, roleID int64) (bool, error)
	AttachRole(ctx context.Context, accountID, roleID int64) error
	DetachRole(ctx context.Context, accountID, roleID int64) (int64, error)
}

// Service handles registration, credential checks and role assignment.
type Service struct {
	repo        RepositoryPort
	defaultRole string
}

// NewService builds a Service instance. defaultRole is attached to every
// new account at signup.
func NewService(repo RepositoryPort, defaultRole string) *Service {
	return &Service{repo: repo, defaultRole: defaultRole}
}

// Register creates a new account with the default role. The password
// confirmation is checked before any I/O, so a mismatch never has a
// persistence side effect. Uniqueness is checked up front, but the database
// constraints are the race-breaker: a constraint violation on insert maps
// to the same conflict errors as the explicit checks.
func (s *Service) Register(ctx context.Context, username, password, passwordConfirm, email string) (*Account, error) {
	if password != passwordConfirm {
		return nil, ErrPasswordMismatch
	}

	taken, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	if taken {
		return nil, ErrDuplicateUsername
	}
	taken, err = s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	roleID, err := s.repo.RoleIDByName(ctx, s.defaultRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMissingDefaultRole
		}
		return nil, shared.ErrInternal.WithCause(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}

	account, err := s.repo.CreateWithRole(ctx, username, string(hash), email, roleID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, conflictForConstraint(err)
		}
		return nil, shared.ErrInternal.WithCause(err)
	}
	account.Roles = []string{s.defaultRole}
	return account, nil
}

// Authenticate validates username/password credentials. Every failure mode
// returns the same uniform error so responses do not reveal whether the
// username exists.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return account, nil
}

// Get returns the account with its current roles.
func (s *Service) Get(ctx context.Context, username string) (*Account, error) {
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, shared.ErrInternal.WithCause(err)
	}
	return account, nil
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, shared.ErrInternal.WithCause(err)
	}
	return list, nil
}

// RolesForUsername resolves the account's role set at request time. It is
// called by the authentication pipeline on every request so role changes
// take effect without re-login.
func (s *Service) RolesForUsername(ctx context.Context, username string) ([]string, error) {
	account, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	return account.Roles, nil
}

// EmailAvailable reports whether the email is free to register.
func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return false, shared.ErrInternal.WithCause(err)
	}
	return !exists, nil
}

// AddRole attaches a role to the account. A role the account already holds
// is an explicit conflict, not a silent no-op.
func (s *Service) AddRole(ctx context.Context, username, roleName string) error {
	account, roleID, err := s.resolveAssignment(ctx, username, roleName)
	if err != nil {
		return err
	}
	held, err := s.repo.HasRole(ctx, account.ID, roleID)
	if err != nil {
		return shared.ErrInternal.WithCause(err)
	}
	if held {
		return ErrDuplicateAssignment
	}
	if err := s.repo.AttachRole(ctx, account.ID, roleID); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateAssignment
		}
		return shared.ErrInternal.WithCause(err)
	}
	return nil
}

// RemoveRole detaches a role from the account. An account may legitimately
// end up role-less; the engine then treats it as having zero permissions.
func (s *Service) RemoveRole(ctx context.Context, username, roleName string) error {
	account, roleID, err := s.resolveAssignment(ctx, username, roleName)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DetachRole(ctx, account.ID, roleID)
	if err != nil {
		return shared.ErrInternal.WithCause(err)
	}
	if deleted == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (s *Service) resolveAssignment(ctx context.Context, username, roleName string) (*Account, int64, error) {
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, shared.ErrInternal.WithCause(err)
	}
	roleID, err := s.repo.RoleIDByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrRoleNotFound
		}
		return nil, 0, shared.ErrInternal.WithCause(err)
	}
	return account, roleID, nil
}

func conflictForConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "account_email_key" {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}
