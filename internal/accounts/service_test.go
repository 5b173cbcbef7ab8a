package accounts

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hilite-app/hilite/internal/shared"
)

type memoryAccountRepo struct {
	accounts    map[int64]*Account
	roles       map[int64]string
	assignments map[int64][]int64
	nextID      int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	repo := &memoryAccountRepo{
		accounts:    make(map[int64]*Account),
		roles:       map[int64]string{1: "ROLE_USER", 2: "ROLE_ADMIN"},
		assignments: make(map[int64][]int64),
	}
	return repo
}

func (r *memoryAccountRepo) roleNames(accountID int64) []string {
	var names []string
	for _, roleID := range r.assignments[accountID] {
		names = append(names, r.roles[roleID])
	}
	return names
}

func (r *memoryAccountRepo) FindByUsername(_ context.Context, username string) (*Account, error) {
	for _, a := range r.accounts {
		if a.Username == username {
			clone := *a
			clone.Roles = r.roleNames(a.ID)
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memoryAccountRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	for _, a := range r.accounts {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAccountRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAccountRepo) CreateWithRole(_ context.Context, username, passwordHash, email string, roleID int64) (*Account, error) {
	r.nextID++
	account := &Account{ID: r.nextID, Username: username, PasswordHash: passwordHash, Email: email}
	r.accounts[account.ID] = account
	r.assignments[account.ID] = []int64{roleID}
	clone := *account
	return &clone, nil
}

func (r *memoryAccountRepo) List(_ context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		clone := *a
		clone.Roles = r.roleNames(a.ID)
		out = append(out, clone)
	}
	return out, nil
}

func (r *memoryAccountRepo) RoleIDByName(_ context.Context, name string) (int64, error) {
	for id, roleName := range r.roles {
		if roleName == name {
			return id, nil
		}
	}
	return 0, pgx.ErrNoRows
}

func (r *memoryAccountRepo) HasRole(_ context.Context, accountID, roleID int64) (bool, error) {
	for _, held := range r.assignments[accountID] {
		if held == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAccountRepo) AttachRole(_ context.Context, accountID, roleID int64) error {
	r.assignments[accountID] = append(r.assignments[accountID], roleID)
	return nil
}

func (r *memoryAccountRepo) DetachRole(_ context.Context, accountID, roleID int64) (int64, error) {
	held := r.assignments[accountID]
	for i, id := range held {
		if id == roleID {
			r.assignments[accountID] = append(held[:i], held[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func newAccountService(repo RepositoryPort) *Service {
	return NewService(repo, "ROLE_USER")
}

func TestRegisterAttachesDefaultRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := newAccountService(repo)

	account, err := svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"ROLE_USER"}, account.Roles)

	// Stored hash must verify against the original password.
	stored := repo.accounts[account.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret-pass")))
}

func TestRegisterPasswordMismatchHasNoSideEffect(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := newAccountService(repo)

	_, err := svc.Register(ctx, "alice", "one-password", "other-password", "alice@example.com")
	require.ErrorIs(t, err, ErrPasswordMismatch)
	require.Empty(t, repo.accounts)
}

func TestRegisterDuplicateChecks(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := newAccountService(repo)

	_, err := svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "other@example.com")
	require.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Register(ctx, "bob", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterMissingDefaultRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	repo.roles = map[int64]string{}
	svc := newAccountService(repo)

	_, err := svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.ErrorIs(t, err, ErrMissingDefaultRole)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := newAccountService(repo)

	_, err := svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.NoError(t, err)

	_, errUnknown := svc.Authenticate(ctx, "nobody", "whatever")
	_, errWrongPass := svc.Authenticate(ctx, "alice", "wrong-pass")
	require.ErrorIs(t, errUnknown, shared.ErrInvalidCredentials)
	require.ErrorIs(t, errWrongPass, shared.ErrInvalidCredentials)
	require.Equal(t, errUnknown.Error(), errWrongPass.Error())

	account, err := svc.Authenticate(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "alice", account.Username)
}

func TestEmailAvailable(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := newAccountService(repo)

	available, err := svc.EmailAvailable(ctx, "alice@example.com")
	require.NoError(t, err)
	require.True(t, available)

	_, err = svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.NoError(t, err)

	available, err = svc.EmailAvailable(ctx, "alice@example.com")
	require.NoError(t, err)
	require.False(t, available)
}

func TestAddAndRemoveRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := newAccountService(repo)

	_, err := svc.Register(ctx, "alice", "s3cret-pass", "s3cret-pass", "alice@example.com")
	require.NoError(t, err)

	require.ErrorIs(t, svc.AddRole(ctx, "nobody", "ROLE_ADMIN"), ErrUserNotFound)
	require.ErrorIs(t, svc.AddRole(ctx, "alice", "ROLE_UNKNOWN"), ErrRoleNotFound)

	require.NoError(t, svc.AddRole(ctx, "alice", "ROLE_ADMIN"))
	require.ErrorIs(t, svc.AddRole(ctx, "alice", "ROLE_ADMIN"), ErrDuplicateAssignment)

	roles, err := svc.RolesForUsername(ctx, "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ROLE_USER", "ROLE_ADMIN"}, roles)

	require.NoError(t, svc.RemoveRole(ctx, "alice", "ROLE_ADMIN"))
	require.ErrorIs(t, svc.RemoveRole(ctx, "alice", "ROLE_ADMIN"), ErrAssignmentNotFound)
}

func TestRolesForUsernameUnknownUser(t *testing.T) {
	svc := newAccountService(newMemoryAccountRepo())
	_, err := svc.RolesForUsername(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}
