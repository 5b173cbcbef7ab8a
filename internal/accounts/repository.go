package accounts

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hilite-app/hilite/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for accounts and their
// role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByUsername fetches an account with its role names.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	const query = `SELECT id, username, password_hash, email, created_at, updated_at
		FROM account WHERE username = $1`
	var account Account
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&account.ID, &account.Username, &account.PasswordHash,
		&account.Email, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	roles, err := r.rolesForAccountID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.Roles = roles
	return &account, nil
}

// ExistsByUsername reports whether the username is taken.
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

// ExistsByEmail reports whether the email is taken.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

// CreateWithRole inserts the account and its initial role assignment in one
// transaction, so a failed role attach never leaves a role-less signup.
func (r *Repository) CreateWithRole(ctx context.Context, username, passwordHash, email string, roleID int64) (*Account, error) {
	var account Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `INSERT INTO account (username, password_hash, email)
			VALUES ($1, $2, $3) RETURNING id, username, password_hash, email, created_at, updated_at`
		if err := tx.QueryRow(ctx, insert, username, passwordHash, email).Scan(
			&account.ID, &account.Username, &account.PasswordHash,
			&account.Email, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO account_role (account_id, role_id) VALUES ($1, $2)`, account.ID, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns all accounts with their role names.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username, password_hash, email, created_at, updated_at
		FROM account ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Account
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.ID, &account.Username, &account.PasswordHash,
			&account.Email, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		roles, err := r.rolesForAccountID(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Roles = roles
	}
	return list, nil
}

// RoleIDByName resolves a role name to its ID.
func (r *Repository) RoleIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM role WHERE name = $1`, name).Scan(&id)
	return id, err
}

// HasRole reports whether the account already holds the role.
func (r *Repository) HasRole(ctx context.Context, accountID, roleID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM account_role WHERE account_id = $1 AND role_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, accountID, roleID).Scan(&exists)
	return exists, err
}

// AttachRole adds a role assignment.
func (r *Repository) AttachRole(ctx context.Context, accountID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO account_role (account_id, role_id) VALUES ($1, $2)`, accountID, roleID)
	return err
}

// DetachRole removes a role assignment and returns the rows deleted.
func (r *Repository) DetachRole(ctx context.Context, accountID, roleID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_role WHERE account_id = $1 AND role_id = $2`, accountID, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) rolesForAccountID(ctx context.Context, accountID int64) ([]string, error) {
	const query = `SELECT ro.name
		FROM account_role ar
		JOIN role ro ON ro.id = ar.role_id
		WHERE ar.account_id = $1
		ORDER BY ro.name`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}
