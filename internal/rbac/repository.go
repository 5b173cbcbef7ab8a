package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hilite-app/hilite/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for roles, access pages
// and the role/page permission rules. Reads that serve the decision engine
// are keyed by role-name sets: a principal typically holds more than one
// role and a rule matches when its role is in the caller's set.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ExactRuleExists reports whether any rule grants one of the roles a page
// whose pattern equals the request path literally.
func (r *Repository) ExactRuleExists(ctx context.Context, roleNames []string, path string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1
		FROM role_page_permission rpp
		JOIN role ro ON ro.id = rpp.role_id
		JOIN access_page ap ON ap.id = rpp.access_page_id
		WHERE ro.name = ANY($1) AND ap.path = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, roleNames, path).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// PermissionsForRoles returns every rule held by the role set with its page
// pattern joined in, for the engine's pattern-match phase.
func (r *Repository) PermissionsForRoles(ctx context.Context, roleNames []string) ([]RuleDetail, error) {
	const query = `SELECT rpp.id, rpp.role_id, ro.name, rpp.access_page_id, ap.path
		FROM role_page_permission rpp
		JOIN role ro ON ro.id = rpp.role_id
		JOIN access_page ap ON ap.id = rpp.access_page_id
		WHERE ro.name = ANY($1)
		ORDER BY rpp.id`
	rows, err := r.pool.Query(ctx, query, roleNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuleDetails(rows)
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name string) (Role, error) {
	const query = `INSERT INTO role (name) VALUES ($1) RETURNING id, name, created_at, updated_at`
	var role Role
	err := r.pool.QueryRow(ctx, query, name).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	const query = `SELECT id, name, created_at, updated_at FROM role WHERE id = $1`
	var role Role
	err := r.pool.QueryRow(ctx, query, id).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	const query = `SELECT id, name, created_at, updated_at FROM role WHERE name = $1`
	var role Role
	err := r.pool.QueryRow(ctx, query, name).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// RoleExists reports whether a role with the name is already present.
func (r *Repository) RoleExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM role WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM role ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// DeleteRoleCascade removes a role together with its permission rules and
// account assignments in one transaction, so no orphaned rows survive.
// It returns the number of role rows deleted.
func (r *Repository) DeleteRoleCascade(ctx context.Context, id int64) (int64, error) {
	var deleted int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_page_permission WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM account_role WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM role WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

// CreateAccessPage inserts a new protected path pattern.
func (r *Repository) CreateAccessPage(ctx context.Context, path string) (AccessPage, error) {
	const query = `INSERT INTO access_page (path) VALUES ($1) RETURNING id, path, created_at, updated_at`
	var page AccessPage
	err := r.pool.QueryRow(ctx, query, path).Scan(&page.ID, &page.Path, &page.CreatedAt, &page.UpdatedAt)
	return page, err
}

// GetAccessPage fetches a page by ID.
func (r *Repository) GetAccessPage(ctx context.Context, id int64) (AccessPage, error) {
	const query = `SELECT id, path, created_at, updated_at FROM access_page WHERE id = $1`
	var page AccessPage
	err := r.pool.QueryRow(ctx, query, id).Scan(&page.ID, &page.Path, &page.CreatedAt, &page.UpdatedAt)
	return page, err
}

// AccessPageExists reports whether the pattern is already stored.
func (r *Repository) AccessPageExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM access_page WHERE path = $1)`, path).Scan(&exists)
	return exists, err
}

// ListAccessPages returns all stored patterns ordered by path.
func (r *Repository) ListAccessPages(ctx context.Context) ([]AccessPage, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, path, created_at, updated_at FROM access_page ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pages []AccessPage
	for rows.Next() {
		var page AccessPage
		if err := rows.Scan(&page.ID, &page.Path, &page.CreatedAt, &page.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// DeleteAccessPageCascade removes a page and its rules in one transaction
// and returns the number of page rows deleted.
func (r *Repository) DeleteAccessPageCascade(ctx context.Context, id int64) (int64, error) {
	var deleted int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_page_permission WHERE access_page_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM access_page WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

// RuleExists reports whether the (role, page) grant is already present.
func (r *Repository) RuleExists(ctx context.Context, roleID, pageID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM role_page_permission WHERE role_id = $1 AND access_page_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, roleID, pageID).Scan(&exists)
	return exists, err
}

// CreateRule inserts a (role, page) grant.
func (r *Repository) CreateRule(ctx context.Context, roleID, pageID int64) (AccessRule, error) {
	const query = `INSERT INTO role_page_permission (role_id, access_page_id)
		VALUES ($1, $2) RETURNING id, role_id, access_page_id, created_at`
	var rule AccessRule
	err := r.pool.QueryRow(ctx, query, roleID, pageID).Scan(&rule.ID, &rule.RoleID, &rule.PageID, &rule.CreatedAt)
	return rule, err
}

// DeleteRule removes a grant by ID and returns the number of rows deleted.
func (r *Repository) DeleteRule(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_page_permission WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListRules returns all grants with role and page detail.
func (r *Repository) ListRules(ctx context.Context) ([]RuleDetail, error) {
	const query = `SELECT rpp.id, rpp.role_id, ro.name, rpp.access_page_id, ap.path
		FROM role_page_permission rpp
		JOIN role ro ON ro.id = rpp.role_id
		JOIN access_page ap ON ap.id = rpp.access_page_id
		ORDER BY rpp.id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuleDetails(rows)
}

// ListRulesByRoleName returns the grants held by a single role.
func (r *Repository) ListRulesByRoleName(ctx context.Context, roleName string) ([]RuleDetail, error) {
	const query = `SELECT rpp.id, rpp.role_id, ro.name, rpp.access_page_id, ap.path
		FROM role_page_permission rpp
		JOIN role ro ON ro.id = rpp.role_id
		JOIN access_page ap ON ap.id = rpp.access_page_id
		WHERE ro.name = $1
		ORDER BY rpp.id`
	rows, err := r.pool.Query(ctx, query, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuleDetails(rows)
}

// ReplaceRulesForRole swaps the role's grant set for the given pages in one
// transaction: missing grants are attached, grants outside the new set are
// detached, grants already in place are left untouched.
func (r *Repository) ReplaceRulesForRole(ctx context.Context, roleID int64, pageIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT access_page_id FROM role_page_permission WHERE role_id = $1`, roleID)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{})
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		keep := make(map[int64]struct{}, len(pageIDs))
		for _, id := range pageIDs {
			keep[id] = struct{}{}
			if _, ok := existing[id]; !ok {
				if _, err := tx.Exec(ctx,
					`INSERT INTO role_page_permission (role_id, access_page_id) VALUES ($1, $2)`, roleID, id); err != nil {
					return err
				}
			}
		}
		for id := range existing {
			if _, ok := keep[id]; !ok {
				if _, err := tx.Exec(ctx,
					`DELETE FROM role_page_permission WHERE role_id = $1 AND access_page_id = $2`, roleID, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func scanRuleDetails(rows pgx.Rows) ([]RuleDetail, error) {
	var details []RuleDetail
	for rows.Next() {
		var d RuleDetail
		if err := rows.Scan(&d.ID, &d.RoleID, &d.RoleName, &d.PageID, &d.Path); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}
