package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/hilite-app/hilite/internal/accounts"
	"github.com/hilite-app/hilite/internal/auth"
	"github.com/hilite-app/hilite/internal/observability"
	"github.com/hilite-app/hilite/internal/rbac"
	"github.com/hilite-app/hilite/internal/token"
)

// fakeStore backs both the account and rbac ports for router-level tests.
type fakeStore struct {
	accounts    map[int64]*accounts.Account
	roles       map[int64]rbac.Role
	pages       map[int64]rbac.AccessPage
	rules       map[int64]rbac.AccessRule
	assignments map[int64][]int64
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:    make(map[int64]*accounts.Account),
		roles:       make(map[int64]rbac.Role),
		pages:       make(map[int64]rbac.AccessPage),
		rules:       make(map[int64]rbac.AccessRule),
		assignments: make(map[int64][]int64),
	}
}

func (s *fakeStore) next() int64 { s.nextID++; return s.nextID }

// accounts.RepositoryPort

func (s *fakeStore) FindByUsername(_ context.Context, username string) (*accounts.Account, error) {
	for _, a := range s.accounts {
		if a.Username == username {
			clone := *a
			clone.Roles = nil
			for _, roleID := range s.assignments[a.ID] {
				clone.Roles = append(clone.Roles, s.roles[roleID].Name)
			}
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := s.FindByUsername(ctx, username)
	return err == nil, nil
}

func (s *fakeStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, a := range s.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreateWithRole(_ context.Context, username, passwordHash, email string, roleID int64) (*accounts.Account, error) {
	account := &accounts.Account{ID: s.next(), Username: username, PasswordHash: passwordHash, Email: email}
	s.accounts[account.ID] = account
	s.assignments[account.ID] = []int64{roleID}
	clone := *account
	return &clone, nil
}

func (s *fakeStore) List(_ context.Context) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *fakeStore) RoleIDByName(_ context.Context, name string) (int64, error) {
	for id, role := range s.roles {
		if role.Name == name {
			return id, nil
		}
	}
	return 0, pgx.ErrNoRows
}

func (s *fakeStore) HasRole(_ context.Context, accountID, roleID int64) (bool, error) {
	for _, held := range s.assignments[accountID] {
		if held == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) AttachRole(_ context.Context, accountID, roleID int64) error {
	s.assignments[accountID] = append(s.assignments[accountID], roleID)
	return nil
}

func (s *fakeStore) DetachRole(_ context.Context, accountID, roleID int64) (int64, error) {
	held := s.assignments[accountID]
	for i, id := range held {
		if id == roleID {
			s.assignments[accountID] = append(held[:i], held[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// rbac.RepositoryPort

func (s *fakeStore) ExactRuleExists(_ context.Context, roleNames []string, path string) (bool, error) {
	for _, rule := range s.rules {
		if s.pages[rule.PageID].Path != path {
			continue
		}
		for _, name := range roleNames {
			if s.roles[rule.RoleID].Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *fakeStore) PermissionsForRoles(_ context.Context, roleNames []string) ([]rbac.RuleDetail, error) {
	var out []rbac.RuleDetail
	for _, rule := range s.rules {
		role := s.roles[rule.RoleID]
		for _, name := range roleNames {
			if role.Name == name {
				out = append(out, rbac.RuleDetail{
					ID: rule.ID, RoleID: role.ID, RoleName: role.Name,
					PageID: rule.PageID, Path: s.pages[rule.PageID].Path,
				})
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CreateRole(_ context.Context, name string) (rbac.Role, error) {
	role := rbac.Role{ID: s.next(), Name: name}
	s.roles[role.ID] = role
	return role, nil
}

func (s *fakeStore) GetRole(_ context.Context, id int64) (rbac.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, pgx.ErrNoRows
	}
	return role, nil
}

func (s *fakeStore) GetRoleByName(_ context.Context, name string) (rbac.Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return rbac.Role{}, pgx.ErrNoRows
}

func (s *fakeStore) RoleExists(ctx context.Context, name string) (bool, error) {
	_, err := s.GetRoleByName(ctx, name)
	return err == nil, nil
}

func (s *fakeStore) ListRoles(_ context.Context) ([]rbac.Role, error) {
	var out []rbac.Role
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *fakeStore) DeleteRoleCascade(_ context.Context, id int64) (int64, error) {
	if _, ok := s.roles[id]; !ok {
		return 0, nil
	}
	delete(s.roles, id)
	return 1, nil
}

func (s *fakeStore) CreateAccessPage(_ context.Context, path string) (rbac.AccessPage, error) {
	page := rbac.AccessPage{ID: s.next(), Path: path}
	s.pages[page.ID] = page
	return page, nil
}

func (s *fakeStore) GetAccessPage(_ context.Context, id int64) (rbac.AccessPage, error) {
	page, ok := s.pages[id]
	if !ok {
		return rbac.AccessPage{}, pgx.ErrNoRows
	}
	return page, nil
}

func (s *fakeStore) AccessPageExists(_ context.Context, path string) (bool, error) {
	for _, page := range s.pages {
		if page.Path == path {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListAccessPages(_ context.Context) ([]rbac.AccessPage, error) {
	var out []rbac.AccessPage
	for _, page := range s.pages {
		out = append(out, page)
	}
	return out, nil
}

func (s *fakeStore) DeleteAccessPageCascade(_ context.Context, id int64) (int64, error) {
	if _, ok := s.pages[id]; !ok {
		return 0, nil
	}
	delete(s.pages, id)
	return 1, nil
}

func (s *fakeStore) RuleExists(_ context.Context, roleID, pageID int64) (bool, error) {
	for _, rule := range s.rules {
		if rule.RoleID == roleID && rule.PageID == pageID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreateRule(_ context.Context, roleID, pageID int64) (rbac.AccessRule, error) {
	rule := rbac.AccessRule{ID: s.next(), RoleID: roleID, PageID: pageID}
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *fakeStore) DeleteRule(_ context.Context, id int64) (int64, error) {
	if _, ok := s.rules[id]; !ok {
		return 0, nil
	}
	delete(s.rules, id)
	return 1, nil
}

func (s *fakeStore) ListRules(ctx context.Context) ([]rbac.RuleDetail, error) {
	var names []string
	for _, role := range s.roles {
		names = append(names, role.Name)
	}
	return s.PermissionsForRoles(ctx, names)
}

func (s *fakeStore) ListRulesByRoleName(ctx context.Context, roleName string) ([]rbac.RuleDetail, error) {
	return s.PermissionsForRoles(ctx, []string{roleName})
}

func (s *fakeStore) ReplaceRulesForRole(_ context.Context, roleID int64, pageIDs []int64) error {
	for id, rule := range s.rules {
		if rule.RoleID == roleID {
			delete(s.rules, id)
		}
	}
	for _, pageID := range pageIDs {
		rule := rbac.AccessRule{ID: s.next(), RoleID: roleID, PageID: pageID}
		s.rules[rule.ID] = rule
	}
	return nil
}

func newTestServer(t *testing.T) (http.Handler, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	logger := slog.Default()

	tokens, err := token.NewService("router-test-secret", time.Hour)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	engine := rbac.NewEngine(store, nil, logger)
	rbacService := rbac.NewService(store, nil, logger)
	require.NoError(t, rbacService.EnsureDefaultRoles(context.Background()))

	accountsService := accounts.NewService(store, rbac.DefaultRoleUser)

	router := NewRouter(RouterParams{
		Logger:          logger,
		Config:          &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		AuthHandler:     auth.NewHandler(logger, accountsService, tokens),
		AccountsHandler: accounts.NewHandler(logger, accountsService),
		RBACHandler:     rbac.NewHandler(logger, rbacService),
		AuthPipeline:    auth.Pipeline{Logger: logger, Tokens: tokens, Roles: accountsService},
		RBACMiddleware:  rbac.Middleware{Engine: engine, Logger: logger, Metrics: metrics},
		Metrics:         metrics,
	})
	return router, store
}

func do(router http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()
	rec := do(router, http.MethodPost, "/login",
		fmt.Sprintf(`{"username":%q,"password":%q}`, username, password), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestSignupLoginAndAuthorization(t *testing.T) {
	router, store := newTestServer(t)

	rec := do(router, http.MethodPost, "/signup",
		`{"username":"alice","password":"s3cret-pass","passwordConfirm":"s3cret-pass","email":"alice@example.com"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	tokenStr := loginAs(t, router, "alice", "s3cret-pass")

	// No rule grants /api/me yet, so an authenticated user is still denied.
	rec = do(router, http.MethodGet, "/api/me", "", tokenStr)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Unauthenticated callers get 401, not 403.
	rec = do(router, http.MethodGet, "/api/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Grant ROLE_USER the /api/me page, then the same request passes.
	role, err := store.GetRoleByName(context.Background(), rbac.DefaultRoleUser)
	require.NoError(t, err)
	page, err := store.CreateAccessPage(context.Background(), "/api/me")
	require.NoError(t, err)
	_, err = store.CreateRule(context.Background(), role.ID, page.ID)
	require.NoError(t, err)

	rec = do(router, http.MethodGet, "/api/me", "", tokenStr)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "alice", me.Username)
	require.Equal(t, []string{rbac.DefaultRoleUser}, me.Roles)
}

func TestAdminSurfaceRequiresAdminRole(t *testing.T) {
	router, store := newTestServer(t)

	rec := do(router, http.MethodPost, "/signup",
		`{"username":"alice","password":"s3cret-pass","passwordConfirm":"s3cret-pass","email":"alice@example.com"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	userToken := loginAs(t, router, "alice", "s3cret-pass")

	rec = do(router, http.MethodGet, "/api/admin/roles", "", userToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodGet, "/api/admin/roles", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Promote alice to admin; roles are resolved per request, so the
	// existing token picks up the new role immediately.
	account, err := store.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	adminRole, err := store.GetRoleByName(context.Background(), rbac.DefaultRoleAdmin)
	require.NoError(t, err)
	require.NoError(t, store.AttachRole(context.Background(), account.ID, adminRole.ID))

	rec = do(router, http.MethodGet, "/api/admin/roles", "", userToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(router, http.MethodPost, "/signup",
		`{"username":"alice","password":"s3cret-pass","passwordConfirm":"s3cret-pass","email":"alice@example.com"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodPost, "/login", `{"username":"alice","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodGet, "/api/me", "", "garbage-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t)
	rec := do(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
