package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hilite-app/hilite/internal/platform/httpx"
	"github.com/hilite-app/hilite/internal/shared"
)

// Handler wires the admin-facing permission management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the management routes. The caller is responsible
// for gating the subtree on ROLE_ADMIN.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Post("/", h.createRole)
		r.Get("/", h.listRoles)
		r.Delete("/{id}", h.deleteRole)
	})
	r.Route("/access-pages", func(r chi.Router) {
		r.Post("/", h.createAccessPage)
		r.Get("/", h.listAccessPages)
		r.Delete("/{id}", h.deleteAccessPage)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Post("/", h.createRule)
		r.Get("/", h.listRules)
		r.Get("/by-role", h.rulesByRole)
		r.Delete("/{id}", h.deleteRule)
		r.Put("/roles/{roleID}", h.replaceRulesForRole)
	})
}

type roleRequest struct {
	Name string `json:"name" validate:"required"`
}

type roleResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type accessPageRequest struct {
	Path string `json:"path" validate:"required,startswith=/"`
}

type accessPageResponse struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

type ruleRequest struct {
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
	PageID int64 `json:"pageId" validate:"required,gt=0"`
}

type ruleResponse struct {
	ID       int64  `json:"id"`
	RoleID   int64  `json:"roleId"`
	RoleName string `json:"roleName"`
	PageID   int64  `json:"pageId"`
	Path     string `json:"path"`
}

type replaceRulesRequest struct {
	PageIDs []int64 `json:"pageIds" validate:"required,dive,gt=0"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("role created", slog.String("name", role.Name))
	httpx.JSON(w, http.StatusCreated, roleResponse{ID: role.ID, Name: role.Name})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = roleResponse{ID: role.ID, Name: role.Name}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("role deleted", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createAccessPage(w http.ResponseWriter, r *http.Request) {
	var req accessPageRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	page, err := h.service.CreateAccessPage(r.Context(), req.Path)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("access page created", slog.String("path", page.Path))
	httpx.JSON(w, http.StatusCreated, accessPageResponse{ID: page.ID, Path: page.Path})
}

func (h *Handler) listAccessPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.service.ListAccessPages(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]accessPageResponse, len(pages))
	for i, page := range pages {
		out[i] = accessPageResponse{ID: page.ID, Path: page.Path}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteAccessPage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAccessPage(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("access page deleted", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), req.RoleID, req.PageID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("permission created",
		slog.String("role", rule.RoleName), slog.String("path", rule.Path))
	httpx.JSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponses(rules))
}

func (h *Handler) rulesByRole(w http.ResponseWriter, r *http.Request) {
	roleName := r.URL.Query().Get("roleName")
	if roleName == "" {
		httpx.RespondError(w, r, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "roleName query parameter required"))
		return
	}
	rules, err := h.service.RulesByRole(r.Context(), roleName)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponses(rules))
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("permission deleted", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replaceRulesForRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req replaceRulesRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.service.ReplaceRulesForRole(r.Context(), roleID, req.PageIDs); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("permissions replaced",
		slog.Int64("roleId", roleID), slog.Int("pages", len(req.PageIDs)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, r, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "malformed request body"))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := make(map[string]string)
		for _, fieldErr := range err.(validator.ValidationErrors) {
			fields[fieldErr.Field()] = fieldErr.Error()
		}
		httpx.RespondError(w, r, shared.
			NewError(shared.KindValidation, "VALIDATION_FAILED", "validation failed").
			WithFields(fields))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, r, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "invalid id"))
		return 0, false
	}
	return id, true
}

func toRuleResponse(d RuleDetail) ruleResponse {
	return ruleResponse{ID: d.ID, RoleID: d.RoleID, RoleName: d.RoleName, PageID: d.PageID, Path: d.Path}
}

func toRuleResponses(details []RuleDetail) []ruleResponse {
	out := make([]ruleResponse, len(details))
	for i, d := range details {
		out[i] = toRuleResponse(d)
	}
	return out
}
