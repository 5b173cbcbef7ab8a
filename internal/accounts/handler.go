package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hilite-app/hilite/internal/platform/httpx"
	"github.com/hilite-app/hilite/internal/shared"
)

// Handler wires member endpoints: self-service under the authenticated API
// and member administration under the admin subtree.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountMemberRoutes registers self-service routes.
func (h *Handler) MountMemberRoutes(r chi.Router) {
	r.Get("/me", h.me)
}

// MountAdminRoutes registers member administration routes. The caller gates
// the subtree on ROLE_ADMIN.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/members", h.list)
	r.Get("/members/{username}", h.get)
	r.Post("/members/{username}/roles", h.addRole)
	r.Delete("/members/{username}/roles/{roleName}", h.removeRole)
}

type memberResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type roleAssignmentRequest struct {
	RoleName string `json:"roleName" validate:"required"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, r, shared.ErrAuthRequired)
		return
	}
	account, err := h.service.Get(r.Context(), principal.Subject)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMemberResponse(account))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]memberResponse, len(list))
	for i := range list {
		out[i] = toMemberResponse(&list[i])
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMemberResponse(account))
}

func (h *Handler) addRole(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req roleAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "roleName required"))
		return
	}
	if err := h.service.AddRole(r.Context(), username, req.RoleName); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("role assigned",
		slog.String("username", username), slog.String("role", req.RoleName))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	roleName := chi.URLParam(r, "roleName")
	if err := h.service.RemoveRole(r.Context(), username, roleName); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("role removed",
		slog.String("username", username), slog.String("role", roleName))
	w.WriteHeader(http.StatusNoContent)
}

func toMemberResponse(a *Account) memberResponse {
	roles := a.Roles
	if roles == nil {
		roles = []string{}
	}
	return memberResponse{ID: a.ID, Username: a.Username, Email: a.Email, Roles: roles}
}
