package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hilite-app/hilite/internal/accounts"
	"github.com/hilite-app/hilite/internal/platform/httpx"
	"github.com/hilite-app/hilite/internal/shared"
)

// AccountService is the slice of the account layer the auth endpoints need.
type AccountService interface {
	Authenticate(ctx context.Context, username, password string) (*accounts.Account, error)
	Register(ctx context.Context, username, password, passwordConfirm, email string) (*accounts.Account, error)
	EmailAvailable(ctx context.Context, email string) (bool, error)
}

// TokenIssuer signs a token for an authenticated subject.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// Handler wires the public authentication endpoints.
type Handler struct {
	logger    *slog.Logger
	service   AccountService
	tokens    TokenIssuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service AccountService, tokens TokenIssuer) *Handler {
	return &Handler{logger: logger, service: service, tokens: tokens, validator: validator.New()}
}

// MountRoutes registers the public auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/signup", h.signup)
	r.Get("/check-email", h.checkEmail)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type signupRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=64"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type checkEmailResponse struct {
	Available bool `json:"available"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	account, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		// Uniform failure whether the username exists or the password was
		// wrong.
		h.logger.Warn("login failed", slog.String("username", req.Username))
		httpx.RespondError(w, r, shared.ErrInvalidCredentials)
		return
	}
	tok, err := h.tokens.Issue(account.Username)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, r, shared.ErrInternal)
		return
	}
	h.logger.Info("login", slog.String("username", account.Username))
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:    tok,
		Username: account.Username,
		Message:  "login successful",
	})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	account, err := h.service.Register(r.Context(), req.Username, req.Password, req.PasswordConfirm, req.Email)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.Info("signup", slog.String("username", account.Username))
	httpx.JSON(w, http.StatusCreated, messageResponse{Message: "signup successful"})
}

func (h *Handler) checkEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httpx.RespondError(w, r, shared.NewError(shared.KindValidation, "VALIDATION_FAILED", "email query parameter required"))
		return
	}
	available, err := h.service.EmailAvailable(r.Context(), email)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkEmailResponse{Available: available})
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
