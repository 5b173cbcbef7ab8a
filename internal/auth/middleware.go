// Package auth covers the login/signup endpoints and the per-request
// authentication pipeline that turns a bearer token into a principal.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hilite-app/hilite/internal/platform/httpx"
	"github.com/hilite-app/hilite/internal/shared"
)

const bearerPrefix = "Bearer "

// TokenValidator verifies a raw token and returns its subject.
type TokenValidator interface {
	Validate(raw string) (string, error)
}

// RoleResolver returns the subject's current role set from storage.
type RoleResolver interface {
	RolesForUsername(ctx context.Context, username string) ([]string, error)
}

// Pipeline is the per-request authentication filter. A request without a
// bearer token proceeds unauthenticated (public routes exist; authorization
// is enforced downstream). A request with an invalid token is terminated
// with 401. A valid token yields a principal whose roles are resolved fresh
// from storage; tokens carry no role claims, so a role revoked after login
// takes effect on the very next request.
type Pipeline struct {
	Logger *slog.Logger
	Tokens TokenValidator
	Roles  RoleResolver
}

// Middleware installs the pipeline on a handler chain.
func (p Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := p.Tokens.Validate(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			httpx.RespondError(w, r, shared.ErrInvalidToken)
			return
		}

		roles, err := p.Roles.RolesForUsername(r.Context(), subject)
		if err != nil {
			var domainErr *shared.Error
			if errors.As(err, &domainErr) && domainErr.Kind == shared.KindNotFound {
				// Token subject no longer resolves to an account. Collapse
				// into the uniform token failure.
				httpx.RespondError(w, r, shared.ErrInvalidToken)
				return
			}
			if p.Logger != nil {
				p.Logger.Error("resolve roles", slog.Any("error", err))
			}
			httpx.RespondError(w, r, shared.ErrInternal)
			return
		}

		principal := &shared.Principal{Subject: subject, Roles: roles}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}
