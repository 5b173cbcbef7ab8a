package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/hilite-app/hilite/internal/shared"
)

func statusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindAuthentication:
		return http.StatusUnauthorized
	case shared.KindAccessDenied:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps a domain error to its HTTP response. Unclassified errors
// become a 500 with no detail leaked to the client.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) {
		domainErr = shared.ErrInternal
	}
	status := statusFor(domainErr.Kind)
	JSON(w, status, APIError{
		Timestamp:   time.Now().UTC(),
		Status:      status,
		Error:       http.StatusText(status),
		Code:        domainErr.Code,
		Message:     domainErr.Message,
		Path:        r.URL.Path,
		FieldErrors: domainErr.Fields,
	})
}
