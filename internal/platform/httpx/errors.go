package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/shared"
)

// Error maps a domain error onto the appropriate problem response.
func Error(w http.ResponseWriter, err error) {
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		Problem(w, http.StatusBadRequest, "Validation failed", verr.Error())
		return
	}

	var derr *shared.DomainError
	if errors.As(err, &derr) {
		Problem(w, statusFor(derr.Kind), derr.Kind.String(), derr.Msg)
		return
	}

	Problem(w, http.StatusInternalServerError, "Internal error", "")
}

func statusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindLifecycle:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
