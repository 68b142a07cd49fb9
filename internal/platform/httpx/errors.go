// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	var cerr *shared.ConflictError

	switch {
	case errors.As(err, &verr):
		ProblemFields(w, http.StatusBadRequest, "Validation Failed", verr.Fields)
	case errors.As(err, &cerr):
		Problem(w, http.StatusConflict, "Conflict", cerr.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
