package httpx

import (
	"errors"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validErr *shared.ValidationError
		fetchErr *shared.FetchError
		mutErr   *shared.MutationError
	)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case shared.IsAuthExpired(err):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired")
	case errors.As(err, &validErr):
		JSON(w, http.StatusBadRequest, struct {
			ProblemDetail
			Fields map[string]string `json:"fields"`
		}{
			ProblemDetail: ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest},
			Fields:        validErr.Fields,
		})
	case errors.As(err, &mutErr), errors.As(err, &fetchErr):
		Problem(w, http.StatusBadGateway, "Upstream Error", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
