// Package response writes JSON bodies and maps service errors to status codes.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/bakery/internal/service/errs"
)

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Error sending response", "error", err)
	}
}

// Error writes {"error": msg} with the given status.
func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	JSON(w, r, status, ErrorBody{Error: msg})
}

// FromError picks the status for err: 400 for validation, 404 for not found, 500 otherwise.
// Internal failures are logged and reported without their details.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		Error(w, r, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, errs.ErrNotFound):
		Error(w, r, http.StatusNotFound, notFoundMessage(err))
	default:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		Error(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func validationMessage(err error) string {
	var vErr *errs.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Field + " " + vErr.Reason
	}

	return err.Error()
}

func notFoundMessage(err error) string {
	var nfErr *errs.NotFoundError
	if errors.As(err, &nfErr) {
		return nfErr.Error()
	}

	return "not found"
}
