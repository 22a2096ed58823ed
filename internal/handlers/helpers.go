package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"library-lending/internal/firebase"
	"library-lending/internal/middleware"
	"library-lending/internal/models"
)

// ErrorResponse to treść odpowiedzi z błędem
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON zapisuje odpowiedź JSON z podanym statusem
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Błąd kodowania odpowiedzi", "error", err)
	}
}

// errorStatus odwzorowuje błąd domenowy na status HTTP i kod błędu
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrBookUnavailable):
		return http.StatusConflict, "book_unavailable"
	case errors.Is(err, models.ErrDuplicateActiveRequest):
		return http.StatusConflict, "duplicate_active_request"
	case errors.Is(err, models.ErrStaleRequest):
		return http.StatusConflict, "stale_request"
	case errors.Is(err, models.ErrConstraintViolation):
		return http.StatusConflict, "constraint_violation"
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, firebase.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, firebase.ErrUserDisabled):
		return http.StatusForbidden, "user_disabled"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError zapisuje błąd jako JSON. Błędy infrastruktury są logowane
// i nie trafiają do klienta.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Błąd obsługi żądania",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()))
		msg = "Wewnętrzny błąd serwera"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// badRequest zgłasza błąd walidacji danych wejściowych
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "invalid_input"})
}

// currentUser zwraca zalogowanego użytkownika albo nil
func currentUser(r *http.Request) *models.User {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil
	}
	return user
}
