package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"library-lending/internal/models"
)

// Klucze do przechowywania wartości w context
type contextKey string

const (
	userKey contextKey = "user"
)

// TokenVerifier zamienia token ID (np. Firebase) na profil użytkownika
type TokenVerifier interface {
	UserFromToken(ctx context.Context, idToken string) (*models.User, error)
}

// bearerToken wyciąga token z formatu "Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// RequireAuth wymaga zalogowania aktywnego użytkownika
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Wymagane logowanie")
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusForbidden, "Konto użytkownika jest nieaktywne")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff wymaga zalogowania i roli personelu
func RequireStaff(next http.Handler) http.Handler {
	return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		if !user.IsStaff() {
			writeError(w, http.StatusForbidden, "Brak uprawnień")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// WithUser zapisuje użytkownika w kontekście
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext pobiera dane użytkownika z kontekstu
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
