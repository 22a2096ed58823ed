package middleware

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"library-lending/internal/session"
)

const sessionKey contextKey = "session"

// Authenticate ustala zalogowanego użytkownika: najpierw z cookie sesji,
// a gdy go brak z nagłówka "Authorization: Bearer <token>". Nie wymaga logowania.
func Authenticate(sessions *session.Manager, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if sess, ok := sessions.FromRequest(r); ok {
				ctx = context.WithValue(ctx, sessionKey, sess)
				ctx = WithUser(ctx, sess.User)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if token, ok := bearerToken(r); ok && verifier != nil {
				user, err := verifier.UserFromToken(ctx, token)
				if err != nil {
					logger.Warn("Odrzucono token", "error", err, "request_id", chimw.GetReqID(ctx))
				} else if user.IsActive {
					ctx = WithUser(ctx, user)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext pobiera sesję z kontekstu
func SessionFromContext(ctx context.Context) *session.Session {
	sess, ok := ctx.Value(sessionKey).(*session.Session)
	if !ok {
		return nil
	}
	return sess
}
