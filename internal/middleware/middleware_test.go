package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/internal/models"
	"library-lending/internal/session"
)

type fakeVerifier map[string]*models.User

func (f fakeVerifier) UserFromToken(_ context.Context, token string) (*models.User, error) {
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	if user, ok := UserFromContext(r.Context()); ok {
		_, _ = w.Write([]byte(user.ID))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
}

func TestAuthenticate(t *testing.T) {
	sessions := session.NewManager(time.Hour)
	student := &models.User{ID: "student-1", Role: models.RoleStudent, IsActive: true}
	sess, err := sessions.CreateSession(student)
	require.NoError(t, err)

	verifier := fakeVerifier{
		"good":     {ID: "token-user", Role: models.RoleStudent, IsActive: true},
		"inactive": {ID: "inactive-user", Role: models.RoleStudent, IsActive: false},
	}
	handler := Authenticate(sessions, verifier, nil)(http.HandlerFunc(whoAmI))

	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"session cookie", sess.ID, "", "student-1"},
		{"bearer token", "", "Bearer good", "token-user"},
		{"cookie wins over token", sess.ID, "Bearer good", "student-1"},
		{"invalid token", "", "Bearer bad", "anonymous"},
		{"inactive token user", "", "Bearer inactive", "anonymous"},
		{"malformed header", "", "Token good", "anonymous"},
		{"unknown session", "nope", "", "anonymous"},
		{"nothing", "", "", "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: session.CookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestRequireStaff(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequireStaff(ok)

	tests := []struct {
		name string
		user *models.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"student", &models.User{ID: "s", Role: models.RoleStudent, IsActive: true}, http.StatusForbidden},
		{"inactive staff", &models.User{ID: "x", Role: models.RoleStaff, IsActive: false}, http.StatusForbidden},
		{"staff", &models.User{ID: "st", Role: models.RoleStaff, IsActive: true}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/staff", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
