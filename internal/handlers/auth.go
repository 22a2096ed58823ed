package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"library-lending/internal/middleware"
	"library-lending/internal/models"
	"library-lending/internal/session"
)

// Authenticator weryfikuje dane logowania i zakłada konta (Firebase Authentication)
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*models.User, error)
	Register(ctx context.Context, email, password, username string) (*models.User, error)
}

// AuthHandler obsługuje logowanie i rejestrację
type AuthHandler struct {
	auth     Authenticator
	sessions *session.Manager
	logger   *slog.Logger
}

// NewAuthHandler tworzy nowy handler autoryzacji. auth może być nil,
// wtedy logowanie i rejestracja zwracają 503.
func NewAuthHandler(auth Authenticator, sessions *session.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, logger: logger}
}

// credentials to dane z formularza lub JSON
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// readCredentials czyta dane logowania z JSON albo z formularza
func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return c, models.InvalidInput("niepoprawny JSON")
		}
	} else {
		c.Email = r.FormValue("email")
		c.Password = r.FormValue("password")
		c.Username = r.FormValue("username")
	}
	c.Email = strings.TrimSpace(c.Email)
	c.Username = strings.TrimSpace(c.Username)
	if c.Email == "" || c.Password == "" {
		return c, models.InvalidInput("email i hasło są wymagane")
	}
	return c, nil
}

func (h *AuthHandler) available(w http.ResponseWriter) bool {
	if h.auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "System autoryzacji nie jest dostępny",
			Code:  "auth_unavailable",
		})
		return false
	}
	return true
}

// startSession tworzy sesję i ustawia cookie
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	sess, err := h.sessions.CreateSession(user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.sessions.SetCookie(w, sess.ID)
	writeJSON(w, status, user)
}

// Login loguje użytkownika (POST /login)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	c, err := readCredentials(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !user.IsActive {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Konto zostało dezaktywowane", Code: "user_disabled"})
		return
	}

	h.logger.Info("Użytkownik zalogowany", "user_id", user.ID, "role", user.Role)
	h.startSession(w, r, user, http.StatusOK)
}

// Register zakłada konto studenta i loguje go (POST /register)
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	c, err := readCredentials(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(c.Password) < 6 {
		badRequest(w, "hasło musi mieć co najmniej 6 znaków")
		return
	}

	user, err := h.auth.Register(r.Context(), c.Email, c.Password, c.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Zarejestrowano użytkownika", "user_id", user.ID)
	h.startSession(w, r, user, http.StatusCreated)
}

// Logout kończy sesję (POST /logout)
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		h.sessions.DeleteSession(sess.ID)
	}
	session.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me zwraca zalogowanego użytkownika (GET /me)
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}
