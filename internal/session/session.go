// Package session przechowuje sesje zalogowanych użytkowników w pamięci procesu.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"library-lending/internal/models"
)

const (
	// CookieName to nazwa cookie z ID sesji
	CookieName = "session_id"

	cleanupInterval = time.Hour
)

// Session reprezentuje sesję użytkownika
type Session struct {
	ID        string
	UserID    string
	User      *models.User
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager zarządza sesjami użytkowników
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
}

// NewManager tworzy manager sesji o podanym czasie życia
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL zwraca czas życia sesji
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CreateSession tworzy nową sesję dla użytkownika
func (m *Manager) CreateSession(user *models.User) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &Session{
		ID:        sessionID,
		UserID:    user.ID,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	return session, nil
}

// GetSession pobiera sesję po ID
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}

	// Sprawdź czy sesja nie wygasła
	if m.now().After(session.ExpiresAt) {
		return nil, false
	}

	return session, true
}

// DeleteSession usuwa sesję
func (m *Manager) DeleteSession(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// FromRequest pobiera sesję na podstawie cookie
func (m *Manager) FromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}
	return m.GetSession(cookie.Value)
}

// SetCookie ustawia cookie z ID sesji
func (m *Manager) SetCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie usuwa cookie z sesją
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// RunCleanup usuwa wygasłe sesje co godzinę, aż do anulowania kontekstu
func (m *Manager) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Manager) removeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// generateSessionID generuje losowy ID sesji
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
