package handlers

import (
	"log/slog"
	"net/http"

	"library-lending/internal/library"
	"library-lending/internal/models"
)

// UserHandler obsługuje profil studenta
type UserHandler struct {
	svc    *library.Service
	logger *slog.Logger
}

// NewUserHandler tworzy handler profilu
func NewUserHandler(svc *library.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// ProfileResponse to profil z historią próśb
type ProfileResponse struct {
	User    *models.User        `json:"user"`
	History []*models.Borrowing `json:"history"`
	Active  int                 `json:"active"`
}

// Profile zwraca historię próśb zalogowanego użytkownika, najnowsze najpierw (GET /profile)
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	history, err := h.svc.StudentHistory(r.Context(), user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	active := 0
	for _, b := range history {
		if b.Status.IsActive() {
			active++
		}
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user, History: history, Active: active})
}
