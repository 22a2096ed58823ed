package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"library-lending/internal/library"
	authmw "library-lending/internal/middleware"
	"library-lending/internal/session"
)

// Deps to zależności routera
type Deps struct {
	Service  *library.Service
	Sessions *session.Manager
	Auth     Authenticator        // nil gdy Firebase nie jest skonfigurowany
	Verifier authmw.TokenVerifier // nil gdy Firebase nie jest skonfigurowany
	Pinger   Pinger               // nil dla magazynu w pamięci
	Backend  string
	Logger   *slog.Logger
}

// NewRouter składa wszystkie trasy HTTP aplikacji
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware do logowania requestów
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Sesja lub token Firebase - użytkownik trafia do kontekstu
	r.Use(authmw.Authenticate(deps.Sessions, deps.Verifier, logger))

	booksHandler := NewBooksHandler(deps.Service, logger)
	authHandler := NewAuthHandler(deps.Auth, deps.Sessions, logger)
	staffHandler := NewStaffHandler(deps.Service, logger)
	userHandler := NewUserHandler(deps.Service, logger)

	r.Method(http.MethodGet, "/healthz", NewHealthHandler(deps.Backend, deps.Pinger, logger))

	// Routy dla autoryzacji
	r.Post("/login", authHandler.Login)
	r.Post("/register", authHandler.Register)
	r.Post("/logout", authHandler.Logout)
	r.With(authmw.RequireAuth).Get("/me", authHandler.Me)

	// Katalog - publiczny
	r.Route("/books", func(r chi.Router) {
		r.Get("/", booksHandler.List)
		r.Get("/{id}", booksHandler.Show)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth)
			r.Post("/{id}/request", booksHandler.RequestBorrow)
		})
	})

	// Historia próśb zalogowanego użytkownika
	r.With(authmw.RequireAuth).Get("/profile", userHandler.Profile)

	// Panel personelu
	r.Route("/staff", func(r chi.Router) {
		r.Use(authmw.RequireStaff)
		r.Get("/", staffHandler.Dashboard)

		r.Get("/pending-requests", staffHandler.PendingRequests)
		r.Post("/pending-requests/bulk", staffHandler.Bulk)
		r.Post("/pending-requests/{id}/approve", staffHandler.Approve)
		r.Post("/pending-requests/{id}/reject", staffHandler.Reject)
		r.Post("/borrowings/{id}/return", staffHandler.Return)

		r.Post("/books", staffHandler.AddBook)
		r.Post("/import", staffHandler.Import)
	})

	return r
}
