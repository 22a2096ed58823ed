// Package app składa zależności wspólne dla serwera i narzędzi CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"library-lending/internal/config"
	"library-lending/internal/firebase"
	"library-lending/internal/library"
	"library-lending/internal/storage/memory"
	"library-lending/internal/storage/postgres"
)

// App to otwarte zasoby aplikacji
type App struct {
	Store    library.Store
	Service  *library.Service
	Firebase *firebase.Client // nil gdy Firebase nie jest skonfigurowany
	Logger   *slog.Logger

	closers []func()
}

// NewLogger tworzy logger JSON na stdout
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Open łączy się z wybranym magazynem i opcjonalnie z Firebase
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Logger: logger}

	if cfg.FirebaseEnabled() {
		fb, err := firebase.New(ctx, cfg.Firebase)
		switch {
		case err == nil:
			a.Firebase = fb
			a.closers = append(a.closers, func() { _ = fb.Close() })
			logger.Info("Firebase zainicjalizowany pomyślnie")
		case cfg.Backend == config.BackendFirestore:
			return nil, err
		default:
			logger.Warn("Firebase nie został zainicjalizowany, logowanie niedostępne", "error", err)
		}
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = pg
		a.closers = append(a.closers, pg.Close)
	case config.BackendFirestore:
		a.Store = a.Firebase.Store()
	default:
		a.Store = memory.New()
	}
	logger.Info("Magazyn danych gotowy", "backend", cfg.Backend)

	a.Service = library.NewService(a.Store, library.WithLogger(logger))
	return a, nil
}

// MustOpen wczytuje konfigurację i otwiera aplikację albo kończy proces
func MustOpen(ctx context.Context) (*App, config.Config) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Błąd konfiguracji: %v\n", err)
		os.Exit(1)
	}
	logger := NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	a, err := Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Nie można otworzyć magazynu danych", "error", err)
		os.Exit(1)
	}
	return a, cfg
}

// Close zwalnia zasoby w odwrotnej kolejności
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
