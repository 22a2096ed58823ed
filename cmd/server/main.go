package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library-lending/internal/app"
	"library-lending/internal/handlers"
	"library-lending/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cfg := app.MustOpen(ctx)
	defer a.Close()
	logger := a.Logger

	// Inicjalizacja systemu sesji
	sessions := session.NewManager(cfg.SessionTTL)
	go sessions.RunCleanup(ctx)
	logger.Info("System sesji zainicjalizowany", "ttl", cfg.SessionTTL)

	deps := handlers.Deps{
		Service:  a.Service,
		Sessions: sessions,
		Backend:  string(cfg.Backend),
		Logger:   logger,
	}
	// Przypisujemy tylko niepuste wskaźniki, żeby interfejsy pozostały nil
	if a.Firebase != nil {
		deps.Auth = a.Firebase
		deps.Verifier = a.Firebase
	}
	if p, ok := a.Store.(handlers.Pinger); ok {
		deps.Pinger = p
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Błąd zamykania serwera", "error", err)
		}
	}()

	// Start serwera
	logger.Info("Serwer uruchomiony", "port", cfg.Port, "backend", cfg.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Nie można uruchomić serwera", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("Serwer zatrzymany")
}
