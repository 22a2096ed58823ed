// Package config wczytuje ustawienia aplikacji z pliku .env i zmiennych środowiskowych.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"library-lending/internal/firebase"
)

// Backend określa magazyn danych
type Backend string

const (
	BackendMemory    Backend = "memory"
	BackendPostgres  Backend = "postgres"
	BackendFirestore Backend = "firestore"
)

// Config zawiera ustawienia serwera i narzędzi CLI
type Config struct {
	Port        string
	Backend     Backend
	DatabaseURL string
	DBMaxConns  int32
	Firebase    firebase.Config
	SessionTTL  time.Duration
	LogLevel    slog.Level
}

// FirebaseEnabled mówi czy skonfigurowano dostęp do Firebase
func (c Config) FirebaseEnabled() bool {
	return c.Firebase.CredentialsPath != "" || c.Firebase.CredentialsJSON != "" || c.Firebase.ProjectID != ""
}

// Load wczytuje plik .env (jeśli istnieje), a potem zmienne środowiskowe
func Load(files ...string) (Config, error) {
	// Brak pliku .env nie jest błędem - używamy zmiennych systemowych
	_ = godotenv.Load(files...)
	return FromEnv(os.Getenv)
}

// FromEnv buduje konfigurację z funkcji odczytu zmiennych
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:        get("PORT", "8080"),
		Backend:     Backend(strings.ToLower(get("STORAGE_BACKEND", string(BackendMemory)))),
		DatabaseURL: get("DATABASE_URL", ""),
		Firebase: firebase.Config{
			CredentialsPath: get("FIREBASE_CREDENTIALS_PATH", ""),
			CredentialsJSON: get("FIREBASE_CREDENTIALS_JSON", ""),
			ProjectID:       get("FIREBASE_PROJECT_ID", ""),
			WebAPIKey:       get("FIREBASE_WEB_API_KEY", ""),
		},
	}

	maxConns, err := strconv.ParseInt(get("DB_MAX_CONNS", "8"), 10, 32)
	if err != nil || maxConns <= 0 {
		return Config{}, fmt.Errorf("nieprawidłowa wartość DB_MAX_CONNS: %q", getenv("DB_MAX_CONNS"))
	}
	cfg.DBMaxConns = int32(maxConns)

	ttl, err := time.ParseDuration(get("SESSION_TTL", "24h"))
	if err != nil || ttl <= 0 {
		return Config{}, fmt.Errorf("nieprawidłowa wartość SESSION_TTL: %q", getenv("SESSION_TTL"))
	}
	cfg.SessionTTL = ttl

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("nieprawidłowa wartość LOG_LEVEL: %w", err)
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("STORAGE_BACKEND=postgres wymaga DATABASE_URL")
		}
	case BackendFirestore:
		if !cfg.FirebaseEnabled() {
			return Config{}, fmt.Errorf("STORAGE_BACKEND=firestore wymaga konfiguracji Firebase")
		}
	default:
		return Config{}, fmt.Errorf("nieznany STORAGE_BACKEND: %q", cfg.Backend)
	}

	return cfg, nil
}
