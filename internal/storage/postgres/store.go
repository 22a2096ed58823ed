// Package postgres implementuje magazyn książek i wypożyczeń na PostgreSQL.
//
// Przejścia stanów wykonywane są w transakcjach pgx. Zatwierdzenie blokuje
// wiersz książki (FOR UPDATE), a warunkowy UPDATE ... WHERE status = 'PENDING'
// rozstrzyga wyścig dwóch zatwierdzeń. Unikalność ISBN i aktywnej prośby
// pilnują indeksy bazy.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"library-lending/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultMaxConnections    = int32(8)
	defaultMinConnections    = int32(1)
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = time.Minute * 5
	defaultHealthCheckPeriod = time.Minute
	defaultConnectTimeout    = time.Second * 5

	sqlStateUniqueViolation = "23505"
	approvedBookIndex       = "borrowings_approved_book_uidx"
)

// Store to magazyn oparty na puli połączeń pgx
type Store struct {
	pool *pgxpool.Pool
}

// PoolConfig tworzy konfigurację puli dla podanego DSN
func PoolConfig(dsn string, maxConns int32) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("błąd parsowania DATABASE_URL: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultMaxConnections
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = defaultMinConnections
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	cfg.HealthCheckPeriod = defaultHealthCheckPeriod
	cfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return cfg, nil
}

// Open łączy się z bazą, sprawdza połączenie i zakłada schemat
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := PoolConfig(dsn, maxConns)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("błąd tworzenia puli połączeń: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("błąd połączenia z bazą: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New tworzy magazyn nad istniejącą pulą
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate zakłada tabele i indeksy, jeśli nie istnieją
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("błąd migracji schematu: %w", err)
	}
	return nil
}

// Close zamyka pulę połączeń
func (s *Store) Close() {
	s.pool.Close()
}

// Ping sprawdza połączenie z bazą
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// translate zamienia błędy pgx na błędy domenowe
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation {
		if pgErr.ConstraintName == approvedBookIndex {
			return models.ErrStaleRequest
		}
		return fmt.Errorf("%s (%s): %w", what, pgErr.ConstraintName, models.ErrConstraintViolation)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// inTx wykonuje fn w transakcji; błąd fn wycofuje transakcję
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
