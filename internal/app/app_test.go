package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/internal/config"
	"library-lending/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenMemory(t *testing.T) {
	a, err := Open(context.Background(), config.Config{Backend: config.BackendMemory}, discardLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &memory.Store{}, a.Store)
	assert.NotNil(t, a.Service)
	assert.Nil(t, a.Firebase)

	a.Close()
	a.Close()
}

func TestOpenPostgresBadDSN(t *testing.T) {
	cfg := config.Config{
		Backend:     config.BackendPostgres,
		DatabaseURL: "postgres://%zz",
		DBMaxConns:  2,
	}
	_, err := Open(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}
