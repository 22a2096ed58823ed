package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"library-lending/internal/library"
	"library-lending/internal/models"
	"library-lending/internal/storage/storetest"
)

// Każdy test dostaje osobny projekt w emulatorze, więc dane się nie mieszają
func TestStoreContract(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	storetest.Run(t, func(t *testing.T) library.Store {
		ctx := context.Background()
		fs, err := firestore.NewClient(ctx, "test-"+uuid.NewString())
		require.NoError(t, err)
		t.Cleanup(func() { _ = fs.Close() })
		return NewStore(fs)
	})
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "missing"), models.ErrNotFound},
		{"already exists", status.Error(codes.AlreadyExists, "dup"), models.ErrConstraintViolation},
		{"domain error passes through", models.ErrStaleRequest, models.ErrStaleRequest},
		{"wrapped grpc", fmt.Errorf("commit: %w", status.Error(codes.AlreadyExists, "dup")), models.ErrConstraintViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err, "op"), tt.want)
		})
	}

	assert.NoError(t, translate(nil, "op"))

	infra := translate(status.Error(codes.Unavailable, "down"), "op")
	assert.False(t, models.IsRecoverable(infra))
}

func TestGuardKey(t *testing.T) {
	assert.Equal(t, "978_0_12", guardKey("978/0/12"))
	assert.Equal(t, "plain", guardKey("plain"))
}

func newSignInServer(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{webAPIKey: "test-key", signInURL: srv.URL, httpClient: srv.Client()}
}

func TestVerifyPassword(t *testing.T) {
	t.Run("returns uid on success", func(t *testing.T) {
		c := newSignInServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ala@example.com", body["email"])
			assert.Equal(t, true, body["returnSecureToken"])

			_ = json.NewEncoder(w).Encode(map[string]string{"localId": "uid-1", "idToken": "tok", "email": "ala@example.com"})
		})

		uid, err := c.VerifyPassword(context.Background(), "ala@example.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, "uid-1", uid)
	})

	errorCases := []struct {
		message string
		want    error
	}{
		{"EMAIL_NOT_FOUND", ErrInvalidCredentials},
		{"INVALID_PASSWORD", ErrInvalidCredentials},
		{"INVALID_LOGIN_CREDENTIALS", ErrInvalidCredentials},
		{"USER_DISABLED", ErrUserDisabled},
	}
	for _, tc := range errorCases {
		t.Run(tc.message, func(t *testing.T) {
			c := newSignInServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": tc.message}})
			})

			_, err := c.VerifyPassword(context.Background(), "ala@example.com", "bad")
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("unknown failure keeps message", func(t *testing.T) {
		c := newSignInServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "TOO_MANY_ATTEMPTS_TRY_LATER"}})
		})

		_, err := c.VerifyPassword(context.Background(), "ala@example.com", "bad")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TOO_MANY_ATTEMPTS_TRY_LATER")
		assert.False(t, errors.Is(err, ErrInvalidCredentials))
	})

	t.Run("missing api key", func(t *testing.T) {
		c := &Client{}
		_, err := c.VerifyPassword(context.Background(), "a", "b")
		assert.Error(t, err)
	})
}
