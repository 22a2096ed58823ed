package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

const identityToolkitURL = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"

var (
	// ErrInvalidCredentials oznacza błędny email lub hasło
	ErrInvalidCredentials = errors.New("nieprawidłowy email lub hasło")
	// ErrUserDisabled oznacza konto zablokowane w Firebase Auth
	ErrUserDisabled = errors.New("konto zostało zablokowane")
)

// Config to ustawienia połączenia z Firebase
type Config struct {
	CredentialsPath string // Plik konta serwisowego (rozwój lokalny)
	CredentialsJSON string // JSON konta serwisowego (produkcja)
	ProjectID       string // Wymagany gdy brak credentials (emulator, ADC)
	WebAPIKey       string // Klucz do REST API logowania hasłem
}

// Client zawiera klientów Firebase
type Client struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client

	webAPIKey  string
	signInURL  string
	httpClient *http.Client
}

// New inicjalizuje klienta Firebase
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []option.ClientOption
	var appConfig *firebase.Config

	switch {
	case cfg.CredentialsPath != "":
		// Tryb lokalny - użyj pliku
		if _, err := os.Stat(cfg.CredentialsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("plik credentials nie istnieje: %s", cfg.CredentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	case cfg.CredentialsJSON != "":
		// Tryb produkcyjny - JSON ze zmiennej środowiskowej
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.ProjectID == "":
		return nil, fmt.Errorf("brak FIREBASE_CREDENTIALS_PATH, FIREBASE_CREDENTIALS_JSON lub FIREBASE_PROJECT_ID")
	}
	if cfg.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("błąd inicjalizacji Firebase App: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("błąd inicjalizacji Firebase Auth: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("błąd inicjalizacji Firestore: %w", err)
	}

	return &Client{
		App:        app,
		Auth:       authClient,
		Firestore:  firestoreClient,
		webAPIKey:  cfg.WebAPIKey,
		signInURL:  identityToolkitURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Store zwraca magazyn książek i wypożyczeń na Firestore tego klienta
func (c *Client) Store() *Store {
	return NewStore(c.Firestore)
}

// Close zamyka połączenia z Firebase
func (c *Client) Close() error {
	if c.Firestore != nil {
		return c.Firestore.Close()
	}
	return nil
}

// VerifyPassword weryfikuje email i hasło przez REST API Firebase Authentication
// i zwraca Firebase UID
func (c *Client) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	if c.webAPIKey == "" {
		return "", fmt.Errorf("brak FIREBASE_WEB_API_KEY w konfiguracji")
	}

	requestBody := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("błąd tworzenia żądania: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", c.signInURL, c.webAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("błąd tworzenia żądania: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("błąd połączenia z Firebase Auth: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("błąd odczytu odpowiedzi: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errorResp); err == nil {
			switch errorResp.Error.Message {
			case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
				return "", ErrInvalidCredentials
			case "USER_DISABLED":
				return "", ErrUserDisabled
			}
			if errorResp.Error.Message != "" {
				return "", fmt.Errorf("błąd autoryzacji: %s", errorResp.Error.Message)
			}
		}
		return "", fmt.Errorf("błąd weryfikacji hasła (status: %d)", resp.StatusCode)
	}

	var authResp struct {
		LocalID string `json:"localId"` // Firebase UID
		IDToken string `json:"idToken"`
		Email   string `json:"email"`
	}
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("błąd parsowania odpowiedzi: %w", err)
	}
	if authResp.LocalID == "" {
		return "", fmt.Errorf("odpowiedź Firebase Auth bez UID")
	}

	return authResp.LocalID, nil
}
