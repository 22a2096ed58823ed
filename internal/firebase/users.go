package firebase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"

	"library-lending/internal/models"
)

const (
	// UsersCollection to nazwa kolekcji użytkowników w Firestore
	UsersCollection = "users"
)

// GetUser pobiera użytkownika po ID
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, models.InvalidInput("ID użytkownika nie może być puste")
	}

	doc, err := c.Firestore.Collection(UsersCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err, "użytkownik "+id)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("błąd parsowania danych użytkownika: %w", err)
	}
	user.ID = doc.Ref.ID
	return &user, nil
}

// GetUserByFirebaseUID pobiera użytkownika po Firebase UID
func (c *Client) GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	if uid == "" {
		return nil, models.InvalidInput("Firebase UID nie może być pusty")
	}

	iter := c.Firestore.Collection(UsersCollection).
		Where("firebase_uid", "==", uid).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("użytkownik %s: %w", uid, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("błąd wyszukiwania użytkownika: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("błąd parsowania danych użytkownika: %w", err)
	}
	user.ID = doc.Ref.ID
	return &user, nil
}

// CreateUser zapisuje profil użytkownika; domyślna rola to student
func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return models.InvalidInput("użytkownik nie może być nil")
	}
	if user.Email == "" {
		return models.InvalidInput("email jest wymagany")
	}
	if user.FirebaseUID == "" {
		return models.InvalidInput("Firebase UID jest wymagany")
	}

	user.CreatedAt = time.Now().UTC()
	user.IsActive = true
	if user.Role == "" {
		user.Role = models.RoleStudent
	}
	if user.Username == "" {
		user.Username = strings.Split(user.Email, "@")[0]
	}

	var docRef *firestore.DocumentRef
	if user.ID == "" {
		docRef = c.Firestore.Collection(UsersCollection).NewDoc()
		user.ID = docRef.ID
	} else {
		docRef = c.Firestore.Collection(UsersCollection).Doc(user.ID)
	}

	if _, err := docRef.Create(ctx, user); err != nil {
		return translate(err, "zapis użytkownika "+user.Email)
	}
	return nil
}

// SetRole zmienia rolę istniejącego użytkownika
func (c *Client) SetRole(ctx context.Context, id string, role models.UserRole) error {
	_, err := c.Firestore.Collection(UsersCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "role", Value: role},
		{Path: "is_active", Value: true},
	})
	if err != nil {
		return translate(err, "zmiana roli użytkownika "+id)
	}
	return nil
}

// CreateAccount zakłada konto w Firebase Auth i zwraca jego UID
func (c *Client) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName)

	record, err := c.Auth.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", fmt.Errorf("email %s: %w", email, models.ErrConstraintViolation)
		}
		return "", fmt.Errorf("błąd tworzenia konta w Firebase Auth: %w", err)
	}
	return record.UID, nil
}

// SignIn loguje użytkownika emailem i hasłem
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	uid, err := c.VerifyPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.GetUserByFirebaseUID(ctx, uid)
}

// Register zakłada konto studenta w Firebase Auth i jego profil w Firestore
func (c *Client) Register(ctx context.Context, email, password, username string) (*models.User, error) {
	uid, err := c.CreateAccount(ctx, email, password, username)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FirebaseUID: uid,
		Email:       email,
		Username:    username,
		Role:        models.RoleStudent,
	}
	if err := c.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UserFromToken weryfikuje token ID Firebase i zwraca profil użytkownika
func (c *Client) UserFromToken(ctx context.Context, idToken string) (*models.User, error) {
	token, err := c.Auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("nieprawidłowy token: %w", err)
	}
	return c.GetUserByFirebaseUID(ctx, token.UID)
}

// LookupUID zwraca Firebase UID konta o podanym emailu
func (c *Client) LookupUID(ctx context.Context, email string) (string, error) {
	record, err := c.Auth.GetUserByEmail(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", fmt.Errorf("konto %s: %w", email, models.ErrNotFound)
		}
		return "", fmt.Errorf("błąd wyszukiwania konta: %w", err)
	}
	return record.UID, nil
}
