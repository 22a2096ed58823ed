package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"library-lending/internal/app"
	"library-lending/internal/models"
)

func main() {
	email := flag.String("email", "", "email konta personelu")
	password := flag.String("password", "", "hasło (min. 6 znaków); puste gdy konto już istnieje")
	name := flag.String("name", "", "nazwa wyświetlana")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Wymagany parametr -email")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	a, _ := app.MustOpen(ctx)
	defer a.Close()
	logger := a.Logger

	if a.Firebase == nil {
		logger.Error("Konta personelu wymagają skonfigurowanego Firebase")
		a.Close()
		os.Exit(1)
	}
	fb := a.Firebase

	if err := run(ctx, fb, *email, *password, *name); err != nil {
		logger.Error("Nie udało się utworzyć konta personelu", "email", *email, "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("Konto personelu gotowe", "email", *email, "role", models.RoleStaff)
}

type accounts interface {
	GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
	CreateUser(ctx context.Context, user *models.User) error
	SetRole(ctx context.Context, id string, role models.UserRole) error
	LookupUID(ctx context.Context, email string) (string, error)
}

// run zakłada konto z rolą personelu albo awansuje istniejące
func run(ctx context.Context, fb accounts, email, password, name string) error {
	uid, err := fb.CreateAccount(ctx, email, password, name)
	switch {
	case err == nil:
		return fb.CreateUser(ctx, &models.User{
			FirebaseUID: uid,
			Email:       email,
			Username:    name,
			Role:        models.RoleStaff,
		})
	case !errors.Is(err, models.ErrConstraintViolation):
		return err
	}

	// Konto Auth już istnieje - nadaj rolę istniejącemu profilowi
	uid, err = fb.LookupUID(ctx, email)
	if err != nil {
		return err
	}
	user, err := fb.GetUserByFirebaseUID(ctx, uid)
	if errors.Is(err, models.ErrNotFound) {
		return fb.CreateUser(ctx, &models.User{FirebaseUID: uid, Email: email, Username: name, Role: models.RoleStaff})
	}
	if err != nil {
		return err
	}
	return fb.SetRole(ctx, user.ID, models.RoleStaff)
}
