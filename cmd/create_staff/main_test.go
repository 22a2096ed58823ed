package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/internal/models"
)

type fakeAccounts struct {
	uids     map[string]string       // email -> uid w Auth
	profiles map[string]*models.User // uid -> profil
}

func (f *fakeAccounts) GetUserByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	if u, ok := f.profiles[uid]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeAccounts) CreateAccount(_ context.Context, email, _, _ string) (string, error) {
	if _, ok := f.uids[email]; ok {
		return "", fmt.Errorf("email %s: %w", email, models.ErrConstraintViolation)
	}
	uid := "uid-" + email
	f.uids[email] = uid
	return uid, nil
}

func (f *fakeAccounts) CreateUser(_ context.Context, user *models.User) error {
	user.ID = "doc-" + user.FirebaseUID
	f.profiles[user.FirebaseUID] = user
	return nil
}

func (f *fakeAccounts) SetRole(_ context.Context, id string, role models.UserRole) error {
	for _, u := range f.profiles {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeAccounts) LookupUID(_ context.Context, email string) (string, error) {
	if uid, ok := f.uids[email]; ok {
		return uid, nil
	}
	return "", models.ErrNotFound
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("new account", func(t *testing.T) {
		f := &fakeAccounts{uids: map[string]string{}, profiles: map[string]*models.User{}}
		require.NoError(t, run(ctx, f, "kasia@biblioteka.pl", "secret1", "Kasia"))
		assert.Equal(t, models.RoleStaff, f.profiles["uid-kasia@biblioteka.pl"].Role)
	})

	t.Run("promotes existing student", func(t *testing.T) {
		f := &fakeAccounts{
			uids:     map[string]string{"ala@example.com": "u1"},
			profiles: map[string]*models.User{"u1": {ID: "doc-u1", FirebaseUID: "u1", Role: models.RoleStudent}},
		}
		require.NoError(t, run(ctx, f, "ala@example.com", "", ""))
		assert.Equal(t, models.RoleStaff, f.profiles["u1"].Role)
	})

	t.Run("auth account without profile", func(t *testing.T) {
		f := &fakeAccounts{uids: map[string]string{"ola@example.com": "u2"}, profiles: map[string]*models.User{}}
		require.NoError(t, run(ctx, f, "ola@example.com", "", "Ola"))
		require.Contains(t, f.profiles, "u2")
		assert.Equal(t, models.RoleStaff, f.profiles["u2"].Role)
	})
}
