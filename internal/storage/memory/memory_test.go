package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/internal/library"
	"library-lending/internal/models"
	"library-lending/internal/storage/memory"
	"library-lending/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) library.Store {
		return memory.New()
	})
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	book := storetest.GivenBook(t, s, "Dune")

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	got.Title = "Changed"
	got.IsAvailable = false

	again, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", again.Title)
	assert.True(t, again.IsAvailable)
}

func TestCreateBookRejectsInvalid(t *testing.T) {
	s := memory.New()
	err := s.CreateBook(context.Background(), &models.Book{Title: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
