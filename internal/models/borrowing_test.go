package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"library-lending/internal/models"
)

func Test_BorrowingStatus_Transitions(t *testing.T) {
	all := []models.BorrowingStatus{
		models.BorrowingStatusPending,
		models.BorrowingStatusApproved,
		models.BorrowingStatusRejected,
		models.BorrowingStatusReturned,
	}
	allowed := map[[2]models.BorrowingStatus]bool{
		{models.BorrowingStatusPending, models.BorrowingStatusApproved}:  true,
		{models.BorrowingStatusPending, models.BorrowingStatusRejected}:  true,
		{models.BorrowingStatusApproved, models.BorrowingStatusReturned}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]models.BorrowingStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func Test_BorrowingStatus_IsActiveAndValid(t *testing.T) {
	assert.True(t, models.BorrowingStatusPending.IsActive())
	assert.True(t, models.BorrowingStatusApproved.IsActive())
	assert.False(t, models.BorrowingStatusRejected.IsActive())
	assert.False(t, models.BorrowingStatusReturned.IsActive())

	assert.True(t, models.BorrowingStatusReturned.Valid())
	assert.False(t, models.BorrowingStatus("LOST").Valid())
}

func Test_BorrowingFilter_Matches(t *testing.T) {
	b := &models.Borrowing{StudentID: "s1", BookID: "b1", Status: models.BorrowingStatusPending}

	assert.True(t, models.BorrowingFilter{}.Matches(b))
	assert.True(t, models.BorrowingFilter{StudentID: "s1", Status: models.BorrowingStatusPending}.Matches(b))
	assert.False(t, models.BorrowingFilter{StudentID: "s2"}.Matches(b))
	assert.False(t, models.BorrowingFilter{BookID: "b2"}.Matches(b))
	assert.False(t, models.BorrowingFilter{Status: models.BorrowingStatusApproved}.Matches(b))
}

func Test_IsRecoverable(t *testing.T) {
	assert.True(t, models.IsRecoverable(fmt.Errorf("zatwierdzanie: %w", models.ErrStaleRequest)))
	assert.True(t, models.IsRecoverable(models.InvalidInput("brak tytułu")))
	assert.False(t, models.IsRecoverable(errors.New("connection refused")))
}

func Test_User_Roles(t *testing.T) {
	staff := &models.User{Role: models.RoleStaff, IsActive: true}
	student := &models.User{Role: models.RoleStudent, IsActive: true}
	inactiveStaff := &models.User{Role: models.RoleStaff}

	assert.True(t, staff.IsStaff())
	assert.False(t, student.IsStaff())
	assert.False(t, inactiveStaff.IsStaff())
	assert.False(t, (*models.User)(nil).IsStaff())
	assert.True(t, student.CanRequest())
	assert.False(t, inactiveStaff.CanRequest())
}

func Test_Book_Validate(t *testing.T) {
	assert.NoError(t, models.NewBook("Dune").Validate())
	assert.ErrorIs(t, models.NewBook("  ").Validate(), models.ErrInvalidInput)
	assert.ErrorIs(t, (*models.Book)(nil).Validate(), models.ErrInvalidInput)

	b := models.NewBook("Dune")
	b.PublicationYear = -5
	assert.ErrorIs(t, b.Validate(), models.ErrInvalidInput)
}
