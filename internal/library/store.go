// Package library zawiera logikę wypożyczeń: maszynę stanów próśb,
// synchronizację dostępności książek, listowanie katalogu i import.
package library

import (
	"context"
	"time"

	"library-lending/internal/models"
)

// Store to kontrakt magazynu danych dla książek i wypożyczeń.
//
// Operacje zmieniające stan wypożyczenia są atomowe: warunek (status PENDING
// lub APPROVED) sprawdzany jest w tej samej operacji co zapis, a kaskady
// (dostępność książki, odrzucenie pozostałych próśb) wykonywane są w jednej
// transakcji. Magazyn sam pilnuje unikalności ISBN i aktywnej prośby
// (student, książka), zwracając models.ErrConstraintViolation.
type Store interface {
	// CreateBook zapisuje książkę i nadaje jej ID
	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id string) (*models.Book, error)
	// FindBook szuka książki po tytule i autorze (deduplikacja importu)
	FindBook(ctx context.Context, title, author string) (*models.Book, error)
	ListBooks(ctx context.Context, query models.BookQuery) ([]*models.Book, error)
	ListFacets(ctx context.Context) (models.Facets, error)

	// CreateBorrowing zapisuje prośbę PENDING, ponownie sprawdzając dostępność książki
	CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error
	GetBorrowing(ctx context.Context, id string) (*models.Borrowing, error)
	// ActiveBorrowing zwraca aktywną prośbę studenta o książkę albo nil
	ActiveBorrowing(ctx context.Context, studentID, bookID string) (*models.Borrowing, error)
	ListBorrowings(ctx context.Context, filter models.BorrowingFilter) ([]*models.Borrowing, error)

	ApproveBorrowing(ctx context.Context, id string, at time.Time) (*models.ApprovalResult, error)
	RejectBorrowing(ctx context.Context, id string) (*models.Borrowing, error)
	ReturnBorrowing(ctx context.Context, id string, at time.Time) (*models.Borrowing, error)

	Stats(ctx context.Context) (models.Stats, error)
}
