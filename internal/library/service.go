package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"library-lending/internal/models"
)

// Service realizuje akcje użytkowników: prośby o wypożyczenie,
// decyzje personelu i przeglądanie katalogu.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option konfiguruje Service
type Option func(*Service)

// WithClock podmienia zegar (testy)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger ustawia logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService tworzy serwis wypożyczeń nad podanym magazynem
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookView to książka wraz z aktywną prośbą oglądającego
type BookView struct {
	Book            *models.Book      `json:"book"`
	ActiveBorrowing *models.Borrowing `json:"active_borrowing"`
}

// ListBooks zwraca książki spełniające filtry, posortowane zamkniętym kluczem
func (s *Service) ListBooks(ctx context.Context, query models.BookQuery) ([]*models.Book, error) {
	query.Sort = models.ParseSortKey(string(query.Sort))
	query.Q = strings.TrimSpace(query.Q)

	books, err := s.store.ListBooks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("błąd pobierania książek: %w", err)
	}
	return books, nil
}

// Facets zwraca listy kategorii i autorów do filtrów
func (s *Service) Facets(ctx context.Context) (models.Facets, error) {
	facets, err := s.store.ListFacets(ctx)
	if err != nil {
		return models.Facets{}, fmt.Errorf("błąd pobierania filtrów: %w", err)
	}
	return facets, nil
}

// ViewBook zwraca książkę i aktywną prośbę oglądającego (jeśli jest)
func (s *Service) ViewBook(ctx context.Context, bookID string, viewer *models.User) (*BookView, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	view := &BookView{Book: book}
	if viewer != nil {
		active, err := s.store.ActiveBorrowing(ctx, viewer.ID, bookID)
		if err != nil {
			return nil, fmt.Errorf("błąd sprawdzania prośby: %w", err)
		}
		view.ActiveBorrowing = active
	}
	return view, nil
}

// AddBook dodaje książkę do katalogu (wpis administracyjny)
func (s *Service) AddBook(ctx context.Context, actor *models.User, book *models.Book) error {
	if !actor.IsStaff() {
		return models.ErrPermissionDenied
	}
	book.Normalize()
	if err := book.Validate(); err != nil {
		return err
	}
	book.IsAvailable = true
	book.CreatedAt = s.now()

	if err := s.store.CreateBook(ctx, book); err != nil {
		return err
	}
	s.logger.Info("Dodano książkę", "book_id", book.ID, "title", book.Title, "actor", actor.ID)
	return nil
}

// RequestBorrow tworzy prośbę PENDING studenta o dostępną książkę
func (s *Service) RequestBorrow(ctx context.Context, student *models.User, bookID string) (*models.Borrowing, error) {
	if !student.CanRequest() {
		return nil, models.ErrPermissionDenied
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.IsAvailable {
		return nil, models.ErrBookUnavailable
	}

	active, err := s.store.ActiveBorrowing(ctx, student.ID, bookID)
	if err != nil {
		return nil, fmt.Errorf("błąd sprawdzania aktywnych próśb: %w", err)
	}
	if active != nil {
		return nil, models.ErrDuplicateActiveRequest
	}

	borrowing := &models.Borrowing{
		StudentID:   student.ID,
		StudentName: student.DisplayName(),
		BookID:      book.ID,
		BookTitle:   book.Title,
		Status:      models.BorrowingStatusPending,
		RequestDate: s.now(),
	}

	if err := s.store.CreateBorrowing(ctx, borrowing); err != nil {
		// Wyścig tego samego studenta rozstrzyga indeks unikalności magazynu
		if errors.Is(err, models.ErrConstraintViolation) {
			return nil, models.ErrDuplicateActiveRequest
		}
		return nil, err
	}

	s.logger.Info("Złożono prośbę o wypożyczenie",
		"borrowing_id", borrowing.ID, "book_id", book.ID, "student_id", student.ID)
	return borrowing, nil
}

// Approve zatwierdza prośbę: książka staje się niedostępna,
// a pozostałe oczekujące prośby o nią są odrzucane w tej samej transakcji.
func (s *Service) Approve(ctx context.Context, borrowingID string, actor *models.User) (*models.ApprovalResult, error) {
	if !actor.IsStaff() {
		return nil, models.ErrPermissionDenied
	}

	result, err := s.store.ApproveBorrowing(ctx, borrowingID, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Zatwierdzono prośbę",
		"borrowing_id", borrowingID,
		"book_id", result.Borrowing.BookID,
		"auto_rejected", len(result.RejectedIDs),
		"actor", actor.ID)
	return result, nil
}

// Reject odrzuca oczekującą prośbę. Dostępność książki pozostaje bez zmian.
func (s *Service) Reject(ctx context.Context, borrowingID string, actor *models.User) (*models.Borrowing, error) {
	if !actor.IsStaff() {
		return nil, models.ErrPermissionDenied
	}

	borrowing, err := s.store.RejectBorrowing(ctx, borrowingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Odrzucono prośbę", "borrowing_id", borrowingID, "actor", actor.ID)
	return borrowing, nil
}

// Return oznacza zatwierdzone wypożyczenie jako zwrócone i przywraca dostępność książki
func (s *Service) Return(ctx context.Context, borrowingID string, actor *models.User) (*models.Borrowing, error) {
	if !actor.IsStaff() {
		return nil, models.ErrPermissionDenied
	}

	borrowing, err := s.store.ReturnBorrowing(ctx, borrowingID, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Przyjęto zwrot", "borrowing_id", borrowingID, "book_id", borrowing.BookID, "actor", actor.ID)
	return borrowing, nil
}

// PendingRequests zwraca kolejkę próśb do decyzji, najstarsze najpierw
func (s *Service) PendingRequests(ctx context.Context, actor *models.User) ([]*models.Borrowing, error) {
	if !actor.IsStaff() {
		return nil, models.ErrPermissionDenied
	}
	return s.store.ListBorrowings(ctx, models.BorrowingFilter{
		Status:      models.BorrowingStatusPending,
		OldestFirst: true,
	})
}

// StudentHistory zwraca wszystkie prośby studenta, najnowsze najpierw
func (s *Service) StudentHistory(ctx context.Context, student *models.User) ([]*models.Borrowing, error) {
	if student == nil {
		return nil, models.ErrPermissionDenied
	}
	return s.store.ListBorrowings(ctx, models.BorrowingFilter{StudentID: student.ID})
}

// Dashboard zwraca liczniki dla panelu personelu
func (s *Service) Dashboard(ctx context.Context, actor *models.User) (models.Stats, error) {
	if !actor.IsStaff() {
		return models.Stats{}, models.ErrPermissionDenied
	}
	return s.store.Stats(ctx)
}
