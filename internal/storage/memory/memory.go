// Package memory to magazyn danych w pamięci procesu. Służy do testów
// i do uruchomienia aplikacji bez bazy danych.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"library-lending/internal/models"
)

// Store przechowuje książki i wypożyczenia w mapach chronionych jednym mutexem,
// więc każda operacja jest atomowa względem pozostałych.
type Store struct {
	mu         sync.RWMutex
	books      map[string]*models.Book
	borrowings map[string]*models.Borrowing
	isbnIndex  map[string]string // isbn -> book id
	activeIdx  map[activeKey]string
}

type activeKey struct {
	studentID string
	bookID    string
}

// New tworzy pusty magazyn
func New() *Store {
	return &Store{
		books:      make(map[string]*models.Book),
		borrowings: make(map[string]*models.Borrowing),
		isbnIndex:  make(map[string]string),
		activeIdx:  make(map[activeKey]string),
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func cloneBook(b *models.Book) *models.Book {
	c := *b
	return &c
}

func cloneBorrowing(b *models.Borrowing) *models.Borrowing {
	c := *b
	if b.ApprovedDate != nil {
		t := *b.ApprovedDate
		c.ApprovedDate = &t
	}
	if b.ReturnDate != nil {
		t := *b.ReturnDate
		c.ReturnDate = &t
	}
	return &c
}

// CreateBook zapisuje książkę; duplikat ISBN zwraca ErrConstraintViolation
func (s *Store) CreateBook(_ context.Context, book *models.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if book.ISBN != "" {
		if _, exists := s.isbnIndex[book.ISBN]; exists {
			return fmt.Errorf("ISBN %s: %w", book.ISBN, models.ErrConstraintViolation)
		}
	}
	if book.ID == "" {
		book.ID = newID()
	} else if _, exists := s.books[book.ID]; exists {
		return fmt.Errorf("książka %s: %w", book.ID, models.ErrConstraintViolation)
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}

	s.books[book.ID] = cloneBook(book)
	if book.ISBN != "" {
		s.isbnIndex[book.ISBN] = book.ID
	}
	return nil
}

// GetBook pobiera książkę po ID
func (s *Store) GetBook(_ context.Context, id string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[id]
	if !ok {
		return nil, fmt.Errorf("książka %s: %w", id, models.ErrNotFound)
	}
	return cloneBook(book), nil
}

// FindBook szuka książki po tytule i autorze
func (s *Store) FindBook(_ context.Context, title, author string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, book := range s.books {
		if book.Title == title && book.Author == author {
			return cloneBook(book), nil
		}
	}
	return nil, fmt.Errorf("książka %q: %w", title, models.ErrNotFound)
}

// ListBooks filtruje i sortuje książki po stronie aplikacji
func (s *Store) ListBooks(_ context.Context, query models.BookQuery) ([]*models.Book, error) {
	s.mu.RLock()
	all := make([]*models.Book, 0, len(s.books))
	for _, book := range s.books {
		all = append(all, cloneBook(book))
	}
	s.mu.RUnlock()

	return models.FilterBooks(all, query), nil
}

// ListFacets zwraca unikalne kategorie i autorów
func (s *Store) ListFacets(_ context.Context) (models.Facets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]string, 0, len(s.books))
	authors := make([]string, 0, len(s.books))
	for _, book := range s.books {
		categories = append(categories, book.Category)
		authors = append(authors, book.Author)
	}
	return models.Facets{
		Categories: models.UniqueSorted(categories),
		Authors:    models.UniqueSorted(authors),
	}, nil
}

// CreateBorrowing zapisuje prośbę PENDING
func (s *Store) CreateBorrowing(_ context.Context, borrowing *models.Borrowing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[borrowing.BookID]
	if !ok {
		return fmt.Errorf("książka %s: %w", borrowing.BookID, models.ErrNotFound)
	}
	if !book.IsAvailable {
		return models.ErrBookUnavailable
	}

	key := activeKey{studentID: borrowing.StudentID, bookID: borrowing.BookID}
	if _, exists := s.activeIdx[key]; exists {
		return fmt.Errorf("aktywna prośba studenta %s: %w", borrowing.StudentID, models.ErrConstraintViolation)
	}

	if borrowing.ID == "" {
		borrowing.ID = newID()
	}
	if borrowing.RequestDate.IsZero() {
		borrowing.RequestDate = time.Now().UTC()
	}
	borrowing.Status = models.BorrowingStatusPending

	s.borrowings[borrowing.ID] = cloneBorrowing(borrowing)
	s.activeIdx[key] = borrowing.ID
	return nil
}

// GetBorrowing pobiera prośbę po ID
func (s *Store) GetBorrowing(_ context.Context, id string) (*models.Borrowing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.borrowings[id]
	if !ok {
		return nil, fmt.Errorf("prośba %s: %w", id, models.ErrNotFound)
	}
	return cloneBorrowing(b), nil
}

// ActiveBorrowing zwraca aktywną prośbę albo nil
func (s *Store) ActiveBorrowing(_ context.Context, studentID, bookID string) (*models.Borrowing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeIdx[activeKey{studentID: studentID, bookID: bookID}]
	if !ok {
		return nil, nil
	}
	return cloneBorrowing(s.borrowings[id]), nil
}

// ListBorrowings zwraca prośby spełniające filtr, domyślnie najnowsze najpierw
func (s *Store) ListBorrowings(_ context.Context, filter models.BorrowingFilter) ([]*models.Borrowing, error) {
	s.mu.RLock()
	out := make([]*models.Borrowing, 0)
	for _, b := range s.borrowings {
		if filter.Matches(b) {
			out = append(out, cloneBorrowing(b))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.RequestDate.Equal(b.RequestDate) {
			if filter.OldestFirst {
				return a.RequestDate.Before(b.RequestDate)
			}
			return a.RequestDate.After(b.RequestDate)
		}
		if filter.OldestFirst {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return out, nil
}

// ApproveBorrowing zatwierdza prośbę i wykonuje kaskadę pod jednym zamkiem
func (s *Store) ApproveBorrowing(_ context.Context, id string, at time.Time) (*models.ApprovalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.borrowings[id]
	if !ok {
		return nil, fmt.Errorf("prośba %s: %w", id, models.ErrNotFound)
	}
	if !b.IsPending() {
		return nil, models.ErrStaleRequest
	}
	book, ok := s.books[b.BookID]
	if !ok {
		return nil, fmt.Errorf("książka %s: %w", b.BookID, models.ErrNotFound)
	}
	// Książka ma już zatwierdzone wypożyczenie
	if !book.IsAvailable {
		return nil, models.ErrStaleRequest
	}

	approvedAt := at
	b.Status = models.BorrowingStatusApproved
	b.ApprovedDate = &approvedAt
	book.IsAvailable = false

	rejected := make([]string, 0)
	for otherID, other := range s.borrowings {
		if otherID == id || other.BookID != b.BookID || !other.IsPending() {
			continue
		}
		other.Status = models.BorrowingStatusRejected
		delete(s.activeIdx, activeKey{studentID: other.StudentID, bookID: other.BookID})
		rejected = append(rejected, otherID)
	}
	sort.Strings(rejected)

	return &models.ApprovalResult{Borrowing: cloneBorrowing(b), RejectedIDs: rejected}, nil
}

// RejectBorrowing odrzuca oczekującą prośbę bez zmiany dostępności
func (s *Store) RejectBorrowing(_ context.Context, id string) (*models.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.borrowings[id]
	if !ok {
		return nil, fmt.Errorf("prośba %s: %w", id, models.ErrNotFound)
	}
	if !b.IsPending() {
		return nil, models.ErrStaleRequest
	}

	b.Status = models.BorrowingStatusRejected
	delete(s.activeIdx, activeKey{studentID: b.StudentID, bookID: b.BookID})
	return cloneBorrowing(b), nil
}

// ReturnBorrowing zamyka zatwierdzone wypożyczenie i zwalnia książkę
func (s *Store) ReturnBorrowing(_ context.Context, id string, at time.Time) (*models.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.borrowings[id]
	if !ok {
		return nil, fmt.Errorf("prośba %s: %w", id, models.ErrNotFound)
	}
	if b.Status != models.BorrowingStatusApproved {
		return nil, models.ErrStaleRequest
	}

	returnedAt := at
	b.Status = models.BorrowingStatusReturned
	b.ReturnDate = &returnedAt
	delete(s.activeIdx, activeKey{studentID: b.StudentID, bookID: b.BookID})
	if book, ok := s.books[b.BookID]; ok {
		book.IsAvailable = true
	}
	return cloneBorrowing(b), nil
}

// Stats liczy książki i oczekujące prośby
func (s *Store) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.Stats{TotalBooks: len(s.books)}
	for _, book := range s.books {
		if book.IsAvailable {
			stats.AvailableBooks++
		}
	}
	for _, b := range s.borrowings {
		if b.IsPending() {
			stats.PendingRequests++
		}
	}
	return stats, nil
}
