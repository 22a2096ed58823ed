package firebase

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"library-lending/internal/models"
)

const (
	// BooksCollection to nazwa kolekcji książek w Firestore
	BooksCollection = "books"
	// BorrowingsCollection to nazwa kolekcji próśb o wypożyczenie
	BorrowingsCollection = "borrowings"
	// ISBNIndexCollection zawiera dokumenty-strażników unikalności ISBN
	ISBNIndexCollection = "isbn_index"
	// ActiveBorrowingsCollection zawiera strażników aktywnej prośby (student, książka)
	ActiveBorrowingsCollection = "active_borrowings"
)

// Store implementuje magazyn książek i wypożyczeń na Firestore.
//
// Firestore nie ma indeksów unikalnych, więc unikalność ISBN i aktywnej prośby
// wymuszają dokumenty-strażnicy tworzone przez Transaction.Create w tej samej
// transakcji co zapis właściwy. Drugi Create tego samego strażnika kończy się
// błędem AlreadyExists.
type Store struct {
	fs *firestore.Client
}

// NewStore tworzy magazyn nad klientem Firestore
func NewStore(fs *firestore.Client) *Store {
	return &Store{fs: fs}
}

type guardDoc struct {
	BookID      string `firestore:"book_id,omitempty"`
	BorrowingID string `firestore:"borrowing_id,omitempty"`
}

func (s *Store) books() *firestore.CollectionRef {
	return s.fs.Collection(BooksCollection)
}

func (s *Store) borrowings() *firestore.CollectionRef {
	return s.fs.Collection(BorrowingsCollection)
}

func (s *Store) isbnGuard(isbn string) *firestore.DocumentRef {
	return s.fs.Collection(ISBNIndexCollection).Doc(guardKey(isbn))
}

func (s *Store) activeGuard(studentID, bookID string) *firestore.DocumentRef {
	return s.fs.Collection(ActiveBorrowingsCollection).Doc(guardKey(studentID) + "__" + guardKey(bookID))
}

// guardKey usuwa znaki niedozwolone w ID dokumentu
func guardKey(v string) string {
	return strings.ReplaceAll(v, "/", "_")
}

// translate zamienia błędy gRPC Firestore na błędy domenowe
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if models.IsRecoverable(err) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", what, models.ErrConstraintViolation)
	}
	return fmt.Errorf("błąd operacji (%s): %w", what, err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// allDocs pobiera wszystkie dokumenty zapytania
func allDocs(iter *firestore.DocumentIterator) ([]*firestore.DocumentSnapshot, error) {
	defer iter.Stop()

	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Stats liczy książki i oczekujące prośby
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	books, err := s.listAllBooks(ctx)
	if err != nil {
		return models.Stats{}, err
	}

	pending, err := allDocs(s.borrowings().Where("status", "==", string(models.BorrowingStatusPending)).Documents(ctx))
	if err != nil {
		return models.Stats{}, fmt.Errorf("błąd liczenia próśb: %w", err)
	}

	stats := models.Stats{TotalBooks: len(books), PendingRequests: len(pending)}
	for _, b := range books {
		if b.IsAvailable {
			stats.AvailableBooks++
		}
	}
	return stats, nil
}
