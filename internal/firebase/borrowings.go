package firebase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	"library-lending/internal/models"
)

func borrowingFromDoc(doc *firestore.DocumentSnapshot) (*models.Borrowing, error) {
	var b models.Borrowing
	if err := doc.DataTo(&b); err != nil {
		return nil, fmt.Errorf("błąd parsowania danych prośby: %w", err)
	}
	b.ID = doc.Ref.ID
	return &b, nil
}

// CreateBorrowing zapisuje prośbę PENDING. Odczyt książki i utworzenie
// strażnika aktywnej prośby odbywają się w jednej transakcji.
func (s *Store) CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error {
	var docRef *firestore.DocumentRef
	if borrowing.ID == "" {
		docRef = s.borrowings().NewDoc()
		borrowing.ID = docRef.ID
	} else {
		docRef = s.borrowings().Doc(borrowing.ID)
	}
	if borrowing.RequestDate.IsZero() {
		borrowing.RequestDate = time.Now().UTC()
	}
	borrowing.Status = models.BorrowingStatusPending

	bookRef := s.books().Doc(borrowing.BookID)
	guardRef := s.activeGuard(borrowing.StudentID, borrowing.BookID)

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(bookRef)
		if err != nil {
			return translate(err, "książka "+borrowing.BookID)
		}
		book, err := bookFromDoc(doc)
		if err != nil {
			return err
		}
		if !book.IsAvailable {
			return models.ErrBookUnavailable
		}

		if err := tx.Create(guardRef, guardDoc{BorrowingID: borrowing.ID}); err != nil {
			return err
		}
		return tx.Create(docRef, borrowing)
	})
	if err != nil {
		return translate(err, "aktywna prośba studenta "+borrowing.StudentID)
	}
	return nil
}

// GetBorrowing pobiera prośbę po ID
func (s *Store) GetBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	if id == "" {
		return nil, fmt.Errorf("prośba: %w", models.ErrNotFound)
	}

	doc, err := s.borrowings().Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err, "prośba "+id)
	}
	return borrowingFromDoc(doc)
}

// ActiveBorrowing zwraca aktywną prośbę albo nil
func (s *Store) ActiveBorrowing(ctx context.Context, studentID, bookID string) (*models.Borrowing, error) {
	doc, err := s.activeGuard(studentID, bookID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("błąd pobierania aktywnej prośby: %w", err)
	}

	var guard guardDoc
	if err := doc.DataTo(&guard); err != nil {
		return nil, fmt.Errorf("błąd parsowania strażnika prośby: %w", err)
	}
	b, err := s.GetBorrowing(ctx, guard.BorrowingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.IsActive() {
		return nil, nil
	}
	return b, nil
}

// ListBorrowings zwraca prośby spełniające filtr, domyślnie najnowsze najpierw.
// Sortowanie po stronie aplikacji nie wymaga indeksów złożonych.
func (s *Store) ListBorrowings(ctx context.Context, filter models.BorrowingFilter) ([]*models.Borrowing, error) {
	query := s.borrowings().Query
	if filter.StudentID != "" {
		query = query.Where("student_id", "==", filter.StudentID)
	}
	if filter.BookID != "" {
		query = query.Where("book_id", "==", filter.BookID)
	}
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}

	docs, err := allDocs(query.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("błąd iteracji po prośbach: %w", err)
	}

	out := make([]*models.Borrowing, 0, len(docs))
	for _, doc := range docs {
		b, err := borrowingFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}

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

// ApproveBorrowing zatwierdza prośbę, oznacza książkę jako niedostępną
// i odrzuca pozostałe oczekujące prośby o nią w jednej transakcji.
// Firestore wymaga, by wszystkie odczyty poprzedzały zapisy.
func (s *Store) ApproveBorrowing(ctx context.Context, id string, at time.Time) (*models.ApprovalResult, error) {
	var result *models.ApprovalResult
	ref := s.borrowings().Doc(id)

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = nil

		doc, err := tx.Get(ref)
		if err != nil {
			return translate(err, "prośba "+id)
		}
		b, err := borrowingFromDoc(doc)
		if err != nil {
			return err
		}
		if !b.IsPending() {
			return models.ErrStaleRequest
		}

		bookRef := s.books().Doc(b.BookID)
		bookDoc, err := tx.Get(bookRef)
		if err != nil {
			return translate(err, "książka "+b.BookID)
		}
		book, err := bookFromDoc(bookDoc)
		if err != nil {
			return err
		}
		if !book.IsAvailable {
			return models.ErrStaleRequest
		}

		siblings, err := tx.Documents(s.borrowings().
			Where("book_id", "==", b.BookID).
			Where("status", "==", string(models.BorrowingStatusPending))).GetAll()
		if err != nil {
			return fmt.Errorf("błąd pobierania oczekujących próśb: %w", err)
		}

		approvedAt := at
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(models.BorrowingStatusApproved)},
			{Path: "approved_date", Value: approvedAt},
		}); err != nil {
			return err
		}
		if err := tx.Update(bookRef, []firestore.Update{{Path: "is_available", Value: false}}); err != nil {
			return err
		}

		rejected := make([]string, 0, len(siblings))
		for _, sib := range siblings {
			if sib.Ref.ID == id {
				continue
			}
			other, err := borrowingFromDoc(sib)
			if err != nil {
				return err
			}
			if err := tx.Update(sib.Ref, []firestore.Update{
				{Path: "status", Value: string(models.BorrowingStatusRejected)},
			}); err != nil {
				return err
			}
			if err := tx.Delete(s.activeGuard(other.StudentID, other.BookID)); err != nil {
				return err
			}
			rejected = append(rejected, sib.Ref.ID)
		}
		sort.Strings(rejected)

		b.Status = models.BorrowingStatusApproved
		b.ApprovedDate = &approvedAt
		result = &models.ApprovalResult{Borrowing: b, RejectedIDs: rejected}
		return nil
	})
	if err != nil {
		return nil, translate(err, "zatwierdzenie prośby "+id)
	}
	return result, nil
}

// RejectBorrowing odrzuca oczekującą prośbę bez zmiany dostępności
func (s *Store) RejectBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	var rejected *models.Borrowing
	ref := s.borrowings().Doc(id)

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return translate(err, "prośba "+id)
		}
		b, err := borrowingFromDoc(doc)
		if err != nil {
			return err
		}
		if !b.IsPending() {
			return models.ErrStaleRequest
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(models.BorrowingStatusRejected)},
		}); err != nil {
			return err
		}
		if err := tx.Delete(s.activeGuard(b.StudentID, b.BookID)); err != nil {
			return err
		}

		b.Status = models.BorrowingStatusRejected
		rejected = b
		return nil
	})
	if err != nil {
		return nil, translate(err, "odrzucenie prośby "+id)
	}
	return rejected, nil
}

// ReturnBorrowing zamyka zatwierdzone wypożyczenie i zwalnia książkę
func (s *Store) ReturnBorrowing(ctx context.Context, id string, at time.Time) (*models.Borrowing, error) {
	var returned *models.Borrowing
	ref := s.borrowings().Doc(id)

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return translate(err, "prośba "+id)
		}
		b, err := borrowingFromDoc(doc)
		if err != nil {
			return err
		}
		if b.Status != models.BorrowingStatusApproved {
			return models.ErrStaleRequest
		}

		returnedAt := at
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(models.BorrowingStatusReturned)},
			{Path: "return_date", Value: returnedAt},
		}); err != nil {
			return err
		}
		if err := tx.Update(s.books().Doc(b.BookID), []firestore.Update{{Path: "is_available", Value: true}}); err != nil {
			return err
		}
		if err := tx.Delete(s.activeGuard(b.StudentID, b.BookID)); err != nil {
			return err
		}

		b.Status = models.BorrowingStatusReturned
		b.ReturnDate = &returnedAt
		returned = b
		return nil
	})
	if err != nil {
		return nil, translate(err, "zwrot prośby "+id)
	}
	return returned, nil
}
