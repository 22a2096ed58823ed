package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"library-lending/internal/models"
)

const (
	tableBorrowings = "borrowings"
	colStudentID    = "student_id"
	colBookID       = "book_id"
	colStatus       = "status"
	colRequestDate  = "request_date"
)

var borrowingColumns = []any{
	"id", "student_id", "student_name", "book_id", "book_title",
	"status", "request_date", "approved_date", "return_date",
}

const borrowingReturning = `
RETURNING id, student_id, student_name, book_id, book_title, status, request_date, approved_date, return_date`

const selectBorrowingSQL = `
SELECT id, student_id, student_name, book_id, book_title, status, request_date, approved_date, return_date
FROM borrowings`

const lockBookForShareSQL = `SELECT is_available FROM books WHERE id = $1 FOR SHARE`

const lockBookForUpdateSQL = `SELECT is_available FROM books WHERE id = $1 FOR UPDATE`

const insertBorrowingSQL = `
INSERT INTO borrowings (id, student_id, student_name, book_id, book_title, status, request_date)
VALUES ($1, $2, $3, $4, $5, 'PENDING', $6)`

const approveBorrowingSQL = `
UPDATE borrowings SET status = 'APPROVED', approved_date = $2
WHERE id = $1 AND status = 'PENDING'` + borrowingReturning

const markBookUnavailableSQL = `UPDATE books SET is_available = FALSE WHERE id = $1`

const markBookAvailableSQL = `UPDATE books SET is_available = TRUE WHERE id = $1`

const rejectSiblingsSQL = `
UPDATE borrowings SET status = 'REJECTED'
WHERE book_id = $1 AND status = 'PENDING' AND id <> $2
RETURNING id`

const rejectBorrowingSQL = `
UPDATE borrowings SET status = 'REJECTED'
WHERE id = $1 AND status = 'PENDING'` + borrowingReturning

const returnBorrowingSQL = `
UPDATE borrowings SET status = 'RETURNED', return_date = $2
WHERE id = $1 AND status = 'APPROVED'` + borrowingReturning

func scanBorrowing(row pgx.Row) (*models.Borrowing, error) {
	var (
		b      models.Borrowing
		status string
	)
	err := row.Scan(&b.ID, &b.StudentID, &b.StudentName, &b.BookID, &b.BookTitle,
		&status, &b.RequestDate, &b.ApprovedDate, &b.ReturnDate)
	if err != nil {
		return nil, err
	}
	b.Status = models.BorrowingStatus(status)
	b.RequestDate = b.RequestDate.UTC()
	if b.ApprovedDate != nil {
		t := b.ApprovedDate.UTC()
		b.ApprovedDate = &t
	}
	if b.ReturnDate != nil {
		t := b.ReturnDate.UTC()
		b.ReturnDate = &t
	}
	return &b, nil
}

// CreateBorrowing zapisuje prośbę PENDING. Wiersz książki jest blokowany
// do odczytu, więc zatwierdzenie nie wejdzie między sprawdzenie dostępności a zapis.
func (s *Store) CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error {
	if borrowing.ID == "" {
		borrowing.ID = newID()
	}
	if borrowing.RequestDate.IsZero() {
		borrowing.RequestDate = time.Now().UTC()
	}
	borrowing.Status = models.BorrowingStatusPending

	return s.inTx(ctx, func(tx pgx.Tx) error {
		var available bool
		if err := tx.QueryRow(ctx, lockBookForShareSQL, borrowing.BookID).Scan(&available); err != nil {
			return translate(err, "książka "+borrowing.BookID)
		}
		if !available {
			return models.ErrBookUnavailable
		}

		_, err := tx.Exec(ctx, insertBorrowingSQL,
			borrowing.ID, borrowing.StudentID, borrowing.StudentName,
			borrowing.BookID, borrowing.BookTitle, borrowing.RequestDate)
		if err != nil {
			return translate(err, "aktywna prośba studenta "+borrowing.StudentID)
		}
		return nil
	})
}

// GetBorrowing pobiera prośbę po ID
func (s *Store) GetBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	b, err := scanBorrowing(s.pool.QueryRow(ctx, selectBorrowingSQL+` WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "prośba "+id)
	}
	return b, nil
}

// ActiveBorrowing zwraca aktywną prośbę albo nil
func (s *Store) ActiveBorrowing(ctx context.Context, studentID, bookID string) (*models.Borrowing, error) {
	b, err := scanBorrowing(s.pool.QueryRow(ctx,
		selectBorrowingSQL+` WHERE student_id = $1 AND book_id = $2 AND status IN ('PENDING', 'APPROVED')`,
		studentID, bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("błąd pobierania aktywnej prośby: %w", err)
	}
	return b, nil
}

// ListBorrowings zwraca prośby spełniające filtr, domyślnie najnowsze najpierw
func (s *Store) ListBorrowings(ctx context.Context, filter models.BorrowingFilter) ([]*models.Borrowing, error) {
	sqlQuery, args, err := buildListBorrowingsQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("błąd pobierania próśb: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Borrowing, 0)
	for rows.Next() {
		b, err := scanBorrowing(rows)
		if err != nil {
			return nil, fmt.Errorf("błąd odczytu prośby: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("błąd iteracji próśb: %w", err)
	}
	return out, nil
}

func buildListBorrowingsQuery(filter models.BorrowingFilter) (string, []any, error) {
	ex := goqu.Ex{}
	if filter.StudentID != "" {
		ex[colStudentID] = filter.StudentID
	}
	if filter.BookID != "" {
		ex[colBookID] = filter.BookID
	}
	if filter.Status != "" {
		ex[colStatus] = string(filter.Status)
	}

	ds := goqu.Dialect(dialectPostgres).
		From(tableBorrowings).
		Prepared(true).
		Select(borrowingColumns...)
	if len(ex) > 0 {
		ds = ds.Where(ex)
	}
	if filter.OldestFirst {
		ds = ds.Order(goqu.C(colRequestDate).Asc(), goqu.L(exprIDOrder).Asc())
	} else {
		ds = ds.Order(goqu.C(colRequestDate).Desc(), goqu.L(exprIDOrder).Desc())
	}

	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("błąd budowania zapytania: %w", err)
	}
	return sqlQuery, args, nil
}

// ApproveBorrowing zatwierdza prośbę, oznacza książkę jako niedostępną
// i odrzuca pozostałe oczekujące prośby o nią w jednej transakcji.
func (s *Store) ApproveBorrowing(ctx context.Context, id string, at time.Time) (*models.ApprovalResult, error) {
	var result *models.ApprovalResult

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var bookID string
		if err := tx.QueryRow(ctx, `SELECT book_id FROM borrowings WHERE id = $1`, id).Scan(&bookID); err != nil {
			return translate(err, "prośba "+id)
		}

		// Blokada książki szereguje zatwierdzenia próśb o ten sam egzemplarz
		var available bool
		if err := tx.QueryRow(ctx, lockBookForUpdateSQL, bookID).Scan(&available); err != nil {
			return translate(err, "książka "+bookID)
		}
		if !available {
			return models.ErrStaleRequest
		}

		approved, err := scanBorrowing(tx.QueryRow(ctx, approveBorrowingSQL, id, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrStaleRequest
		}
		if err != nil {
			return translate(err, "zatwierdzenie prośby "+id)
		}

		if _, err := tx.Exec(ctx, markBookUnavailableSQL, bookID); err != nil {
			return translate(err, "aktualizacja książki "+bookID)
		}

		rows, err := tx.Query(ctx, rejectSiblingsSQL, bookID, id)
		if err != nil {
			return translate(err, "odrzucenie pozostałych próśb")
		}
		rejected, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return translate(err, "odrzucenie pozostałych próśb")
		}
		sort.Strings(rejected)

		result = &models.ApprovalResult{Borrowing: approved, RejectedIDs: rejected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RejectBorrowing odrzuca oczekującą prośbę bez zmiany dostępności
func (s *Store) RejectBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	b, err := scanBorrowing(s.pool.QueryRow(ctx, rejectBorrowingSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.staleOrMissing(ctx, id)
	}
	if err != nil {
		return nil, translate(err, "odrzucenie prośby "+id)
	}
	return b, nil
}

// ReturnBorrowing zamyka zatwierdzone wypożyczenie i zwalnia książkę
func (s *Store) ReturnBorrowing(ctx context.Context, id string, at time.Time) (*models.Borrowing, error) {
	var returned *models.Borrowing

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBorrowing(tx.QueryRow(ctx, returnBorrowingSQL, id, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return s.staleOrMissing(ctx, id)
		}
		if err != nil {
			return translate(err, "zwrot prośby "+id)
		}
		if _, err := tx.Exec(ctx, markBookAvailableSQL, b.BookID); err != nil {
			return translate(err, "aktualizacja książki "+b.BookID)
		}
		returned = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// staleOrMissing rozróżnia brak prośby od prośby w innym stanie
func (s *Store) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM borrowings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("błąd sprawdzania prośby: %w", err)
	}
	if !exists {
		return fmt.Errorf("prośba %s: %w", id, models.ErrNotFound)
	}
	return models.ErrStaleRequest
}
