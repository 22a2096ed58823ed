package models

import "time"

// BorrowingStatus określa stan prośby o wypożyczenie
type BorrowingStatus string

const (
	BorrowingStatusPending  BorrowingStatus = "PENDING"  // Oczekuje na decyzję personelu
	BorrowingStatusApproved BorrowingStatus = "APPROVED" // Zatwierdzona, książka wydana
	BorrowingStatusRejected BorrowingStatus = "REJECTED" // Odrzucona
	BorrowingStatusReturned BorrowingStatus = "RETURNED" // Książka zwrócona
)

// Valid sprawdza czy status należy do zamkniętego zbioru
func (s BorrowingStatus) Valid() bool {
	switch s {
	case BorrowingStatusPending, BorrowingStatusApproved, BorrowingStatusRejected, BorrowingStatusReturned:
		return true
	}
	return false
}

// IsActive zwraca true dla PENDING i APPROVED
func (s BorrowingStatus) IsActive() bool {
	return s == BorrowingStatusPending || s == BorrowingStatusApproved
}

// CanTransitionTo opisuje dozwolone przejścia maszyny stanów
func (s BorrowingStatus) CanTransitionTo(next BorrowingStatus) bool {
	switch s {
	case BorrowingStatusPending:
		return next == BorrowingStatusApproved || next == BorrowingStatusRejected
	case BorrowingStatusApproved:
		return next == BorrowingStatusReturned
	}
	return false
}

// Borrowing reprezentuje prośbę studenta o wypożyczenie książki
type Borrowing struct {
	ID           string          `json:"id" firestore:"id"`
	StudentID    string          `json:"student_id" firestore:"student_id"`
	StudentName  string          `json:"student_name" firestore:"student_name"` // Denormalizacja dla listy personelu
	BookID       string          `json:"book_id" firestore:"book_id"`
	BookTitle    string          `json:"book_title" firestore:"book_title"` // Denormalizacja
	Status       BorrowingStatus `json:"status" firestore:"status"`
	RequestDate  time.Time       `json:"request_date" firestore:"request_date"`
	ApprovedDate *time.Time      `json:"approved_date,omitempty" firestore:"approved_date,omitempty"`
	ReturnDate   *time.Time      `json:"return_date,omitempty" firestore:"return_date,omitempty"`
}

// IsPending sprawdza czy prośba czeka na decyzję
func (b *Borrowing) IsPending() bool {
	return b.Status == BorrowingStatusPending
}

// ApprovalResult to wynik zatwierdzenia wraz z kaskadą
type ApprovalResult struct {
	Borrowing   *Borrowing `json:"borrowing"`
	RejectedIDs []string   `json:"rejected_ids"` // Inne prośby o tę książkę odrzucone automatycznie
}

// BorrowingFilter zawęża listę wypożyczeń; puste pola nie filtrują
type BorrowingFilter struct {
	StudentID   string
	BookID      string
	Status      BorrowingStatus
	OldestFirst bool // Kolejka personelu: najstarsze najpierw
}

// Matches sprawdza czy wypożyczenie spełnia filtr
func (f BorrowingFilter) Matches(b *Borrowing) bool {
	if f.StudentID != "" && b.StudentID != f.StudentID {
		return false
	}
	if f.BookID != "" && b.BookID != f.BookID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}
