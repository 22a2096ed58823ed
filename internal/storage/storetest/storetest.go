// Package storetest zawiera wspólny zestaw testów kontraktu library.Store.
// Każdy magazyn (pamięć, Postgres, Firestore) uruchamia go w swoich testach.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/internal/library"
	"library-lending/internal/models"
)

// Factory tworzy pusty magazyn dla pojedynczego testu
type Factory func(t *testing.T) library.Store

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Run uruchamia wszystkie testy kontraktu
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s library.Store)
	}{
		{"books_create_and_get", testBooksCreateAndGet},
		{"books_isbn_unique_when_present", testBooksISBNUnique},
		{"books_find_by_title_author", testBooksFind},
		{"books_list_filters_and_sort", testBooksList},
		{"books_facets", testBooksFacets},
		{"borrowing_create_pending", testBorrowingCreate},
		{"borrowing_create_preconditions", testBorrowingCreatePreconditions},
		{"approve_cascades_to_siblings", testApproveCascade},
		{"approve_stale_and_missing", testApproveStale},
		{"reject_keeps_availability", testRejectKeepsAvailability},
		{"return_restores_availability", testReturn},
		{"list_borrowings_order", testListBorrowings},
		{"stats", testStats},
		{"concurrent_approve_single_winner", testConcurrentApprove},
		{"concurrent_same_student_single_request", testConcurrentSameStudent},
		{"concurrent_different_students_all_admitted", testConcurrentDifferentStudents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// GivenBook zapisuje dostępną książkę
func GivenBook(t testing.TB, s library.Store, title string, mutate ...func(*models.Book)) *models.Book {
	book := models.NewBook(title)
	book.CreatedAt = baseTime
	for _, m := range mutate {
		m(book)
	}
	require.NoError(t, s.CreateBook(context.Background(), book), "error in arranging test data")
	require.NotEmpty(t, book.ID)
	return book
}

// GivenPending zapisuje prośbę PENDING studenta o książkę
func GivenPending(t testing.TB, s library.Store, studentID string, book *models.Book, offset time.Duration) *models.Borrowing {
	b := &models.Borrowing{
		StudentID:   studentID,
		StudentName: "user-" + studentID,
		BookID:      book.ID,
		BookTitle:   book.Title,
		Status:      models.BorrowingStatusPending,
		RequestDate: baseTime.Add(offset),
	}
	require.NoError(t, s.CreateBorrowing(context.Background(), b), "error in arranging test data")
	require.NotEmpty(t, b.ID)
	return b
}

// AssertAvailabilityInvariant sprawdza, że książka jest niedostępna
// wtedy i tylko wtedy, gdy ma dokładnie jedno zatwierdzone wypożyczenie.
func AssertAvailabilityInvariant(t testing.TB, s library.Store, bookID string) {
	ctx := context.Background()
	book, err := s.GetBook(ctx, bookID)
	require.NoError(t, err)

	approved, err := s.ListBorrowings(ctx, models.BorrowingFilter{BookID: bookID, Status: models.BorrowingStatusApproved})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(approved), 1, "more than one APPROVED borrowing for book %s", bookID)
	assert.Equal(t, len(approved) == 0, book.IsAvailable, "is_available out of sync for book %s", bookID)
}

func isStale(err error) bool {
	return errors.Is(err, models.ErrStaleRequest)
}

func isConstraint(err error) bool {
	return errors.Is(err, models.ErrConstraintViolation)
}

func statusOf(t testing.TB, s library.Store, id string) models.BorrowingStatus {
	b, err := s.GetBorrowing(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func testBooksCreateAndGet(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune", func(b *models.Book) {
		b.Author = "Frank Herbert"
		b.ISBN = "978-0441013593"
		b.Category = "Science Fiction"
		b.PublicationYear = 1965
		b.Description = "Desert planet"
	})

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "Frank Herbert", got.Author)
	assert.Equal(t, "978-0441013593", got.ISBN)
	assert.Equal(t, 1965, got.PublicationYear)
	assert.True(t, got.IsAvailable)

	_, err = s.GetBook(ctx, "does-not-exist")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testBooksISBNUnique(t *testing.T, s library.Store) {
	ctx := context.Background()
	GivenBook(t, s, "First", func(b *models.Book) { b.ISBN = "111" })

	dup := models.NewBook("Second")
	dup.ISBN = "111"
	assert.ErrorIs(t, s.CreateBook(ctx, dup), models.ErrConstraintViolation)

	// Brak ISBN nie podlega unikalności
	GivenBook(t, s, "No ISBN A")
	GivenBook(t, s, "No ISBN B")
}

func testBooksFind(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Emma", func(b *models.Book) { b.Author = "Jane Austen" })
	GivenBook(t, s, "Emma", func(b *models.Book) { b.Author = "Other Author" })

	got, err := s.FindBook(ctx, "Emma", "Jane Austen")
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)

	noAuthor := GivenBook(t, s, "Anonymous Poems")
	got, err = s.FindBook(ctx, "Anonymous Poems", "")
	require.NoError(t, err)
	assert.Equal(t, noAuthor.ID, got.ID)

	_, err = s.FindBook(ctx, "Emma", "Nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testBooksList(t *testing.T, s library.Store) {
	ctx := context.Background()
	dune := GivenBook(t, s, "Dune", func(b *models.Book) {
		b.Author, b.Category, b.PublicationYear, b.ISBN = "Frank Herbert", "Science Fiction", 1965, "978-0441013593"
	})
	anathem := GivenBook(t, s, "Anathem", func(b *models.Book) {
		b.Author, b.Category, b.PublicationYear = "Neal Stephenson", "Science Fiction", 2008
	})
	beloved := GivenBook(t, s, "Beloved", func(b *models.Book) {
		b.Author, b.Category, b.PublicationYear, b.Description = "Toni Morrison", "Literary Fiction", 1987, "A haunting novel"
	})

	// Dune staje się niedostępna przez zatwierdzenie
	pending := GivenPending(t, s, "s1", dune, 0)
	_, err := s.ApproveBorrowing(ctx, pending.ID, baseTime)
	require.NoError(t, err)

	ids := func(books []*models.Book) []string {
		out := make([]string, 0, len(books))
		for _, b := range books {
			out = append(out, b.ID)
		}
		return out
	}

	tests := []struct {
		name  string
		query models.BookQuery
		want  []string
	}{
		{"all_by_title", models.BookQuery{Sort: models.SortTitle}, []string{anathem.ID, beloved.ID, dune.ID}},
		{"all_by_title_desc", models.BookQuery{Sort: models.SortTitleDesc}, []string{dune.ID, beloved.ID, anathem.ID}},
		{"by_year", models.BookQuery{Sort: models.SortYear}, []string{dune.ID, beloved.ID, anathem.ID}},
		{"by_year_desc", models.BookQuery{Sort: models.SortYearDesc}, []string{anathem.ID, beloved.ID, dune.ID}},
		{"by_author", models.BookQuery{Sort: models.SortAuthor}, []string{dune.ID, anathem.ID, beloved.ID}},
		{"available_first", models.BookQuery{Sort: models.SortAvailable}, []string{anathem.ID, beloved.ID, dune.ID}},
		{"unavailable_first", models.BookQuery{Sort: models.SortAvailableDesc}, []string{dune.ID, anathem.ID, beloved.ID}},
		{"q_matches_description", models.BookQuery{Q: "HAUNTING"}, []string{beloved.ID}},
		{"q_matches_isbn", models.BookQuery{Q: "0441"}, []string{dune.ID}},
		{"q_matches_author", models.BookQuery{Q: "stephen"}, []string{anathem.ID}},
		{"category_exact", models.BookQuery{Category: "Science Fiction"}, []string{anathem.ID, dune.ID}},
		{"author_exact", models.BookQuery{Author: "Toni Morrison"}, []string{beloved.ID}},
		{"available_only", models.BookQuery{AvailableOnly: true}, []string{anathem.ID, beloved.ID}},
		{"conjunctive", models.BookQuery{Category: "Science Fiction", AvailableOnly: true}, []string{anathem.ID}},
		{"no_match", models.BookQuery{Q: "tolkien"}, []string{}},
		{"unknown_sort_falls_back_to_title", models.BookQuery{Sort: models.SortKey("bogus")}, []string{anathem.ID, beloved.ID, dune.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := s.ListBooks(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(books))
		})
	}
}

func testBooksFacets(t *testing.T, s library.Store) {
	GivenBook(t, s, "A", func(b *models.Book) { b.Category, b.Author = "Poetry", "Wisława Szymborska" })
	GivenBook(t, s, "B", func(b *models.Book) { b.Category, b.Author = "Fantasy", "Andrzej Sapkowski" })
	GivenBook(t, s, "C", func(b *models.Book) { b.Category = "Poetry" })

	facets, err := s.ListFacets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Fantasy", "Poetry"}, facets.Categories)
	assert.Equal(t, []string{"Andrzej Sapkowski", "Wisława Szymborska"}, facets.Authors)
}

func testBorrowingCreate(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")
	b := GivenPending(t, s, "s1", book, 0)

	got, err := s.GetBorrowing(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusPending, got.Status)
	assert.Equal(t, "s1", got.StudentID)
	assert.Equal(t, book.ID, got.BookID)
	assert.Equal(t, "Dune", got.BookTitle)
	assert.WithinDuration(t, baseTime, got.RequestDate, time.Second)
	assert.Nil(t, got.ApprovedDate)
	assert.Nil(t, got.ReturnDate)

	active, err := s.ActiveBorrowing(ctx, "s1", book.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, b.ID, active.ID)

	none, err := s.ActiveBorrowing(ctx, "s2", book.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.GetBorrowing(ctx, "does-not-exist")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testBorrowingCreatePreconditions(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")
	GivenPending(t, s, "s1", book, 0)

	dup := &models.Borrowing{StudentID: "s1", BookID: book.ID, RequestDate: baseTime}
	assert.ErrorIs(t, s.CreateBorrowing(ctx, dup), models.ErrConstraintViolation)

	missing := &models.Borrowing{StudentID: "s1", BookID: "does-not-exist", RequestDate: baseTime}
	assert.ErrorIs(t, s.CreateBorrowing(ctx, missing), models.ErrNotFound)

	other := GivenPending(t, s, "s2", book, time.Minute)
	_, err := s.ApproveBorrowing(ctx, other.ID, baseTime)
	require.NoError(t, err)

	late := &models.Borrowing{StudentID: "s3", BookID: book.ID, RequestDate: baseTime}
	assert.ErrorIs(t, s.CreateBorrowing(ctx, late), models.ErrBookUnavailable)
}

func testApproveCascade(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")
	otherBook := GivenBook(t, s, "Emma")

	x := GivenPending(t, s, "s1", book, 0)
	y := GivenPending(t, s, "s2", book, time.Minute)
	z := GivenPending(t, s, "s3", book, 2*time.Minute)
	alreadyRejected := GivenPending(t, s, "s4", book, 3*time.Minute)
	_, err := s.RejectBorrowing(ctx, alreadyRejected.ID)
	require.NoError(t, err)
	elsewhere := GivenPending(t, s, "s2", otherBook, 0)

	approvedAt := baseTime.Add(time.Hour)
	result, err := s.ApproveBorrowing(ctx, x.ID, approvedAt)
	require.NoError(t, err)

	assert.Equal(t, models.BorrowingStatusApproved, result.Borrowing.Status)
	require.NotNil(t, result.Borrowing.ApprovedDate)
	assert.WithinDuration(t, approvedAt, *result.Borrowing.ApprovedDate, time.Second)
	assert.ElementsMatch(t, []string{y.ID, z.ID}, result.RejectedIDs)

	assert.Equal(t, models.BorrowingStatusApproved, statusOf(t, s, x.ID))
	assert.Equal(t, models.BorrowingStatusRejected, statusOf(t, s, y.ID))
	assert.Equal(t, models.BorrowingStatusRejected, statusOf(t, s, z.ID))
	assert.Equal(t, models.BorrowingStatusRejected, statusOf(t, s, alreadyRejected.ID))
	assert.Equal(t, models.BorrowingStatusPending, statusOf(t, s, elsewhere.ID))

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)

	got, err = s.GetBook(ctx, otherBook.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)

	AssertAvailabilityInvariant(t, s, book.ID)
	AssertAvailabilityInvariant(t, s, otherBook.ID)

	// Odrzucony kaskadą student może ponownie złożyć prośbę dopiero gdy książka wróci
	retry := &models.Borrowing{StudentID: "s2", BookID: book.ID, RequestDate: baseTime}
	assert.ErrorIs(t, s.CreateBorrowing(ctx, retry), models.ErrBookUnavailable)
}

func testApproveStale(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")
	b := GivenPending(t, s, "s1", book, 0)

	_, err := s.RejectBorrowing(ctx, b.ID)
	require.NoError(t, err)

	_, err = s.ApproveBorrowing(ctx, b.ID, baseTime)
	assert.ErrorIs(t, err, models.ErrStaleRequest)
	assert.Equal(t, models.BorrowingStatusRejected, statusOf(t, s, b.ID))
	AssertAvailabilityInvariant(t, s, book.ID)

	approved := GivenPending(t, s, "s2", book, time.Minute)
	_, err = s.ApproveBorrowing(ctx, approved.ID, baseTime)
	require.NoError(t, err)
	_, err = s.ApproveBorrowing(ctx, approved.ID, baseTime)
	assert.ErrorIs(t, err, models.ErrStaleRequest)
	_, err = s.RejectBorrowing(ctx, approved.ID)
	assert.ErrorIs(t, err, models.ErrStaleRequest)
	AssertAvailabilityInvariant(t, s, book.ID)

	_, err = s.ApproveBorrowing(ctx, "does-not-exist", baseTime)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.RejectBorrowing(ctx, "does-not-exist")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testRejectKeepsAvailability(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")
	a := GivenPending(t, s, "s1", book, 0)
	b := GivenPending(t, s, "s2", book, time.Minute)

	rejected, err := s.RejectBorrowing(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusRejected, rejected.Status)

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
	assert.Equal(t, models.BorrowingStatusPending, statusOf(t, s, b.ID))

	// Po odrzuceniu student może złożyć nową prośbę
	again := GivenPending(t, s, "s1", book, 2*time.Minute)
	assert.NotEqual(t, a.ID, again.ID)

	_, err = s.ApproveBorrowing(ctx, b.ID, baseTime)
	require.NoError(t, err)

	got, err = s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)
	AssertAvailabilityInvariant(t, s, book.ID)
}

func testReturn(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")
	b := GivenPending(t, s, "s1", book, 0)

	_, err := s.ReturnBorrowing(ctx, b.ID, baseTime)
	assert.ErrorIs(t, err, models.ErrStaleRequest)

	_, err = s.ApproveBorrowing(ctx, b.ID, baseTime)
	require.NoError(t, err)

	returnedAt := baseTime.Add(48 * time.Hour)
	returned, err := s.ReturnBorrowing(ctx, b.ID, returnedAt)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.WithinDuration(t, returnedAt, *returned.ReturnDate, time.Second)

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
	AssertAvailabilityInvariant(t, s, book.ID)

	_, err = s.ReturnBorrowing(ctx, b.ID, returnedAt)
	assert.ErrorIs(t, err, models.ErrStaleRequest)
	_, err = s.ReturnBorrowing(ctx, "does-not-exist", returnedAt)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Ten sam student może pożyczyć książkę ponownie
	GivenPending(t, s, "s1", book, time.Hour)
}

func testListBorrowings(t *testing.T, s library.Store) {
	ctx := context.Background()
	dune := GivenBook(t, s, "Dune")
	emma := GivenBook(t, s, "Emma")

	first := GivenPending(t, s, "s1", dune, 0)
	second := GivenPending(t, s, "s2", dune, time.Minute)
	third := GivenPending(t, s, "s1", emma, 2*time.Minute)
	_, err := s.RejectBorrowing(ctx, second.ID)
	require.NoError(t, err)

	pendingQueue, err := s.ListBorrowings(ctx, models.BorrowingFilter{Status: models.BorrowingStatusPending, OldestFirst: true})
	require.NoError(t, err)
	require.Len(t, pendingQueue, 2)
	assert.Equal(t, first.ID, pendingQueue[0].ID)
	assert.Equal(t, third.ID, pendingQueue[1].ID)

	history, err := s.ListBorrowings(ctx, models.BorrowingFilter{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, third.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)

	byBook, err := s.ListBorrowings(ctx, models.BorrowingFilter{BookID: dune.ID})
	require.NoError(t, err)
	assert.Len(t, byBook, 2)
}

func testStats(t *testing.T, s library.Store) {
	ctx := context.Background()
	dune := GivenBook(t, s, "Dune")
	emma := GivenBook(t, s, "Emma")
	GivenBook(t, s, "Faust")

	a := GivenPending(t, s, "s1", dune, 0)
	GivenPending(t, s, "s2", dune, time.Minute)
	GivenPending(t, s, "s1", emma, 2*time.Minute)
	_, err := s.ApproveBorrowing(ctx, a.ID, baseTime)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalBooks: 3, AvailableBooks: 2, PendingRequests: 1}, stats)
}

func testConcurrentApprove(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")

	const contenders = 6
	pendings := make([]*models.Borrowing, 0, contenders)
	for i := 0; i < contenders; i++ {
		pendings = append(pendings, GivenPending(t, s, fmt.Sprintf("s%d", i), book, time.Duration(i)*time.Second))
	}

	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		errsMu sync.Mutex
		wins   int
		stale  int
		other  []error
	)
	for _, p := range pendings {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := s.ApproveBorrowing(ctx, id, baseTime)

			errsMu.Lock()
			defer errsMu.Unlock()
			switch {
			case err == nil:
				wins++
			case isStale(err):
				stale++
			default:
				other = append(other, err)
			}
		}(p.ID)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, stale)

	approved, err := s.ListBorrowings(ctx, models.BorrowingFilter{BookID: book.ID, Status: models.BorrowingStatusApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	rejected, err := s.ListBorrowings(ctx, models.BorrowingFilter{BookID: book.ID, Status: models.BorrowingStatusRejected})
	require.NoError(t, err)
	assert.Len(t, rejected, contenders-1)

	AssertAvailabilityInvariant(t, s, book.ID)
}

func testConcurrentSameStudent(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")

	const attempts = 8
	var (
		wg         sync.WaitGroup
		start      = make(chan struct{})
		mu         sync.Mutex
		admitted   int
		violations int
		other      []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.CreateBorrowing(ctx, &models.Borrowing{StudentID: "s1", BookID: book.ID, RequestDate: baseTime})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case isConstraint(err):
				violations++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, admitted)
	assert.Equal(t, attempts-1, violations)

	all, err := s.ListBorrowings(ctx, models.BorrowingFilter{StudentID: "s1", BookID: book.ID})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testConcurrentDifferentStudents(t *testing.T, s library.Store) {
	ctx := context.Background()
	book := GivenBook(t, s, "Dune")

	const students = 5
	var wg sync.WaitGroup
	errs := make([]error, students)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateBorrowing(ctx, &models.Borrowing{
				StudentID:   fmt.Sprintf("s%d", i),
				BookID:      book.ID,
				RequestDate: baseTime.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	pending, err := s.ListBorrowings(ctx, models.BorrowingFilter{BookID: book.ID, Status: models.BorrowingStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, students)
}
