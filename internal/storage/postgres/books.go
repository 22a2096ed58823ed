package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"library-lending/internal/models"
)

const (
	dialectPostgres = "postgres"
	tableBooks      = "books"

	colID            = "id"
	colTitle         = "title"
	colAuthor        = "author"
	colISBN          = "isbn"
	colCategory      = "category"
	colYear          = "publication_year"
	colDescription   = "description"
	colIsAvailable   = "is_available"
	colCreatedAt     = "created_at"
	exprTitleOrder   = `LOWER(title) COLLATE "C"`
	exprAuthorOrder  = `LOWER(NULLIF(author, '')) COLLATE "C"`
	exprYearOrder    = `NULLIF(publication_year, 0)`
	exprIDOrder      = `id COLLATE "C"`
	exprISBNOrEmpty  = `COALESCE(isbn, '')`
	likeEscapeTarget = `\`
)

const insertBookSQL = `
INSERT INTO books (id, title, author, isbn, category, publication_year, description, is_available, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const selectBookSQL = `
SELECT id, title, author, COALESCE(isbn, ''), category, publication_year, description, is_available, created_at
FROM books`

const selectCategoriesSQL = `
SELECT DISTINCT category FROM books WHERE category <> '' ORDER BY category COLLATE "C"`

const selectAuthorsSQL = `
SELECT DISTINCT author FROM books WHERE author <> '' ORDER BY author COLLATE "C"`

const statsSQL = `
SELECT
    COUNT(*),
    COUNT(*) FILTER (WHERE is_available),
    (SELECT COUNT(*) FROM borrowings WHERE status = 'PENDING')
FROM books`

func scanBook(row pgx.Row) (*models.Book, error) {
	var b models.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category,
		&b.PublicationYear, &b.Description, &b.IsAvailable, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// CreateBook zapisuje książkę; duplikat ISBN zwraca ErrConstraintViolation
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}
	if book.ID == "" {
		book.ID = newID()
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, insertBookSQL,
		book.ID, book.Title, book.Author, nullIfEmpty(book.ISBN), book.Category,
		book.PublicationYear, book.Description, book.IsAvailable, book.CreatedAt)
	if err != nil {
		return translate(err, "zapis książki "+book.Title)
	}
	return nil
}

// GetBook pobiera książkę po ID
func (s *Store) GetBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := scanBook(s.pool.QueryRow(ctx, selectBookSQL+` WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "książka "+id)
	}
	return book, nil
}

// FindBook szuka najstarszej książki o podanym tytule i autorze
func (s *Store) FindBook(ctx context.Context, title, author string) (*models.Book, error) {
	book, err := scanBook(s.pool.QueryRow(ctx,
		selectBookSQL+` WHERE title = $1 AND author = $2 ORDER BY created_at, id LIMIT 1`, title, author))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("książka %q", title))
	}
	return book, nil
}

// ListBooks buduje zapytanie z filtrów i klucza sortowania
func (s *Store) ListBooks(ctx context.Context, query models.BookQuery) ([]*models.Book, error) {
	sqlQuery, args, err := buildListBooksQuery(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("błąd pobierania książek: %w", err)
	}
	defer rows.Close()

	books := make([]*models.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("błąd odczytu książki: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("błąd iteracji książek: %w", err)
	}
	return books, nil
}

func buildListBooksQuery(query models.BookQuery) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(tableBooks).
		Prepared(true).
		Select(
			colID, colTitle, colAuthor, goqu.L(exprISBNOrEmpty).As(colISBN), colCategory,
			colYear, colDescription, colIsAvailable, colCreatedAt,
		)

	where := make([]exp.Expression, 0, 4)
	if term := strings.TrimSpace(query.Q); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		where = append(where, goqu.Or(
			goqu.C(colTitle).ILike(pattern),
			goqu.C(colAuthor).ILike(pattern),
			goqu.C(colDescription).ILike(pattern),
			goqu.C(colISBN).ILike(pattern),
		))
	}
	if query.Category != "" {
		where = append(where, goqu.Ex{colCategory: query.Category})
	}
	if query.Author != "" {
		where = append(where, goqu.Ex{colAuthor: query.Author})
	}
	if query.AvailableOnly {
		where = append(where, goqu.C(colIsAvailable).IsTrue())
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	ds = ds.Order(orderBy(query.Sort)...)

	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("błąd budowania zapytania: %w", err)
	}
	return sqlQuery, args, nil
}

// orderBy odwzorowuje klucz sortowania na ORDER BY. Puste wartości
// trafiają na koniec przy sortowaniu rosnącym i na początek przy malejącym.
func orderBy(key models.SortKey) []exp.OrderedExpression {
	key = models.ParseSortKey(string(key))
	desc := key.Descending()

	directed := func(e exp.Orderable) exp.OrderedExpression {
		if desc {
			return e.Desc().NullsFirst()
		}
		return e.Asc().NullsLast()
	}

	var primary exp.OrderedExpression
	switch key.Field() {
	case "author":
		primary = directed(goqu.L(exprAuthorOrder))
	case "year":
		primary = directed(goqu.L(exprYearOrder))
	case "available":
		if desc {
			primary = goqu.C(colIsAvailable).Asc()
		} else {
			primary = goqu.C(colIsAvailable).Desc()
		}
	default:
		primary = directed(goqu.L(exprTitleOrder))
	}

	return []exp.OrderedExpression{
		primary,
		goqu.L(exprTitleOrder).Asc(),
		goqu.L(exprIDOrder).Asc(),
	}
}

// escapeLike maskuje znaki specjalne wzorca LIKE
func escapeLike(term string) string {
	r := strings.NewReplacer(likeEscapeTarget, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(term)
}

// ListFacets zwraca unikalne kategorie i autorów
func (s *Store) ListFacets(ctx context.Context) (models.Facets, error) {
	categories, err := s.distinct(ctx, selectCategoriesSQL)
	if err != nil {
		return models.Facets{}, err
	}
	authors, err := s.distinct(ctx, selectAuthorsSQL)
	if err != nil {
		return models.Facets{}, err
	}
	return models.Facets{Categories: categories, Authors: authors}, nil
}

func (s *Store) distinct(ctx context.Context, sqlQuery string) ([]string, error) {
	rows, err := s.pool.Query(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("błąd pobierania filtrów: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("błąd odczytu filtrów: %w", err)
	}
	return values, nil
}

// Stats liczy książki i oczekujące prośby
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var total, available, pending int64
	if err := s.pool.QueryRow(ctx, statsSQL).Scan(&total, &available, &pending); err != nil {
		return models.Stats{}, fmt.Errorf("błąd pobierania statystyk: %w", err)
	}
	return models.Stats{
		TotalBooks:      int(total),
		AvailableBooks:  int(available),
		PendingRequests: int(pending),
	}, nil
}
