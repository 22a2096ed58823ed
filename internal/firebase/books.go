package firebase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	"library-lending/internal/models"
)

func bookFromDoc(doc *firestore.DocumentSnapshot) (*models.Book, error) {
	var book models.Book
	if err := doc.DataTo(&book); err != nil {
		return nil, fmt.Errorf("błąd parsowania danych książki: %w", err)
	}
	// Ustaw ID z dokumentu Firestore
	book.ID = doc.Ref.ID
	return &book, nil
}

// CreateBook zapisuje książkę razem ze strażnikiem ISBN
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}

	// Jeśli nie ma ID, Firestore wygeneruje je automatycznie
	var docRef *firestore.DocumentRef
	if book.ID == "" {
		docRef = s.books().NewDoc()
		book.ID = docRef.ID
	} else {
		docRef = s.books().Doc(book.ID)
	}

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if book.ISBN != "" {
			if err := tx.Create(s.isbnGuard(book.ISBN), guardDoc{BookID: book.ID}); err != nil {
				return err
			}
		}
		return tx.Create(docRef, book)
	})
	if err != nil {
		return translate(err, "zapis książki "+book.Title)
	}
	return nil
}

// GetBook pobiera książkę po ID
func (s *Store) GetBook(ctx context.Context, id string) (*models.Book, error) {
	if id == "" {
		return nil, fmt.Errorf("książka: %w", models.ErrNotFound)
	}

	doc, err := s.books().Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err, "książka "+id)
	}
	return bookFromDoc(doc)
}

// FindBook szuka najstarszej książki o podanym tytule i autorze
func (s *Store) FindBook(ctx context.Context, title, author string) (*models.Book, error) {
	docs, err := allDocs(s.books().
		Where("title", "==", title).
		Where("author", "==", author).
		Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("błąd wyszukiwania książki: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("książka %q: %w", title, models.ErrNotFound)
	}

	books := make([]*models.Book, 0, len(docs))
	for _, doc := range docs {
		book, err := bookFromDoc(doc)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].CreatedAt.Before(books[j].CreatedAt)
		}
		return books[i].ID < books[j].ID
	})
	return books[0], nil
}

func (s *Store) listAllBooks(ctx context.Context) ([]*models.Book, error) {
	docs, err := allDocs(s.books().Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("błąd iteracji po książkach: %w", err)
	}

	books := make([]*models.Book, 0, len(docs))
	for _, doc := range docs {
		book, err := bookFromDoc(doc)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// ListBooks filtruje i sortuje po stronie aplikacji (Firestore ma ograniczone możliwości wyszukiwania)
func (s *Store) ListBooks(ctx context.Context, query models.BookQuery) ([]*models.Book, error) {
	books, err := s.listAllBooks(ctx)
	if err != nil {
		return nil, err
	}
	return models.FilterBooks(books, query), nil
}

// ListFacets zwraca unikalne kategorie i autorów
func (s *Store) ListFacets(ctx context.Context) (models.Facets, error) {
	books, err := s.listAllBooks(ctx)
	if err != nil {
		return models.Facets{}, err
	}

	categories := make([]string, 0, len(books))
	authors := make([]string, 0, len(books))
	for _, book := range books {
		categories = append(categories, book.Category)
		authors = append(authors, book.Author)
	}
	return models.Facets{
		Categories: models.UniqueSorted(categories),
		Authors:    models.UniqueSorted(authors),
	}, nil
}
