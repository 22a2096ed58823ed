package library

import (
	"context"
	"errors"
	"fmt"

	"library-lending/internal/models"
)

// ImportRow to jeden wiersz pliku importu po sparsowaniu.
// Err != nil oznacza wiersz odrzucony już na etapie parsowania.
type ImportRow struct {
	Line int
	Book *models.Book
	Err  error
}

// RowProblem opisuje pominięty wiersz
type RowProblem struct {
	Line   int    `json:"line"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// ImportReport podsumowuje import
type ImportReport struct {
	Created  int          `json:"created"`
	Skipped  int          `json:"skipped"`
	Problems []RowProblem `json:"problems"`
}

// ImportBooks dodaje książki z importu. Błąd wiersza jest odnotowywany
// i nie przerywa importu; przerywa go tylko błąd infrastruktury lub anulowanie kontekstu.
// Książka o tym samym tytule i autorze jest pomijana jako duplikat.
func (s *Service) ImportBooks(ctx context.Context, rows []ImportRow) (*ImportReport, error) {
	report := &ImportReport{Problems: []RowProblem{}}

	skip := func(row ImportRow, reason string) {
		p := RowProblem{Line: row.Line, Reason: reason}
		if row.Book != nil {
			p.Title = row.Book.Title
		}
		report.Skipped++
		report.Problems = append(report.Problems, p)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if row.Err != nil {
			skip(row, row.Err.Error())
			continue
		}

		book := row.Book
		book.Normalize()
		if err := book.Validate(); err != nil {
			skip(row, err.Error())
			continue
		}

		_, err := s.store.FindBook(ctx, book.Title, book.Author)
		switch {
		case err == nil:
			skip(row, "duplikat: książka o tym tytule i autorze już istnieje")
			continue
		case !errors.Is(err, models.ErrNotFound):
			return report, fmt.Errorf("błąd wyszukiwania duplikatu (wiersz %d): %w", row.Line, err)
		}

		book.IsAvailable = true
		book.CreatedAt = s.now()
		if err := s.store.CreateBook(ctx, book); err != nil {
			if models.IsRecoverable(err) {
				skip(row, err.Error())
				continue
			}
			return report, fmt.Errorf("błąd zapisu książki (wiersz %d): %w", row.Line, err)
		}
		report.Created++
	}

	s.logger.Info("Import zakończony", "created", report.Created, "skipped", report.Skipped)
	return report, nil
}
