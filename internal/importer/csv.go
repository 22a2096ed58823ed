// Package importer czyta katalog książek z pliku CSV w stałym układzie kolumn.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"library-lending/internal/library"
	"library-lending/internal/models"
)

// Układ kolumn pliku: 0 lp., 1 kategoria, 2 ISBN, 3 tytuł, 4 autor,
// 7 rok wydania, 11 opis. Pozostałe kolumny są ignorowane.
const (
	colCategory    = 1
	colISBN        = 2
	colTitle       = 3
	colAuthor      = 4
	colYear        = 7
	colDescription = 11

	minColumns = colYear + 1
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEmptyFile oznacza plik bez wiersza nagłówka
var ErrEmptyFile = errors.New("plik CSV jest pusty")

// Parse czyta wiersze pliku, pomijając nagłówek. Wiersz z błędem nie przerywa
// odczytu: trafia do wyniku z ustawionym Err.
func Parse(r io.Reader) ([]library.ImportRow, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("błąd odczytu nagłówka: %w", err)
	}

	rows := make([]library.ImportRow, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		line, _ := reader.FieldPos(0)
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return rows, fmt.Errorf("błąd odczytu pliku: %w", err)
			}
			rows = append(rows, library.ImportRow{Line: parseErr.StartLine, Err: models.InvalidInput(parseErr.Err.Error())})
			continue
		}

		book, err := bookFromRecord(record)
		rows = append(rows, library.ImportRow{Line: line, Book: book, Err: err})
	}
	return rows, nil
}

func bookFromRecord(record []string) (*models.Book, error) {
	if len(record) < minColumns {
		return nil, models.InvalidInput(fmt.Sprintf("za mało kolumn: %d", len(record)))
	}

	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	title := field(colTitle)
	if title == "" {
		return nil, models.InvalidInput("brak tytułu")
	}

	book := models.NewBook(title)
	book.Author = field(colAuthor)
	book.ISBN = field(colISBN)
	book.Category = field(colCategory)
	book.Description = field(colDescription)

	// Rok nieliczbowy jest pomijany, nie odrzuca wiersza
	if year, err := strconv.Atoi(field(colYear)); err == nil && year > 0 {
		book.PublicationYear = year
	}
	return book, nil
}
