package models

import (
	"sort"
	"strings"
)

// SortKey to zamknięty zbiór kluczy sortowania katalogu
type SortKey string

const (
	SortTitle         SortKey = "title"
	SortAuthor        SortKey = "author"
	SortYear          SortKey = "year"
	SortAvailable     SortKey = "available" // Dostępne najpierw
	SortTitleDesc     SortKey = "-title"
	SortAuthorDesc    SortKey = "-author"
	SortYearDesc      SortKey = "-year"
	SortAvailableDesc SortKey = "-available" // Niedostępne najpierw
)

// DefaultSort jest używany gdy klucz jest pusty lub nieznany
const DefaultSort = SortTitle

// SortKeys zwraca wszystkie rozpoznawane klucze
func SortKeys() []SortKey {
	return []SortKey{
		SortTitle, SortAuthor, SortYear, SortAvailable,
		SortTitleDesc, SortAuthorDesc, SortYearDesc, SortAvailableDesc,
	}
}

// ParseSortKey zamienia parametr z zapytania na SortKey, z domyślnym sortowaniem po tytule
func ParseSortKey(raw string) SortKey {
	key := SortKey(strings.TrimSpace(raw))
	for _, known := range SortKeys() {
		if key == known {
			return key
		}
	}
	return DefaultSort
}

// Field zwraca nazwę pola sortowania bez kierunku
func (k SortKey) Field() string {
	return strings.TrimPrefix(string(k), "-")
}

// Descending mówi czy klucz ma prefiks "-"
func (k SortKey) Descending() bool {
	return strings.HasPrefix(string(k), "-")
}

// BookQuery opisuje filtry i sortowanie listy książek.
// Wszystkie podane filtry muszą być spełnione jednocześnie.
type BookQuery struct {
	Q             string  // Fraza szukana w tytule, autorze, opisie i ISBN
	Category      string  // Dokładna kategoria
	Author        string  // Dokładny autor
	AvailableOnly bool    // Tylko dostępne
	Sort          SortKey // Klucz sortowania
}

// Matches sprawdza filtr po stronie aplikacji (magazyn w pamięci i Firestore)
func (q BookQuery) Matches(b *Book) bool {
	if term := strings.ToLower(strings.TrimSpace(q.Q)); term != "" {
		if !strings.Contains(strings.ToLower(b.Title), term) &&
			!strings.Contains(strings.ToLower(b.Author), term) &&
			!strings.Contains(strings.ToLower(b.Description), term) &&
			!strings.Contains(strings.ToLower(b.ISBN), term) {
			return false
		}
	}
	if q.Category != "" && b.Category != q.Category {
		return false
	}
	if q.Author != "" && b.Author != q.Author {
		return false
	}
	if q.AvailableOnly && !b.IsAvailable {
		return false
	}
	return true
}

// FilterBooks zwraca książki spełniające zapytanie w ustalonej kolejności
func FilterBooks(books []*Book, q BookQuery) []*Book {
	result := make([]*Book, 0, len(books))
	for _, b := range books {
		if q.Matches(b) {
			result = append(result, b)
		}
	}
	SortBooks(result, q.Sort)
	return result
}

// SortBooks sortuje książki jak baza SQL: puste wartości na końcu przy
// sortowaniu rosnącym i na początku przy malejącym. Remisy rozstrzyga tytuł, potem ID.
func SortBooks(books []*Book, key SortKey) {
	key = ParseSortKey(string(key))
	desc := key.Descending()

	primary := func(a, b *Book) int {
		switch key.Field() {
		case "author":
			return compareNullable(a.Author == "", b.Author == "", strings.Compare(strings.ToLower(a.Author), strings.ToLower(b.Author)), desc)
		case "year":
			return compareNullable(a.PublicationYear == 0, b.PublicationYear == 0, compareInt(a.PublicationYear, b.PublicationYear), desc)
		case "available":
			// "available" = dostępne najpierw, czyli malejąco po fladze
			c := compareBool(a.IsAvailable, b.IsAvailable)
			if !desc {
				c = -c
			}
			return c
		default:
			c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
			if desc {
				c = -c
			}
			return c
		}
	}

	sort.SliceStable(books, func(i, j int) bool {
		a, b := books[i], books[j]
		if c := primary(a, b); c != 0 {
			return c < 0
		}
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}

func compareNullable(aNull, bNull bool, c int, desc bool) int {
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		if desc {
			return -1
		}
		return 1
	case bNull:
		if desc {
			return 1
		}
		return -1
	}
	if desc {
		return -c
	}
	return c
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// UniqueSorted zwraca posortowane, niepuste, unikalne wartości
func UniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
