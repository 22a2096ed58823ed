package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"library-lending/internal/library"
	"library-lending/internal/models"
)

// BooksHandler obsługuje katalog książek i prośby o wypożyczenie
type BooksHandler struct {
	svc    *library.Service
	logger *slog.Logger
}

// NewBooksHandler tworzy nowy handler dla książek
func NewBooksHandler(svc *library.Service, logger *slog.Logger) *BooksHandler {
	return &BooksHandler{svc: svc, logger: logger}
}

// BookListResponse to lista książek wraz z wartościami filtrów
type BookListResponse struct {
	Books  []*models.Book   `json:"books"`
	Facets models.Facets    `json:"facets"`
	Query  BookQueryEcho    `json:"query"`
	Sorts  []models.SortKey `json:"sorts"`
}

// BookQueryEcho odsyła zastosowane filtry
type BookQueryEcho struct {
	Q             string         `json:"q"`
	Category      string         `json:"category"`
	Author        string         `json:"author"`
	AvailableOnly bool           `json:"available"`
	Sort          models.SortKey `json:"sort"`
}

// parseBookQuery czyta filtry z query stringa: q, category, author, available, sort
func parseBookQuery(r *http.Request) models.BookQuery {
	values := r.URL.Query()
	available, _ := strconv.ParseBool(values.Get("available"))
	return models.BookQuery{
		Q:             values.Get("q"),
		Category:      values.Get("category"),
		Author:        values.Get("author"),
		AvailableOnly: available,
		Sort:          models.ParseSortKey(values.Get("sort")),
	}
}

// List zwraca listę książek (GET /books)
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	query := parseBookQuery(r)

	books, err := h.svc.ListBooks(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	facets, err := h.svc.Facets(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, BookListResponse{
		Books:  books,
		Facets: facets,
		Query: BookQueryEcho{
			Q:             query.Q,
			Category:      query.Category,
			Author:        query.Author,
			AvailableOnly: query.AvailableOnly,
			Sort:          query.Sort,
		},
		Sorts: models.SortKeys(),
	})
}

// Show zwraca szczegóły książki i aktywną prośbę oglądającego (GET /books/{id})
func (h *BooksHandler) Show(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ViewBook(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RequestBorrow składa prośbę o wypożyczenie (POST /books/{id}/request)
func (h *BooksHandler) RequestBorrow(w http.ResponseWriter, r *http.Request) {
	borrowing, err := h.svc.RequestBorrow(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, borrowing)
}
