package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"library-lending/internal/importer"
	"library-lending/internal/library"
	"library-lending/internal/models"
)

// maxImportSize ogranicza rozmiar przesyłanego pliku CSV
const maxImportSize = 10 << 20

// StaffHandler obsługuje panel personelu
type StaffHandler struct {
	svc    *library.Service
	logger *slog.Logger
}

// NewStaffHandler tworzy handler panelu personelu
func NewStaffHandler(svc *library.Service, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{svc: svc, logger: logger}
}

// DashboardResponse to dane panelu personelu
type DashboardResponse struct {
	Stats   models.Stats        `json:"stats"`
	Pending []*models.Borrowing `json:"pending"`
}

// Dashboard zwraca liczniki i kolejkę próśb (GET /staff)
func (h *StaffHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)

	stats, err := h.svc.Dashboard(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pending, err := h.svc.PendingRequests(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{Stats: stats, Pending: pending})
}

// PendingRequests zwraca oczekujące prośby, najstarsze najpierw (GET /staff/pending-requests)
func (h *StaffHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.PendingRequests(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// Approve zatwierdza prośbę (POST /staff/pending-requests/{id}/approve)
func (h *StaffHandler) Approve(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Approve(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Reject odrzuca prośbę (POST /staff/pending-requests/{id}/reject)
func (h *StaffHandler) Reject(w http.ResponseWriter, r *http.Request) {
	borrowing, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowing)
}

// Return oznacza zatwierdzone wypożyczenie jako zwrócone (POST /staff/borrowings/{id}/return)
func (h *StaffHandler) Return(w http.ResponseWriter, r *http.Request) {
	borrowing, err := h.svc.Return(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowing)
}

type bulkRequest struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
}

// BulkResponse to wyniki akcji masowej
type BulkResponse struct {
	Action    library.BulkAction   `json:"action"`
	Results   []library.BulkResult `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

// Bulk zatwierdza lub odrzuca wiele próśb (POST /staff/pending-requests/bulk).
// Przyjmuje JSON {"action","ids"} albo formularz z polem action i powtarzanym polem ids.
func (h *StaffHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "niepoprawny JSON")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			badRequest(w, "niepoprawny formularz")
			return
		}
		req.Action = r.PostForm.Get("action")
		req.IDs = r.PostForm["ids"]
	}

	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		badRequest(w, "nie wybrano żadnych próśb")
		return
	}

	action := library.BulkAction(strings.ToLower(strings.TrimSpace(req.Action)))
	results, err := h.svc.Bulk(r.Context(), action, ids, currentUser(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := BulkResponse{Action: action, Results: results}
	for _, res := range results {
		if res.OK() {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type addBookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Category        string `json:"category"`
	PublicationYear int    `json:"publication_year"`
	Description     string `json:"description"`
}

// AddBook dodaje książkę do katalogu (POST /staff/books)
func (h *StaffHandler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "niepoprawny JSON")
		return
	}

	book := models.NewBook(req.Title)
	book.Author = req.Author
	book.ISBN = req.ISBN
	book.Category = req.Category
	book.PublicationYear = req.PublicationYear
	book.Description = req.Description

	if err := h.svc.AddBook(r.Context(), currentUser(r), book); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// Import wczytuje książki z pliku CSV przesłanego w polu "file" (POST /staff/import)
func (h *StaffHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !currentUser(r).IsStaff() {
		writeError(w, r, h.logger, models.ErrPermissionDenied)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		badRequest(w, "niepoprawny formularz lub za duży plik")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "brak pliku w polu \"file\"")
		return
	}
	defer file.Close()

	rows, err := importer.Parse(file)
	if err != nil {
		if errors.Is(err, importer.ErrEmptyFile) {
			badRequest(w, "plik jest pusty")
			return
		}
		writeError(w, r, h.logger, models.InvalidInput(err.Error()))
		return
	}

	report, err := h.svc.ImportBooks(r.Context(), rows)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
