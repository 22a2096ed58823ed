package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/internal/firebase"
	"library-lending/internal/library"
	"library-lending/internal/models"
	"library-lending/internal/session"
	"library-lending/internal/storage/memory"
	"library-lending/internal/storage/storetest"
)

var (
	student = &models.User{ID: "student-1", Username: "ala", Role: models.RoleStudent, IsActive: true}
	other   = &models.User{ID: "student-2", Username: "ola", Role: models.RoleStudent, IsActive: true}
	staff   = &models.User{ID: "staff-1", Username: "bibliotekarz", Role: models.RoleStaff, IsActive: true}
)

type fakeAuth struct {
	users map[string]*models.User
}

func (f *fakeAuth) SignIn(_ context.Context, email, password string) (*models.User, error) {
	u, ok := f.users[email]
	if !ok || password != "secret1" {
		return nil, firebase.ErrInvalidCredentials
	}
	return u, nil
}

func (f *fakeAuth) Register(_ context.Context, email, _, username string) (*models.User, error) {
	if _, ok := f.users[email]; ok {
		return nil, models.ErrConstraintViolation
	}
	u := &models.User{ID: "new-" + username, Email: email, Username: username, Role: models.RoleStudent, IsActive: true}
	f.users[email] = u
	return u, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	t        *testing.T
	store    *memory.Store
	sessions *session.Manager
	handler  http.Handler
	cookies  map[string]*http.Cookie
}

func newTestServer(t *testing.T, auth Authenticator) *testServer {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(time.Hour)
	svc := library.NewService(store, library.WithLogger(logger))

	deps := Deps{Service: svc, Sessions: sessions, Backend: "memory", Logger: logger}
	if auth != nil {
		deps.Auth = auth
	}

	ts := &testServer{
		t:        t,
		store:    store,
		sessions: sessions,
		handler:  NewRouter(deps),
		cookies:  map[string]*http.Cookie{},
	}
	for _, u := range []*models.User{student, other, staff} {
		sess, err := sessions.CreateSession(u)
		require.NoError(t, err)
		ts.cookies[u.ID] = &http.Cookie{Name: session.CookieName, Value: sess.ID}
	}
	return ts
}

func (ts *testServer) do(as *models.User, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	ts.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		req.AddCookie(ts.cookies[as.ID])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[ErrorResponse](t, rec).Code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(nil, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", decode[map[string]string](t, rec)["backend"])

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler("postgres", failingPinger{}, logger)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListBooks(t *testing.T) {
	ts := newTestServer(t, nil)
	storetest.GivenBook(t, ts.store, "Lalka", func(b *models.Book) { b.Author = "Prus"; b.Category = "Powieść" })
	storetest.GivenBook(t, ts.store, "Ferdydurke", func(b *models.Book) { b.Author = "Gombrowicz"; b.IsAvailable = false })
	storetest.GivenBook(t, ts.store, "Faraon", func(b *models.Book) { b.Author = "Prus"; b.Category = "Powieść" })

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"default sort by title", "", []string{"Faraon", "Ferdydurke", "Lalka"}},
		{"author filter", "?author=Prus", []string{"Faraon", "Lalka"}},
		{"available only", "?available=true&sort=-title", []string{"Lalka", "Faraon"}},
		{"search", "?q=dyd", []string{"Ferdydurke"}},
		{"unknown sort falls back to title", "?sort=DROP", []string{"Faraon", "Ferdydurke", "Lalka"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(nil, http.MethodGet, "/books"+tt.query, nil, "")
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[BookListResponse](t, rec)
			titles := make([]string, 0, len(resp.Books))
			for _, b := range resp.Books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.want, titles)
			assert.Equal(t, []string{"Gombrowicz", "Prus"}, resp.Facets.Authors)
			assert.Equal(t, []string{"Powieść"}, resp.Facets.Categories)
		})
	}
}

func TestShowBook(t *testing.T) {
	ts := newTestServer(t, nil)
	book := storetest.GivenBook(t, ts.store, "Lalka")
	pending := storetest.GivenPending(t, ts.store, student.ID, book, 0)

	rec := ts.do(student, http.MethodGet, "/books/"+book.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[library.BookView](t, rec)
	assert.Equal(t, "Lalka", view.Book.Title)
	require.NotNil(t, view.ActiveBorrowing)
	assert.Equal(t, pending.ID, view.ActiveBorrowing.ID)

	rec = ts.do(nil, http.MethodGet, "/books/"+book.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[library.BookView](t, rec).ActiveBorrowing)

	rec = ts.do(nil, http.MethodGet, "/books/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestRequestBorrow(t *testing.T) {
	ts := newTestServer(t, nil)
	book := storetest.GivenBook(t, ts.store, "Lalka")
	gone := storetest.GivenBook(t, ts.store, "Chłopi", func(b *models.Book) { b.IsAvailable = false })

	rec := ts.do(nil, http.MethodPost, "/books/"+book.ID+"/request", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(student, http.MethodPost, "/books/"+book.ID+"/request", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Borrowing](t, rec)
	assert.Equal(t, models.BorrowingStatusPending, created.Status)
	assert.Equal(t, student.ID, created.StudentID)
	assert.Equal(t, "Lalka", created.BookTitle)

	rec = ts.do(student, http.MethodPost, "/books/"+book.ID+"/request", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_active_request", errorCode(t, rec))

	rec = ts.do(student, http.MethodPost, "/books/"+gone.ID+"/request", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "book_unavailable", errorCode(t, rec))

	rec = ts.do(other, http.MethodPost, "/books/"+book.ID+"/request", nil, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStaffRoutesRequireStaff(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, target := range []string{"/staff/", "/staff/pending-requests"} {
		assert.Equal(t, http.StatusUnauthorized, ts.do(nil, http.MethodGet, target, nil, "").Code, target)
		assert.Equal(t, http.StatusForbidden, ts.do(student, http.MethodGet, target, nil, "").Code, target)
		assert.Equal(t, http.StatusOK, ts.do(staff, http.MethodGet, target, nil, "").Code, target)
	}
}

func TestApproveFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	book := storetest.GivenBook(t, ts.store, "Lalka")
	first := storetest.GivenPending(t, ts.store, student.ID, book, 0)
	second := storetest.GivenPending(t, ts.store, other.ID, book, time.Minute)

	rec := ts.do(staff, http.MethodGet, "/staff/pending-requests", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode[[]*models.Borrowing](t, rec)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID, "oldest first")

	rec = ts.do(staff, http.MethodPost, "/staff/pending-requests/"+second.ID+"/approve", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[models.ApprovalResult](t, rec)
	assert.Equal(t, models.BorrowingStatusApproved, result.Borrowing.Status)
	assert.Equal(t, []string{first.ID}, result.RejectedIDs)

	rec = ts.do(staff, http.MethodPost, "/staff/pending-requests/"+first.ID+"/approve", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "stale_request", errorCode(t, rec))

	rec = ts.do(staff, http.MethodGet, "/staff/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[DashboardResponse](t, rec)
	assert.Equal(t, models.Stats{TotalBooks: 1, AvailableBooks: 0, PendingRequests: 0}, dash.Stats)
	assert.Empty(t, dash.Pending)

	rec = ts.do(staff, http.MethodPost, "/staff/borrowings/"+second.ID+"/return", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.BorrowingStatusReturned, decode[models.Borrowing](t, rec).Status)
	storetest.AssertAvailabilityInvariant(t, ts.store, book.ID)

	rec = ts.do(staff, http.MethodPost, "/staff/pending-requests/missing/reject", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulk(t *testing.T) {
	ts := newTestServer(t, nil)
	lalka := storetest.GivenBook(t, ts.store, "Lalka")
	faraon := storetest.GivenBook(t, ts.store, "Faraon")
	a := storetest.GivenPending(t, ts.store, student.ID, lalka, 0)
	b := storetest.GivenPending(t, ts.store, other.ID, lalka, time.Minute)
	c := storetest.GivenPending(t, ts.store, student.ID, faraon, 2*time.Minute)

	t.Run("form approve", func(t *testing.T) {
		form := url.Values{"action": {"approve"}, "ids": {a.ID, b.ID, c.ID}}
		rec := ts.do(staff, http.MethodPost, "/staff/pending-requests/bulk", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[BulkResponse](t, rec)
		assert.Equal(t, 2, resp.Succeeded)
		assert.Equal(t, 1, resp.Failed)
		require.Len(t, resp.Results, 3)
		assert.Equal(t, b.ID, resp.Results[1].ID)
		assert.NotEmpty(t, resp.Results[1].Error, "sibling was rejected by the first approval")
	})

	t.Run("unknown action", func(t *testing.T) {
		body := `{"action":"archive","ids":["x"]}`
		rec := ts.do(staff, http.MethodPost, "/staff/pending-requests/bulk", strings.NewReader(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no ids", func(t *testing.T) {
		body := `{"action":"reject","ids":[" "]}`
		rec := ts.do(staff, http.MethodPost, "/staff/pending-requests/bulk", strings.NewReader(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAddBook(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"title":"  Quo Vadis ","author":"Sienkiewicz","isbn":"978-83-01","publication_year":1896}`
	rec := ts.do(staff, http.MethodPost, "/staff/books", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	book := decode[models.Book](t, rec)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, "Quo Vadis", book.Title)
	assert.True(t, book.IsAvailable)

	rec = ts.do(staff, http.MethodPost, "/staff/books", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate ISBN")

	rec = ts.do(staff, http.MethodPost, "/staff/books", strings.NewReader(`{"title":"   "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport(t *testing.T) {
	ts := newTestServer(t, nil)
	storetest.GivenBook(t, ts.store, "Lalka", func(b *models.Book) { b.Author = "Bolesław Prus" })

	csvData := "Lp,Kategoria,ISBN,Tytuł,Autor,Wydawca,Miejsce,Rok,Strony,Język,Format,Opis\n" +
		"1,Powieść,111,Lalka,Bolesław Prus,PIW,Warszawa,1890,600,pl,A5,Klasyka\n" +
		"2,Powieść,222,Nad Niemnem,Eliza Orzeszkowa,PIW,Warszawa,1888,500,pl,A5,\n" +
		"3,Poezja,333,,Anonim,x,y,2000,10,pl,A5,\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "books.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvData))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := ts.do(staff, http.MethodPost, "/staff/import", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[library.ImportReport](t, rec)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Skipped)

	rec = ts.do(staff, http.MethodPost, "/staff/import", strings.NewReader("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile(t *testing.T) {
	ts := newTestServer(t, nil)
	lalka := storetest.GivenBook(t, ts.store, "Lalka")
	faraon := storetest.GivenBook(t, ts.store, "Faraon")
	older := storetest.GivenPending(t, ts.store, student.ID, lalka, 0)
	newer := storetest.GivenPending(t, ts.store, student.ID, faraon, time.Hour)
	storetest.GivenPending(t, ts.store, other.ID, faraon, 2*time.Hour)

	rec := ts.do(student, http.MethodGet, "/profile", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProfileResponse](t, rec)
	require.Len(t, resp.History, 2)
	assert.Equal(t, newer.ID, resp.History[0].ID)
	assert.Equal(t, older.ID, resp.History[1].ID)
	assert.Equal(t, 2, resp.Active)

	assert.Equal(t, http.StatusUnauthorized, ts.do(nil, http.MethodGet, "/profile", nil, "").Code)
}

func TestAuthFlow(t *testing.T) {
	t.Run("unavailable without firebase", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(nil, http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.pl","password":"secret1"}`), "application/json")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	auth := &fakeAuth{users: map[string]*models.User{"ala@example.com": student}}
	ts := newTestServer(t, auth)

	t.Run("bad credentials", func(t *testing.T) {
		form := url.Values{"email": {"ala@example.com"}, "password": {"wrong"}}
		rec := ts.do(nil, http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := ts.do(nil, http.MethodPost, "/login", strings.NewReader(`{"email":"ala@example.com"}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("login sets session cookie", func(t *testing.T) {
		rec := ts.do(nil, http.MethodPost, "/login", strings.NewReader(`{"email":"ala@example.com","password":"secret1"}`), "application/json")
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(cookies[0])
		me := httptest.NewRecorder()
		ts.handler.ServeHTTP(me, req)
		require.Equal(t, http.StatusOK, me.Code)
		assert.Equal(t, student.ID, decode[models.User](t, me).ID)

		req = httptest.NewRequest(http.MethodPost, "/logout", nil)
		req.AddCookie(cookies[0])
		out := httptest.NewRecorder()
		ts.handler.ServeHTTP(out, req)
		assert.Equal(t, http.StatusNoContent, out.Code)

		_, ok := ts.sessions.GetSession(cookies[0].Value)
		assert.False(t, ok)
	})

	t.Run("register", func(t *testing.T) {
		body := `{"email":"nowy@example.com","password":"secret1","username":"nowy"}`
		rec := ts.do(nil, http.MethodPost, "/register", strings.NewReader(body), "application/json")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, models.RoleStudent, decode[models.User](t, rec).Role)

		rec = ts.do(nil, http.MethodPost, "/register", strings.NewReader(body), "application/json")
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = ts.do(nil, http.MethodPost, "/register", strings.NewReader(`{"email":"x@example.com","password":"123"}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrBookUnavailable, http.StatusConflict},
		{models.ErrDuplicateActiveRequest, http.StatusConflict},
		{models.ErrStaleRequest, http.StatusConflict},
		{models.ErrConstraintViolation, http.StatusConflict},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.InvalidInput("x"), http.StatusBadRequest},
		{firebase.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("pool closed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := errorStatus(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("secret dsn leaked"))
	assert.NotContains(t, rec.Body.String(), "dsn")
}
