package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeAtEgypt/library-management/internal/auth"
	"github.com/JoeAtEgypt/library-management/internal/domain"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/notify"
	"github.com/JoeAtEgypt/library-management/internal/search"
	"github.com/JoeAtEgypt/library-management/internal/service"
	"github.com/JoeAtEgypt/library-management/internal/sse"
	"github.com/JoeAtEgypt/library-management/internal/store/sqlite"
)

// testEnvelope mirrors the response envelope for decoding in tests.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details"`
}

type testServer struct {
	server  *Server
	api     humatest.TestAPI
	store   *sqlite.Store
	hub     *sse.Hub
	journal *notify.Journal
	tokens  *auth.TokenService
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWithOptions(t, Options{AllowedOrigins: []string{"*"}})
}

func setupTestServerWithOptions(t *testing.T, opts Options) *testServer {
	t.Helper()
	log := logger.Discard()
	tmpDir := t.TempDir()

	st, err := sqlite.Open(filepath.Join(tmpDir, "library.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	seedTestCatalog(t, st)

	index, err := search.NewBookIndex(search.Options{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	journal, err := notify.OpenJournal("", time.Hour, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	dispatcher := notify.NewDispatcher(notify.NewConsoleMailer(io.Discard, "library@example.com"), journal, notify.Options{Workers: 1}, log)
	dispatcher.Start()
	t.Cleanup(func() { _ = dispatcher.Shutdown(context.Background()) })

	hub := sse.NewHub(log)
	hubCtx, cancel := context.WithCancel(context.Background())
	go hub.Start(hubCtx)
	t.Cleanup(func() {
		_ = hub.Shutdown(context.Background())
		cancel()
	})

	key, err := auth.GenerateKey()
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	catalog := service.NewCatalogService(st, index, log)
	_, err = catalog.Reindex(context.Background())
	require.NoError(t, err)

	services := &Services{
		Borrowing:  service.NewBorrowingService(st, dispatcher, hub, service.DefaultBorrowingConfig(), log),
		Catalog:    catalog,
		Tokens:     tokens,
		Journal:    journal,
		Dispatcher: dispatcher,
	}

	server := NewServer(st, services, hub, opts, log)
	t.Cleanup(server.Close)

	return &testServer{
		server:  server,
		api:     humatest.Wrap(t, server.API()),
		store:   st,
		hub:     hub,
		journal: journal,
		tokens:  tokens,
	}
}

func seedTestCatalog(t *testing.T, st *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateLibrary(ctx, &domain.Library{ID: "lib-central", Name: "Central", CreatedAt: created}))
	require.NoError(t, st.CreateLibrary(ctx, &domain.Library{ID: "lib-north", Name: "North Branch", CreatedAt: created}))
	require.NoError(t, st.CreateAuthor(ctx, &domain.Author{ID: "author-herbert", Name: "Frank Herbert", CreatedAt: created}))
	require.NoError(t, st.CreateAuthor(ctx, &domain.Author{ID: "author-austen", Name: "Jane Austen", CreatedAt: created}))
	require.NoError(t, st.CreateCategory(ctx, &domain.Category{ID: "cat-scifi", Name: "Science Fiction"}))
	require.NoError(t, st.CreateCategory(ctx, &domain.Category{ID: "cat-classics", Name: "Classics"}))

	books := []domain.Book{
		{ID: "book-dune", Title: "Dune", Description: "Spice and sandworms on Arrakis", AuthorID: "author-herbert", CategoryID: "cat-scifi", LibraryID: "lib-central"},
		{ID: "book-messiah", Title: "Dune Messiah", AuthorID: "author-herbert", CategoryID: "cat-scifi", LibraryID: "lib-north"},
		{ID: "book-emma", Title: "Emma", AuthorID: "author-austen", CategoryID: "cat-classics", LibraryID: "lib-central"},
		{ID: "book-persuasion", Title: "Persuasion", AuthorID: "author-austen", CategoryID: "cat-classics", LibraryID: "lib-central"},
		{ID: "book-sanditon", Title: "Sanditon", AuthorID: "author-austen", CategoryID: "cat-classics", LibraryID: "lib-north"},
	}
	for i := range books {
		books[i].CreatedAt = created.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.CreateBook(ctx, &books[i]))
	}

	users := []*domain.User{
		{ID: "user-ada", Email: "ada@example.com", Username: "ada", FirstName: "Ada", LastName: "Lovelace", CreatedAt: created},
		{ID: "user-grace", Email: "grace@example.com", Username: "grace", CreatedAt: created},
		{ID: "user-root", Email: "root@example.com", Username: "root", IsAdmin: true, CreatedAt: created},
	}
	for _, u := range users {
		require.NoError(t, st.CreateUser(ctx, u))
	}
}

// bearer mints a token for a seeded user and returns it as a humatest header arg.
func (ts *testServer) bearer(t *testing.T, userID string) string {
	t.Helper()
	user, err := ts.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	token, err := ts.tokens.GenerateAccessToken(user)
	require.NoError(t, err)
	return "Authorization: Bearer " + token
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var envelope testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope), resp.Body.String())
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	return envelope
}

func dueIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format(domain.DateLayout)
}

func TestBorrowAndReturn_RoundTrip(t *testing.T) {
	ts := setupTestServer(t)
	asAda := ts.bearer(t, "user-ada")

	sub, err := ts.hub.Subscribe(sse.TopicBookAvailability, "watcher")
	require.NoError(t, err)
	defer ts.hub.Unsubscribe(sub.ID)

	resp := ts.api.Post("/api/v1/books/book-dune/borrow", asAda, map[string]any{"return_due": dueIn(7)})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	borrowed := decode[MessageResponse](t, resp)
	assert.True(t, borrowed.Success)
	assert.Equal(t, "Book borrowed successfully", borrowed.Data.Message)

	resp = ts.api.Get("/api/v1/loans/summary", asAda)
	require.Equal(t, http.StatusOK, resp.Code)
	summary := decode[LoanSummaryResponse](t, resp)
	assert.Equal(t, 1, summary.Data.BorrowedCount)
	assert.Equal(t, 3, summary.Data.MaxActiveLoans)
	assert.Equal(t, 2, summary.Data.Remaining)

	resp = ts.api.Post("/api/v1/books/book-dune/return", asAda)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	returned := decode[ReturnBookResponse](t, resp)
	assert.Equal(t, "Book returned successfully", returned.Data.Message)
	assert.Equal(t, "0.00", returned.Data.Penalty)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, sse.EventBookAvailable, ev.Type)
		assert.Equal(t, "book-dune", ev.BookID)
		assert.Equal(t, "The book 'Dune' was returned and is now available.", ev.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no availability event after return")
	}

	resp = ts.api.Get("/api/v1/loans", asAda)
	require.Equal(t, http.StatusOK, resp.Code)
	loans := decode[struct {
		Loans []LoanResponse `json:"loans"`
	}](t, resp)
	require.Len(t, loans.Data.Loans, 1)
	assert.NotNil(t, loans.Data.Loans[0].ReturnedAt)
	assert.False(t, loans.Data.Loans[0].IsOverdue)
}

func TestBorrow_AcceptsTimestampDueDate(t *testing.T) {
	ts := setupTestServer(t)
	asAda := ts.bearer(t, "user-ada")
	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	resp := ts.api.Post("/api/v1/books/book-dune/borrow", asAda, map[string]any{"return_due": due.Format(time.RFC3339)})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/loans", asAda)
	require.Equal(t, http.StatusOK, resp.Code)
	loans := decode[struct {
		Loans []LoanResponse `json:"loans"`
	}](t, resp)
	require.Len(t, loans.Data.Loans, 1)
	assert.True(t, due.Equal(loans.Data.Loans[0].ReturnDue), "return_due = %v, want %v", loans.Data.Loans[0].ReturnDue, due)
}

func TestBorrow_RequiresAuthentication(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/books/book-dune/borrow", map[string]any{"return_due": dueIn(7)})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	env := decode[any](t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	resp = ts.api.Post("/api/v1/books/book-dune/borrow", "Authorization: Bearer v4.local.garbage", map[string]any{"return_due": dueIn(7)})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestBorrow_FourthBookIsRefused(t *testing.T) {
	ts := setupTestServer(t)
	asAda := ts.bearer(t, "user-ada")

	for _, id := range []string{"book-dune", "book-emma", "book-persuasion"} {
		resp := ts.api.Post("/api/v1/books/"+id+"/borrow", asAda, map[string]any{"return_due": dueIn(7)})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	resp := ts.api.Post("/api/v1/books/book-sanditon/borrow", asAda, map[string]any{"return_due": dueIn(7)})
	require.Equal(t, http.StatusConflict, resp.Code)
	env := decode[any](t, resp)
	assert.Equal(t, "LIMIT_EXCEEDED", env.Code)
	assert.Equal(t, "cannot borrow more than 3 books at a time; return one to borrow a fourth", env.Error)
}

func TestBorrow_Errors(t *testing.T) {
	ts := setupTestServer(t)
	asAda := ts.bearer(t, "user-ada")

	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{"missing due date", "/api/v1/books/book-dune/borrow", map[string]any{}, http.StatusBadRequest, "VALIDATION"},
		{"malformed due date", "/api/v1/books/book-dune/borrow", map[string]any{"return_due": "14/03/2026"}, http.StatusBadRequest, "VALIDATION"},
		{"due date in the past", "/api/v1/books/book-dune/borrow", map[string]any{"return_due": dueIn(-2)}, http.StatusBadRequest, "VALIDATION"},
		{"due date too far out", "/api/v1/books/book-dune/borrow", map[string]any{"return_due": dueIn(45)}, http.StatusBadRequest, "VALIDATION"},
		{"unknown book", "/api/v1/books/book-missing/borrow", map[string]any{"return_due": dueIn(7)}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post(tt.path, asAda, tt.body)
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			env := decode[any](t, resp)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}

	t.Run("borrowing the same book twice", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/books/book-emma/borrow", asAda, map[string]any{"return_due": dueIn(3)})
		require.Equal(t, http.StatusOK, resp.Code)
		resp = ts.api.Post("/api/v1/books/book-emma/borrow", asAda, map[string]any{"return_due": dueIn(3)})
		require.Equal(t, http.StatusConflict, resp.Code)
		assert.Equal(t, "CONFLICT", decode[any](t, resp).Code)
	})

	t.Run("returning a book that is not out", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/books/book-sanditon/return", asAda)
		require.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "NOT_FOUND", decode[any](t, resp).Code)
	})
}

func TestBorrow_RateLimitedPerUser(t *testing.T) {
	ts := setupTestServerWithOptions(t, Options{
		LedgerRate:     1,
		LedgerInterval: time.Hour,
		LedgerBurst:    1,
	})

	resp := ts.api.Post("/api/v1/books/book-dune/borrow", ts.bearer(t, "user-ada"), map[string]any{"return_due": dueIn(7)})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Post("/api/v1/books/book-dune/return", ts.bearer(t, "user-ada"))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", decode[any](t, resp).Code)

	// Budgets are per user.
	resp = ts.api.Post("/api/v1/books/book-emma/borrow", ts.bearer(t, "user-grace"), map[string]any{"return_due": dueIn(7)})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCatalog_ListBooks(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/books?author=frank%20herbert")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env := decode[ListBooksResponse](t, resp)
	require.Len(t, env.Data.Books, 2)
	for _, b := range env.Data.Books {
		assert.Equal(t, "Frank Herbert", b.Author)
		assert.Equal(t, "Science Fiction", b.Category)
	}

	resp = ts.api.Get("/api/v1/books?library=North%20Branch&category=classics")
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[ListBooksResponse](t, resp)
	require.Len(t, env.Data.Books, 1)
	assert.Equal(t, "book-sanditon", env.Data.Books[0].ID)

	resp = ts.api.Get("/api/v1/books?limit=500")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCatalog_GetBook(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/books/book-emma")
	require.Equal(t, http.StatusOK, resp.Code)
	env := decode[BookResponse](t, resp)
	assert.Equal(t, "Emma", env.Data.Title)
	assert.Equal(t, "Central", env.Data.Library)

	resp = ts.api.Get("/api/v1/books/book-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCatalog_AuthorsAndLibraries(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/authors?library=north%20branch")
	require.Equal(t, http.StatusOK, resp.Code)
	authors := decode[struct {
		Authors []AuthorResponse `json:"authors"`
	}](t, resp)
	require.Len(t, authors.Data.Authors, 2)
	for _, a := range authors.Data.Authors {
		assert.Equal(t, 1, a.BookCount, a.Name)
	}

	resp = ts.api.Get("/api/v1/libraries?author=Frank%20Herbert&book_category=Science%20Fiction")
	require.Equal(t, http.StatusOK, resp.Code)
	libraries := decode[struct {
		Libraries []LibraryResponse `json:"libraries"`
	}](t, resp)
	assert.Len(t, libraries.Data.Libraries, 2)
}

func TestCatalog_Search(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/books/search?q=dune&facets=true")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env := decode[search.SearchResult](t, resp)
	require.NotEmpty(t, env.Data.Hits)
	assert.Equal(t, "book-dune", env.Data.Hits[0].ID)
	assert.EqualValues(t, 2, env.Data.Total)

	resp = ts.api.Get("/api/v1/books/search?q=dune&sort=sideways")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminNotifications(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/books/book-dune/borrow", ts.bearer(t, "user-ada"), map[string]any{"return_due": dueIn(7)})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get("/api/v1/admin/notifications", ts.bearer(t, "user-grace"))
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "FORBIDDEN", decode[any](t, resp).Code)

	asRoot := ts.bearer(t, "user-root")
	type notificationsBody struct {
		Deliveries []notify.Delivery `json:"deliveries"`
	}
	require.Eventually(t, func() bool {
		resp := ts.api.Get("/api/v1/admin/notifications?status=sent", asRoot)
		if resp.Code != http.StatusOK {
			return false
		}
		var env testEnvelope[notificationsBody]
		if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
			return false
		}
		return len(env.Data.Deliveries) == 1
	}, 2*time.Second, 20*time.Millisecond)

	resp = ts.api.Get("/api/v1/admin/notifications", asRoot)
	env := decode[notificationsBody](t, resp)
	require.Len(t, env.Data.Deliveries, 1)
	assert.Equal(t, "Book Borrowed", env.Data.Deliveries[0].Subject)
	assert.Equal(t, []string{"ada@example.com"}, env.Data.Deliveries[0].Recipients)
}

func TestWebSocket_ReceivesAvailability(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.server)
	defer srv.Close()

	resp := ts.api.Post("/api/v1/books/book-emma/borrow", ts.bearer(t, "user-ada"), map[string]any{"return_due": dueIn(7)})
	require.Equal(t, http.StatusOK, resp.Code)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/book-availability/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return ts.hub.Count(sse.TopicBookAvailability) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp = ts.api.Post("/api/v1/books/book-emma/return", ts.bearer(t, "user-ada"))
	require.Equal(t, http.StatusOK, resp.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg sse.WireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, sse.EventBookAvailable, msg.Type)
	assert.Equal(t, "The book 'Emma' was returned and is now available.", msg.Message)
}
