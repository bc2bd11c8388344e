package service

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/notify"
	"github.com/JoeAtEgypt/library-management/internal/sse"
	"github.com/JoeAtEgypt/library-management/internal/store"
	"github.com/JoeAtEgypt/library-management/internal/store/sqlite"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type sentMessage struct {
	Subject    string
	Body       string
	Recipients []string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) Send(_ context.Context, subject, body string, recipients []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{Subject: subject, Body: body, Recipients: recipients})
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *fakePublisher) Publish(topic string, event sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.Topic = topic
	p.events = append(p.events, event)
}

type borrowingFixture struct {
	svc       *BorrowingService
	store     *sqlite.Store
	notifier  *fakeNotifier
	publisher *fakePublisher
	ada       *domain.User
	grace     *domain.User
}

func newTestSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "library.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedCatalog creates one library, two authors, two categories, five books and two users.
func seedCatalog(t *testing.T, s store.Store) (ada, grace *domain.User) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateLibrary(ctx, &domain.Library{ID: "lib-central", Name: "Central", CreatedAt: testNow}))
	require.NoError(t, s.CreateLibrary(ctx, &domain.Library{ID: "lib-north", Name: "North Branch", CreatedAt: testNow}))
	require.NoError(t, s.CreateAuthor(ctx, &domain.Author{ID: "author-herbert", Name: "Frank Herbert", CreatedAt: testNow}))
	require.NoError(t, s.CreateAuthor(ctx, &domain.Author{ID: "author-austen", Name: "Jane Austen", CreatedAt: testNow}))
	require.NoError(t, s.CreateCategory(ctx, &domain.Category{ID: "cat-scifi", Name: "Science Fiction"}))
	require.NoError(t, s.CreateCategory(ctx, &domain.Category{ID: "cat-classics", Name: "Classics"}))

	books := []domain.Book{
		{ID: "book-dune", Title: "Dune", AuthorID: "author-herbert", CategoryID: "cat-scifi", LibraryID: "lib-central"},
		{ID: "book-messiah", Title: "Dune Messiah", AuthorID: "author-herbert", CategoryID: "cat-scifi", LibraryID: "lib-north"},
		{ID: "book-emma", Title: "Emma", AuthorID: "author-austen", CategoryID: "cat-classics", LibraryID: "lib-central"},
		{ID: "book-persuasion", Title: "Persuasion", AuthorID: "author-austen", CategoryID: "cat-classics", LibraryID: "lib-central"},
		{ID: "book-sanditon", Title: "Sanditon", AuthorID: "author-austen", CategoryID: "cat-classics", LibraryID: "lib-north"},
	}
	for i := range books {
		books[i].CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateBook(ctx, &books[i]))
	}

	ada = &domain.User{ID: "user-ada", Email: "ada@example.com", Username: "ada", FirstName: "Ada", LastName: "Lovelace", CreatedAt: testNow}
	grace = &domain.User{ID: "user-grace", Email: "grace@example.com", Username: "grace", CreatedAt: testNow}
	require.NoError(t, s.CreateUser(ctx, ada))
	require.NoError(t, s.CreateUser(ctx, grace))
	return ada, grace
}

func setupBorrowingTest(t *testing.T) *borrowingFixture {
	t.Helper()
	s := newTestSQLiteStore(t)
	ada, grace := seedCatalog(t, s)

	f := &borrowingFixture{
		store:     s,
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		ada:       ada,
		grace:     grace,
	}
	f.svc = NewBorrowingService(s, f.notifier, f.publisher, DefaultBorrowingConfig(), logger.Discard())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *borrowingFixture) borrowedCount(t *testing.T, userID string) int {
	t.Helper()
	txn, err := f.svc.Summary(context.Background(), userID)
	require.NoError(t, err)
	return txn.BorrowedCount
}

func (f *borrowingFixture) activeLoans(t *testing.T, userID string) int {
	t.Helper()
	loans, err := f.svc.ListLoans(context.Background(), userID, true)
	require.NoError(t, err)
	return len(loans)
}

func TestBorrowBook_RoundTrip(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))
	assert.Equal(t, 1, f.borrowedCount(t, f.ada.ID))
	assert.Equal(t, 1, f.activeLoans(t, f.ada.ID))

	penalty, err := f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.NoError(t, err)
	assert.True(t, penalty.IsZero(), "early return has no penalty, got %s", penalty)
	assert.Equal(t, 0, f.borrowedCount(t, f.ada.ID))
	assert.Equal(t, 0, f.activeLoans(t, f.ada.ID))

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Book Borrowed", msgs[0].Subject)
	assert.Equal(t, "You have successfully borrowed the book with ID book-dune and Name Dune.", msgs[0].Body)
	assert.Equal(t, []string{"ada@example.com"}, msgs[0].Recipients)
	assert.Equal(t, "Book Returned", msgs[1].Subject)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, sse.TopicBookAvailability, ev.Topic)
	assert.Equal(t, sse.EventBookAvailable, ev.Type)
	assert.Equal(t, "The book 'Dune' was returned and is now available.", ev.Message)

	// History survives the return and the book can be borrowed again.
	all, err := f.svc.ListLoans(ctx, f.ada.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].ReturnedAt)
	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))
}

func TestBorrowBook_CapOfThree(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	for _, book := range []string{"book-dune", "book-emma", "book-persuasion"} {
		require.NoError(t, f.svc.BorrowBook(ctx, f.ada, book, "2026-03-10"))
	}

	err := f.svc.BorrowBook(ctx, f.ada, "book-sanditon", "2026-03-10")
	require.ErrorIs(t, err, domainerrors.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "cannot borrow more than 3 books at a time; return one to borrow a fourth")

	assert.Equal(t, 3, f.borrowedCount(t, f.ada.ID))
	assert.Equal(t, 3, f.activeLoans(t, f.ada.ID))
	assert.Len(t, f.notifier.messages(), 3, "failed borrow must not notify")

	// Other users are unaffected.
	require.NoError(t, f.svc.BorrowBook(ctx, f.grace, "book-sanditon", "2026-03-10"))

	// Returning one frees a slot.
	_, err = f.svc.ReturnBook(ctx, f.ada, "book-emma")
	require.NoError(t, err)
	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-messiah", "2026-03-10"))
	assert.Equal(t, 3, f.borrowedCount(t, f.ada.ID))
}

func TestBorrowBook_DuplicateActiveLoanConflicts(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))

	err := f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-12")
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	assert.Equal(t, 1, f.borrowedCount(t, f.ada.ID), "rolled back unit must not leave the increment")
	assert.Equal(t, 1, f.activeLoans(t, f.ada.ID))
}

func TestBorrowBook_Validation(t *testing.T) {
	tests := []struct {
		name    string
		bookID  string
		due     string
		wantErr error
	}{
		{name: "missing book", bookID: "", due: "2026-03-10", wantErr: domainerrors.ErrValidation},
		{name: "unknown book", bookID: "book-missing", due: "2026-03-10", wantErr: domainerrors.ErrNotFound},
		{name: "missing due date", bookID: "book-dune", due: "", wantErr: domainerrors.ErrValidation},
		{name: "malformed due date", bookID: "book-dune", due: "10/03/2026", wantErr: domainerrors.ErrValidation},
		{name: "due in the past", bookID: "book-dune", due: "2026-02-27", wantErr: domainerrors.ErrValidation},
		{name: "due earlier today", bookID: "book-dune", due: "2026-03-01", wantErr: domainerrors.ErrValidation},
		{name: "due exactly now", bookID: "book-dune", due: testNow.Format(time.RFC3339), wantErr: domainerrors.ErrValidation},
		{name: "due beyond 30 days", bookID: "book-dune", due: "2026-04-01", wantErr: domainerrors.ErrValidation},
		{name: "due at 30 days", bookID: "book-dune", due: testNow.Add(30 * domain.Day).Format(time.RFC3339)},
		{name: "due tomorrow", bookID: "book-dune", due: "2026-03-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupBorrowingTest(t)

			err := f.svc.BorrowBook(context.Background(), f.ada, tt.bookID, tt.due)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 1, f.borrowedCount(t, f.ada.ID))
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, f.borrowedCount(t, f.ada.ID))
			assert.Empty(t, f.notifier.messages())
		})
	}
}

func TestReturnBook_Penalty(t *testing.T) {
	tests := []struct {
		name       string
		returnedAt time.Time
		want       string
	}{
		{name: "exactly at due", returnedAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), want: "0"},
		{name: "half a day late", returnedAt: time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), want: "0"},
		{name: "one day late", returnedAt: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), want: "0.5"},
		{name: "ten days late", returnedAt: time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC), want: "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupBorrowingTest(t)
			ctx := context.Background()

			require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-05"))

			f.svc.now = func() time.Time { return tt.returnedAt }
			penalty, err := f.svc.ReturnBook(ctx, f.ada, "book-dune")
			require.NoError(t, err)
			assert.True(t, penalty.Equal(decimal.RequireFromString(tt.want)), "penalty %s, want %s", penalty, tt.want)

			// Once returned, the penalty is frozen at the return time.
			f.svc.now = func() time.Time { return tt.returnedAt.Add(40 * domain.Day) }
			loans, err := f.svc.ListLoans(ctx, f.ada.ID, false)
			require.NoError(t, err)
			require.Len(t, loans, 1)
			assert.True(t, loans[0].Penalty.Equal(penalty))
			assert.False(t, loans[0].IsOverdue)
		})
	}
}

func TestReturnBook_NotFound(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	_, err := f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.ErrorIs(t, err, domainerrors.ErrNotFound, "user without a transaction")

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))

	_, err = f.svc.ReturnBook(ctx, f.ada, "book-emma")
	require.ErrorIs(t, err, domainerrors.ErrNotFound, "book not on loan")

	_, err = f.svc.ReturnBook(ctx, f.grace, "book-dune")
	require.ErrorIs(t, err, domainerrors.ErrNotFound, "another user's loan")

	_, err = f.svc.ReturnBook(ctx, f.ada, " ")
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.NoError(t, err)
	_, err = f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.ErrorIs(t, err, domainerrors.ErrNotFound, "second return of the same loan")

	assert.Equal(t, 0, f.borrowedCount(t, f.ada.ID))
	assert.Len(t, f.publisher.events, 1)
}

func TestReturnBook_ClampsCountAtZero(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))

	// Simulate a drifted counter.
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		txn, err := tx.LockTransaction(ctx, f.ada.ID)
		if err != nil {
			return err
		}
		txn.BorrowedCount = 0
		return tx.UpdateTransaction(ctx, txn)
	}))

	_, err := f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.NoError(t, err)
	assert.Equal(t, 0, f.borrowedCount(t, f.ada.ID))
}

func TestReturnBook_LogsCounterDrift(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	var logs bytes.Buffer
	f.svc = NewBorrowingService(f.store, f.notifier, f.publisher, DefaultBorrowingConfig(),
		slog.New(slog.NewTextHandler(&logs, nil)))
	f.svc.now = func() time.Time { return testNow }

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))
	_, err := f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "drifted", "consistent ledger must not warn")

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		txn, err := tx.LockTransaction(ctx, f.ada.ID)
		if err != nil {
			return err
		}
		txn.BorrowedCount = 2
		return tx.UpdateTransaction(ctx, txn)
	}))

	_, err = f.svc.ReturnBook(ctx, f.ada, "book-dune")
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "borrowed count drifted from active loans")
	assert.Contains(t, logs.String(), "borrowed_count=1")
	assert.Contains(t, logs.String(), "active_loans=0")
}

func TestLimitMessage(t *testing.T) {
	tests := []struct {
		limit int
		want  string
	}{
		{3, "cannot borrow more than 3 books at a time; return one to borrow a fourth"},
		{1, "cannot borrow more than 1 books at a time; return one to borrow a second"},
		{9, "cannot borrow more than 9 books at a time; return one to borrow a tenth"},
		{10, "cannot borrow more than 10 books at a time; return one to borrow a 11th"},
		{20, "cannot borrow more than 20 books at a time; return one to borrow a 21st"},
		{111, "cannot borrow more than 111 books at a time; return one to borrow a 112th"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, limitMessage(tt.limit))
	}
}

func TestBorrowBook_LimitFollowsConfig(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	cfg := DefaultBorrowingConfig()
	cfg.MaxActiveLoans = 1
	f.svc = NewBorrowingService(f.store, f.notifier, f.publisher, cfg, logger.Discard())
	f.svc.now = func() time.Time { return testNow }

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))
	err := f.svc.BorrowBook(ctx, f.ada, "book-emma", "2026-03-10")
	require.ErrorIs(t, err, domainerrors.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "return one to borrow a second")
}

func TestBorrowBook_ConcurrentAtCapBoundary(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-10"))
	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-emma", "2026-03-10"))

	books := []string{"book-persuasion", "book-sanditon", "book-messiah"}
	errs := make([]error, len(books))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, book := range books {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = f.svc.BorrowBook(ctx, f.ada, book, "2026-03-10")
		}()
	}
	close(start)
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domainerrors.Is(err, domainerrors.ErrLimitExceeded):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, len(books)-1, limited)
	assert.Equal(t, 3, f.borrowedCount(t, f.ada.ID))
	assert.Equal(t, 3, f.activeLoans(t, f.ada.ID))
}

func TestBorrowBook_NotificationFailureDoesNotFailBorrow(t *testing.T) {
	s := newTestSQLiteStore(t)
	ada, _ := seedCatalog(t, s)

	d := notify.NewDispatcher(failingMailer{}, nil, notify.Options{Workers: 1, QueueSize: 4}, logger.Discard())
	d.Start()

	svc := NewBorrowingService(s, d, &fakePublisher{}, DefaultBorrowingConfig(), logger.Discard())
	svc.now = func() time.Time { return testNow }

	require.NoError(t, svc.BorrowBook(context.Background(), ada, "book-dune", "2026-03-10"))
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Equal(t, int64(1), d.Stats().Failed)
	txn, err := svc.Summary(context.Background(), ada.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, txn.BorrowedCount)
}

type failingMailer struct{}

func (failingMailer) Deliver(context.Context, notify.Message) error {
	return domainerrors.New("smtp: connection refused")
}

func TestRunReminderSweep_InclusiveWindow(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	// Loans due later today, exactly at the window end, and just past it.
	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", testNow.Add(time.Hour).Format(time.RFC3339)))
	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-emma", testNow.Add(3*domain.Day).Format(time.RFC3339)))
	require.NoError(t, f.svc.BorrowBook(ctx, f.grace, "book-messiah", testNow.Add(3*domain.Day+time.Minute).Format(time.RFC3339)))
	// Returned loans never get reminders.
	require.NoError(t, f.svc.BorrowBook(ctx, f.grace, "book-sanditon", "2026-03-02"))
	_, err := f.svc.ReturnBook(ctx, f.grace, "book-sanditon")
	require.NoError(t, err)

	before := len(f.notifier.messages())

	n, err := f.svc.RunReminderSweep(ctx, testNow, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reminders := f.notifier.messages()[before:]
	require.Len(t, reminders, 2)
	assert.Equal(t, "Reminder: Return your books in 0 day(s)", reminders[0].Subject)
	assert.Equal(t, "Reminder: Return your books in 3 day(s)", reminders[1].Subject)
	assert.Equal(t, []string{"ada@example.com"}, reminders[1].Recipients)
	assert.Equal(t, "Hello Ada Lovelace,\n\n"+
		"This is a friendly reminder that the following book is due to be returned in 3 day(s): Emma\n\n"+
		"Return Date: 2026-03-04\n\n"+
		"Please return them on time to avoid penalties.\n\n"+
		"Regards,\n"+
		"Library Management Team", reminders[1].Body)

	// Not deduplicated: a second run sends the same reminders again.
	n, err = f.svc.RunReminderSweep(ctx, testNow, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.notifier.messages(), before+4)
}

func TestRunReminderSweep_LocationChangesDayCount(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	// Due 23:30 UTC on Mar 2, which is already Mar 3 in UTC+2.
	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-02T23:30:00Z"))

	sweepAt := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	n, err := f.svc.RunReminderSweep(ctx, sweepAt, 3)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, "Reminder: Return your books in 1 day(s)", f.notifier.messages()[1].Subject)

	f.svc.cfg.Location = time.FixedZone("EET", 2*60*60)
	_, err = f.svc.RunReminderSweep(ctx, sweepAt, 3)
	require.NoError(t, err)
	msgs := f.notifier.messages()
	assert.Equal(t, "Reminder: Return your books in 2 day(s)", msgs[2].Subject)
	assert.Contains(t, msgs[2].Body, "Return Date: 2026-03-03")
}

func TestRunReminderSweep_RejectsEmptyWindow(t *testing.T) {
	f := setupBorrowingTest(t)
	_, err := f.svc.RunReminderSweep(context.Background(), testNow, 0)
	require.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestSummary_NeverBorrowed(t *testing.T) {
	f := setupBorrowingTest(t)
	txn, err := f.svc.Summary(context.Background(), f.grace.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, txn.BorrowedCount)
	assert.Equal(t, f.grace.ID, txn.UserID)
}

func TestListLoans_Overdue(t *testing.T) {
	f := setupBorrowingTest(t)
	ctx := context.Background()

	require.NoError(t, f.svc.BorrowBook(ctx, f.ada, "book-dune", "2026-03-03"))

	f.svc.now = func() time.Time { return time.Date(2026, 3, 6, 1, 0, 0, 0, time.UTC) }
	loans, err := f.svc.ListLoans(ctx, f.ada.ID, true)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.True(t, loans[0].IsOverdue)
	assert.Equal(t, "1.50", loans[0].Penalty.StringFixed(2))
}
