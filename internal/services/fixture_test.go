package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulation/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx         context.Context
	store       *memStore
	clock       *fakeClock
	circulation CirculationService
	catalog     CatalogService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	readers := memReaders{store}
	publishers := memPublishers{store}
	books := memBooks{store}
	copies := memCopies{store}
	records := memRecords{store}
	fines := memFines{store}

	return &fixture{
		ctx:   context.Background(),
		store: store,
		clock: clock,
		circulation: NewCirculationService(store, readers, books, copies, records, fines,
			discardLogger(), WithClock(clock.Now)),
		catalog: NewCatalogService(store, readers, publishers, books, copies, records, fines,
			discardLogger()),
	}
}

func (f *fixture) publisher(t *testing.T, name string) *models.Publisher {
	t.Helper()
	p, err := f.catalog.CreatePublisher(f.ctx, name, "Beijing")
	require.NoError(t, err)
	return p
}

func (f *fixture) book(t *testing.T, isbn string, publisherID int64, price string) *models.Book {
	t.Helper()
	in := BookInput{ISBN: isbn, Title: "Title " + isbn, Author: "Author", PublisherID: publisherID}
	if price != "" {
		in.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	b, err := f.catalog.CreateBook(f.ctx, in)
	require.NoError(t, err)
	return b
}

func (f *fixture) copy(t *testing.T, isbn string) *models.Copy {
	t.Helper()
	c, err := f.catalog.AddCopy(f.ctx, isbn)
	require.NoError(t, err)
	return c
}

func (f *fixture) reader(t *testing.T, name string) *models.Reader {
	t.Helper()
	r, err := f.catalog.CreateReader(f.ctx, name, models.ReaderCategoryStudent)
	require.NoError(t, err)
	return r
}

// library seeds one publisher, one book priced 139.00 with a single copy, and one reader.
func (f *fixture) library(t *testing.T) (*models.Reader, *models.Book, *models.Copy) {
	t.Helper()
	p := f.publisher(t, "Tsinghua University Press")
	b := f.book(t, "978-7-302", p.ID, "139.00")
	c := f.copy(t, b.ISBN)
	r := f.reader(t, "Li Hua")
	return r, b, c
}

func (f *fixture) readerState(t *testing.T, cardID int64) models.Reader {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r, ok := f.store.data.readers[cardID]
	require.True(t, ok)
	return r
}

func (f *fixture) bookState(t *testing.T, isbn string) models.Book {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	b, ok := f.store.data.books[isbn]
	require.True(t, ok)
	return b
}

func (f *fixture) copyState(t *testing.T, id int64) models.Copy {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	c, ok := f.store.data.copies[id]
	require.True(t, ok)
	return c
}

// setBorrowedCount and setStock overwrite a counter behind the services' back.
func (f *fixture) setBorrowedCount(cardID int64, n int) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r := f.store.data.readers[cardID]
	r.BorrowedCount = n
	f.store.data.readers[cardID] = r
}

func (f *fixture) setStock(isbn string, n int) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	b := f.store.data.books[isbn]
	b.StockQty = n
	f.store.data.books[isbn] = b
}

func (f *fixture) bookLocks() []string {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return append([]string(nil), f.store.bookLocks...)
}

func (f *fixture) resetBookLocks() {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.bookLocks = nil
}

// assertConsistent checks the counters and statuses against the loan ledger:
// borrowed_count equals the reader's outstanding loans, stock_qty equals the
// book's shelved copies, and a copy is ON_LOAN exactly when it has one
// outstanding record.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	d := f.store.data

	outstandingByReader := map[int64]int{}
	outstandingByCopy := map[int64]int{}
	for _, r := range d.records {
		if r.Outstanding() {
			outstandingByReader[r.CardID]++
			outstandingByCopy[r.CopyID]++
		}
	}
	for id, r := range d.readers {
		assert.Equal(t, outstandingByReader[id], r.BorrowedCount, "borrowed_count of reader %d", id)
	}

	shelved := map[string]int{}
	for id, c := range d.copies {
		if c.Status == models.CopyStatusInLibrary {
			shelved[c.ISBN]++
		}
		wantLoans := 0
		if c.Status == models.CopyStatusOnLoan {
			wantLoans = 1
		}
		assert.Equal(t, wantLoans, outstandingByCopy[id], "outstanding loans of copy %d", id)
	}
	for isbn, b := range d.books {
		assert.Equal(t, shelved[isbn], b.StockQty, "stock_qty of %s", isbn)
	}
}
