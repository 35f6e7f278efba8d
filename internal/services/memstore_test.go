package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// memStore is an in-memory stand-in for PostgreSQL. Transactions are serialised
// and roll back to a snapshot when fn fails, which is enough to observe atomicity
// and lost-update behaviour without a database.
type memStore struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	data   memData
	failOn string

	// bookLocks records the ISBNs passed to GetByISBNForUpdate, in call order.
	bookLocks []string
}

type memData struct {
	nextID     int64
	users      map[int64]models.User
	readers    map[int64]models.Reader
	publishers map[int64]models.Publisher
	books      map[string]models.Book
	copies     map[int64]models.Copy
	records    map[int64]models.BorrowRecord
	fines      map[int64]models.Fine
}

var errInjected = errors.New("injected failure")

func newMemStore() *memStore {
	return &memStore{data: memData{
		users:      map[int64]models.User{},
		readers:    map[int64]models.Reader{},
		publishers: map[int64]models.Publisher{},
		books:      map[string]models.Book{},
		copies:     map[int64]models.Copy{},
		records:    map[int64]models.BorrowRecord{},
		fines:      map[int64]models.Fine{},
	}}
}

func (d memData) clone() memData {
	out := d
	out.users = cloneMap(d.users)
	out.readers = cloneMap(d.readers)
	out.publishers = cloneMap(d.publishers)
	out.books = cloneMap(d.books)
	out.copies = cloneMap(d.copies)
	out.records = cloneMap(d.records)
	out.fines = cloneMap(d.fines)
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return errInjected
	}
	return nil
}

// ─── TxManager ────────────────────────────────────────────────────────────────

func (s *memStore) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(&gorm.DB{}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// ─── Repositories ─────────────────────────────────────────────────────────────

type memUsers struct{ *memStore }
type memReaders struct{ *memStore }
type memPublishers struct{ *memStore }
type memBooks struct{ *memStore }
type memCopies struct{ *memStore }
type memRecords struct{ *memStore }
type memFines struct{ *memStore }

var (
	_ repositories.UserRepository         = memUsers{}
	_ repositories.ReaderRepository       = memReaders{}
	_ repositories.PublisherRepository    = memPublishers{}
	_ repositories.BookRepository         = memBooks{}
	_ repositories.CopyRepository         = memCopies{}
	_ repositories.BorrowRecordRepository = memRecords{}
	_ repositories.FineRepository         = memFines{}
)

func (r memUsers) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.id()
	r.data.users[user.ID] = *user
	return nil
}

func (r memUsers) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.data.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memReaders) Create(ctx context.Context, tx *gorm.DB, reader *models.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reader.CardID = r.id()
	r.data.readers[reader.CardID] = *reader
	return nil
}

func (r memReaders) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Reader, 0, len(r.data.readers))
	for _, v := range r.data.readers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return page(out, offset, limit), nil
}

func (r memReaders) GetByID(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.readers[cardID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r memReaders) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error) {
	return r.GetByID(ctx, tx, cardID)
}

func (r memReaders) UpdateProfile(ctx context.Context, tx *gorm.DB, cardID int64, name string, category models.ReaderCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.readers[cardID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.Name, v.Category = name, category
	r.data.readers[cardID] = v
	return nil
}

func (r memReaders) AdjustBorrowedCount(ctx context.Context, tx *gorm.DB, cardID int64, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("AdjustBorrowedCount"); err != nil {
		return err
	}
	v, ok := r.data.readers[cardID]
	if !ok || v.BorrowedCount+delta < 0 {
		return repositories.ErrCounterUnderflow
	}
	v.BorrowedCount += delta
	r.data.readers[cardID] = v
	return nil
}

func (r memReaders) Delete(ctx context.Context, tx *gorm.DB, cardID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.readers[cardID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.data.readers, cardID)
	return nil
}

func (r memPublishers) Create(ctx context.Context, tx *gorm.DB, publisher *models.Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	publisher.ID = r.id()
	r.data.publishers[publisher.ID] = *publisher
	return nil
}

func (r memPublishers) List(ctx context.Context, tx *gorm.DB) ([]models.Publisher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Publisher, 0, len(r.data.publishers))
	for _, v := range r.data.publishers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPublishers) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*models.Publisher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.publishers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r memPublishers) GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Publisher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.data.publishers {
		if v.Name == name {
			return &v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memPublishers) Update(ctx context.Context, tx *gorm.DB, publisher *models.Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.publishers[publisher.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.data.publishers[publisher.ID] = *publisher
	return nil
}

func (r memPublishers) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.publishers[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.data.publishers, id)
	return nil
}

func (r memBooks) Create(ctx context.Context, tx *gorm.DB, book *models.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.books[book.ISBN] = *book
	return nil
}

func (r memBooks) List(ctx context.Context, tx *gorm.DB) ([]models.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Book, 0, len(r.data.books))
	for _, v := range r.data.books {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out, nil
}

func (r memBooks) GetByISBN(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.books[isbn]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r memBooks) GetByISBNForUpdate(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error) {
	r.mu.Lock()
	r.bookLocks = append(r.bookLocks, isbn)
	r.mu.Unlock()
	return r.GetByISBN(ctx, tx, isbn)
}

func (r memBooks) UpdateDetails(ctx context.Context, tx *gorm.DB, book *models.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.books[book.ISBN]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.Title, v.Author, v.PublisherID, v.Price = book.Title, book.Author, book.PublisherID, book.Price
	r.data.books[book.ISBN] = v
	return nil
}

func (r memBooks) AdjustStock(ctx context.Context, tx *gorm.DB, isbn string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("AdjustStock"); err != nil {
		return err
	}
	v, ok := r.data.books[isbn]
	if !ok || v.StockQty+delta < 0 {
		return repositories.ErrCounterUnderflow
	}
	v.StockQty += delta
	r.data.books[isbn] = v
	return nil
}

func (r memBooks) CountByPublisher(ctx context.Context, tx *gorm.DB, publisherID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.data.books {
		if v.PublisherID == publisherID {
			n++
		}
	}
	return n, nil
}

func (r memBooks) Delete(ctx context.Context, tx *gorm.DB, isbn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.books[isbn]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.data.books, isbn)
	return nil
}

func (r memCopies) Create(ctx context.Context, tx *gorm.DB, copy *models.Copy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy.ID = r.id()
	r.data.copies[copy.ID] = *copy
	return nil
}

func (r memCopies) List(ctx context.Context, tx *gorm.DB) ([]models.Copy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Copy, 0, len(r.data.copies))
	for _, v := range r.data.copies {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCopies) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.copies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r memCopies) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error) {
	return r.GetByID(ctx, tx, id)
}

func (r memCopies) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status models.CopyStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.copies[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.Status = status
	r.data.copies[id] = v
	return nil
}

func (r memCopies) UpdateISBN(ctx context.Context, tx *gorm.DB, id int64, isbn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.copies[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.ISBN = isbn
	r.data.copies[id] = v
	return nil
}

func (r memCopies) CountByISBN(ctx context.Context, tx *gorm.DB, isbn string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.data.copies {
		if v.ISBN == isbn {
			n++
		}
	}
	return n, nil
}

func (r memCopies) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.copies[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.data.copies, id)
	return nil
}

func (r memRecords) Create(ctx context.Context, tx *gorm.DB, record *models.BorrowRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = r.id()
	r.data.records[record.ID] = *record
	return nil
}

func (r memRecords) FindOutstandingByCopyForUpdate(ctx context.Context, tx *gorm.DB, copyID int64) (*models.BorrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.data.records {
		if v.CopyID == copyID && v.Outstanding() {
			return &v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memRecords) MarkReturned(ctx context.Context, tx *gorm.DB, id int64, returnedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.records[id]
	if !ok || !v.Outstanding() {
		return repositories.ErrAlreadyReturned
	}
	v.ReturnedAt = &returnedAt
	r.data.records[id] = v
	return nil
}

func (r memRecords) ListByReader(ctx context.Context, tx *gorm.DB, cardID int64) ([]models.BorrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.BorrowRecord{}
	for _, v := range r.data.records {
		if v.CardID == cardID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memRecords) CountByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error) {
	records, _ := r.ListByReader(ctx, tx, cardID)
	return int64(len(records)), nil
}

func (r memRecords) CountByCopy(ctx context.Context, tx *gorm.DB, copyID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.data.records {
		if v.CopyID == copyID {
			n++
		}
	}
	return n, nil
}

func (r memFines) Create(ctx context.Context, tx *gorm.DB, fine *models.Fine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateFine"); err != nil {
		return err
	}
	fine.ID = r.id()
	r.data.fines[fine.ID] = *fine
	return nil
}

func (r memFines) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Fine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.fines[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r memFines) MarkPaid(ctx context.Context, tx *gorm.DB, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data.fines[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.Paid = true
	r.data.fines[id] = v
	return nil
}

func (r memFines) sorted(keep func(models.Fine) bool) []models.Fine {
	out := []models.Fine{}
	for _, v := range r.data.fines {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r memFines) ListByReader(ctx context.Context, tx *gorm.DB, cardID int64) ([]models.Fine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(f models.Fine) bool { return f.CardID == cardID }), nil
}

func (r memFines) ListAll(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Fine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return page(r.sorted(func(models.Fine) bool { return true }), offset, limit), nil
}

func (r memFines) CountByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error) {
	fines, _ := r.ListByReader(ctx, tx, cardID)
	return int64(len(fines)), nil
}

func (r memFines) CountUnpaidByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sorted(func(f models.Fine) bool { return f.CardID == cardID && !f.Paid }))), nil
}

func (r memFines) UnpaidCountsByReaders(ctx context.Context, tx *gorm.DB, cardIDs []int64) (map[int64]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range cardIDs {
		want[id] = true
	}
	out := map[int64]int64{}
	for _, f := range r.data.fines {
		if want[f.CardID] && !f.Paid {
			out[f.CardID]++
		}
	}
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
