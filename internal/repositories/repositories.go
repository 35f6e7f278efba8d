package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"circulation/internal/models"
)

var (
	// ErrCounterUnderflow is returned when a decrement would take borrowed_count or
	// stock_qty below zero. It always indicates inconsistent stored state.
	ErrCounterUnderflow = errors.New("counter would become negative")

	// ErrAlreadyReturned is returned when a borrow record was closed by another transaction.
	ErrAlreadyReturned = errors.New("borrow record already returned")
)

// TxManager runs fn inside a single database transaction. A non-nil error from fn
// rolls the transaction back before it is returned.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Every repository method accepts an optional transaction handle; a nil tx runs the
// statement on the repository's own connection pool.

type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*models.User, error)
}

type ReaderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, reader *models.Reader) error
	List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Reader, error)
	GetByID(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error)
	UpdateProfile(ctx context.Context, tx *gorm.DB, cardID int64, name string, category models.ReaderCategory) error
	AdjustBorrowedCount(ctx context.Context, tx *gorm.DB, cardID int64, delta int) error
	Delete(ctx context.Context, tx *gorm.DB, cardID int64) error
}

type PublisherRepository interface {
	Create(ctx context.Context, tx *gorm.DB, publisher *models.Publisher) error
	List(ctx context.Context, tx *gorm.DB) ([]models.Publisher, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*models.Publisher, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Publisher, error)
	Update(ctx context.Context, tx *gorm.DB, publisher *models.Publisher) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type BookRepository interface {
	Create(ctx context.Context, tx *gorm.DB, book *models.Book) error
	List(ctx context.Context, tx *gorm.DB) ([]models.Book, error)
	GetByISBN(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error)
	GetByISBNForUpdate(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error)
	UpdateDetails(ctx context.Context, tx *gorm.DB, book *models.Book) error
	AdjustStock(ctx context.Context, tx *gorm.DB, isbn string, delta int) error
	CountByPublisher(ctx context.Context, tx *gorm.DB, publisherID int64) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, isbn string) error
}

type CopyRepository interface {
	Create(ctx context.Context, tx *gorm.DB, copy *models.Copy) error
	List(ctx context.Context, tx *gorm.DB) ([]models.Copy, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status models.CopyStatus) error
	UpdateISBN(ctx context.Context, tx *gorm.DB, id int64, isbn string) error
	CountByISBN(ctx context.Context, tx *gorm.DB, isbn string) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type BorrowRecordRepository interface {
	Create(ctx context.Context, tx *gorm.DB, record *models.BorrowRecord) error
	FindOutstandingByCopyForUpdate(ctx context.Context, tx *gorm.DB, copyID int64) (*models.BorrowRecord, error)
	MarkReturned(ctx context.Context, tx *gorm.DB, id int64, returnedAt time.Time) error
	ListByReader(ctx context.Context, tx *gorm.DB, cardID int64) ([]models.BorrowRecord, error)
	CountByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error)
	CountByCopy(ctx context.Context, tx *gorm.DB, copyID int64) (int64, error)
}

type FineRepository interface {
	Create(ctx context.Context, tx *gorm.DB, fine *models.Fine) error
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Fine, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, id int64) error
	ListByReader(ctx context.Context, tx *gorm.DB, cardID int64) ([]models.Fine, error)
	ListAll(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Fine, error)
	CountByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error)
	CountUnpaidByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error)
	UnpaidCountsByReaders(ctx context.Context, tx *gorm.DB, cardIDs []int64) (map[int64]int64, error)
}

// concrete implementations

type gormTxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

func (m *gormTxManager) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}

// conn picks the transaction handle when present and binds ctx to the statement.
func conn(ctx context.Context, base, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = base
	}
	return tx.WithContext(ctx)
}
