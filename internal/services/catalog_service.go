package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// DefaultReaderListLimit bounds ListReaders when the caller gives no limit.
const DefaultReaderListLimit = 100

// ReaderSummary is a reader joined with the number of fines they still owe.
type ReaderSummary struct {
	models.Reader
	UnpaidFineCount int64 `json:"unpaid_fine_count"`
}

// BookInput carries the editable fields of a catalog entry.
type BookInput struct {
	ISBN        string
	Title       string
	Author      string
	PublisherID int64
	Price       decimal.NullDecimal
}

// CatalogService manages readers, publishers, books and copies. Counters owned by the
// circulation workflow (borrowed_count, stock_qty, copy status) are only changed here
// when copies enter or leave the catalog.
type CatalogService interface {
	CreateReader(ctx context.Context, name string, category models.ReaderCategory) (*models.Reader, error)
	ListReaders(ctx context.Context, offset, limit int) ([]ReaderSummary, error)
	UpdateReader(ctx context.Context, cardID int64, name string, category models.ReaderCategory) (*models.Reader, error)
	DeleteReader(ctx context.Context, cardID int64) error

	CreatePublisher(ctx context.Context, name, address string) (*models.Publisher, error)
	ListPublishers(ctx context.Context) ([]models.Publisher, error)
	UpdatePublisher(ctx context.Context, id int64, name, address string) (*models.Publisher, error)
	DeletePublisher(ctx context.Context, id int64) error

	CreateBook(ctx context.Context, in BookInput) (*models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	UpdateBook(ctx context.Context, isbn string, in BookInput) (*models.Book, error)
	DeleteBook(ctx context.Context, isbn string) error

	AddCopy(ctx context.Context, isbn string) (*models.Copy, error)
	ListCopies(ctx context.Context) ([]models.Copy, error)
	ReassignCopy(ctx context.Context, id int64, isbn string) (*models.Copy, error)
	MarkCopyLost(ctx context.Context, id int64) (*models.Copy, error)
	DeleteCopy(ctx context.Context, id int64) error
}

type catalogService struct {
	tx         repositories.TxManager
	readers    repositories.ReaderRepository
	publishers repositories.PublisherRepository
	books      repositories.BookRepository
	copies     repositories.CopyRepository
	records    repositories.BorrowRecordRepository
	fines      repositories.FineRepository
	checks     lookups
	logger     *slog.Logger
}

func NewCatalogService(
	tx repositories.TxManager,
	readers repositories.ReaderRepository,
	publishers repositories.PublisherRepository,
	books repositories.BookRepository,
	copies repositories.CopyRepository,
	records repositories.BorrowRecordRepository,
	fines repositories.FineRepository,
	logger *slog.Logger,
) CatalogService {
	return &catalogService{
		tx:         tx,
		readers:    readers,
		publishers: publishers,
		books:      books,
		copies:     copies,
		records:    records,
		fines:      fines,
		checks: lookups{
			readers:    readers,
			publishers: publishers,
			books:      books,
			copies:     copies,
			fines:      fines,
		},
		logger: logger,
	}
}

// ─── Readers ──────────────────────────────────────────────────────────────────

func (s *catalogService) CreateReader(ctx context.Context, name string, category models.ReaderCategory) (*models.Reader, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	reader := &models.Reader{Name: name, Category: category}
	if err := s.readers.Create(ctx, nil, reader); err != nil {
		return nil, internalError(err)
	}
	s.logger.Info("reader created", "card_id", reader.CardID, "category", category)
	return reader, nil
}

// ListReaders pages through readers and attaches each reader's unpaid fine count
// from a second grouped query.
func (s *catalogService) ListReaders(ctx context.Context, offset, limit int) ([]ReaderSummary, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > DefaultReaderListLimit {
		limit = DefaultReaderListLimit
	}
	readers, err := s.readers.List(ctx, nil, offset, limit)
	if err != nil {
		return nil, internalError(err)
	}
	ids := make([]int64, 0, len(readers))
	for _, r := range readers {
		ids = append(ids, r.CardID)
	}
	unpaid, err := s.fines.UnpaidCountsByReaders(ctx, nil, ids)
	if err != nil {
		return nil, internalError(err)
	}

	out := make([]ReaderSummary, 0, len(readers))
	for _, r := range readers {
		out = append(out, ReaderSummary{Reader: r, UnpaidFineCount: unpaid[r.CardID]})
	}
	return out, nil
}

func (s *catalogService) UpdateReader(ctx context.Context, cardID int64, name string, category models.ReaderCategory) (*models.Reader, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	if err := s.readers.UpdateProfile(ctx, nil, cardID, name, category); err != nil {
		return nil, translate(err, ErrReaderNotFound)
	}
	return s.checks.reader(ctx, nil, cardID)
}

// DeleteReader refuses to remove a reader referenced by any borrow record or fine.
func (s *catalogService) DeleteReader(ctx context.Context, cardID int64) error {
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.readers.GetByIDForUpdate(ctx, tx, cardID); err != nil {
			return translate(err, ErrReaderNotFound)
		}
		records, err := s.records.CountByReader(ctx, tx, cardID)
		if err != nil {
			return internalError(err)
		}
		fines, err := s.fines.CountByReader(ctx, tx, cardID)
		if err != nil {
			return internalError(err)
		}
		if records > 0 || fines > 0 {
			return ErrReaderHasHistory
		}
		if err := s.readers.Delete(ctx, tx, cardID); err != nil {
			return s.deleteError(err, ErrReaderHasHistory, ErrReaderNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("reader deleted", "card_id", cardID)
	return nil
}

// ─── Publishers ───────────────────────────────────────────────────────────────

func (s *catalogService) CreatePublisher(ctx context.Context, name, address string) (*models.Publisher, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if _, err := s.publishers.GetByName(ctx, nil, name); err == nil {
		return nil, ErrDuplicatePublisherName
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internalError(err)
	}

	publisher := &models.Publisher{Name: name, Address: address}
	if err := s.publishers.Create(ctx, nil, publisher); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicatePublisherName
		}
		return nil, internalError(err)
	}
	s.logger.Info("publisher created", "publisher_id", publisher.ID, "name", name)
	return publisher, nil
}

func (s *catalogService) ListPublishers(ctx context.Context) ([]models.Publisher, error) {
	publishers, err := s.publishers.List(ctx, nil)
	if err != nil {
		return nil, internalError(err)
	}
	return publishers, nil
}

// UpdatePublisher renames a publisher. A name taken by another publisher, whether seen
// up front or reported by the unique index, rolls the transaction back with a conflict.
func (s *catalogService) UpdatePublisher(ctx context.Context, id int64, name, address string) (*models.Publisher, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	var updated *models.Publisher
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		publisher, err := s.checks.publisher(ctx, tx, id)
		if err != nil {
			return err
		}
		other, err := s.publishers.GetByName(ctx, tx, name)
		if err == nil && other.ID != id {
			return ErrDuplicatePublisherName
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return internalError(err)
		}

		publisher.Name = name
		publisher.Address = address
		if err := s.publishers.Update(ctx, tx, publisher); err != nil {
			if repositories.IsUniqueViolation(err) {
				return ErrDuplicatePublisherName
			}
			return internalError(err)
		}
		updated = publisher
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *catalogService) DeletePublisher(ctx context.Context, id int64) error {
	return s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.checks.publisher(ctx, tx, id); err != nil {
			return err
		}
		n, err := s.books.CountByPublisher(ctx, tx, id)
		if err != nil {
			return internalError(err)
		}
		if n > 0 {
			return ErrPublisherHasBooks
		}
		if err := s.publishers.Delete(ctx, tx, id); err != nil {
			return s.deleteError(err, ErrPublisherHasBooks, ErrPublisherNotFound)
		}
		s.logger.Info("publisher deleted", "publisher_id", id)
		return nil
	})
}

// ─── Books ────────────────────────────────────────────────────────────────────

// CreateBook registers a catalog entry with no copies; stock grows through AddCopy.
func (s *catalogService) CreateBook(ctx context.Context, in BookInput) (*models.Book, error) {
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	book := &models.Book{
		ISBN:        strings.TrimSpace(in.ISBN),
		Title:       in.Title,
		Author:      in.Author,
		PublisherID: in.PublisherID,
		Price:       in.Price,
		StockQty:    0,
	}
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.books.GetByISBN(ctx, tx, book.ISBN); err == nil {
			return ErrDuplicateISBN
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return internalError(err)
		}
		if _, err := s.checks.publisher(ctx, tx, in.PublisherID); err != nil {
			return err
		}
		if err := s.books.Create(ctx, tx, book); err != nil {
			switch {
			case repositories.IsUniqueViolation(err):
				return ErrDuplicateISBN
			case repositories.IsForeignKeyViolation(err):
				return ErrPublisherNotFound
			}
			return internalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("book created", "isbn", book.ISBN, "title", book.Title)
	return book, nil
}

func (s *catalogService) ListBooks(ctx context.Context) ([]models.Book, error) {
	books, err := s.books.List(ctx, nil)
	if err != nil {
		return nil, internalError(err)
	}
	return books, nil
}

func (s *catalogService) UpdateBook(ctx context.Context, isbn string, in BookInput) (*models.Book, error) {
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	var updated *models.Book
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		book, err := s.checks.lockBook(ctx, tx, isbn)
		if err != nil {
			return err
		}
		if _, err := s.checks.publisher(ctx, tx, in.PublisherID); err != nil {
			return err
		}
		book.Title = in.Title
		book.Author = in.Author
		book.PublisherID = in.PublisherID
		book.Price = in.Price
		if err := s.books.UpdateDetails(ctx, tx, book); err != nil {
			if repositories.IsForeignKeyViolation(err) {
				return ErrPublisherNotFound
			}
			return internalError(err)
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *catalogService) DeleteBook(ctx context.Context, isbn string) error {
	return s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.checks.lockBook(ctx, tx, isbn); err != nil {
			return err
		}
		n, err := s.copies.CountByISBN(ctx, tx, isbn)
		if err != nil {
			return internalError(err)
		}
		if n > 0 {
			return ErrBookHasCopies
		}
		if err := s.books.Delete(ctx, tx, isbn); err != nil {
			return s.deleteError(err, ErrBookHasCopies, ErrBookNotFound)
		}
		s.logger.Info("book deleted", "isbn", isbn)
		return nil
	})
}

// ─── Copies ───────────────────────────────────────────────────────────────────

// AddCopy shelves a new copy of a book and raises the book's stock in the same
// transaction.
func (s *catalogService) AddCopy(ctx context.Context, isbn string) (*models.Copy, error) {
	copy := &models.Copy{ISBN: isbn, Status: models.CopyStatusInLibrary}
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.checks.lockBook(ctx, tx, isbn); err != nil {
			return err
		}
		if err := s.copies.Create(ctx, tx, copy); err != nil {
			return internalError(fmt.Errorf("create copy: %w", err))
		}
		if err := s.books.AdjustStock(ctx, tx, isbn, 1); err != nil {
			return internalError(fmt.Errorf("increment stock_qty of %s: %w", isbn, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("copy added", "copy_id", copy.ID, "isbn", isbn)
	return copy, nil
}

func (s *catalogService) ListCopies(ctx context.Context) ([]models.Copy, error) {
	copies, err := s.copies.List(ctx, nil)
	if err != nil {
		return nil, internalError(err)
	}
	return copies, nil
}

// ReassignCopy corrects the ISBN a copy was catalogued under. A shelved copy moves
// its unit of stock to the new book.
func (s *catalogService) ReassignCopy(ctx context.Context, id int64, isbn string) (*models.Copy, error) {
	var updated *models.Copy
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		copy, err := s.checks.lockCopy(ctx, tx, id)
		if err != nil {
			return err
		}
		if copy.ISBN == isbn {
			updated = copy
			return nil
		}
		if copy.Status == models.CopyStatusOnLoan {
			return ErrCopyOnLoan
		}
		if err := s.lockBookPair(ctx, tx, copy.ISBN, isbn); err != nil {
			return err
		}
		if err := s.copies.UpdateISBN(ctx, tx, id, isbn); err != nil {
			return internalError(err)
		}
		if copy.Status == models.CopyStatusInLibrary {
			if err := s.books.AdjustStock(ctx, tx, copy.ISBN, -1); err != nil {
				return internalError(fmt.Errorf("decrement stock_qty of %s: %w", copy.ISBN, err))
			}
			if err := s.books.AdjustStock(ctx, tx, isbn, 1); err != nil {
				return internalError(fmt.Errorf("increment stock_qty of %s: %w", isbn, err))
			}
		}
		copy.ISBN = isbn
		updated = copy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkCopyLost withdraws a shelved copy from circulation.
func (s *catalogService) MarkCopyLost(ctx context.Context, id int64) (*models.Copy, error) {
	var updated *models.Copy
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		copy, err := s.checks.lockCopy(ctx, tx, id)
		if err != nil {
			return err
		}
		if copy.Status != models.CopyStatusInLibrary {
			return ErrCopyNotInLibrary
		}
		if err := s.copies.UpdateStatus(ctx, tx, id, models.CopyStatusLost); err != nil {
			return internalError(err)
		}
		if err := s.books.AdjustStock(ctx, tx, copy.ISBN, -1); err != nil {
			return internalError(fmt.Errorf("decrement stock_qty of %s: %w", copy.ISBN, err))
		}
		copy.Status = models.CopyStatusLost
		updated = copy
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("copy marked lost", "copy_id", id, "isbn", updated.ISBN)
	return updated, nil
}

// DeleteCopy removes a copy that is not on loan and has never been borrowed.
func (s *catalogService) DeleteCopy(ctx context.Context, id int64) error {
	return s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		copy, err := s.checks.lockCopy(ctx, tx, id)
		if err != nil {
			return err
		}
		if copy.Status == models.CopyStatusOnLoan {
			return ErrCopyOnLoan
		}
		n, err := s.records.CountByCopy(ctx, tx, id)
		if err != nil {
			return internalError(err)
		}
		if n > 0 {
			return ErrCopyHasHistory
		}
		if err := s.copies.Delete(ctx, tx, id); err != nil {
			return s.deleteError(err, ErrCopyHasHistory, ErrCopyNotFound)
		}
		if copy.Status == models.CopyStatusInLibrary {
			if err := s.books.AdjustStock(ctx, tx, copy.ISBN, -1); err != nil {
				return internalError(fmt.Errorf("decrement stock_qty of %s: %w", copy.ISBN, err))
			}
		}
		s.logger.Info("copy deleted", "copy_id", id, "isbn", copy.ISBN)
		return nil
	})
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

// lockBookPair locks the current and target book rows in ISBN order so two
// reassignments in opposite directions cannot deadlock. Only a missing target is
// reported as not found.
func (s *catalogService) lockBookPair(ctx context.Context, tx *gorm.DB, current, target string) error {
	first, second := current, target
	if second < first {
		first, second = second, first
	}
	for _, isbn := range []string{first, second} {
		if isbn == target {
			if _, err := s.checks.lockBook(ctx, tx, isbn); err != nil {
				return err
			}
			continue
		}
		if _, err := s.books.GetByISBNForUpdate(ctx, tx, isbn); err != nil {
			return internalError(fmt.Errorf("lock book %s: %w", isbn, err))
		}
	}
	return nil
}

// deleteError maps a failed DELETE: a foreign key violation means dependents appeared
// after the explicit check.
func (s *catalogService) deleteError(err error, conflict, notFound *Error) error {
	switch {
	case repositories.IsForeignKeyViolation(err):
		return conflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	}
	return internalError(err)
}

func validatePrice(price decimal.NullDecimal) error {
	if !price.Valid {
		return nil
	}
	if price.Decimal.IsNegative() || price.Decimal.GreaterThan(models.MaxBookPrice) {
		return ErrInvalidPrice
	}
	return nil
}
