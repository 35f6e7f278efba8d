package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// lookups bundles the existence checks shared by the circulation and
// catalog services. None of them mutate the store.
type lookups struct {
	readers    repositories.ReaderRepository
	publishers repositories.PublisherRepository
	books      repositories.BookRepository
	copies     repositories.CopyRepository
	fines      repositories.FineRepository
}

// translate maps a missing row to notFound and anything else to an internal error.
func translate(err error, notFound *Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return internalError(err)
}

func (l lookups) reader(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error) {
	reader, err := l.readers.GetByID(ctx, tx, cardID)
	if err != nil {
		return nil, translate(err, ErrReaderNotFound)
	}
	return reader, nil
}

func (l lookups) publisher(ctx context.Context, tx *gorm.DB, id int64) (*models.Publisher, error) {
	publisher, err := l.publishers.GetByID(ctx, tx, id)
	if err != nil {
		return nil, translate(err, ErrPublisherNotFound)
	}
	return publisher, nil
}

// lockBook and lockCopy take the row lock as part of the existence check.
func (l lookups) lockBook(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error) {
	book, err := l.books.GetByISBNForUpdate(ctx, tx, isbn)
	if err != nil {
		return nil, translate(err, ErrBookNotFound)
	}
	return book, nil
}

func (l lookups) lockCopy(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error) {
	copy, err := l.copies.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, translate(err, ErrCopyNotFound)
	}
	return copy, nil
}

func (l lookups) hasUnpaidFines(ctx context.Context, tx *gorm.DB, cardID int64) (bool, error) {
	n, err := l.fines.CountUnpaidByReader(ctx, tx, cardID)
	if err != nil {
		return false, internalError(err)
	}
	return n > 0, nil
}
