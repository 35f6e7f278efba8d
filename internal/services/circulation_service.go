package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

const (
	MsgBorrowed        = "borrowed successfully"
	MsgReturned        = "returned successfully"
	MsgFinePaid        = "fine paid"
	MsgFineAlreadyPaid = "fine already paid"

	// DefaultFineListLimit bounds ListAllFines when the caller gives no limit.
	DefaultFineListLimit = 1000
)

// ReturnResult describes a completed return. Fine is nil when nothing was charged.
type ReturnResult struct {
	Message string
	Fine    *models.Fine
}

// CirculationService owns the borrow/return lifecycle and the fine ledger.
type CirculationService interface {
	Borrow(ctx context.Context, cardID, copyID int64) (string, error)
	Return(ctx context.Context, copyID int64, damaged bool) (*ReturnResult, error)
	PayFine(ctx context.Context, fineID int64) (string, error)

	ListBorrowRecords(ctx context.Context, cardID int64) ([]models.BorrowRecord, error)
	ListReaderFines(ctx context.Context, cardID int64) ([]models.Fine, error)
	ListAllFines(ctx context.Context, offset, limit int) ([]models.Fine, error)
}

// CirculationOption customises a CirculationService.
type CirculationOption func(*circulationService)

// WithClock replaces the wall clock used to stamp borrow and return times.
func WithClock(now func() time.Time) CirculationOption {
	return func(s *circulationService) { s.now = now }
}

type circulationService struct {
	tx      repositories.TxManager
	readers repositories.ReaderRepository
	books   repositories.BookRepository
	copies  repositories.CopyRepository
	records repositories.BorrowRecordRepository
	fines   repositories.FineRepository
	checks  lookups
	logger  *slog.Logger
	now     func() time.Time
}

// NewCirculationService wires up all dependencies and returns a CirculationService.
func NewCirculationService(
	tx repositories.TxManager,
	readers repositories.ReaderRepository,
	books repositories.BookRepository,
	copies repositories.CopyRepository,
	records repositories.BorrowRecordRepository,
	fines repositories.FineRepository,
	logger *slog.Logger,
	opts ...CirculationOption,
) CirculationService {
	s := &circulationService{
		tx:      tx,
		readers: readers,
		books:   books,
		copies:  copies,
		records: records,
		fines:   fines,
		checks:  lookups{readers: readers, fines: fines},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Borrow ───────────────────────────────────────────────────────────────────

// Borrow lends a copy to a reader.
//
// Preconditions, first failure wins:
//  1. reader exists (ErrReaderNotFound)
//  2. reader has no unpaid fine (ErrOutstandingFines)
//  3. copy exists and is IN_LIBRARY (ErrCopyUnavailable)
//
// Rows are locked copy first, then reader, then book, the same order Return uses.
func (s *circulationService) Borrow(ctx context.Context, cardID, copyID int64) (string, error) {
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.checks.reader(ctx, tx, cardID); err != nil {
			return err
		}

		// Lock the copy now; its status is only judged after the fine check.
		copy, copyErr := s.copies.GetByIDForUpdate(ctx, tx, copyID)
		if copyErr != nil && !errors.Is(copyErr, gorm.ErrRecordNotFound) {
			return internalError(copyErr)
		}

		if _, err := s.readers.GetByIDForUpdate(ctx, tx, cardID); err != nil {
			return translate(err, ErrReaderNotFound)
		}

		unpaid, err := s.checks.hasUnpaidFines(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if unpaid {
			return ErrOutstandingFines
		}

		if copyErr != nil || copy.Status != models.CopyStatusInLibrary {
			return ErrCopyUnavailable
		}

		record := &models.BorrowRecord{
			CardID:     cardID,
			CopyID:     copyID,
			BorrowedAt: s.now(),
		}
		if err := s.records.Create(ctx, tx, record); err != nil {
			return internalError(fmt.Errorf("create borrow record: %w", err))
		}
		if err := s.copies.UpdateStatus(ctx, tx, copyID, models.CopyStatusOnLoan); err != nil {
			return internalError(fmt.Errorf("mark copy on loan: %w", err))
		}
		if err := s.readers.AdjustBorrowedCount(ctx, tx, cardID, 1); err != nil {
			return internalError(fmt.Errorf("increment borrowed_count: %w", err))
		}
		if err := s.books.AdjustStock(ctx, tx, copy.ISBN, -1); err != nil {
			return internalError(fmt.Errorf("decrement stock_qty of %s: %w", copy.ISBN, err))
		}

		s.logger.Info("copy borrowed",
			"record_id", record.ID, "card_id", cardID, "copy_id", copyID, "isbn", copy.ISBN)
		return nil
	})
	if err != nil {
		s.logFailure("Borrow", err, "card_id", cardID, "copy_id", copyID)
		return "", err
	}
	return MsgBorrowed, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// Return closes the outstanding loan of a copy and charges any fine, all in one
// transaction.
//
// A damaged copy re-enters circulation as IN_LIBRARY; the damage is recorded only
// on the fine.
func (s *circulationService) Return(ctx context.Context, copyID int64, damaged bool) (*ReturnResult, error) {
	var result *ReturnResult

	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		record, err := s.records.FindOutstandingByCopyForUpdate(ctx, tx, copyID)
		if err != nil {
			return translate(err, ErrNoOutstandingLoan)
		}

		copy, err := s.copies.GetByIDForUpdate(ctx, tx, copyID)
		if err != nil {
			return internalError(fmt.Errorf("load copy %d: %w", copyID, err))
		}
		if copy.Status != models.CopyStatusOnLoan {
			return internalError(fmt.Errorf("copy %d has outstanding record %d but status %s", copyID, record.ID, copy.Status))
		}

		if _, err := s.readers.GetByIDForUpdate(ctx, tx, record.CardID); err != nil {
			return internalError(fmt.Errorf("load reader %d: %w", record.CardID, err))
		}

		returnedAt := s.now()
		if err := s.records.MarkReturned(ctx, tx, record.ID, returnedAt); err != nil {
			return internalError(fmt.Errorf("mark record %d returned: %w", record.ID, err))
		}
		if err := s.copies.UpdateStatus(ctx, tx, copyID, models.CopyStatusInLibrary); err != nil {
			return internalError(fmt.Errorf("mark copy in library: %w", err))
		}
		if err := s.readers.AdjustBorrowedCount(ctx, tx, record.CardID, -1); err != nil {
			return internalError(fmt.Errorf("decrement borrowed_count of reader %d: %w", record.CardID, err))
		}

		book, err := s.books.GetByISBNForUpdate(ctx, tx, copy.ISBN)
		if err != nil {
			return internalError(fmt.Errorf("load book %s: %w", copy.ISBN, err))
		}
		if err := s.books.AdjustStock(ctx, tx, book.ISBN, 1); err != nil {
			return internalError(fmt.Errorf("increment stock_qty of %s: %w", book.ISBN, err))
		}

		assessment := CalculateFine(record.BorrowedAt, returnedAt, damaged, book.Price)
		result = &ReturnResult{Message: MsgReturned}
		if assessment.Charged() {
			fine := &models.Fine{
				CardID:    record.CardID,
				Amount:    assessment.Total,
				Remark:    assessment.Remark(),
				Paid:      false,
				CreatedAt: returnedAt,
			}
			if err := s.fines.Create(ctx, tx, fine); err != nil {
				return internalError(fmt.Errorf("create fine: %w", err))
			}
			result.Fine = fine
			result.Message = fmt.Sprintf("%s, fine incurred: %s, total ¥%s",
				MsgReturned, fine.Remark, FormatMoney(fine.Amount))
		}

		s.logger.Info("copy returned",
			"record_id", record.ID, "card_id", record.CardID, "copy_id", copyID,
			"damaged", damaged, "fine", FormatMoney(assessment.Total))
		return nil
	})
	if err != nil {
		s.logFailure("Return", err, "copy_id", copyID, "damaged", damaged)
		return nil, err
	}
	return result, nil
}

// ─── Fines ────────────────────────────────────────────────────────────────────

// PayFine marks a fine paid. Paying an already-paid fine succeeds without changes.
func (s *circulationService) PayFine(ctx context.Context, fineID int64) (string, error) {
	msg := MsgFinePaid
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		fine, err := s.fines.GetByIDForUpdate(ctx, tx, fineID)
		if err != nil {
			return translate(err, ErrFineNotFound)
		}
		if fine.Paid {
			msg = MsgFineAlreadyPaid
			return nil
		}
		if err := s.fines.MarkPaid(ctx, tx, fineID); err != nil {
			return internalError(fmt.Errorf("mark fine %d paid: %w", fineID, err))
		}
		s.logger.Info("fine paid", "fine_id", fineID, "card_id", fine.CardID, "amount", FormatMoney(fine.Amount))
		return nil
	})
	if err != nil {
		s.logFailure("PayFine", err, "fine_id", fineID)
		return "", err
	}
	return msg, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// ListBorrowRecords returns every loan (outstanding and closed) of a reader, newest first.
func (s *circulationService) ListBorrowRecords(ctx context.Context, cardID int64) ([]models.BorrowRecord, error) {
	if _, err := s.checks.reader(ctx, nil, cardID); err != nil {
		return nil, err
	}
	records, err := s.records.ListByReader(ctx, nil, cardID)
	if err != nil {
		return nil, internalError(err)
	}
	return records, nil
}

// ListReaderFines returns the fine ledger of one reader, newest first.
func (s *circulationService) ListReaderFines(ctx context.Context, cardID int64) ([]models.Fine, error) {
	if _, err := s.checks.reader(ctx, nil, cardID); err != nil {
		return nil, err
	}
	fines, err := s.fines.ListByReader(ctx, nil, cardID)
	if err != nil {
		return nil, internalError(err)
	}
	return fines, nil
}

// ListAllFines returns fines of all readers, newest first.
func (s *circulationService) ListAllFines(ctx context.Context, offset, limit int) ([]models.Fine, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > DefaultFineListLimit {
		limit = DefaultFineListLimit
	}
	fines, err := s.fines.ListAll(ctx, nil, offset, limit)
	if err != nil {
		return nil, internalError(err)
	}
	return fines, nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

// logFailure logs rejected preconditions at info and internal failures at error,
// with the underlying cause.
func (s *circulationService) logFailure(op string, err error, attrs ...any) {
	attrs = append(attrs, "category", KindOf(err), "error", err)
	if KindOf(err) == KindInternal {
		s.logger.Error(op+" failed, transaction rolled back", attrs...)
		return
	}
	s.logger.Info(op+" rejected", attrs...)
}
