package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type borrowRecordRepository struct {
	db *gorm.DB
}

func NewBorrowRecordRepository(db *gorm.DB) BorrowRecordRepository {
	return &borrowRecordRepository{db: db}
}

func (r *borrowRecordRepository) Create(ctx context.Context, tx *gorm.DB, record *models.BorrowRecord) error {
	return conn(ctx, r.db, tx).Create(record).Error
}

func (r *borrowRecordRepository) FindOutstandingByCopyForUpdate(ctx context.Context, tx *gorm.DB, copyID int64) (*models.BorrowRecord, error) {
	var record models.BorrowRecord
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("copy_id = ? AND returned_at IS NULL", copyID).
		Order("id").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkReturned closes an outstanding record. A record that is already closed is
// left untouched and reported as ErrAlreadyReturned.
func (r *borrowRecordRepository) MarkReturned(ctx context.Context, tx *gorm.DB, id int64, returnedAt time.Time) error {
	res := conn(ctx, r.db, tx).Model(&models.BorrowRecord{}).
		Where("id = ? AND returned_at IS NULL", id).
		Update("returned_at", returnedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReturned
	}
	return nil
}

func (r *borrowRecordRepository) ListByReader(ctx context.Context, tx *gorm.DB, cardID int64) ([]models.BorrowRecord, error) {
	var records []models.BorrowRecord
	err := conn(ctx, r.db, tx).
		Where("card_id = ?", cardID).
		Order("borrowed_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *borrowRecordRepository) CountByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db, tx).Model(&models.BorrowRecord{}).
		Where("card_id = ?", cardID).
		Count(&count).Error
	return count, err
}

func (r *borrowRecordRepository) CountByCopy(ctx context.Context, tx *gorm.DB, copyID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db, tx).Model(&models.BorrowRecord{}).
		Where("copy_id = ?", copyID).
		Count(&count).Error
	return count, err
}

type fineRepository struct {
	db *gorm.DB
}

func NewFineRepository(db *gorm.DB) FineRepository {
	return &fineRepository{db: db}
}

func (r *fineRepository) Create(ctx context.Context, tx *gorm.DB, fine *models.Fine) error {
	return conn(ctx, r.db, tx).Create(fine).Error
}

func (r *fineRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Fine, error) {
	var fine models.Fine
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&fine, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *fineRepository) MarkPaid(ctx context.Context, tx *gorm.DB, id int64) error {
	return conn(ctx, r.db, tx).Model(&models.Fine{}).
		Where("id = ? AND paid = ?", id, false).
		Update("paid", true).
		Error
}

func (r *fineRepository) ListByReader(ctx context.Context, tx *gorm.DB, cardID int64) ([]models.Fine, error) {
	var fines []models.Fine
	err := conn(ctx, r.db, tx).
		Where("card_id = ?", cardID).
		Order("id DESC").
		Find(&fines).Error
	if err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *fineRepository) ListAll(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Fine, error) {
	var fines []models.Fine
	err := conn(ctx, r.db, tx).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&fines).Error
	if err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *fineRepository) CountByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db, tx).Model(&models.Fine{}).
		Where("card_id = ?", cardID).
		Count(&count).Error
	return count, err
}

func (r *fineRepository) CountUnpaidByReader(ctx context.Context, tx *gorm.DB, cardID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db, tx).Model(&models.Fine{}).
		Where("card_id = ? AND paid = ?", cardID, false).
		Count(&count).Error
	return count, err
}

// UnpaidCountsByReaders returns the unpaid fine count per card id. Readers without
// unpaid fines are absent from the map.
func (r *fineRepository) UnpaidCountsByReaders(ctx context.Context, tx *gorm.DB, cardIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(cardIDs))
	if len(cardIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		CardID int64
		Unpaid int64
	}
	err := conn(ctx, r.db, tx).Model(&models.Fine{}).
		Select("card_id, COUNT(*) AS unpaid").
		Where("card_id IN ? AND paid = ?", cardIDs, false).
		Group("card_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.CardID] = row.Unpaid
	}
	return counts, nil
}
