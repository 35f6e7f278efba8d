package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	return conn(ctx, r.db, tx).Create(user).Error
}

func (r *userRepository) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := conn(ctx, r.db, tx).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type readerRepository struct {
	db *gorm.DB
}

func NewReaderRepository(db *gorm.DB) ReaderRepository {
	return &readerRepository{db: db}
}

func (r *readerRepository) Create(ctx context.Context, tx *gorm.DB, reader *models.Reader) error {
	return conn(ctx, r.db, tx).Create(reader).Error
}

func (r *readerRepository) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Reader, error) {
	var readers []models.Reader
	err := conn(ctx, r.db, tx).
		Order("card_id").
		Offset(offset).
		Limit(limit).
		Find(&readers).Error
	if err != nil {
		return nil, err
	}
	return readers, nil
}

func (r *readerRepository) GetByID(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error) {
	var reader models.Reader
	if err := conn(ctx, r.db, tx).First(&reader, "card_id = ?", cardID).Error; err != nil {
		return nil, err
	}
	return &reader, nil
}

func (r *readerRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, cardID int64) (*models.Reader, error) {
	var reader models.Reader
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reader, "card_id = ?", cardID).Error
	if err != nil {
		return nil, err
	}
	return &reader, nil
}

func (r *readerRepository) UpdateProfile(ctx context.Context, tx *gorm.DB, cardID int64, name string, category models.ReaderCategory) error {
	res := conn(ctx, r.db, tx).Model(&models.Reader{}).
		Where("card_id = ?", cardID).
		Updates(map[string]interface{}{
			"name":     name,
			"category": category,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdjustBorrowedCount applies delta in a single statement guarded so the count
// never drops below zero.
func (r *readerRepository) AdjustBorrowedCount(ctx context.Context, tx *gorm.DB, cardID int64, delta int) error {
	res := conn(ctx, r.db, tx).Model(&models.Reader{}).
		Where("card_id = ? AND borrowed_count + ? >= 0", cardID, delta).
		UpdateColumn("borrowed_count", gorm.Expr("borrowed_count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCounterUnderflow
	}
	return nil
}

func (r *readerRepository) Delete(ctx context.Context, tx *gorm.DB, cardID int64) error {
	res := conn(ctx, r.db, tx).Delete(&models.Reader{}, "card_id = ?", cardID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
