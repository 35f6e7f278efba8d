package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type publisherRepository struct {
	db *gorm.DB
}

func NewPublisherRepository(db *gorm.DB) PublisherRepository {
	return &publisherRepository{db: db}
}

func (r *publisherRepository) Create(ctx context.Context, tx *gorm.DB, publisher *models.Publisher) error {
	return conn(ctx, r.db, tx).Create(publisher).Error
}

func (r *publisherRepository) List(ctx context.Context, tx *gorm.DB) ([]models.Publisher, error) {
	var publishers []models.Publisher
	if err := conn(ctx, r.db, tx).Order("id").Find(&publishers).Error; err != nil {
		return nil, err
	}
	return publishers, nil
}

func (r *publisherRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*models.Publisher, error) {
	var publisher models.Publisher
	if err := conn(ctx, r.db, tx).First(&publisher, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &publisher, nil
}

func (r *publisherRepository) GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Publisher, error) {
	var publisher models.Publisher
	if err := conn(ctx, r.db, tx).First(&publisher, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &publisher, nil
}

func (r *publisherRepository) Update(ctx context.Context, tx *gorm.DB, publisher *models.Publisher) error {
	return conn(ctx, r.db, tx).Model(&models.Publisher{}).
		Where("id = ?", publisher.ID).
		Updates(map[string]interface{}{
			"name":    publisher.Name,
			"address": publisher.Address,
		}).Error
}

func (r *publisherRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return conn(ctx, r.db, tx).Delete(&models.Publisher{}, "id = ?", id).Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(ctx context.Context, tx *gorm.DB, book *models.Book) error {
	return conn(ctx, r.db, tx).Create(book).Error
}

func (r *bookRepository) List(ctx context.Context, tx *gorm.DB) ([]models.Book, error) {
	var books []models.Book
	if err := conn(ctx, r.db, tx).Order("isbn").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByISBN(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error) {
	var book models.Book
	if err := conn(ctx, r.db, tx).First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByISBNForUpdate(ctx context.Context, tx *gorm.DB, isbn string) (*models.Book, error) {
	var book models.Book
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "isbn = ?", isbn).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// UpdateDetails writes the descriptive columns only; stock_qty is owned by AdjustStock.
func (r *bookRepository) UpdateDetails(ctx context.Context, tx *gorm.DB, book *models.Book) error {
	return conn(ctx, r.db, tx).Model(&models.Book{}).
		Where("isbn = ?", book.ISBN).
		Updates(map[string]interface{}{
			"title":        book.Title,
			"author":       book.Author,
			"publisher_id": book.PublisherID,
			"price":        book.Price,
		}).Error
}

func (r *bookRepository) AdjustStock(ctx context.Context, tx *gorm.DB, isbn string, delta int) error {
	res := conn(ctx, r.db, tx).Model(&models.Book{}).
		Where("isbn = ? AND stock_qty + ? >= 0", isbn, delta).
		UpdateColumn("stock_qty", gorm.Expr("stock_qty + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCounterUnderflow
	}
	return nil
}

func (r *bookRepository) CountByPublisher(ctx context.Context, tx *gorm.DB, publisherID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db, tx).Model(&models.Book{}).
		Where("publisher_id = ?", publisherID).
		Count(&count).Error
	return count, err
}

func (r *bookRepository) Delete(ctx context.Context, tx *gorm.DB, isbn string) error {
	return conn(ctx, r.db, tx).Delete(&models.Book{}, "isbn = ?", isbn).Error
}

type copyRepository struct {
	db *gorm.DB
}

func NewCopyRepository(db *gorm.DB) CopyRepository {
	return &copyRepository{db: db}
}

func (r *copyRepository) Create(ctx context.Context, tx *gorm.DB, copy *models.Copy) error {
	return conn(ctx, r.db, tx).Create(copy).Error
}

func (r *copyRepository) List(ctx context.Context, tx *gorm.DB) ([]models.Copy, error) {
	var copies []models.Copy
	if err := conn(ctx, r.db, tx).Order("id").Find(&copies).Error; err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *copyRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error) {
	var copy models.Copy
	if err := conn(ctx, r.db, tx).First(&copy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *copyRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Copy, error) {
	var copy models.Copy
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&copy, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *copyRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status models.CopyStatus) error {
	return conn(ctx, r.db, tx).Model(&models.Copy{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

func (r *copyRepository) UpdateISBN(ctx context.Context, tx *gorm.DB, id int64, isbn string) error {
	return conn(ctx, r.db, tx).Model(&models.Copy{}).
		Where("id = ?", id).
		Update("isbn", isbn).
		Error
}

func (r *copyRepository) CountByISBN(ctx context.Context, tx *gorm.DB, isbn string) (int64, error) {
	var count int64
	err := conn(ctx, r.db, tx).Model(&models.Copy{}).
		Where("isbn = ?", isbn).
		Count(&count).Error
	return count, err
}

func (r *copyRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return conn(ctx, r.db, tx).Delete(&models.Copy{}, "id = ?", id).Error
}
