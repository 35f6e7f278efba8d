package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReaderCategory string

const (
	ReaderCategoryStudent  ReaderCategory = "student"
	ReaderCategoryTeacher  ReaderCategory = "teacher"
	ReaderCategoryExternal ReaderCategory = "external"
)

// Valid reports whether c is one of the known reader categories.
func (c ReaderCategory) Valid() bool {
	switch c {
	case ReaderCategoryStudent, ReaderCategoryTeacher, ReaderCategoryExternal:
		return true
	}
	return false
}

type CopyStatus string

const (
	CopyStatusInLibrary CopyStatus = "IN_LIBRARY"
	CopyStatusOnLoan    CopyStatus = "ON_LOAN"
	CopyStatusLost      CopyStatus = "LOST"
)

// MaxBookPrice is the largest price a numeric(10,2) column holds with whole units only.
var MaxBookPrice = decimal.NewFromInt(99999999)

// User is a staff account allowed to operate the circulation desk.
type User struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:50;not null;uniqueIndex" json:"username"`
	PasswordHash string `gorm:"size:100;not null" json:"-"`
}

type Reader struct {
	CardID        int64          `gorm:"primaryKey" json:"card_id"`
	Name          string         `gorm:"size:50;not null" json:"name"`
	Category      ReaderCategory `gorm:"size:20;not null" json:"category"`
	BorrowedCount int            `gorm:"not null;default:0;check:borrowed_count >= 0" json:"borrowed_count"`
}

type Publisher struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Address string `gorm:"size:200" json:"address"`
}

type Book struct {
	ISBN        string              `gorm:"column:isbn;size:20;primaryKey" json:"isbn"`
	Title       string              `gorm:"size:100;not null" json:"title"`
	Author      string              `gorm:"size:100;not null" json:"author"`
	PublisherID int64               `gorm:"not null;index" json:"publisher_id"`
	Publisher   Publisher           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Price       decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"price"`
	StockQty    int                 `gorm:"not null;default:0;check:stock_qty >= 0" json:"stock_qty"`
}

// Copy is one physical, barcoded instance of a Book.
type Copy struct {
	ID     int64      `gorm:"primaryKey" json:"id"`
	ISBN   string     `gorm:"column:isbn;size:20;not null;index" json:"isbn"`
	Book   Book       `gorm:"foreignKey:ISBN;references:ISBN;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Status CopyStatus `gorm:"size:16;not null;index" json:"status"`
}

// BorrowRecord is outstanding while ReturnedAt is nil.
type BorrowRecord struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	CardID     int64      `gorm:"not null;index" json:"card_id"`
	Reader     Reader     `gorm:"foreignKey:CardID;references:CardID;constraint:OnDelete:RESTRICT;" json:"-"`
	CopyID     int64      `gorm:"not null;index" json:"copy_id"`
	Copy       Copy       `gorm:"constraint:OnDelete:RESTRICT;" json:"-"`
	BorrowedAt time.Time  `gorm:"not null" json:"borrowed_at"`
	ReturnedAt *time.Time `json:"returned_at"`
}

func (r BorrowRecord) Outstanding() bool {
	return r.ReturnedAt == nil
}

type Fine struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	CardID    int64           `gorm:"not null;index" json:"card_id"`
	Reader    Reader          `gorm:"foreignKey:CardID;references:CardID;constraint:OnDelete:RESTRICT;" json:"-"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Remark    string          `gorm:"size:255" json:"remark"`
	Paid      bool            `gorm:"not null;default:false;index" json:"paid"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

// All lists every persisted model in dependency order, for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Reader{},
		&Publisher{},
		&Book{},
		&Copy{},
		&BorrowRecord{},
		&Fine{},
	}
}
