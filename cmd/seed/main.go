// Command seed rebuilds the schema and loads a small demo library.
//
// Usage:
//
//	DATABASE_URL=... JWT_SECRET=... go run ./cmd/seed
//
// All existing data is dropped. Staff accounts admin1..admin3 share the password in
// SEED_ADMIN_PASSWORD (default "library-admin").
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/database"
	"circulation/internal/logging"
	"circulation/internal/models"
	"circulation/internal/services"
)

const defaultAdminPassword = "library-admin"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, "text")

	if err := run(cfg, logger); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	logger.Info("[4/4] done", "staff", "admin1, admin2, admin3")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	logger.Info("[1/4] dropping existing tables")
	all := models.All()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}

	logger.Info("[2/4] rebuilding schema")
	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = defaultAdminPassword
	}

	logger.Info("[3/4] loading demo data")
	return db.Transaction(func(tx *gorm.DB) error {
		return seed(tx, password, time.Now().UTC())
	})
}

func seed(tx *gorm.DB, password string, now time.Time) error {
	hash, err := services.HashPassword(password)
	if err != nil {
		return err
	}
	users := []models.User{
		{Username: "admin1", PasswordHash: hash},
		{Username: "admin2", PasswordHash: hash},
		{Username: "admin3", PasswordHash: hash},
	}
	if err := tx.Create(&users).Error; err != nil {
		return err
	}

	publishers := []models.Publisher{
		{Name: "Tsinghua University Press", Address: "Haidian, Beijing"},
		{Name: "China Machine Press", Address: "Xicheng, Beijing"},
		{Name: "People's Literature Publishing House", Address: "Chaoyang, Beijing"},
		{Name: "O'Reilly Media", Address: "California"},
	}
	if err := tx.Create(&publishers).Error; err != nil {
		return err
	}

	books := []models.Book{
		{ISBN: "978-7-302", Title: "Computer Systems: A Programmer's Perspective", Author: "Randal E. Bryant", PublisherID: publishers[0].ID, Price: price("139.00")},
		{ISBN: "978-7-111", Title: "Introduction to Algorithms", Author: "Thomas H. Cormen", PublisherID: publishers[1].ID, Price: price("128.00")},
		{ISBN: "978-7-020", Title: "One Hundred Years of Solitude", Author: "Gabriel Garcia Marquez", PublisherID: publishers[2].ID, Price: price("55.00")},
		{ISBN: "978-0-596", Title: "Learning Python", Author: "Mark Lutz", PublisherID: publishers[3].ID, Price: price("350.00")},
	}

	// Copies per ISBN, the first `onLoan` of which are lent out below.
	inventory := []struct {
		isbn   string
		copies int
		onLoan int
	}{
		{"978-7-302", 3, 1},
		{"978-7-111", 2, 1},
		{"978-7-020", 1, 0},
		{"978-0-596", 2, 0},
	}
	for i := range books {
		books[i].StockQty = inventory[i].copies - inventory[i].onLoan
	}
	if err := tx.Create(&books).Error; err != nil {
		return err
	}

	readers := []models.Reader{
		{Name: "Li Hua", Category: models.ReaderCategoryStudent},
		{Name: "Han Meimei", Category: models.ReaderCategoryStudent},
		{Name: "Luo Ji", Category: models.ReaderCategoryTeacher},
		{Name: "Zhang Beihai", Category: models.ReaderCategoryExternal},
	}
	if err := tx.Create(&readers).Error; err != nil {
		return err
	}

	var loaned []models.Copy
	for _, inv := range inventory {
		for n := 0; n < inv.copies; n++ {
			c := models.Copy{ISBN: inv.isbn, Status: models.CopyStatusInLibrary}
			if n < inv.onLoan {
				c.Status = models.CopyStatusOnLoan
			}
			if err := tx.Create(&c).Error; err != nil {
				return err
			}
			if c.Status == models.CopyStatusOnLoan {
				loaned = append(loaned, c)
			}
		}
	}

	// Li Hua borrowed 5 days ago, Han Meimei 10 days ago.
	loans := []struct {
		reader  *models.Reader
		daysAgo int
	}{
		{&readers[0], 5},
		{&readers[1], 10},
	}
	for i, loan := range loans {
		record := models.BorrowRecord{
			CardID:     loan.reader.CardID,
			CopyID:     loaned[i].ID,
			BorrowedAt: now.AddDate(0, 0, -loan.daysAgo),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if err := tx.Model(loan.reader).Update("borrowed_count", gorm.Expr("borrowed_count + 1")).Error; err != nil {
			return err
		}
	}
	return nil
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
