package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"circulation/internal/models"
	"circulation/internal/services"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type borrowRequest struct {
	CardID int64 `json:"card_id" binding:"required,min=1"`
	CopyID int64 `json:"copy_id" binding:"required,min=1"`
}

type returnRequest struct {
	CopyID    int64 `json:"copy_id" binding:"required,min=1"`
	IsDamaged bool  `json:"is_damaged"`
}

type readerRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category" binding:"required"`
}

type publisherRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

type bookRequest struct {
	Title       string              `json:"title" binding:"required"`
	Author      string              `json:"author" binding:"required"`
	PublisherID int64               `json:"publisher_id" binding:"required,min=1"`
	Price       decimal.NullDecimal `json:"price"`
}

type createBookRequest struct {
	ISBN string `json:"isbn" binding:"required,max=20"`
	bookRequest
}

func (r bookRequest) input(isbn string) services.BookInput {
	return services.BookInput{
		ISBN:        isbn,
		Title:       r.Title,
		Author:      r.Author,
		PublisherID: r.PublisherID,
		Price:       r.Price,
	}
}

type copyRequest struct {
	ISBN string `json:"isbn" binding:"required"`
}

// Money is rendered as a fixed two-decimal string.

type bookResponse struct {
	ISBN        string  `json:"isbn"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	PublisherID int64   `json:"publisher_id"`
	Price       *string `json:"price"`
	StockQty    int     `json:"stock_qty"`
}

func toBookResponse(b models.Book) bookResponse {
	resp := bookResponse{
		ISBN:        b.ISBN,
		Title:       b.Title,
		Author:      b.Author,
		PublisherID: b.PublisherID,
		StockQty:    b.StockQty,
	}
	if b.Price.Valid {
		price := services.FormatMoney(b.Price.Decimal)
		resp.Price = &price
	}
	return resp
}

type fineResponse struct {
	ID        int64     `json:"id"`
	CardID    int64     `json:"card_id"`
	Amount    string    `json:"amount"`
	Remark    string    `json:"remark"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"created_at"`
}

func toFineResponse(f models.Fine) fineResponse {
	return fineResponse{
		ID:        f.ID,
		CardID:    f.CardID,
		Amount:    services.FormatMoney(f.Amount),
		Remark:    f.Remark,
		Paid:      f.Paid,
		CreatedAt: f.CreatedAt,
	}
}

func toFineResponses(fines []models.Fine) []fineResponse {
	out := make([]fineResponse, 0, len(fines))
	for _, f := range fines {
		out = append(out, toFineResponse(f))
	}
	return out
}
