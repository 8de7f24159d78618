package storage

import (
	"time"

	"github.com/camuig/rf-history/internal/analyzer"
)

// Account links a telegram user to the FTP folder their terminal uploads
// statements to and to the broker account those statements must belong to.
type Account struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TelegramUserID int64      `gorm:"index" json:"telegram_user_id"`
	FTPUserID      string     `gorm:"uniqueIndex;not null" json:"ftp_user_id"`
	AccountNumber  string     `gorm:"index;not null" json:"account_number"`
	Name           string     `json:"name"`
	Active         bool       `gorm:"not null" json:"active"`
	LastCheckAt    *time.Time `json:"last_check_at"`
}

// OrderRecord is one statement row as stored. Derived fields are recomputed
// on load, so only the statement's own columns are kept.
type OrderRecord struct {
	FTPUserID string `gorm:"primaryKey;autoIncrement:false" json:"ftp_user_id"`
	OrderID   int64  `gorm:"primaryKey;autoIncrement:false" json:"order_id"`
	CreatedAt time.Time

	Side       string    `gorm:"not null" json:"side"`
	Symbol     string    `json:"symbol"`
	OpenTime   time.Time `gorm:"index" json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
	Qty        float64   `json:"qty"`
	OpenPrice  float64   `json:"open_price"`
	ClosePrice float64   `json:"close_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Fee        float64   `json:"fee"`
	Taxes      float64   `json:"taxes"`
	Swap       float64   `json:"swap"`
	Profit     float64   `json:"profit"`
	Comment    string    `json:"comment"`
	SourceFile string    `json:"source_file"`
}

func (OrderRecord) TableName() string {
	return "orders"
}

func NewOrderRecord(ftpUserID, sourceFile string, o analyzer.Order) OrderRecord {
	return OrderRecord{
		FTPUserID:  ftpUserID,
		OrderID:    o.ID,
		Side:       string(o.Side),
		Symbol:     o.Symbol,
		OpenTime:   o.OpenTime,
		CloseTime:  o.CloseTime,
		Qty:        o.Qty,
		OpenPrice:  o.OpenPrice,
		ClosePrice: o.ClosePrice,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Fee:        o.Fee,
		Taxes:      o.Taxes,
		Swap:       o.Swap,
		Profit:     o.Profit,
		Comment:    o.Comment,
		SourceFile: sourceFile,
	}
}

func (r OrderRecord) Order() analyzer.Order {
	return analyzer.Order{
		ID:         r.OrderID,
		Side:       analyzer.Side(r.Side),
		Symbol:     r.Symbol,
		OpenTime:   r.OpenTime,
		CloseTime:  r.CloseTime,
		Qty:        r.Qty,
		OpenPrice:  r.OpenPrice,
		ClosePrice: r.ClosePrice,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Fee:        r.Fee,
		Taxes:      r.Taxes,
		Swap:       r.Swap,
		Profit:     r.Profit,
		Comment:    r.Comment,
	}
}

// StatementLog records one processed statement file.
type StatementLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FTPUserID     string `gorm:"index;not null" json:"ftp_user_id"`
	AccountNumber string `json:"account_number"`
	Template      string `json:"template"`
	FileName      string `json:"file_name"`
	RowsTotal     int    `json:"rows_total"`
	RowsNew       int    `json:"rows_new"`
	Error         string `json:"error"`
}
