package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camuig/rf-history/internal/analyzer"
)

var ErrNotFound = errors.New("not found")

const insertBatchSize = 200

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Orders

// SaveOrders stores the orders of one account and skips tickets that are
// already known. It returns how many rows were new.
func (r *Repository) SaveOrders(ftpUserID, sourceFile string, orders []analyzer.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	records := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		records = append(records, NewOrderRecord(ftpUserID, sourceFile, o))
	}

	var added int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += insertBatchSize {
			end := min(start+insertBatchSize, len(records))
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(records[start:end])
			if res.Error != nil {
				return res.Error
			}
			added += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save orders: %w", err)
	}
	return int(added), nil
}

// LoadOrders returns the stored base fields of an account's orders by ID.
// Callers derive balances with analyzer.Derive.
func (r *Repository) LoadOrders(ftpUserID string) ([]analyzer.Order, error) {
	var records []OrderRecord
	err := r.db.Where("ftp_user_id = ?", ftpUserID).Order("order_id").Find(&records).Error
	if err != nil {
		return nil, err
	}
	orders := make([]analyzer.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, rec.Order())
	}
	return orders, nil
}

// OrderSpan is the range of open times stored for an account.
type OrderSpan struct {
	First time.Time
	Last  time.Time
	Count int64
}

func (r *Repository) OrderSpan(ftpUserID string) (OrderSpan, error) {
	var span OrderSpan
	q := r.db.Model(&OrderRecord{}).Where("ftp_user_id = ?", ftpUserID)
	if err := q.Count(&span.Count).Error; err != nil {
		return OrderSpan{}, err
	}
	if span.Count == 0 {
		return span, nil
	}

	var first, last OrderRecord
	if err := r.db.Where("ftp_user_id = ?", ftpUserID).Order("open_time").First(&first).Error; err != nil {
		return OrderSpan{}, notFound(err)
	}
	if err := r.db.Where("ftp_user_id = ?", ftpUserID).Order("open_time DESC").First(&last).Error; err != nil {
		return OrderSpan{}, notFound(err)
	}
	span.First, span.Last = first.OpenTime, last.OpenTime
	return span, nil
}

// Accounts

func (r *Repository) SaveAccount(account *Account) error {
	return r.db.Save(account).Error
}

// FindAccount returns the account of an FTP user that owns accountNumber.
func (r *Repository) FindAccount(ftpUserID, accountNumber string) (*Account, error) {
	var account Account
	err := r.db.Where("ftp_user_id = ? AND account_number = ?", ftpUserID, accountNumber).
		First(&account).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *Repository) AccountByFTPUser(ftpUserID string) (*Account, error) {
	var account Account
	if err := r.db.Where("ftp_user_id = ?", ftpUserID).First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *Repository) AccountByTelegramUser(telegramUserID int64) (*Account, error) {
	var account Account
	err := r.db.Where("telegram_user_id = ? AND active = ?", telegramUserID, true).
		Order("id").First(&account).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

// ActiveAccounts returns active accounts, least recently checked first.
func (r *Repository) ActiveAccounts() ([]Account, error) {
	var accounts []Account
	err := r.db.Where("active = ?", true).
		Order("last_check_at IS NOT NULL, last_check_at, id").
		Find(&accounts).Error
	return accounts, err
}

func (r *Repository) TouchAccount(ftpUserID string, at time.Time) error {
	res := r.db.Model(&Account{}).Where("ftp_user_id = ?", ftpUserID).Update("last_check_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Statement logs

func (r *Repository) SaveStatementLog(log *StatementLog) error {
	return r.db.Create(log).Error
}

func (r *Repository) RecentStatementLogs(ftpUserID string, limit int) ([]StatementLog, error) {
	var logs []StatementLog
	err := r.db.Where("ftp_user_id = ?", ftpUserID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
