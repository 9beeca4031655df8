package repository

import (
	"errors"
	"time"

	"imagify/internal/domain"
	"imagify/internal/models"

	"gorm.io/gorm"
)

var (
	ErrDuplicateOrder   = errors.New("order id already exists")
	ErrAlreadyCompleted = errors.New("payment already completed")
	ErrNotPending       = errors.New("payment is not pending")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	if err := r.db.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

func (r *PaymentRepository) GetByOrderID(orderID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("order_id = ?", orderID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByOrderIDAndUser scopes the lookup to the owning user so status polls
// cannot read another account's payment.
func (r *PaymentRepository) GetByOrderIDAndUser(orderID string, userID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("order_id = ? AND user_id = ?", orderID, userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkCompleted flips pending -> completed with a single conditional UPDATE.
// Concurrent confirmations race on the database row: exactly one caller sees
// RowsAffected == 1, everyone else gets ErrAlreadyCompleted (or ErrNotPending
// when the record had already failed). Callers must only grant credits when
// this returns without error.
func (r *PaymentRepository) MarkCompleted(orderID, transactionID string) (*models.Payment, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       domain.PaymentStatusCompleted,
		"completed_at": &now,
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	res := r.db.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, domain.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		p, err := r.GetByOrderID(orderID)
		if err != nil {
			return nil, err
		}
		if p.Status == domain.PaymentStatusCompleted {
			return nil, ErrAlreadyCompleted
		}
		return nil, ErrNotPending
	}
	return r.GetByOrderID(orderID)
}

// MarkFailed flips pending -> failed under the same conditional-update guard.
// Completed payments never become failed.
func (r *PaymentRepository) MarkFailed(orderID string) error {
	res := r.db.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, domain.PaymentStatusPending).
		Update("status", domain.PaymentStatusFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByOrderID(orderID); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}
