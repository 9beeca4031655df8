package models

import (
	"time"
)

// Payment records one purchase attempt. OrderID is assigned locally before the
// gateway order is created and is the key every webhook, poll and manual
// confirmation reconciles against. Records are kept forever for audit; the row
// is never deleted, only its status moves pending -> completed|failed.
type Payment struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OrderID       string     `gorm:"size:128;uniqueIndex;not null" json:"order_id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	PlanID        string     `gorm:"size:50;not null" json:"plan_id"`
	Credits       int64      `gorm:"not null" json:"credits"`
	Amount        float64    `gorm:"not null" json:"amount"`
	Currency      string     `gorm:"size:3;default:'INR'" json:"currency"`
	Status        string     `gorm:"size:20;not null;index" json:"status"` // pending, completed, failed
	TransactionID string     `gorm:"size:128" json:"transaction_id,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}
