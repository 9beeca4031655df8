package repository

import (
	"errors"

	"imagify/internal/models"

	"gorm.io/gorm"
)

var ErrInsufficientCredits = errors.New("insufficient credit balance")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(u *models.User) error {
	return r.db.Create(u).Error
}

func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var u models.User
	err := r.db.First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var u models.User
	err := r.db.Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementCredits applies delta as a single UPDATE expression so concurrent
// credits (purchases) and debits (generations) on the same user never lose an
// update to a read-modify-write race.
func (r *UserRepository) IncrementCredits(userID uint, delta int64) error {
	res := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("credit_balance", gorm.Expr("credit_balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DebitCredits deducts amount, guarding against a negative balance in the same
// UPDATE that performs the deduction.
func (r *UserRepository) DebitCredits(userID uint, amount int64) error {
	res := r.db.Model(&models.User{}).
		Where("id = ? AND credit_balance >= ?", userID, amount).
		UpdateColumn("credit_balance", gorm.Expr("credit_balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(userID); err != nil {
			return err
		}
		return ErrInsufficientCredits
	}
	return nil
}
