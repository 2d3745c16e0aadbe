package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"gorm.io/gorm"
)

type BankAccount struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BankName      string    `gorm:"size:100;not null" json:"bank_name" binding:"required"`
	AccountNumber string    `gorm:"size:50" json:"account_number"`
	Label         string    `gorm:"index;size:100;not null" json:"label" binding:"required"`
	IsDefault     *bool     `gorm:"not null;default:false" json:"is_default"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBankAccount struct {
	BankName      string `json:"bank_name" binding:"required"`
	AccountNumber string `json:"account_number"`
	Label         string `json:"label" binding:"required"`
	IsDefault     *bool  `json:"is_default"`
}

func (a BankAccount) GetId() int {
	return a.ID
}

// AccountsResponse enumerates the fixed cash pseudo-account plus the bank accounts.
type AccountsResponse struct {
	Cash         string         `json:"cash"`
	BankAccounts []*BankAccount `json:"bank_accounts"`
}

func CreateBankAccount(ctx context.Context, input *NewBankAccount) (*BankAccount, error) {
	if input.BankName == "" || input.Label == "" {
		return nil, errors.New("bank name and label are required")
	}

	account := BankAccount{
		BankName:      input.BankName,
		AccountNumber: input.AccountNumber,
		Label:         input.Label,
		IsDefault:     utils.NewFalse(),
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&BankAccount{}).Where("label = ?", input.Label).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.New("label already exists")
		}
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		if input.IsDefault != nil && *input.IsDefault {
			return setDefaultBankAccountTx(tx, account.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func GetBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	db := config.GetDB()
	var result BankAccount
	err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func ListAccounts(ctx context.Context) (*AccountsResponse, error) {
	db := config.GetDB()
	var bankAccounts []*BankAccount
	err := db.WithContext(ctx).Order("label").Find(&bankAccounts).Error
	if err != nil {
		return nil, err
	}
	return &AccountsResponse{
		Cash:         string(AccountKindCash),
		BankAccounts: bankAccounts,
	}, nil
}

// GetDefaultBankAccount returns the unique active default account, or nil when
// none is configured.
func GetDefaultBankAccount(ctx context.Context) (*BankAccount, error) {
	db := config.GetDB()
	var result BankAccount
	err := db.WithContext(ctx).Where("is_default = ? AND is_active = ?", true, true).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// SetDefaultBankAccount makes the given account the single default.
func SetDefaultBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setDefaultBankAccountTx(tx, id)
	})
	if err != nil {
		return nil, err
	}
	return GetBankAccount(ctx, id)
}

func setDefaultBankAccountTx(tx *gorm.DB, id int) error {
	var account BankAccount
	if err := tx.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	if account.IsActive == nil || !*account.IsActive {
		return utils.ErrorAccountInactive
	}
	if err := tx.Model(&BankAccount{}).Where("is_default = ?", true).
		Update("is_default", false).Error; err != nil {
		return err
	}
	return tx.Model(&BankAccount{}).Where("id = ?", id).
		Update("is_default", true).Error
}

func ToggleActiveBankAccount(ctx context.Context, id int, isActive bool) (*BankAccount, error) {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account BankAccount
		if err := tx.Where("id = ?", id).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		updates := map[string]interface{}{"IsActive": isActive}
		// A disabled account cannot stay default.
		if !isActive {
			updates["IsDefault"] = false
		}
		return tx.Model(&account).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return GetBankAccount(ctx, id)
}
