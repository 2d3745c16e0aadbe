package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Sale struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SaleNumber   string          `gorm:"index;size:255;not null" json:"sale_number" binding:"required"`
	SaleDate     time.Time       `gorm:"index;not null" json:"sale_date" binding:"required"`
	CustomerName string          `gorm:"size:100" json:"customer_name"`
	Notes        string          `gorm:"type:text" json:"notes"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Payments     []SalePayment   `gorm:"foreignKey:SaleId" json:"payments"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalePayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SaleId        int             `gorm:"index;not null" json:"sale_id"`
	PaymentType   PaymentType     `gorm:"type:enum('cash','bank_transfer');not null" json:"payment_type"`
	BankAccountId int             `gorm:"not null;default:0" json:"bank_account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaidAt        time.Time       `gorm:"index;not null" json:"paid_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (s Sale) GetId() int {
	return s.ID
}

type NewSale struct {
	SaleNumber   string           `json:"sale_number" binding:"required"`
	SaleDate     time.Time        `json:"sale_date" binding:"required"`
	CustomerName string           `json:"customer_name"`
	Notes        string           `json:"notes"`
	Payments     []NewPaymentLine `json:"payments" binding:"required,dive"`
}

// RecordSale persists the sale with its payment rows and posts one inflow
// ledger transaction per payment, all in one DB transaction.
func RecordSale(ctx context.Context, input *NewSale) (*Sale, error) {
	accounts, err := validatePaymentLines(input.Payments)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if _, err := ResolveAccount(ctx, account.PaymentType(), account.BankAccountId); err != nil {
			return nil, err
		}
	}

	occurredAt := paymentTimestamp(input.SaleDate)
	total := decimal.Zero
	payments := make([]SalePayment, 0, len(input.Payments))
	for _, line := range input.Payments {
		total = total.Add(line.Amount)
		payments = append(payments, SalePayment{
			PaymentType:   line.PaymentType,
			BankAccountId: line.BankAccountId,
			Amount:        line.Amount,
			PaidAt:        occurredAt,
		})
	}

	sale := Sale{
		SaleNumber:   input.SaleNumber,
		SaleDate:     input.SaleDate,
		CustomerName: input.CustomerName,
		Notes:        input.Notes,
		TotalAmount:  total,
		Payments:     payments,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sale).Error; err != nil {
			return err
		}
		description := fmt.Sprintf("Sale %s", sale.SaleNumber)
		if sale.CustomerName != "" {
			description = fmt.Sprintf("Sale %s (%s)", sale.SaleNumber, sale.CustomerName)
		}
		return postPaymentLinesTx(tx, TransactionSourceSalePayment, sale.ID, description, occurredAt, input.Payments, accounts)
	})
	if err != nil {
		return nil, err
	}
	invalidateReportCaches(occurredAt)
	return &sale, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	db := config.GetDB()
	var result Sale
	if err := db.WithContext(ctx).Preload("Payments").Where("id = ?", id).First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
