package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Purchase struct {
	ID             int               `gorm:"primary_key" json:"id"`
	PurchaseNumber string            `gorm:"index;size:255;not null" json:"purchase_number" binding:"required"`
	PurchaseDate   time.Time         `gorm:"index;not null" json:"purchase_date" binding:"required"`
	SupplierName   string            `gorm:"size:100" json:"supplier_name"`
	Notes          string            `gorm:"type:text" json:"notes"`
	TotalAmount    decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Payments       []PurchasePayment `gorm:"foreignKey:PurchaseId" json:"payments"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchasePayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PurchaseId    int             `gorm:"index;not null" json:"purchase_id"`
	PaymentType   PaymentType     `gorm:"type:enum('cash','bank_transfer');not null" json:"payment_type"`
	BankAccountId int             `gorm:"not null;default:0" json:"bank_account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaidAt        time.Time       `gorm:"index;not null" json:"paid_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (p Purchase) GetId() int {
	return p.ID
}

type NewPurchase struct {
	PurchaseNumber string           `json:"purchase_number" binding:"required"`
	PurchaseDate   time.Time        `json:"purchase_date" binding:"required"`
	SupplierName   string           `json:"supplier_name"`
	Notes          string           `json:"notes"`
	Payments       []NewPaymentLine `json:"payments" binding:"required,dive"`
}

// RecordPurchase persists the purchase with its payment rows and posts one
// outflow ledger transaction per payment.
func RecordPurchase(ctx context.Context, input *NewPurchase) (*Purchase, error) {
	accounts, err := validatePaymentLines(input.Payments)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if _, err := ResolveAccount(ctx, account.PaymentType(), account.BankAccountId); err != nil {
			return nil, err
		}
	}

	occurredAt := paymentTimestamp(input.PurchaseDate)
	total := decimal.Zero
	payments := make([]PurchasePayment, 0, len(input.Payments))
	for _, line := range input.Payments {
		total = total.Add(line.Amount)
		payments = append(payments, PurchasePayment{
			PaymentType:   line.PaymentType,
			BankAccountId: line.BankAccountId,
			Amount:        line.Amount,
			PaidAt:        occurredAt,
		})
	}

	purchase := Purchase{
		PurchaseNumber: input.PurchaseNumber,
		PurchaseDate:   input.PurchaseDate,
		SupplierName:   input.SupplierName,
		Notes:          input.Notes,
		TotalAmount:    total,
		Payments:       payments,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&purchase).Error; err != nil {
			return err
		}
		description := fmt.Sprintf("Purchase %s", purchase.PurchaseNumber)
		if purchase.SupplierName != "" {
			description = fmt.Sprintf("Purchase %s (%s)", purchase.PurchaseNumber, purchase.SupplierName)
		}
		return postPaymentLinesTx(tx, TransactionSourcePurchasePayment, purchase.ID, description, occurredAt, input.Payments, accounts)
	})
	if err != nil {
		return nil, err
	}
	invalidateReportCaches(occurredAt)
	return &purchase, nil
}

func GetPurchase(ctx context.Context, id int) (*Purchase, error) {
	db := config.GetDB()
	var result Purchase
	if err := db.WithContext(ctx).Preload("Payments").Where("id = ?", id).First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
