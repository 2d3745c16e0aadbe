package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Expense struct {
	ID            int              `gorm:"primary_key" json:"id"`
	ExpenseNumber string           `gorm:"index;size:255;not null" json:"expense_number" binding:"required"`
	ExpenseDate   time.Time        `gorm:"index;not null" json:"expense_date" binding:"required"`
	Category      string           `gorm:"size:100" json:"category"`
	Notes         string           `gorm:"type:text" json:"notes"`
	TotalAmount   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Payments      []ExpensePayment `gorm:"foreignKey:ExpenseId" json:"payments"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type ExpensePayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ExpenseId     int             `gorm:"index;not null" json:"expense_id"`
	PaymentType   PaymentType     `gorm:"type:enum('cash','bank_transfer');not null" json:"payment_type"`
	BankAccountId int             `gorm:"not null;default:0" json:"bank_account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaidAt        time.Time       `gorm:"index;not null" json:"paid_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (e Expense) GetId() int {
	return e.ID
}

type NewExpense struct {
	ExpenseNumber string           `json:"expense_number" binding:"required"`
	ExpenseDate   time.Time        `json:"expense_date" binding:"required"`
	Category      string           `json:"category"`
	Notes         string           `json:"notes"`
	Payments      []NewPaymentLine `json:"payments" binding:"required,dive"`
}

// RecordExpense persists the expense with its payment rows and posts one
// outflow ledger transaction per payment.
func RecordExpense(ctx context.Context, input *NewExpense) (*Expense, error) {
	accounts, err := validatePaymentLines(input.Payments)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if _, err := ResolveAccount(ctx, account.PaymentType(), account.BankAccountId); err != nil {
			return nil, err
		}
	}

	occurredAt := paymentTimestamp(input.ExpenseDate)
	total := decimal.Zero
	payments := make([]ExpensePayment, 0, len(input.Payments))
	for _, line := range input.Payments {
		total = total.Add(line.Amount)
		payments = append(payments, ExpensePayment{
			PaymentType:   line.PaymentType,
			BankAccountId: line.BankAccountId,
			Amount:        line.Amount,
			PaidAt:        occurredAt,
		})
	}

	expense := Expense{
		ExpenseNumber: input.ExpenseNumber,
		ExpenseDate:   input.ExpenseDate,
		Category:      input.Category,
		Notes:         input.Notes,
		TotalAmount:   total,
		Payments:      payments,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		description := fmt.Sprintf("Expense %s", expense.ExpenseNumber)
		if expense.Category != "" {
			description = fmt.Sprintf("Expense %s (%s)", expense.ExpenseNumber, expense.Category)
		}
		return postPaymentLinesTx(tx, TransactionSourceExpensePayment, expense.ID, description, occurredAt, input.Payments, accounts)
	})
	if err != nil {
		return nil, err
	}
	invalidateReportCaches(occurredAt)
	return &expense, nil
}

func GetExpense(ctx context.Context, id int) (*Expense, error) {
	db := config.GetDB()
	var result Expense
	if err := db.WithContext(ctx).Preload("Payments").Where("id = ?", id).First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
