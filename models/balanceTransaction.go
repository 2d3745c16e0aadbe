package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceTransaction is one signed movement of money against one account.
// Rows are append-only; the before/after pair makes every movement
// self-describing so balances replay without a global accumulator.
type BalanceTransaction struct {
	ID                  int                `gorm:"primary_key" json:"id"`
	Source              TransactionSource  `gorm:"type:enum('sale_payment','purchase_payment','expense_payment','opening_balance_addition');not null;index:idx_bt_source_ref,priority:1" json:"source"`
	SourceId            int                `gorm:"not null;index:idx_bt_source_ref,priority:2" json:"source_id"`
	PaymentType         PaymentType        `gorm:"type:enum('cash','bank_transfer');not null;index:idx_bt_account_date,priority:1" json:"payment_type"`
	BankAccountId       int                `gorm:"not null;default:0;index:idx_bt_account_date,priority:2" json:"bank_account_id"`
	Amount              decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"amount"`
	BeforeBalance       decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"before_balance"`
	AfterBalance        decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"after_balance"`
	Mode                OpeningBalanceMode `gorm:"size:8;default:''" json:"mode,omitempty"`
	Description         string             `gorm:"size:255" json:"description"`
	TransactionDateTime time.Time          `gorm:"index;not null;index:idx_bt_account_date,priority:3" json:"transaction_date_time"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (t BalanceTransaction) GetId() int {
	return t.ID
}

func (t BalanceTransaction) Account() AccountRef {
	if t.PaymentType == PaymentTypeBankTransfer {
		return BankTransferAccountRef(t.BankAccountId)
	}
	return CashAccountRef()
}

// Ledger immutability guardrails: corrections are new transactions, never edits.

func (t *BalanceTransaction) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: balance_transactions cannot be updated")
}

func (t *BalanceTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: balance_transactions cannot be deleted")
}

type NewBalanceTransaction struct {
	Source              TransactionSource
	SourceId            int
	Account             AccountRef
	Amount              decimal.Decimal
	Mode                OpeningBalanceMode
	Description         string
	TransactionDateTime time.Time
}

// RecordBalanceTransaction appends one movement for one account. The read of
// the current balance and the append happen under the account's posting lock;
// a lock timeout surfaces as ErrorConcurrentBalanceConflict after one retry
// (the retry re-reads the balance, never reuses a stale one).
func RecordBalanceTransaction(ctx context.Context, input *NewBalanceTransaction) (*BalanceTransaction, error) {
	if _, err := ResolveAccount(ctx, input.Account.PaymentType(), input.Account.BankAccountId); err != nil {
		return nil, err
	}

	release, err := utils.AccountLock(ctx, input.Account.Key(), "balanceTransaction.go", "RecordBalanceTransaction")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var result *BalanceTransaction
	for attempt := 0; attempt < 2; attempt++ {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			result, txErr = recordBalanceTransactionTx(tx, input)
			return txErr
		})
		if !errors.Is(err, utils.ErrorConcurrentBalanceConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	invalidateReportCaches(result.TransactionDateTime)
	return result, nil
}

// recordBalanceTransactionTx is the tx-scoped append used by the payment
// recording flows. The caller owns the transaction; the account lock taken
// here lasts until that transaction ends.
func recordBalanceTransactionTx(tx *gorm.DB, input *NewBalanceTransaction) (*BalanceTransaction, error) {
	if input.Amount.IsZero() {
		return nil, errors.New("transaction amount must be non-zero")
	}
	if input.Source != TransactionSourceOpeningBalanceAddition && input.Mode != "" {
		return nil, errors.New("mode is only valid for opening balance additions")
	}

	// Held until the enclosing transaction commits or rolls back.
	if err := AcquireAccountPostingLock(tx, input.Account.Key()); err != nil {
		return nil, err
	}

	occurredAt := input.TransactionDateTime
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	before, err := currentAccountBalanceTx(tx, input.Account, occurredAt)
	if err != nil {
		return nil, err
	}

	txn := BalanceTransaction{
		Source:              input.Source,
		SourceId:            input.SourceId,
		PaymentType:         input.Account.PaymentType(),
		BankAccountId:       input.Account.BankAccountId,
		Amount:              input.Amount,
		BeforeBalance:       before,
		AfterBalance:        before.Add(input.Amount),
		Mode:                input.Mode,
		Description:         input.Description,
		TransactionDateTime: occurredAt,
	}
	if err := tx.Create(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// currentAccountBalanceTx computes the account's running balance: the base of
// the most recent explicit opening balance row at or before the containing
// date, plus every movement appended since that anchor. Equivalent to the
// after_balance of the account's latest transaction, but anchored so explicit
// "set" rows supersede older history.
func currentAccountBalanceTx(tx *gorm.DB, account AccountRef, asOf time.Time) (decimal.Decimal, error) {
	anchorStart, base, hasAnchor, err := accountAnchorTx(tx, account, utils.DateOf(asOf))
	if err != nil {
		return decimal.Zero, err
	}

	dbCtx := tx.Model(&BalanceTransaction{}).
		Where("payment_type = ? AND bank_account_id = ?", account.PaymentType(), account.BankAccountId)
	if hasAnchor {
		dbCtx = dbCtx.Where("transaction_date_time >= ?", anchorStart)
	}
	var total decimal.Decimal
	if err := dbCtx.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return base.Add(total), nil
}

// accountAnchorTx finds the most recent explicit opening balance row at or
// before the given date and returns that account's base value from it.
func accountAnchorTx(tx *gorm.DB, account AccountRef, date time.Time) (time.Time, decimal.Decimal, bool, error) {
	var row OpeningBalance
	err := tx.Where("balance_date <= ?", date).Order("balance_date DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, decimal.Zero, false, nil
		}
		return time.Time{}, decimal.Zero, false, err
	}

	if account.Kind == AccountKindCash {
		return row.BalanceDate, row.CashBalance, true, nil
	}

	var detail OpeningBalanceDetail
	err = tx.Where("opening_balance_id = ? AND bank_account_id = ?", row.ID, account.BankAccountId).
		First(&detail).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return row.BalanceDate, decimal.Zero, true, nil
		}
		return time.Time{}, decimal.Zero, false, err
	}
	return row.BalanceDate, detail.Balance, true, nil
}

type BalanceTransactionFilter struct {
	Source        *TransactionSource
	PaymentType   *PaymentType
	BankAccountId *int
	FromDate      *time.Time // inclusive calendar date
	ToDate        *time.Time // inclusive calendar date
}

func ListBalanceTransactions(ctx context.Context, filter *BalanceTransactionFilter) ([]*BalanceTransaction, error) {
	db := config.GetDB()
	return ListBalanceTransactionsTx(db.WithContext(ctx), filter)
}

// Ordered by transaction time, then insertion order as the tie-break.
func ListBalanceTransactionsTx(tx *gorm.DB, filter *BalanceTransactionFilter) ([]*BalanceTransaction, error) {
	dbCtx := tx.Model(&BalanceTransaction{})
	if filter != nil {
		if filter.Source != nil {
			dbCtx = dbCtx.Where("source = ?", *filter.Source)
		}
		if filter.PaymentType != nil {
			dbCtx = dbCtx.Where("payment_type = ?", *filter.PaymentType)
		}
		if filter.BankAccountId != nil {
			dbCtx = dbCtx.Where("bank_account_id = ?", *filter.BankAccountId)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("transaction_date_time >= ?", utils.DateOf(*filter.FromDate))
		}
		if filter.ToDate != nil {
			_, end := utils.DayBounds(*filter.ToDate)
			dbCtx = dbCtx.Where("transaction_date_time < ?", end)
		}
	}
	var results []*BalanceTransaction
	if err := dbCtx.Order("transaction_date_time, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
