package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OpeningBalance stores the BASE opening balance of one calendar date: the
// carried-forward value at the moment the row was materialized by an explicit
// user action. Additions and corrections for the date live in the ledger as
// opening_balance_addition transactions; the effective opening a user sees is
// base + that date's additions. Keeping the base separate is what keeps the
// daily closing formula free of double counting.
type OpeningBalance struct {
	ID          int                    `gorm:"primary_key" json:"id"`
	BalanceDate time.Time              `gorm:"uniqueIndex;not null" json:"balance_date" binding:"required"`
	CashBalance decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"cash_balance"`
	Details     []OpeningBalanceDetail `gorm:"foreignKey:OpeningBalanceId" json:"details"`
	Notes       string                 `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

type OpeningBalanceDetail struct {
	ID               int             `gorm:"primary_key" json:"id"`
	OpeningBalanceId int             `gorm:"index;not null" json:"opening_balance_id"`
	BankAccountId    int             `gorm:"not null" json:"bank_account_id"`
	Balance          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
}

func (ob OpeningBalance) GetId() int {
	return ob.ID
}

type BankBalanceAmount struct {
	BankAccountId int             `json:"bank_account_id"`
	Balance       decimal.Decimal `json:"balance"`
}

// OpeningBalanceSnapshot is the resolved opening state of one date, either
// read from an explicit row or derived from the prior day's closing.
type OpeningBalanceSnapshot struct {
	Date         time.Time           `json:"date"`
	Cash         decimal.Decimal     `json:"cash"`
	BankBalances []BankBalanceAmount `json:"bank_balances"`
	Notes        string              `json:"notes,omitempty"`
	IsExplicit   bool                `json:"is_explicit"`
}

func (s *OpeningBalanceSnapshot) BalanceFor(account AccountRef) decimal.Decimal {
	if account.Kind == AccountKindCash {
		return s.Cash
	}
	for _, b := range s.BankBalances {
		if b.BankAccountId == account.BankAccountId {
			return b.Balance
		}
	}
	return decimal.Zero
}

// ApplyAdditionsToSnapshot returns a copy of base with the given addition
// transactions folded in. Pure; the base is not modified.
func ApplyAdditionsToSnapshot(base *OpeningBalanceSnapshot, additions []*BalanceTransaction) *OpeningBalanceSnapshot {
	out := &OpeningBalanceSnapshot{
		Date:       base.Date,
		Cash:       base.Cash,
		Notes:      base.Notes,
		IsExplicit: base.IsExplicit,
	}
	banks := map[int]decimal.Decimal{}
	for _, b := range base.BankBalances {
		banks[b.BankAccountId] = b.Balance
	}
	for _, txn := range additions {
		if txn.PaymentType == PaymentTypeCash {
			out.Cash = out.Cash.Add(txn.Amount)
		} else {
			banks[txn.BankAccountId] = banks[txn.BankAccountId].Add(txn.Amount)
		}
	}
	out.BankBalances = sortedBankBalances(banks)
	return out
}

func sortedBankBalances(banks map[int]decimal.Decimal) []BankBalanceAmount {
	out := make([]BankBalanceAmount, 0, len(banks))
	for id, balance := range banks {
		out = append(out, BankBalanceAmount{BankAccountId: id, Balance: balance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BankAccountId < out[j].BankAccountId })
	return out
}

// GetOpeningBalance returns the base opening balance of a date: the explicit
// row when one exists, otherwise the derived carry-forward (prior day's
// closing), all-zero when no prior record of any kind exists.
func GetOpeningBalance(ctx context.Context, date time.Time) (*OpeningBalanceSnapshot, error) {
	db := config.GetDB()
	return GetOpeningBalanceTx(db.WithContext(ctx), date)
}

// GetOpeningBalanceTx derives in two reads instead of day-by-day recursion:
// every balance movement is itself a transaction, so closing(date-1) equals
// the most recent explicit base at/before date-1 plus the signed sum of each
// account's movements from that anchor up to (excluding) date. The live rows
// are re-read on every call; nothing is cached past truth.
func GetOpeningBalanceTx(tx *gorm.DB, date time.Time) (*OpeningBalanceSnapshot, error) {
	date = utils.DateOf(date)

	var row OpeningBalance
	err := tx.Preload("Details").Where("balance_date = ?", date).First(&row).Error
	if err == nil {
		return snapshotFromRow(&row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// No explicit row: anchor at the most recent one before this date.
	var anchor OpeningBalance
	hasAnchor := true
	err = tx.Preload("Details").Where("balance_date < ?", date).
		Order("balance_date DESC").First(&anchor).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		hasAnchor = false
	}

	dbCtx := tx.Model(&BalanceTransaction{}).
		Select("payment_type, bank_account_id, COALESCE(SUM(amount), 0) AS total").
		Where("transaction_date_time < ?", date).
		Group("payment_type, bank_account_id")
	if hasAnchor {
		dbCtx = dbCtx.Where("transaction_date_time >= ?", anchor.BalanceDate)
	}
	var sums []AccountMovementSum
	if err := dbCtx.Scan(&sums).Error; err != nil {
		return nil, err
	}

	var anchorPtr *OpeningBalance
	if hasAnchor {
		anchorPtr = &anchor
	}
	return deriveOpeningSnapshot(date, anchorPtr, sums), nil
}

// AccountMovementSum is one account's signed movement total over a window.
type AccountMovementSum struct {
	PaymentType   PaymentType
	BankAccountId int
	Total         decimal.Decimal
}

// deriveOpeningSnapshot folds an anchor base and per-account movement sums into
// the carried-forward opening of a date. Pure; a nil anchor starts from zero.
func deriveOpeningSnapshot(date time.Time, anchor *OpeningBalance, sums []AccountMovementSum) *OpeningBalanceSnapshot {
	snapshot := &OpeningBalanceSnapshot{Date: date, Cash: decimal.Zero}
	banks := map[int]decimal.Decimal{}
	if anchor != nil {
		snapshot.Cash = anchor.CashBalance
		for _, d := range anchor.Details {
			banks[d.BankAccountId] = d.Balance
		}
	}
	for _, s := range sums {
		if s.PaymentType == PaymentTypeCash {
			snapshot.Cash = snapshot.Cash.Add(s.Total)
		} else {
			banks[s.BankAccountId] = banks[s.BankAccountId].Add(s.Total)
		}
	}
	snapshot.BankBalances = sortedBankBalances(banks)
	return snapshot
}

func snapshotFromRow(row *OpeningBalance) *OpeningBalanceSnapshot {
	banks := map[int]decimal.Decimal{}
	for _, d := range row.Details {
		banks[d.BankAccountId] = d.Balance
	}
	return &OpeningBalanceSnapshot{
		Date:         row.BalanceDate,
		Cash:         row.CashBalance,
		BankBalances: sortedBankBalances(banks),
		Notes:        row.Notes,
		IsExplicit:   true,
	}
}

// GetEffectiveOpeningBalance is the user-facing view: base plus the date's
// recorded additions/corrections.
func GetEffectiveOpeningBalance(ctx context.Context, date time.Time) (*OpeningBalanceSnapshot, error) {
	db := config.GetDB()
	return effectiveOpeningBalanceTx(db.WithContext(ctx), date)
}

func effectiveOpeningBalanceTx(tx *gorm.DB, date time.Time) (*OpeningBalanceSnapshot, error) {
	base, err := GetOpeningBalanceTx(tx, date)
	if err != nil {
		return nil, err
	}
	additions, err := listOpeningAdditionsTx(tx, date, nil)
	if err != nil {
		return nil, err
	}
	return ApplyAdditionsToSnapshot(base, additions), nil
}

func listOpeningAdditionsTx(tx *gorm.DB, date time.Time, account *AccountRef) ([]*BalanceTransaction, error) {
	source := TransactionSourceOpeningBalanceAddition
	filter := &BalanceTransactionFilter{Source: &source, FromDate: &date, ToDate: &date}
	if account != nil {
		pt := account.PaymentType()
		filter.PaymentType = &pt
		filter.BankAccountId = &account.BankAccountId
	}
	return ListBalanceTransactionsTx(tx, filter)
}

type NewOpeningBalanceAddition struct {
	Date          time.Time          `json:"date" binding:"required"`
	PaymentType   PaymentType        `json:"payment_type" binding:"required,paymenttype"`
	BankAccountId int                `json:"bank_account_id"`
	Amount        decimal.Decimal    `json:"amount"`
	Mode          OpeningBalanceMode `json:"mode" binding:"required,balancemode"`
	Description   string             `json:"description"`
	Notes         string             `json:"notes"`
}

// openingAdditionDelta computes the signed ledger movement an explicit action
// produces. "add" is the amount itself; "set" is whatever jump takes the
// effective opening to the requested total.
func openingAdditionDelta(mode OpeningBalanceMode, amount decimal.Decimal, effective decimal.Decimal) decimal.Decimal {
	if mode == OpeningBalanceModeSet {
		return amount.Sub(effective)
	}
	return amount
}

// ApplyOpeningBalanceAddition applies an explicit "add" or "set" to one
// account's opening balance for a date. Serialized per (date, account); the
// movement itself is an auditable ledger transaction. Returns the effective
// opening snapshot after the change.
func ApplyOpeningBalanceAddition(ctx context.Context, input *NewOpeningBalanceAddition) (*OpeningBalanceSnapshot, error) {
	if !input.Mode.IsValid() {
		return nil, errors.New("mode must be add or set")
	}
	if input.Mode == OpeningBalanceModeAdd && !input.Amount.IsPositive() {
		return nil, errors.New("addition amount must be positive")
	}
	account, err := ResolveAccount(ctx, input.PaymentType, input.BankAccountId)
	if err != nil {
		return nil, err
	}
	date := utils.DateOf(input.Date)

	release, err := utils.AccountLock(ctx, account.Key(), "openingBalance.go", "ApplyOpeningBalanceAddition")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var result *OpeningBalanceSnapshot
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Held until this transaction commits or rolls back.
		if err := AcquireOpeningBalanceLock(tx, date.Format("2006-01-02"), account.Key()); err != nil {
			return err
		}

		base, err := GetOpeningBalanceTx(tx, date)
		if err != nil {
			return err
		}
		row, err := materializeOpeningBalanceTx(tx, date, base, input.Notes)
		if err != nil {
			return err
		}

		additions, err := listOpeningAdditionsTx(tx, date, &account)
		if err != nil {
			return err
		}
		effective := base.BalanceFor(account)
		for _, txn := range additions {
			effective = effective.Add(txn.Amount)
		}

		delta := openingAdditionDelta(input.Mode, input.Amount, effective)
		if !delta.IsZero() {
			description := input.Description
			if description == "" {
				if input.Mode == OpeningBalanceModeSet {
					description = "Opening balance correction"
				} else {
					description = "Opening balance addition"
				}
			}
			occurredAt := time.Now().UTC()
			if !utils.DateOf(occurredAt).Equal(date) {
				occurredAt = date
			}
			_, err = recordBalanceTransactionTx(tx, &NewBalanceTransaction{
				Source:              TransactionSourceOpeningBalanceAddition,
				SourceId:            row.ID,
				Account:             account,
				Amount:              delta,
				Mode:                input.Mode,
				Description:         description,
				TransactionDateTime: occurredAt,
			})
			if err != nil {
				return err
			}
		}

		result, err = effectiveOpeningBalanceTx(tx, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	invalidateReportCaches(date)
	return result, nil
}

// materializeOpeningBalanceTx pins the derived base as an explicit row so the
// date becomes an anchor for later derivation. Idempotent per date.
func materializeOpeningBalanceTx(tx *gorm.DB, date time.Time, base *OpeningBalanceSnapshot, notes string) (*OpeningBalance, error) {
	var row OpeningBalance
	err := tx.Where("balance_date = ?", date).First(&row).Error
	if err == nil {
		if notes != "" && notes != row.Notes {
			if err := tx.Model(&row).Update("notes", notes).Error; err != nil {
				return nil, err
			}
		}
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	details := make([]OpeningBalanceDetail, 0, len(base.BankBalances))
	for _, b := range base.BankBalances {
		details = append(details, OpeningBalanceDetail{
			BankAccountId: b.BankAccountId,
			Balance:       b.Balance,
		})
	}
	row = OpeningBalance{
		BalanceDate: date,
		CashBalance: base.Cash,
		Details:     details,
		Notes:       notes,
	}
	if err := tx.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
