package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NewPaymentLine is one payment row of a sale/purchase/expense being recorded.
// A business record with several payment rows produces one ledger transaction
// per row, not one per record.
type NewPaymentLine struct {
	PaymentType   PaymentType     `json:"payment_type" binding:"required,paymenttype"`
	BankAccountId int             `json:"bank_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentLine is the read-side projection reports join against.
type PaymentLine struct {
	Source        TransactionSource `json:"source"`
	SourceId      int               `json:"source_id"`
	Description   string            `json:"description"`
	PaymentType   PaymentType       `json:"payment_type"`
	BankAccountId int               `json:"bank_account_id"`
	Amount        decimal.Decimal   `json:"amount"`
	PaidAt        time.Time         `json:"paid_at"`
}

func validatePaymentLines(lines []NewPaymentLine) ([]AccountRef, error) {
	if len(lines) == 0 {
		return nil, errors.New("at least one payment is required")
	}
	accounts := make([]AccountRef, 0, len(lines))
	for _, line := range lines {
		if !line.Amount.IsPositive() {
			return nil, errors.New("payment amount must be positive")
		}
		account, err := NewAccountRef(line.PaymentType, line.BankAccountId)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// paymentTimestamp picks the ledger timestamp for a payment: the wall clock
// for same-day records, the record's own date for backdated ones.
func paymentTimestamp(recordDate time.Time) time.Time {
	now := time.Now().UTC()
	if utils.DateOf(now).Equal(utils.DateOf(recordDate)) {
		return now
	}
	return recordDate
}

// postPaymentLinesTx appends one balance transaction per payment line inside
// the caller's DB transaction. Lines are posted in canonical account-key order
// so concurrent multi-account postings cannot deadlock on advisory locks.
func postPaymentLinesTx(tx *gorm.DB, source TransactionSource, sourceId int, description string, occurredAt time.Time, lines []NewPaymentLine, accounts []AccountRef) error {
	type pending struct {
		account AccountRef
		amount  decimal.Decimal
	}
	posts := make([]pending, 0, len(lines))
	for i, line := range lines {
		amount := line.Amount
		if source == TransactionSourcePurchasePayment || source == TransactionSourceExpensePayment {
			amount = amount.Neg()
		}
		posts = append(posts, pending{account: accounts[i], amount: amount})
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].account.Key() < posts[j].account.Key() })

	for _, p := range posts {
		_, err := recordBalanceTransactionTx(tx, &NewBalanceTransaction{
			Source:              source,
			SourceId:            sourceId,
			Account:             p.account,
			Amount:              p.amount,
			Description:         description,
			TransactionDateTime: occurredAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type paymentLineRow struct {
	SourceId      int
	PaymentType   PaymentType
	BankAccountId int
	Amount        decimal.Decimal
	PaidAt        time.Time
	Number        string
	Party         string
}

// ListPaymentLinesTx returns the per-payment lines of one business record kind
// for an inclusive date range, in creation order within each record.
func ListPaymentLinesTx(tx *gorm.DB, source TransactionSource, fromDate time.Time, toDate time.Time) ([]PaymentLine, error) {
	var sql string
	var label string
	switch source {
	case TransactionSourceSalePayment:
		label = "Sale"
		sql = `
			SELECT sp.sale_id AS source_id, sp.payment_type, sp.bank_account_id,
				sp.amount, sp.paid_at, s.sale_number AS number, s.customer_name AS party
			FROM sale_payments sp
			INNER JOIN sales s ON sp.sale_id = s.id
			WHERE sp.paid_at >= ? AND sp.paid_at < ?
			ORDER BY sp.paid_at, sp.id
		`
	case TransactionSourcePurchasePayment:
		label = "Purchase"
		sql = `
			SELECT pp.purchase_id AS source_id, pp.payment_type, pp.bank_account_id,
				pp.amount, pp.paid_at, p.purchase_number AS number, p.supplier_name AS party
			FROM purchase_payments pp
			INNER JOIN purchases p ON pp.purchase_id = p.id
			WHERE pp.paid_at >= ? AND pp.paid_at < ?
			ORDER BY pp.paid_at, pp.id
		`
	case TransactionSourceExpensePayment:
		label = "Expense"
		sql = `
			SELECT ep.expense_id AS source_id, ep.payment_type, ep.bank_account_id,
				ep.amount, ep.paid_at, e.expense_number AS number, e.category AS party
			FROM expense_payments ep
			INNER JOIN expenses e ON ep.expense_id = e.id
			WHERE ep.paid_at >= ? AND ep.paid_at < ?
			ORDER BY ep.paid_at, ep.id
		`
	default:
		return nil, errors.New("invalid payment line source")
	}

	start, _ := utils.DayBounds(fromDate)
	_, end := utils.DayBounds(toDate)
	var rows []paymentLineRow
	if err := tx.Raw(sql, start, end).Scan(&rows).Error; err != nil {
		return nil, err
	}

	lines := make([]PaymentLine, 0, len(rows))
	for _, r := range rows {
		description := fmt.Sprintf("%s %s", label, r.Number)
		if r.Party != "" {
			description = fmt.Sprintf("%s %s (%s)", label, r.Number, r.Party)
		}
		lines = append(lines, PaymentLine{
			Source:        source,
			SourceId:      r.SourceId,
			Description:   description,
			PaymentType:   r.PaymentType,
			BankAccountId: r.BankAccountId,
			Amount:        r.Amount,
			PaidAt:        r.PaidAt,
		})
	}
	return lines, nil
}
