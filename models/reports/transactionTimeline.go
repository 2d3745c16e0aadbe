package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TimelineEntry is one ledger movement enriched with its source record's
// details. Matched is false when the source row could not be found; the entry
// still renders from the ledger's own fields.
type TimelineEntry struct {
	TransactionId int                      `json:"transaction_id"`
	OccurredAt    time.Time                `json:"occurred_at"`
	Source        models.TransactionSource `json:"source"`
	SourceId      int                      `json:"source_id"`
	Type          string                   `json:"type"`
	Description   string                   `json:"description"`
	PaymentType   models.PaymentType       `json:"payment_type"`
	BankAccountId int                      `json:"bank_account_id"`
	BankLabel     string                   `json:"bank_label,omitempty"`
	Amount        decimal.Decimal          `json:"amount"`
	BeforeBalance decimal.Decimal          `json:"before_balance"`
	AfterBalance  decimal.Decimal          `json:"after_balance"`
	Matched       bool                     `json:"matched"`
}

// GetTransactionTimeline reconstructs the chronological money movement story
// of an inclusive date range, joining ledger rows back to the business records
// that produced them.
func GetTransactionTimeline(ctx context.Context, fromDate time.Time, toDate time.Time) ([]*TimelineEntry, error) {
	fromDate = utils.DateOf(fromDate)
	toDate = utils.DateOf(toDate)
	if fromDate.After(toDate) {
		return nil, utils.ErrorInvalidDateRange
	}
	started := time.Now()

	db := config.GetDB()
	var txns []*models.BalanceTransaction
	lines := map[models.TransactionSource][]models.PaymentLine{}
	labels := map[int]string{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txns, err = models.ListBalanceTransactionsTx(tx, &models.BalanceTransactionFilter{
			FromDate: &fromDate,
			ToDate:   &toDate,
		})
		if err != nil {
			return err
		}
		for _, source := range []models.TransactionSource{
			models.TransactionSourceSalePayment,
			models.TransactionSourcePurchasePayment,
			models.TransactionSourceExpensePayment,
		} {
			lines[source], err = models.ListPaymentLinesTx(tx, source, fromDate, toDate)
			if err != nil {
				return err
			}
		}
		var banks []models.BankAccount
		if err := tx.Find(&banks).Error; err != nil {
			return err
		}
		for _, b := range banks {
			labels[b.ID] = b.Label
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := correlateTimeline(txns, lines, labels)
	logSlowReport(ctx, "transaction_timeline", started, map[string]any{
		"from": fromDate.Format("2006-01-02"),
		"to":   toDate.Format("2006-01-02"),
		"rows": len(entries),
	})
	return entries, nil
}

type lineKey struct {
	Source        models.TransactionSource
	SourceId      int
	PaymentType   models.PaymentType
	BankAccountId int
}

// correlateTimeline matches ledger rows to payment lines by source reference
// and account, consuming lines first-in-first-out so a record paid twice from
// the same account claims its lines in order. Ledger rows with no surviving
// source record degrade to unmatched entries instead of disappearing. Pure.
func correlateTimeline(txns []*models.BalanceTransaction, lines map[models.TransactionSource][]models.PaymentLine, bankLabels map[int]string) []*TimelineEntry {
	pending := map[lineKey][]models.PaymentLine{}
	for source, sourceLines := range lines {
		for _, l := range sourceLines {
			key := lineKey{Source: source, SourceId: l.SourceId, PaymentType: l.PaymentType, BankAccountId: l.BankAccountId}
			pending[key] = append(pending[key], l)
		}
	}

	entries := make([]*TimelineEntry, 0, len(txns))
	for _, txn := range txns {
		entry := &TimelineEntry{
			TransactionId: txn.ID,
			OccurredAt:    txn.TransactionDateTime,
			Source:        txn.Source,
			SourceId:      txn.SourceId,
			Type:          movementType(txn.Amount),
			Description:   txn.Description,
			PaymentType:   txn.PaymentType,
			BankAccountId: txn.BankAccountId,
			BankLabel:     bankLabels[txn.BankAccountId],
			Amount:        txn.Amount,
			BeforeBalance: txn.BeforeBalance,
			AfterBalance:  txn.AfterBalance,
		}

		if txn.Source == models.TransactionSourceOpeningBalanceAddition {
			// Self-describing; the ledger row is the record.
			entry.Matched = true
			if entry.Description == "" {
				entry.Description = "Opening balance adjustment"
			}
			entries = append(entries, entry)
			continue
		}

		key := lineKey{Source: txn.Source, SourceId: txn.SourceId, PaymentType: txn.PaymentType, BankAccountId: txn.BankAccountId}
		if queue := pending[key]; len(queue) > 0 {
			entry.Description = queue[0].Description
			entry.Matched = true
			pending[key] = queue[1:]
		} else if entry.Description == "" {
			entry.Description = fmt.Sprintf("%s #%d (record unavailable)", sourceLabel(txn.Source), txn.SourceId)
		}
		entries = append(entries, entry)
	}
	return entries
}

// movementType classifies a signed ledger amount for display.
func movementType(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "expense"
	}
	return "income"
}

func sourceLabel(source models.TransactionSource) string {
	switch source {
	case models.TransactionSourceSalePayment:
		return "Sale"
	case models.TransactionSourcePurchasePayment:
		return "Purchase"
	case models.TransactionSourceExpensePayment:
		return "Expense"
	default:
		return "Transaction"
	}
}
