package reports

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
)

func TestCorrelateTimeline_MatchesSourceRecords(t *testing.T) {
	at := day(2026, 8, 20).Add(9 * time.Hour)
	txns := []*models.BalanceTransaction{
		{
			ID:                  1,
			Source:              models.TransactionSourceSalePayment,
			SourceId:            10,
			PaymentType:         models.PaymentTypeCash,
			Amount:              dec("500"),
			BeforeBalance:       dec("1000"),
			AfterBalance:        dec("1500"),
			TransactionDateTime: at,
		},
	}
	lines := map[models.TransactionSource][]models.PaymentLine{
		models.TransactionSourceSalePayment: {
			{
				Source:      models.TransactionSourceSalePayment,
				SourceId:    10,
				Description: "Sale INV-1 (John)",
				PaymentType: models.PaymentTypeCash,
				Amount:      dec("500"),
				PaidAt:      at,
			},
		},
	}

	entries := correlateTimeline(txns, lines, nil)

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if !e.Matched {
		t.Fatalf("expected matched entry")
	}
	if e.Description != "Sale INV-1 (John)" {
		t.Fatalf("unexpected description: %s", e.Description)
	}
	if !e.BeforeBalance.Equal(dec("1000")) || !e.AfterBalance.Equal(dec("1500")) {
		t.Fatalf("before/after balances must come from the ledger row")
	}
}

func TestCorrelateTimeline_FIFOClaiming(t *testing.T) {
	// One record paid twice from the same account: ledger rows claim the
	// payment lines in order, neither line is claimed twice.
	at := day(2026, 8, 20)
	txns := []*models.BalanceTransaction{
		{ID: 1, Source: models.TransactionSourceSalePayment, SourceId: 5, PaymentType: models.PaymentTypeCash, Amount: dec("100"), TransactionDateTime: at.Add(1 * time.Hour)},
		{ID: 2, Source: models.TransactionSourceSalePayment, SourceId: 5, PaymentType: models.PaymentTypeCash, Amount: dec("200"), TransactionDateTime: at.Add(2 * time.Hour)},
		{ID: 3, Source: models.TransactionSourceSalePayment, SourceId: 5, PaymentType: models.PaymentTypeCash, Amount: dec("300"), TransactionDateTime: at.Add(3 * time.Hour)},
	}
	lines := map[models.TransactionSource][]models.PaymentLine{
		models.TransactionSourceSalePayment: {
			{Source: models.TransactionSourceSalePayment, SourceId: 5, Description: "Sale INV-5", PaymentType: models.PaymentTypeCash, Amount: dec("100"), PaidAt: at.Add(1 * time.Hour)},
			{Source: models.TransactionSourceSalePayment, SourceId: 5, Description: "Sale INV-5", PaymentType: models.PaymentTypeCash, Amount: dec("200"), PaidAt: at.Add(2 * time.Hour)},
		},
	}

	entries := correlateTimeline(txns, lines, nil)

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].Matched || !entries[1].Matched {
		t.Fatalf("first two rows should claim the two payment lines")
	}
	if entries[2].Matched {
		t.Fatalf("third row has no line left to claim")
	}
}

func TestCorrelateTimeline_UnmatchedDegradesGracefully(t *testing.T) {
	// A ledger row whose source record is gone still renders, flagged and
	// labeled from the ledger's own fields.
	txns := []*models.BalanceTransaction{
		{
			ID:                  7,
			Source:              models.TransactionSourcePurchasePayment,
			SourceId:            42,
			PaymentType:         models.PaymentTypeCash,
			Amount:              dec("-80"),
			TransactionDateTime: day(2026, 8, 20).Add(time.Hour),
		},
	}

	entries := correlateTimeline(txns, nil, nil)

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Matched {
		t.Fatalf("expected unmatched entry")
	}
	if !strings.Contains(e.Description, "Purchase #42") {
		t.Fatalf("unexpected fallback description: %s", e.Description)
	}
}

func TestCorrelateTimeline_UnmatchedKeepsLedgerDescription(t *testing.T) {
	txns := []*models.BalanceTransaction{
		{
			ID:          8,
			Source:      models.TransactionSourceExpensePayment,
			SourceId:    3,
			PaymentType: models.PaymentTypeCash,
			Amount:      dec("-25"),
			Description: "Expense EXP-3 (Utilities)",
		},
	}

	entries := correlateTimeline(txns, nil, nil)
	if entries[0].Matched {
		t.Fatalf("expected unmatched entry")
	}
	if entries[0].Description != "Expense EXP-3 (Utilities)" {
		t.Fatalf("ledger description should survive, got %s", entries[0].Description)
	}
}

func TestCorrelateTimeline_OpeningAdditionsSelfDescribe(t *testing.T) {
	txns := []*models.BalanceTransaction{
		{
			ID:          9,
			Source:      models.TransactionSourceOpeningBalanceAddition,
			SourceId:    1,
			PaymentType: models.PaymentTypeCash,
			Amount:      dec("500"),
			Mode:        models.OpeningBalanceModeSet,
			Description: "Opening balance correction",
		},
		{
			ID:          10,
			Source:      models.TransactionSourceOpeningBalanceAddition,
			SourceId:    1,
			PaymentType: models.PaymentTypeCash,
			Amount:      dec("100"),
			Mode:        models.OpeningBalanceModeAdd,
		},
	}

	entries := correlateTimeline(txns, nil, nil)

	if !entries[0].Matched || !entries[1].Matched {
		t.Fatalf("opening balance rows are their own record and always match")
	}
	if entries[0].Description != "Opening balance correction" {
		t.Fatalf("unexpected description: %s", entries[0].Description)
	}
	if entries[1].Description != "Opening balance adjustment" {
		t.Fatalf("expected default label for blank description, got %s", entries[1].Description)
	}
}

func TestCorrelateTimeline_ClassifiesAndLabels(t *testing.T) {
	at := day(2026, 8, 20)
	txns := []*models.BalanceTransaction{
		{ID: 1, Source: models.TransactionSourceSalePayment, SourceId: 1, PaymentType: models.PaymentTypeBankTransfer, BankAccountId: 2, Amount: dec("400"), TransactionDateTime: at.Add(1 * time.Hour)},
		{ID: 2, Source: models.TransactionSourceExpensePayment, SourceId: 1, PaymentType: models.PaymentTypeCash, Amount: dec("-75"), TransactionDateTime: at.Add(2 * time.Hour)},
	}
	labels := map[int]string{2: "KBZ Main"}

	entries := correlateTimeline(txns, nil, labels)

	if entries[0].Type != "income" {
		t.Fatalf("inflow should classify as income, got %s", entries[0].Type)
	}
	if entries[0].BankLabel != "KBZ Main" {
		t.Fatalf("expected bank label, got %q", entries[0].BankLabel)
	}
	if entries[1].Type != "expense" {
		t.Fatalf("outflow should classify as expense, got %s", entries[1].Type)
	}
	if entries[1].BankLabel != "" {
		t.Fatalf("cash entries carry no bank label, got %q", entries[1].BankLabel)
	}
}

func TestGetTransactionTimeline_RejectsInvertedRange(t *testing.T) {
	_, err := GetTransactionTimeline(context.Background(), day(2026, 8, 20), day(2026, 8, 10))
	if !errors.Is(err, utils.ErrorInvalidDateRange) {
		t.Fatalf("expected ErrorInvalidDateRange, got %v", err)
	}
}

func TestCorrelateTimeline_PreservesOrder(t *testing.T) {
	at := day(2026, 8, 20)
	txns := []*models.BalanceTransaction{
		{ID: 1, Source: models.TransactionSourceSalePayment, SourceId: 1, PaymentType: models.PaymentTypeCash, Amount: dec("10"), TransactionDateTime: at.Add(1 * time.Hour)},
		{ID: 2, Source: models.TransactionSourceExpensePayment, SourceId: 1, PaymentType: models.PaymentTypeCash, Amount: dec("-5"), TransactionDateTime: at.Add(2 * time.Hour)},
		{ID: 3, Source: models.TransactionSourceSalePayment, SourceId: 2, PaymentType: models.PaymentTypeCash, Amount: dec("20"), TransactionDateTime: at.Add(3 * time.Hour)},
	}

	entries := correlateTimeline(txns, nil, nil)

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []int{1, 2, 3} {
		if entries[i].TransactionId != want {
			t.Fatalf("entry %d: expected transaction %d, got %d", i, want, entries[i].TransactionId)
		}
	}
}
