package reports

import (
	"reflect"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cashLine(source models.TransactionSource, sourceId int, amount string, at time.Time) models.PaymentLine {
	return models.PaymentLine{
		Source:      source,
		SourceId:    sourceId,
		PaymentType: models.PaymentTypeCash,
		Amount:      dec(amount),
		PaidAt:      at,
	}
}

func TestAssembleDailyReport_Reconciliation(t *testing.T) {
	date := day(2026, 8, 20)
	in := &dailyReportInputs{
		Base: &models.OpeningBalanceSnapshot{
			Date:       date,
			Cash:       dec("1000"),
			IsExplicit: true,
		},
		Sales: []models.PaymentLine{
			cashLine(models.TransactionSourceSalePayment, 1, "500", date.Add(10*time.Hour)),
		},
		Expenses: []models.PaymentLine{
			cashLine(models.TransactionSourceExpensePayment, 1, "200", date.Add(14*time.Hour)),
		},
	}

	report := assembleDailyReport(date, in)

	if !report.OpeningBalance.Cash.Equal(dec("1000")) {
		t.Fatalf("expected opening 1000, got %s", report.OpeningBalance.Cash)
	}
	if !report.Sales.Total.Equal(dec("500")) || !report.Expenses.Total.Equal(dec("200")) {
		t.Fatalf("unexpected flow totals: sales %s expenses %s", report.Sales.Total, report.Expenses.Total)
	}
	if !report.NetChange.Equal(dec("300")) {
		t.Fatalf("expected net change 300, got %s", report.NetChange)
	}
	if !report.ClosingBalance.Cash.Equal(dec("1300")) {
		t.Fatalf("expected closing 1300, got %s", report.ClosingBalance.Cash)
	}
}

func TestFlowSection_PaymentTypeSubtotals(t *testing.T) {
	date := day(2026, 8, 20)
	section := flowSection([]models.PaymentLine{
		cashLine(models.TransactionSourceSalePayment, 1, "300", date.Add(9*time.Hour)),
		{Source: models.TransactionSourceSalePayment, SourceId: 2, PaymentType: models.PaymentTypeBankTransfer, BankAccountId: 1, Amount: dec("450"), PaidAt: date.Add(10 * time.Hour)},
		cashLine(models.TransactionSourceSalePayment, 3, "50", date.Add(11*time.Hour)),
	})

	if !section.Cash.Equal(dec("350")) {
		t.Fatalf("expected cash subtotal 350, got %s", section.Cash)
	}
	if !section.BankTransfer.Equal(dec("450")) {
		t.Fatalf("expected bank transfer subtotal 450, got %s", section.BankTransfer)
	}
	if !section.Total.Equal(section.Cash.Add(section.BankTransfer)) {
		t.Fatalf("subtotals must sum to the section total")
	}
}

func TestAssembleDailyReport_ZeroActivityPassThrough(t *testing.T) {
	date := day(2026, 8, 21)
	in := &dailyReportInputs{
		Base: &models.OpeningBalanceSnapshot{
			Date: date,
			Cash: dec("1300"),
			BankBalances: []models.BankBalanceAmount{
				{BankAccountId: 1, Balance: dec("700")},
			},
		},
	}

	report := assembleDailyReport(date, in)

	if !report.NetChange.IsZero() {
		t.Fatalf("expected zero net change, got %s", report.NetChange)
	}
	if !report.ClosingBalance.Cash.Equal(report.OpeningBalance.Cash) {
		t.Fatalf("closing cash %s should equal opening %s", report.ClosingBalance.Cash, report.OpeningBalance.Cash)
	}
	if !reflect.DeepEqual(report.ClosingBalance, report.OpeningBalance) {
		t.Fatalf("zero-activity day should carry its opening through unchanged")
	}
}

func TestAssembleDailyReport_AdditionsNotDoubleCounted(t *testing.T) {
	// Base opening 1500, a "set" to 2000 recorded as a +500 ledger movement.
	// Effective opening is 2000; closing only adds the day's flows on top.
	date := day(2026, 8, 22)
	in := &dailyReportInputs{
		Base: &models.OpeningBalanceSnapshot{
			Date:       date,
			Cash:       dec("1500"),
			IsExplicit: true,
		},
		Additions: []*models.BalanceTransaction{
			{
				Source:        models.TransactionSourceOpeningBalanceAddition,
				PaymentType:   models.PaymentTypeCash,
				Amount:        dec("500"),
				BeforeBalance: dec("1500"),
				AfterBalance:  dec("2000"),
				Mode:          models.OpeningBalanceModeSet,
			},
		},
		Sales: []models.PaymentLine{
			cashLine(models.TransactionSourceSalePayment, 9, "100", date.Add(9*time.Hour)),
		},
	}

	report := assembleDailyReport(date, in)

	if !report.EffectiveOpening.Cash.Equal(dec("2000")) {
		t.Fatalf("expected effective opening 2000, got %s", report.EffectiveOpening.Cash)
	}
	if !report.ClosingBalance.Cash.Equal(dec("2100")) {
		t.Fatalf("expected closing 2100, got %s", report.ClosingBalance.Cash)
	}
}

func TestAssembleDailyReport_PerAccountClosing(t *testing.T) {
	date := day(2026, 8, 23)
	in := &dailyReportInputs{
		Base: &models.OpeningBalanceSnapshot{
			Date: date,
			Cash: dec("100"),
			BankBalances: []models.BankBalanceAmount{
				{BankAccountId: 1, Balance: dec("1000")},
			},
		},
		Sales: []models.PaymentLine{
			{Source: models.TransactionSourceSalePayment, SourceId: 1, PaymentType: models.PaymentTypeBankTransfer, BankAccountId: 1, Amount: dec("400"), PaidAt: date.Add(8 * time.Hour)},
		},
		Purchases: []models.PaymentLine{
			cashLine(models.TransactionSourcePurchasePayment, 2, "30", date.Add(11*time.Hour)),
		},
		BankLabels: map[int]string{1: "Main"},
	}

	report := assembleDailyReport(date, in)

	if !report.ClosingBalance.Cash.Equal(dec("70")) {
		t.Fatalf("expected closing cash 70, got %s", report.ClosingBalance.Cash)
	}
	if len(report.ClosingBalance.BankBalances) != 1 {
		t.Fatalf("expected one bank balance, got %d", len(report.ClosingBalance.BankBalances))
	}
	bank := report.ClosingBalance.BankBalances[0]
	if bank.BankAccountId != 1 || bank.Label != "Main" || !bank.Balance.Equal(dec("1400")) {
		t.Fatalf("unexpected bank closing: %+v", bank)
	}
	if !report.ClosingBalance.Total.Equal(dec("1470")) {
		t.Fatalf("expected closing total 1470, got %s", report.ClosingBalance.Total)
	}
}

func TestAssembleDailyReport_Deterministic(t *testing.T) {
	date := day(2026, 8, 24)
	build := func() *dailyReportInputs {
		return &dailyReportInputs{
			Base: &models.OpeningBalanceSnapshot{Date: date, Cash: dec("250")},
			Sales: []models.PaymentLine{
				cashLine(models.TransactionSourceSalePayment, 1, "80", date.Add(time.Hour)),
				cashLine(models.TransactionSourceSalePayment, 2, "20", date.Add(2*time.Hour)),
			},
			Expenses: []models.PaymentLine{
				cashLine(models.TransactionSourceExpensePayment, 1, "50", date.Add(3*time.Hour)),
			},
		}
	}

	first := assembleDailyReport(date, build())
	second := assembleDailyReport(date, build())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("report generation must be deterministic over the same rows")
	}
}
