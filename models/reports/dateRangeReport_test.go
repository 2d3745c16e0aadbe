package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
)

func buildDay(date time.Time, openingCash string, sales string, purchases string, expenses string) *DailyReportResponse {
	in := &dailyReportInputs{
		Base: &models.OpeningBalanceSnapshot{Date: date, Cash: dec(openingCash)},
	}
	if sales != "0" {
		in.Sales = []models.PaymentLine{cashLine(models.TransactionSourceSalePayment, 1, sales, date.Add(time.Hour))}
	}
	if purchases != "0" {
		in.Purchases = []models.PaymentLine{cashLine(models.TransactionSourcePurchasePayment, 1, purchases, date.Add(2*time.Hour))}
	}
	if expenses != "0" {
		in.Expenses = []models.PaymentLine{cashLine(models.TransactionSourceExpensePayment, 1, expenses, date.Add(3*time.Hour))}
	}
	return assembleDailyReport(date, in)
}

func TestSummarizeRange_TotalsSumBalancesDoNot(t *testing.T) {
	d1 := day(2026, 8, 18)
	d2 := day(2026, 8, 19)
	d3 := day(2026, 8, 20)

	// Openings chain: 1000 -> 1300 -> 1250.
	days := []*DailyReportResponse{
		buildDay(d1, "1000", "500", "0", "200"),
		buildDay(d2, "1300", "0", "50", "0"),
		buildDay(d3, "1250", "100", "0", "0"),
	}

	result := summarizeRange(d1, d3, days)

	if !result.TotalSales.Equal(dec("600")) {
		t.Fatalf("expected total sales 600, got %s", result.TotalSales)
	}
	if !result.TotalPurchases.Equal(dec("50")) {
		t.Fatalf("expected total purchases 50, got %s", result.TotalPurchases)
	}
	if !result.TotalExpenses.Equal(dec("200")) {
		t.Fatalf("expected total expenses 200, got %s", result.TotalExpenses)
	}
	if !result.NetChange.Equal(dec("350")) {
		t.Fatalf("expected net change 350, got %s", result.NetChange)
	}

	// Balances are endpoints, never sums of per-day balances.
	if !result.OpeningBalance.Cash.Equal(dec("1000")) {
		t.Fatalf("range opening must be the first day's opening, got %s", result.OpeningBalance.Cash)
	}
	if !result.ClosingBalance.Cash.Equal(dec("1350")) {
		t.Fatalf("range closing must be the last day's closing, got %s", result.ClosingBalance.Cash)
	}

	// The endpoint identity: opening + net change = closing.
	if !result.OpeningBalance.Cash.Add(result.NetChange).Equal(result.ClosingBalance.Cash) {
		t.Fatalf("opening + net change != closing")
	}
}

func TestSummarizeRange_SingleDayEqualsDailyReport(t *testing.T) {
	d := day(2026, 8, 20)
	daily := buildDay(d, "1000", "500", "0", "200")

	result := summarizeRange(d, d, []*DailyReportResponse{daily})

	if !result.TotalSales.Equal(daily.Sales.Total) {
		t.Fatalf("single-day range sales diverge from the daily report")
	}
	if !result.OpeningBalance.Cash.Equal(daily.OpeningBalance.Cash) {
		t.Fatalf("single-day range opening diverges from the daily report")
	}
	if !result.ClosingBalance.Cash.Equal(daily.ClosingBalance.Cash) {
		t.Fatalf("single-day range closing diverges from the daily report")
	}
}

func TestSummarizeRange_Additivity(t *testing.T) {
	// Totals of [d1..d3] equal totals of [d1..d2] plus totals of [d3..d3].
	d1 := day(2026, 8, 18)
	d2 := day(2026, 8, 19)
	d3 := day(2026, 8, 20)
	r1 := buildDay(d1, "1000", "500", "0", "200")
	r2 := buildDay(d2, "1300", "0", "50", "0")
	r3 := buildDay(d3, "1250", "100", "0", "0")

	whole := summarizeRange(d1, d3, []*DailyReportResponse{r1, r2, r3})
	left := summarizeRange(d1, d2, []*DailyReportResponse{r1, r2})
	right := summarizeRange(d3, d3, []*DailyReportResponse{r3})

	if !whole.TotalSales.Equal(left.TotalSales.Add(right.TotalSales)) {
		t.Fatalf("sales are not additive across a split range")
	}
	if !whole.TotalPurchases.Equal(left.TotalPurchases.Add(right.TotalPurchases)) {
		t.Fatalf("purchases are not additive across a split range")
	}
	if !whole.TotalExpenses.Equal(left.TotalExpenses.Add(right.TotalExpenses)) {
		t.Fatalf("expenses are not additive across a split range")
	}
	// And the endpoints stitch: left closing is right's opening day carry.
	if !whole.ClosingBalance.Cash.Equal(right.ClosingBalance.Cash) {
		t.Fatalf("whole-range closing must equal the last sub-range closing")
	}
}

func TestGetDateRangeReport_RejectsInvertedRange(t *testing.T) {
	// The guard fires before any DB access.
	_, err := GetDateRangeReport(context.Background(), day(2026, 8, 20), day(2026, 8, 10))
	if !errors.Is(err, utils.ErrorInvalidDateRange) {
		t.Fatalf("expected ErrorInvalidDateRange, got %v", err)
	}
}

func TestSummarizeRange_Empty(t *testing.T) {
	d := day(2026, 8, 20)
	result := summarizeRange(d, d, nil)
	if !result.TotalSales.IsZero() || !result.NetChange.IsZero() {
		t.Fatalf("empty range must have zero totals")
	}
}
