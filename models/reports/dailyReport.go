package reports

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BankBalance struct {
	BankAccountId int             `json:"bank_account_id"`
	Label         string          `json:"label"`
	Balance       decimal.Decimal `json:"balance"`
}

// BalanceSet is one point-in-time balance position across all accounts.
type BalanceSet struct {
	Cash         decimal.Decimal `json:"cash"`
	BankBalances []BankBalance   `json:"bank_balances"`
	Total        decimal.Decimal `json:"total"`
}

type FlowItem struct {
	SourceId      int                `json:"source_id"`
	Description   string             `json:"description"`
	PaymentType   models.PaymentType `json:"payment_type"`
	BankAccountId int                `json:"bank_account_id"`
	Amount        decimal.Decimal    `json:"amount"`
	PaidAt        time.Time          `json:"paid_at"`
}

type FlowSection struct {
	Total        decimal.Decimal `json:"total"`
	Cash         decimal.Decimal `json:"cash"`
	BankTransfer decimal.Decimal `json:"bank_transfer"`
	Items        []FlowItem      `json:"items"`
}

type AdditionLine struct {
	Mode          models.OpeningBalanceMode `json:"mode"`
	PaymentType   models.PaymentType        `json:"payment_type"`
	BankAccountId int                       `json:"bank_account_id"`
	Amount        decimal.Decimal           `json:"amount"`
	Description   string                    `json:"description"`
	RecordedAt    time.Time                 `json:"recorded_at"`
}

type DailyReportResponse struct {
	Date             time.Time       `json:"date"`
	OpeningBalance   BalanceSet      `json:"opening_balance"`
	OpeningExplicit  bool            `json:"opening_explicit"`
	Additions        []AdditionLine  `json:"additions"`
	EffectiveOpening BalanceSet      `json:"effective_opening"`
	Sales            FlowSection     `json:"sales"`
	Purchases        FlowSection     `json:"purchases"`
	Expenses         FlowSection     `json:"expenses"`
	NetChange        decimal.Decimal `json:"net_change"`
	ClosingBalance   BalanceSet      `json:"closing_balance"`
}

// GetDailyReport reconciles one calendar date: opening position, that date's
// money movements grouped by kind, and the closing position every account
// carries into the next day. All rows are read inside a single DB transaction
// so concurrent postings cannot tear the report.
func GetDailyReport(ctx context.Context, date time.Time) (*DailyReportResponse, error) {
	date = utils.DateOf(date)
	started := time.Now()

	// Closed dates are cacheable; a backdated write deletes this exact key.
	cacheKey := models.DailyReportCacheKey(date)
	cacheable := reportCacheEnabled() && date.Before(utils.DateOf(time.Now()))
	if cacheable {
		var cached DailyReportResponse
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	db := config.GetDB()
	var result *DailyReportResponse
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inputs, err := readDailyReportInputs(tx, date)
		if err != nil {
			return err
		}
		result = assembleDailyReport(date, inputs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		_ = cacheSet(cacheKey, result, reportCacheTTL())
	}
	logSlowReport(ctx, "daily_report", started, map[string]any{"date": date.Format("2006-01-02")})
	return result, nil
}

// dailyReportInputs holds everything the assembly step needs, so the math
// itself stays a pure function over fetched rows.
type dailyReportInputs struct {
	Base       *models.OpeningBalanceSnapshot
	Additions  []*models.BalanceTransaction
	Sales      []models.PaymentLine
	Purchases  []models.PaymentLine
	Expenses   []models.PaymentLine
	BankLabels map[int]string
}

func readDailyReportInputs(tx *gorm.DB, date time.Time) (*dailyReportInputs, error) {
	base, err := models.GetOpeningBalanceTx(tx, date)
	if err != nil {
		return nil, err
	}

	source := models.TransactionSourceOpeningBalanceAddition
	additions, err := models.ListBalanceTransactionsTx(tx, &models.BalanceTransactionFilter{
		Source:   &source,
		FromDate: &date,
		ToDate:   &date,
	})
	if err != nil {
		return nil, err
	}

	sales, err := models.ListPaymentLinesTx(tx, models.TransactionSourceSalePayment, date, date)
	if err != nil {
		return nil, err
	}
	purchases, err := models.ListPaymentLinesTx(tx, models.TransactionSourcePurchasePayment, date, date)
	if err != nil {
		return nil, err
	}
	expenses, err := models.ListPaymentLinesTx(tx, models.TransactionSourceExpensePayment, date, date)
	if err != nil {
		return nil, err
	}

	var banks []models.BankAccount
	if err := tx.Find(&banks).Error; err != nil {
		return nil, err
	}
	labels := make(map[int]string, len(banks))
	for _, b := range banks {
		labels[b.ID] = b.Label
	}

	return &dailyReportInputs{
		Base:       base,
		Additions:  additions,
		Sales:      sales,
		Purchases:  purchases,
		Expenses:   expenses,
		BankLabels: labels,
	}, nil
}

// assembleDailyReport folds the fetched rows into the reconciliation. The
// closing position is effective opening + sales - purchases - expenses per
// account; additions are already inside the effective opening and are never
// counted twice.
func assembleDailyReport(date time.Time, in *dailyReportInputs) *DailyReportResponse {
	effective := models.ApplyAdditionsToSnapshot(in.Base, in.Additions)

	report := &DailyReportResponse{
		Date:             date,
		OpeningBalance:   balanceSetFromSnapshot(in.Base, in.BankLabels),
		OpeningExplicit:  in.Base.IsExplicit,
		Additions:        additionLines(in.Additions),
		EffectiveOpening: balanceSetFromSnapshot(effective, in.BankLabels),
		Sales:            flowSection(in.Sales),
		Purchases:        flowSection(in.Purchases),
		Expenses:         flowSection(in.Expenses),
	}
	report.NetChange = report.Sales.Total.Sub(report.Purchases.Total).Sub(report.Expenses.Total)

	closingCash := effective.Cash
	closingBanks := map[int]decimal.Decimal{}
	for _, b := range effective.BankBalances {
		closingBanks[b.BankAccountId] = b.Balance
	}
	apply := func(lines []models.PaymentLine, sign decimal.Decimal) {
		for _, l := range lines {
			amount := l.Amount.Mul(sign)
			if l.PaymentType == models.PaymentTypeCash {
				closingCash = closingCash.Add(amount)
			} else {
				closingBanks[l.BankAccountId] = closingBanks[l.BankAccountId].Add(amount)
			}
		}
	}
	one := decimal.NewFromInt(1)
	apply(in.Sales, one)
	apply(in.Purchases, one.Neg())
	apply(in.Expenses, one.Neg())
	report.ClosingBalance = balanceSetFromParts(closingCash, closingBanks, in.BankLabels)

	return report
}

func balanceSetFromSnapshot(s *models.OpeningBalanceSnapshot, labels map[int]string) BalanceSet {
	banks := map[int]decimal.Decimal{}
	for _, b := range s.BankBalances {
		banks[b.BankAccountId] = b.Balance
	}
	return balanceSetFromParts(s.Cash, banks, labels)
}

func balanceSetFromParts(cash decimal.Decimal, banks map[int]decimal.Decimal, labels map[int]string) BalanceSet {
	// Every known bank account appears in the set, zero balance included.
	for id := range labels {
		if _, ok := banks[id]; !ok {
			banks[id] = decimal.Zero
		}
	}
	set := BalanceSet{Cash: cash, Total: cash}
	for id, balance := range banks {
		set.BankBalances = append(set.BankBalances, BankBalance{
			BankAccountId: id,
			Label:         labels[id],
			Balance:       balance,
		})
		set.Total = set.Total.Add(balance)
	}
	sort.Slice(set.BankBalances, func(i, j int) bool {
		return set.BankBalances[i].BankAccountId < set.BankBalances[j].BankAccountId
	})
	return set
}

func additionLines(txns []*models.BalanceTransaction) []AdditionLine {
	lines := make([]AdditionLine, 0, len(txns))
	for _, t := range txns {
		lines = append(lines, AdditionLine{
			Mode:          t.Mode,
			PaymentType:   t.PaymentType,
			BankAccountId: t.BankAccountId,
			Amount:        t.Amount,
			Description:   t.Description,
			RecordedAt:    t.TransactionDateTime,
		})
	}
	return lines
}

func flowSection(lines []models.PaymentLine) FlowSection {
	section := FlowSection{Items: make([]FlowItem, 0, len(lines))}
	for _, l := range lines {
		section.Items = append(section.Items, FlowItem{
			SourceId:      l.SourceId,
			Description:   l.Description,
			PaymentType:   l.PaymentType,
			BankAccountId: l.BankAccountId,
			Amount:        l.Amount,
			PaidAt:        l.PaidAt,
		})
		section.Total = section.Total.Add(l.Amount)
		if l.PaymentType == models.PaymentTypeCash {
			section.Cash = section.Cash.Add(l.Amount)
		} else {
			section.BankTransfer = section.BankTransfer.Add(l.Amount)
		}
	}
	return section
}
