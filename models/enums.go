package models

type PaymentType string

const (
	PaymentTypeCash         PaymentType = "cash"
	PaymentTypeBankTransfer PaymentType = "bank_transfer"
)

func (p PaymentType) IsValid() bool {
	return p == PaymentTypeCash || p == PaymentTypeBankTransfer
}

type TransactionSource string

const (
	TransactionSourceSalePayment            TransactionSource = "sale_payment"
	TransactionSourcePurchasePayment        TransactionSource = "purchase_payment"
	TransactionSourceExpensePayment         TransactionSource = "expense_payment"
	TransactionSourceOpeningBalanceAddition TransactionSource = "opening_balance_addition"
)

// OpeningBalanceMode distinguishes an addition (modeled income) from a set
// (balance correction, may jump discontinuously).
type OpeningBalanceMode string

const (
	OpeningBalanceModeAdd OpeningBalanceMode = "add"
	OpeningBalanceModeSet OpeningBalanceMode = "set"
)

func (m OpeningBalanceMode) IsValid() bool {
	return m == OpeningBalanceModeAdd || m == OpeningBalanceModeSet
}
