package models

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
)

type AccountKind string

const (
	AccountKindCash AccountKind = "cash"
	AccountKindBank AccountKind = "bank"
)

// AccountRef identifies a place money is held: the cash drawer or one bank
// account. Construct via CashAccountRef / BankTransferAccountRef (or
// NewAccountRef from wire input) so a bank reference always carries its
// account id.
type AccountRef struct {
	Kind          AccountKind `json:"kind"`
	BankAccountId int         `json:"bank_account_id,omitempty"`
}

func CashAccountRef() AccountRef {
	return AccountRef{Kind: AccountKindCash}
}

func BankTransferAccountRef(bankAccountId int) AccountRef {
	return AccountRef{Kind: AccountKindBank, BankAccountId: bankAccountId}
}

// NewAccountRef validates the (paymentType, bankAccountId) pair without
// touching storage. bank_transfer requires an account id; cash forbids one.
func NewAccountRef(paymentType PaymentType, bankAccountId int) (AccountRef, error) {
	switch paymentType {
	case PaymentTypeCash:
		if bankAccountId != 0 {
			return AccountRef{}, utils.ErrorInvalidAccountReference
		}
		return CashAccountRef(), nil
	case PaymentTypeBankTransfer:
		if bankAccountId <= 0 {
			return AccountRef{}, utils.ErrorInvalidAccountReference
		}
		return BankTransferAccountRef(bankAccountId), nil
	default:
		return AccountRef{}, utils.ErrorInvalidAccountReference
	}
}

func (a AccountRef) PaymentType() PaymentType {
	if a.Kind == AccountKindBank {
		return PaymentTypeBankTransfer
	}
	return PaymentTypeCash
}

// Key is the serialization key used for posting locks and lookups.
func (a AccountRef) Key() string {
	if a.Kind == AccountKindBank {
		return fmt.Sprintf("bank:%d", a.BankAccountId)
	}
	return "cash"
}

// ResolveAccount validates the pair and, for bank transfers, checks the
// referenced bank account exists and is active.
func ResolveAccount(ctx context.Context, paymentType PaymentType, bankAccountId int) (AccountRef, error) {
	account, err := NewAccountRef(paymentType, bankAccountId)
	if err != nil {
		return AccountRef{}, err
	}
	if account.Kind == AccountKindBank {
		bankAccount, err := GetBankAccount(ctx, account.BankAccountId)
		if err != nil {
			return AccountRef{}, utils.ErrorInvalidAccountReference
		}
		if bankAccount.IsActive == nil || !*bankAccount.IsActive {
			return AccountRef{}, utils.ErrorAccountInactive
		}
	}
	return account, nil
}
