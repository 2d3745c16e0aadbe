package models

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
)

func TestNewAccountRef_Cash(t *testing.T) {
	account, err := NewAccountRef(PaymentTypeCash, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Kind != AccountKindCash {
		t.Fatalf("expected cash kind, got %s", account.Kind)
	}
	if account.Key() != "cash" {
		t.Fatalf("expected key cash, got %s", account.Key())
	}
	if account.PaymentType() != PaymentTypeCash {
		t.Fatalf("expected cash payment type, got %s", account.PaymentType())
	}
}

func TestNewAccountRef_BankTransfer(t *testing.T) {
	account, err := NewAccountRef(PaymentTypeBankTransfer, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Kind != AccountKindBank || account.BankAccountId != 7 {
		t.Fatalf("unexpected account: %+v", account)
	}
	if account.Key() != "bank:7" {
		t.Fatalf("expected key bank:7, got %s", account.Key())
	}
	if account.PaymentType() != PaymentTypeBankTransfer {
		t.Fatalf("expected bank_transfer payment type, got %s", account.PaymentType())
	}
}

func TestNewAccountRef_InvalidCombinations(t *testing.T) {
	cases := []struct {
		name          string
		paymentType   PaymentType
		bankAccountId int
	}{
		{"cash with bank account id", PaymentTypeCash, 3},
		{"bank transfer without account id", PaymentTypeBankTransfer, 0},
		{"bank transfer with negative account id", PaymentTypeBankTransfer, -1},
		{"unknown payment type", PaymentType("cheque"), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAccountRef(tc.paymentType, tc.bankAccountId)
			if !errors.Is(err, utils.ErrorInvalidAccountReference) {
				t.Fatalf("expected ErrorInvalidAccountReference, got %v", err)
			}
		})
	}
}
