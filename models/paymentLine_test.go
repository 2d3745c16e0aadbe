package models

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
)

func TestValidatePaymentLines(t *testing.T) {
	accounts, err := validatePaymentLines([]NewPaymentLine{
		{PaymentType: PaymentTypeCash, Amount: dec("100")},
		{PaymentType: PaymentTypeBankTransfer, BankAccountId: 2, Amount: dec("50")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0] != CashAccountRef() || accounts[1] != BankTransferAccountRef(2) {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
}

func TestValidatePaymentLines_Empty(t *testing.T) {
	if _, err := validatePaymentLines(nil); err == nil {
		t.Fatalf("expected error for empty payment lines")
	}
}

func TestValidatePaymentLines_NonPositiveAmount(t *testing.T) {
	_, err := validatePaymentLines([]NewPaymentLine{
		{PaymentType: PaymentTypeCash, Amount: dec("0")},
	})
	if err == nil {
		t.Fatalf("expected error for zero amount")
	}
	_, err = validatePaymentLines([]NewPaymentLine{
		{PaymentType: PaymentTypeCash, Amount: dec("-10")},
	})
	if err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestValidatePaymentLines_BadAccount(t *testing.T) {
	_, err := validatePaymentLines([]NewPaymentLine{
		{PaymentType: PaymentTypeBankTransfer, Amount: dec("10")},
	})
	if !errors.Is(err, utils.ErrorInvalidAccountReference) {
		t.Fatalf("expected ErrorInvalidAccountReference, got %v", err)
	}
}

func TestPaymentTimestamp_Backdated(t *testing.T) {
	past := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	got := paymentTimestamp(past)
	if !got.Equal(past) {
		t.Fatalf("backdated record should keep its own date, got %v", got)
	}
}

func TestPaymentTimestamp_SameDay(t *testing.T) {
	now := time.Now().UTC()
	got := paymentTimestamp(now)
	if !utils.DateOf(got).Equal(utils.DateOf(now)) {
		t.Fatalf("same-day record moved to another date: %v", got)
	}
	if got.Before(now.Add(-time.Minute)) {
		t.Fatalf("same-day record should use the wall clock, got %v", got)
	}
}
