package models

import (
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	driver "github.com/go-sql-driver/mysql"
)

func TestLockConflict_MapsLockErrors(t *testing.T) {
	timeout := &driver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	if got := lockConflict(timeout); !errors.Is(got, utils.ErrorConcurrentBalanceConflict) {
		t.Fatalf("expected conflict for lock wait timeout, got %v", got)
	}
	deadlock := &driver.MySQLError{Number: 1213, Message: "Deadlock found"}
	if got := lockConflict(deadlock); !errors.Is(got, utils.ErrorConcurrentBalanceConflict) {
		t.Fatalf("expected conflict for deadlock, got %v", got)
	}
	wrapped := fmt.Errorf("create: %w", &driver.MySQLError{Number: 1213})
	if got := lockConflict(wrapped); !errors.Is(got, utils.ErrorConcurrentBalanceConflict) {
		t.Fatalf("expected conflict for wrapped deadlock, got %v", got)
	}
}

func TestLockConflict_PassesOtherErrorsThrough(t *testing.T) {
	var dup error = &driver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if got := lockConflict(dup); got != dup {
		t.Fatalf("expected passthrough, got %v", got)
	}
	plain := errors.New("connection refused")
	if got := lockConflict(plain); got != plain {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
