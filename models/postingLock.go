package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	driver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// PostingLock rows exist only to be locked. Serialization rides on InnoDB row
// locks (SELECT ... FOR UPDATE), so a lock is released atomically with the
// COMMIT or ROLLBACK of the transaction that took it. The read of the current
// balance, the append, and the commit form one serialized unit per account.
type PostingLock struct {
	ID        int       `gorm:"primary_key" json:"id"`
	LockKey   string    `gorm:"uniqueIndex;size:191;not null" json:"lock_key"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AcquireAccountPostingLock serializes balance posting per account. The lock
// is scoped to tx and held until that transaction ends.
func AcquireAccountPostingLock(tx *gorm.DB, accountKey string) error {
	return acquireRowLock(tx, fmt.Sprintf("balance:%s", accountKey))
}

// AcquireOpeningBalanceLock serializes explicit opening balance mutation per
// (date, account) pair, with the same transaction-scoped lifetime.
func AcquireOpeningBalanceLock(tx *gorm.DB, date string, accountKey string) error {
	return acquireRowLock(tx, fmt.Sprintf("opening:%s:%s", date, accountKey))
}

func acquireRowLock(tx *gorm.DB, lockName string) error {
	// First writer for a key creates the row; INSERT IGNORE keeps that race benign.
	if err := tx.Exec("INSERT IGNORE INTO posting_locks (lock_key, created_at) VALUES (?, ?)",
		lockName, time.Now().UTC()).Error; err != nil {
		return lockConflict(err)
	}
	var id int
	if err := tx.Raw("SELECT id FROM posting_locks WHERE lock_key = ? FOR UPDATE", lockName).
		Scan(&id).Error; err != nil {
		return lockConflict(err)
	}
	if id == 0 {
		return utils.ErrorConcurrentBalanceConflict
	}
	return nil
}

// lockConflict maps InnoDB lock wait timeout (1205) and deadlock (1213) onto
// the ledger's conflict error so callers can retry.
func lockConflict(err error) error {
	var mysqlErr *driver.MySQLError
	if errors.As(err, &mysqlErr) && (mysqlErr.Number == 1205 || mysqlErr.Number == 1213) {
		return utils.ErrorConcurrentBalanceConflict
	}
	return err
}
