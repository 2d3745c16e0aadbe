package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"github.com/bsm/redislock"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// DateOf truncates a timestamp to its calendar date (midnight UTC).
// The ledger works in UTC day grain; timezone presentation is the caller's job.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBounds returns [start, end) for the calendar date containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := DateOf(t)
	return start, start.AddDate(0, 0, 1)
}

// ParseDateOnly parses a "2006-01-02" string into midnight UTC.
func ParseDateOnly(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return d.UTC(), nil
}

// AccountLock obtains a best-effort cross-instance lock for one ledger account.
// Reliability must not depend on Redis: posting is also serialized via InnoDB
// row locks inside the posting transaction. Release via the returned function.
func AccountLock(ctx context.Context, accountKey string, moduleName string, functionName string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		// Redis absent; the row lock alone carries serialization.
		return func() {}, nil
	}
	logger := config.GetLogger()
	lockKey := fmt.Sprintf("balance:%s", accountKey)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for account", accountKey, err)
		return nil, ErrorConcurrentBalanceConflict
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for account", accountKey, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
