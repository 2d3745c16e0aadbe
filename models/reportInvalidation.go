package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
)

// Report caching only covers closed (past) dates, so a backdated write must
// drop the cached reports that read the mutated day. Daily report keys are
// addressable per date and get deleted directly; range keys embed arbitrary
// from/to pairs and cannot be enumerated, so those carry an epoch counter that
// a backdated write bumps, orphaning every older range entry until its TTL.

const rangeReportEpochKey = "report:range:epoch"

func DailyReportCacheKey(date time.Time) string {
	return fmt.Sprintf("report:daily:%s", date.Format("2006-01-02"))
}

func RangeReportCacheKey(epoch int64, fromDate time.Time, toDate time.Time) string {
	return fmt.Sprintf("report:range:v%d:%s:%s", epoch, fromDate.Format("2006-01-02"), toDate.Format("2006-01-02"))
}

func RangeReportEpoch() int64 {
	return config.GetRedisInt64(rangeReportEpochKey)
}

// reportDateIsClosed reports whether occurredAt falls on a calendar date
// before now's. Today is never cached, so same-day writes have nothing to drop.
func reportDateIsClosed(occurredAt time.Time, now time.Time) bool {
	return utils.DateOf(occurredAt).Before(utils.DateOf(now))
}

// invalidateReportCaches drops cached reports covering the written date.
// Best effort; a failed delete only means a stale entry lives out its TTL.
func invalidateReportCaches(occurredAt time.Time) {
	if !reportDateIsClosed(occurredAt, time.Now().UTC()) {
		return
	}
	if err := config.RemoveRedisKey(DailyReportCacheKey(occurredAt)); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateReportCaches", "remove daily report key", nil, err)
	}
	if err := config.IncrRedisKey(rangeReportEpochKey); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateReportCaches", "bump range report epoch", nil, err)
	}
}
