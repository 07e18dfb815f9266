package cache

import (
	"context"
	"time"
)

// Keys for the analytics reports derived from the sale collection.
const (
	KeyDailyReport   = "snackkit:analytics:daily"
	KeyMonthlyReport = "snackkit:analytics:monthly"
	KeySummary       = "snackkit:analytics:summary"
)

// ReportKeys lists every key a new sale makes stale.
var ReportKeys = []string{KeyDailyReport, KeyMonthlyReport, KeySummary}

// ReportCache stores JSON-encoded analytics reports. A miss is (false, nil).
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
