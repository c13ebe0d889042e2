package cache

import (
	"context"
	"time"

	"geyim/backend/internal/domain"
)

// DebtSummaryKey holds the all-customers debt summary.
const DebtSummaryKey = "geyim:debt:summary"

type DebtCache interface {
	Get(ctx context.Context, key string) ([]domain.DebtSummary, bool, error)
	Set(ctx context.Context, key string, value []domain.DebtSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopDebtCache struct{}

func (NoopDebtCache) Get(_ context.Context, _ string) ([]domain.DebtSummary, bool, error) {
	return nil, false, nil
}

func (NoopDebtCache) Set(_ context.Context, _ string, _ []domain.DebtSummary, _ time.Duration) error {
	return nil
}

func (NoopDebtCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
