package cache

import (
	"context"
	"time"

	"glowpos/backend/internal/domain"
)

// ReceiptCache serves repeat transaction lookups (receipt re-prints) without
// hitting the repository. Entries are written after checkout and refreshed
// after a void.
type ReceiptCache interface {
	Get(ctx context.Context, code string) (*domain.Transaction, bool, error)
	Set(ctx context.Context, code string, tx *domain.Transaction, ttl time.Duration) error
}

type NoopReceiptCache struct{}

func (NoopReceiptCache) Get(_ context.Context, _ string) (*domain.Transaction, bool, error) {
	return nil, false, nil
}

func (NoopReceiptCache) Set(_ context.Context, _ string, _ *domain.Transaction, _ time.Duration) error {
	return nil
}
