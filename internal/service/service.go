// Package service holds the opportunity engine: ingesting scraped listings,
// pricing products on the resale marketplaces, deriving opportunities, and
// dispatching subscriber alerts.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/platform/ebay"
	"github.com/alanyoungcy/auctionarb/internal/platform/keepa"
)

// EbaySearcher is the eBay lookup collaborator.
type EbaySearcher interface {
	SearchByUPC(ctx context.Context, upc string) ([]ebay.Item, error)
	SearchByKeyword(ctx context.Context, query, categoryID string) ([]ebay.Item, error)
}

// AmazonLookup is the Amazon (Keepa) lookup collaborator.
type AmazonLookup interface {
	LookupByUPC(ctx context.Context, upc string) (keepa.Product, bool, error)
}

// OpsNotifier reports abandoned work to operators.
type OpsNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// withLock runs fn while holding key. When locks is nil fn runs unguarded.
// held is true when another holder owns the lock and fn was skipped.
func withLock(ctx context.Context, locks domain.LockManager, key string, ttl time.Duration, fn func() error) (held bool, err error) {
	if locks == nil {
		return false, fn()
	}
	unlock, err := locks.Acquire(ctx, key, ttl)
	if errors.Is(err, domain.ErrLockHeld) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer unlock()
	return false, fn()
}

func notifyOps(ctx context.Context, ops OpsNotifier, logger *slog.Logger, event, title, message string) {
	if ops == nil {
		return
	}
	if err := ops.Notify(ctx, event, title, message); err != nil {
		logger.WarnContext(ctx, "operator notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
