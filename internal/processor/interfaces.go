package processor

import (
	"context"

	"github.com/carwatch/olx-monitor/internal/models"
)

// AdLedger abstracts the seen-ad ledger.
type AdLedger interface {
	IsSeen(ctx context.Context, adID string) (bool, error)
	MarkSeen(ctx context.Context, adID string) error
}

// AdArchive abstracts the accumulation store.
type AdArchive interface {
	Append(ctx context.Context, ad models.AdRecord) error
}

// AdNotifier delivers one batch of new ads per cycle.
type AdNotifier interface {
	Notify(ctx context.Context, ads []models.EnrichedAd) error
}
