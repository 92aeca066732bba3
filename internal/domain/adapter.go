package domain

import (
	"context"
	"time"
)

// ProviderAdapter fetches raw listings from one upstream platform and maps
// them to the common MarketListing shape. Implementations must skip
// individual malformed records (counting them in FetchResult.Skipped) and
// return an error only for transport or auth failures affecting the whole
// call.
type ProviderAdapter interface {
	Platform() Platform
	FetchListings(ctx context.Context) (FetchResult, error)
}

// FetchResult is one adapter fetch outcome. Skipped counts records dropped
// as malformed before normalization.
type FetchResult struct {
	Platform  Platform
	Listings  []MarketListing
	Skipped   int
	FetchedAt time.Time
}

// SnapshotStore persists the last-good unified view so reads can be served
// when every upstream platform is offline and so the cache can be warmed
// after a restart.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, category string, markets []UnifiedMarket) error
	LoadSnapshot(ctx context.Context, category string) ([]UnifiedMarket, time.Time, error)
	Categories(ctx context.Context) ([]string, error)
}

// HistoryStore archives outcome price points and enforces the retention
// horizon.
type HistoryStore interface {
	AppendPoints(ctx context.Context, listing MarketListing) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SnapshotExporter writes periodic full exports of the unified view to
// blob storage for offline analysis.
type SnapshotExporter interface {
	Export(ctx context.Context, markets []UnifiedMarket, at time.Time) error
}
