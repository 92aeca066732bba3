package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

var _ domain.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// AppendPoints archives the current price of every outcome of the listing,
// plus any history points the adapter delivered, in a single batch. Replays
// of the same (platform, external_id, outcome, observed_at) tuple are
// ignored so repeated polls stay idempotent.
func (s *HistoryStore) AppendPoints(ctx context.Context, listing domain.MarketListing) error {
	const query = `
		INSERT INTO price_points (platform, external_id, outcome, price, observed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range listing.Outcomes {
		batch.Queue(query,
			string(listing.Platform), listing.ExternalID, o.Name, o.Price, listing.FetchedAt,
		)
		for _, pt := range o.History {
			batch.Queue(query,
				string(listing.Platform), listing.ExternalID, o.Name, pt.Price, pt.Timestamp,
			)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: append price points for %s: %w", listing.Key(), err)
		}
	}
	return nil
}

// Prune deletes archived points observed before olderThan and reports how
// many rows were removed.
func (s *HistoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM price_points WHERE observed_at < $1", olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune price points: %w", err)
	}
	return tag.RowsAffected(), nil
}
