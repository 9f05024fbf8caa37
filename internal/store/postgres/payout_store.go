package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL. Rows are
// written by GameStore.Settle.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// ListByGame returns the settlement records for a game.
func (s *PayoutStore) ListByGame(ctx context.Context, gameID string) ([]domain.PayoutRecord, error) {
	const query = `
		SELECT wager_id, bettor, won, winnings, house_fee_share
		FROM payouts WHERE game_id = $1 ORDER BY wager_id`

	rows, err := s.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts for %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []domain.PayoutRecord
	for rows.Next() {
		var (
			p             domain.PayoutRecord
			winnings, fee int64
		)
		if err := rows.Scan(&p.WagerID, &p.Bettor, &p.Won, &winnings, &fee); err != nil {
			return nil, fmt.Errorf("postgres: scan payout: %w", err)
		}
		p.Winnings = uint64(winnings)
		p.HouseFeeShare = uint64(fee)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: payout rows: %w", err)
	}
	return out, nil
}
