package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// GameStore implements domain.GameStore using PostgreSQL.
type GameStore struct {
	pool *pgxpool.Pool
}

// NewGameStore creates a new GameStore backed by the given connection pool.
func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

// Create inserts a new open game.
func (s *GameStore) Create(ctx context.Context, g domain.GameInstance) error {
	const query = `
		INSERT INTO games (id, kind, buckets, fee_bps, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		g.ID, string(g.Kind), g.Buckets, int64(g.FeeBps), string(domain.GameStatusOpen), g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create game %s: %w", g.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create game %s: %w", g.ID, domain.ErrAlreadyExists)
	}
	return nil
}

const gameSelectCols = `id, kind, buckets, fee_bps, status, winning_bucket,
	resolved_at, proof, created_at, cancelled_at`

// GetByID returns a single game.
func (s *GameStore) GetByID(ctx context.Context, id string) (domain.GameInstance, error) {
	query := `SELECT ` + gameSelectCols + ` FROM games WHERE id = $1`
	g, err := scanGame(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GameInstance{}, fmt.Errorf("postgres: game %s: %w", id, domain.ErrNotFound)
		}
		return domain.GameInstance{}, fmt.Errorf("postgres: get game %s: %w", id, err)
	}
	return g, nil
}

// ListByStatus returns games in the given status, newest first.
func (s *GameStore) ListByStatus(ctx context.Context, status domain.GameStatus, opts domain.ListOpts) ([]domain.GameInstance, error) {
	query, args := buildListQuery(
		`SELECT `+gameSelectCols+` FROM games WHERE status = $1`,
		[]any{string(status)}, "created_at", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list games: %w", err)
	}
	defer rows.Close()

	var games []domain.GameInstance
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list games rows: %w", err)
	}
	return games, nil
}

// Settle writes the outcome, the payout rows and the wager statuses in one
// transaction. The game row is locked first so no wager can be inserted
// behind the payouts; the status guard makes a second settlement fail with
// ErrAlreadyResolved instead of paying twice.
func (s *GameStore) Settle(ctx context.Context, out domain.ResolvedOutcome, payouts []domain.PayoutRecord) error {
	proofJSON, err := marshalProof(out.Proof)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settle %s: %w", out.GameID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, len(payouts))
	for i, p := range payouts {
		ids[i] = p.WagerID
	}
	if err := lockOpenGame(ctx, tx, out.GameID, ids); err != nil {
		return err
	}

	const resolve = `
		UPDATE games
		SET status = $2, winning_bucket = $3, resolved_at = $4, proof = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6`
	tag, err := tx.Exec(ctx, resolve,
		out.GameID, string(domain.GameStatusResolved), int16(out.WinningBucket),
		out.ResolvedAt, proofJSON, string(domain.GameStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve game %s: %w", out.GameID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.notOpen(ctx, tx, out.GameID)
	}

	batch := &pgx.Batch{}
	for _, p := range payouts {
		winnings, err := toInt64(p.Winnings, "winnings")
		if err != nil {
			return err
		}
		fee, err := toInt64(p.HouseFeeShare, "house fee share")
		if err != nil {
			return err
		}
		status := domain.WagerStatusLost
		if p.Won {
			status = domain.WagerStatusWon
		}
		batch.Queue(`
			INSERT INTO payouts (wager_id, game_id, bettor, won, winnings, house_fee_share)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			p.WagerID, out.GameID, p.Bettor, p.Won, winnings, fee,
		)
		batch.Queue(`UPDATE wagers SET status = $2, updated_at = NOW() WHERE id = $1 AND game_id = $3`,
			p.WagerID, string(status), out.GameID,
		)
	}
	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("postgres: write payouts %s: %w", out.GameID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settle %s: %w", out.GameID, err)
	}
	return nil
}

// Cancel marks the game cancelled and refunds every wager in one
// transaction, under the same row lock as Settle.
func (s *GameStore) Cancel(ctx context.Context, gameID string, at time.Time, refunds []domain.RefundRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin cancel %s: %w", gameID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, len(refunds))
	for i, r := range refunds {
		ids[i] = r.WagerID
	}
	if err := lockOpenGame(ctx, tx, gameID, ids); err != nil {
		return err
	}

	const cancel = `
		UPDATE games SET status = $2, cancelled_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`
	tag, err := tx.Exec(ctx, cancel,
		gameID, string(domain.GameStatusCancelled), at, string(domain.GameStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel game %s: %w", gameID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.notOpen(ctx, tx, gameID)
	}

	batch := &pgx.Batch{}
	for _, r := range refunds {
		amount, err := toInt64(r.Amount, "refund")
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO refunds (wager_id, game_id, bettor, amount) VALUES ($1, $2, $3, $4)`,
			r.WagerID, gameID, r.Bettor, amount,
		)
		batch.Queue(`UPDATE wagers SET status = $2, updated_at = NOW() WHERE id = $1 AND game_id = $3`,
			r.WagerID, string(domain.WagerStatusRefunded), gameID,
		)
	}
	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("postgres: write refunds %s: %w", gameID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit cancel %s: %w", gameID, err)
	}
	return nil
}

// lockOpenGame takes the game row FOR UPDATE, which waits out any wager
// insert holding it FOR SHARE, then checks that ids are exactly the game's
// unrefunded wagers.
func lockOpenGame(ctx context.Context, tx pgx.Tx, gameID string, ids []string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM games WHERE id = $1 FOR UPDATE`, gameID).Scan(&status)
	if err != nil || domain.GameStatus(status) != domain.GameStatusOpen {
		return gameNotOpen(gameID, status, err)
	}

	rows, err := tx.Query(ctx, `SELECT id FROM wagers WHERE game_id = $1 AND status <> $2`,
		gameID, string(domain.WagerStatusRefunded))
	if err != nil {
		return fmt.Errorf("postgres: list live wagers %s: %w", gameID, err)
	}
	live, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("postgres: list live wagers %s: %w", gameID, err)
	}
	if !sameIDs(live, ids) {
		return fmt.Errorf("postgres: game %s has %d live wager(s), got %d record(s): %w",
			gameID, len(live), len(ids), domain.ErrWagersChanged)
	}
	return nil
}

// sameIDs reports whether a and b hold the same set of distinct ids.
func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}

// notOpen explains why a guarded status update matched no rows.
func (s *GameStore) notOpen(ctx context.Context, tx pgx.Tx, gameID string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM games WHERE id = $1`, gameID).Scan(&status)
	return gameNotOpen(gameID, status, err)
}

func gameNotOpen(gameID, status string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("postgres: game %s: %w", gameID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("postgres: read game status %s: %w", gameID, err)
	case domain.GameStatus(status) == domain.GameStatusResolved:
		return fmt.Errorf("postgres: game %s: %w", gameID, domain.ErrAlreadyResolved)
	default:
		return fmt.Errorf("postgres: game %s is %s: %w", gameID, status, domain.ErrGameNotOpen)
	}
}

func scanGame(scanner interface{ Scan(dest ...any) error }) (domain.GameInstance, error) {
	var (
		g          domain.GameInstance
		kind       string
		status     string
		feeBps     int64
		bucket     *int16
		resolvedAt *time.Time
		proofJSON  []byte
	)
	err := scanner.Scan(
		&g.ID, &kind, &g.Buckets, &feeBps, &status, &bucket,
		&resolvedAt, &proofJSON, &g.CreatedAt, &g.CancelledAt,
	)
	if err != nil {
		return domain.GameInstance{}, err
	}
	g.Kind = domain.GameKind(kind)
	g.Status = domain.GameStatus(status)
	g.FeeBps = uint32(feeBps)

	if bucket != nil && resolvedAt != nil {
		out := &domain.ResolvedOutcome{
			GameID:        g.ID,
			WinningBucket: domain.Bucket(*bucket),
			ResolvedAt:    *resolvedAt,
		}
		if len(proofJSON) > 0 && string(proofJSON) != "null" {
			out.Proof = new(domain.Proof)
			if err := json.Unmarshal(proofJSON, out.Proof); err != nil {
				return domain.GameInstance{}, fmt.Errorf("unmarshal proof: %w", err)
			}
		}
		g.Outcome = out
	}
	return g, nil
}

func marshalProof(p *domain.Proof) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal proof: %w", err)
	}
	return data, nil
}

// sendBatch runs every queued statement and fails on the first error.
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return fmt.Errorf("statement %d matched no rows: %w", i, domain.ErrNotFound)
		}
	}
	return br.Close()
}

// toInt64 narrows an amount for a BIGINT column.
func toInt64(v uint64, field string) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("postgres: %s %d: %w", field, v, domain.ErrOverflow)
	}
	return int64(v), nil
}

// buildListQuery appends time filters, ordering and pagination to base.
func buildListQuery(base string, args []any, timeCol string, opts domain.ListOpts) (string, []any) {
	query := base
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", timeCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY %s DESC", timeCol)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
