package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a new WagerStore backed by the given connection pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

// Create inserts a pending wager. The game must exist and be open; the
// FOR SHARE lock makes the insert wait for a settle or cancel in progress
// and then see the game's new status.
func (s *WagerStore) Create(ctx context.Context, w domain.Wager) error {
	amount, err := toInt64(w.Amount, "wager amount")
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO wagers (id, game_id, bettor, amount, bucket, status, placed_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE EXISTS (SELECT 1 FROM games WHERE id = $2 AND status = $8 FOR SHARE)`

	tag, err := s.pool.Exec(ctx, query,
		w.ID, w.GameID, w.Bettor, amount, int16(w.Bucket),
		string(domain.WagerStatusPending), w.PlacedAt, string(domain.GameStatusOpen),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: wager %s: %w", w.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: wager %s on game %s: %w", w.ID, w.GameID, domain.ErrGameNotOpen)
	}
	return nil
}

const wagerSelectCols = `id, game_id, bettor, amount, bucket, status, placed_at`

// GetByID returns a single wager.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.Wager, error) {
	query := `SELECT ` + wagerSelectCols + ` FROM wagers WHERE id = $1`
	w, err := scanWager(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wager{}, fmt.Errorf("postgres: wager %s: %w", id, domain.ErrNotFound)
		}
		return domain.Wager{}, fmt.Errorf("postgres: get wager %s: %w", id, err)
	}
	return w, nil
}

// ListByGame returns every wager on a game in placement order.
func (s *WagerStore) ListByGame(ctx context.Context, gameID string) ([]domain.Wager, error) {
	query := `SELECT ` + wagerSelectCols + ` FROM wagers WHERE game_id = $1 ORDER BY placed_at, id`
	rows, err := s.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers for game %s: %w", gameID, err)
	}
	defer rows.Close()
	return scanWagerRows(rows)
}

// ListByBettor returns a bettor's wagers, newest first.
func (s *WagerStore) ListByBettor(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Wager, error) {
	query, args := buildListQuery(
		`SELECT `+wagerSelectCols+` FROM wagers WHERE bettor = $1`,
		[]any{bettor}, "placed_at", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers for %s: %w", bettor, err)
	}
	defer rows.Close()
	return scanWagerRows(rows)
}

// MarkClaimed moves a won wager to claimed. Claiming twice, or claiming a
// wager that did not win, fails.
func (s *WagerStore) MarkClaimed(ctx context.Context, id string) error {
	const query = `
		UPDATE wagers SET status = $2, claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`
	tag, err := s.pool.Exec(ctx, query, id, string(domain.WagerStatusClaimed), string(domain.WagerStatusWon))
	if err != nil {
		return fmt.Errorf("postgres: claim wager %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	w, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("postgres: wager %s is %s: %w", id, w.Status, domain.ErrInvalidInput)
}

func scanWager(scanner interface{ Scan(dest ...any) error }) (domain.Wager, error) {
	var (
		w      domain.Wager
		amount int64
		bucket int16
		status string
	)
	if err := scanner.Scan(&w.ID, &w.GameID, &w.Bettor, &amount, &bucket, &status, &w.PlacedAt); err != nil {
		return domain.Wager{}, err
	}
	w.Amount = uint64(amount)
	w.Bucket = domain.Bucket(bucket)
	w.Status = domain.WagerStatus(status)
	return w, nil
}

func scanWagerRows(rows pgx.Rows) ([]domain.Wager, error) {
	var wagers []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wager: %w", err)
		}
		wagers = append(wagers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: wager rows: %w", err)
	}
	return wagers, nil
}
