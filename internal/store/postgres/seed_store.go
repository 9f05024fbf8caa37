package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// SeedStore implements domain.SeedStore using PostgreSQL. Server seeds are
// stored exactly as given; callers seal them before saving.
type SeedStore struct {
	pool *pgxpool.Pool
}

// NewSeedStore creates a new SeedStore backed by the given connection pool.
func NewSeedStore(pool *pgxpool.Pool) *SeedStore {
	return &SeedStore{pool: pool}
}

// GetActive returns the bettor's current seed pair.
func (s *SeedStore) GetActive(ctx context.Context, bettor string) (domain.SeedPair, error) {
	const query = `
		SELECT bettor, server_seed, hashed_server_seed, client_seed, nonce, created_at
		FROM seed_pairs WHERE bettor = $1`

	var (
		p     domain.SeedPair
		nonce int64
	)
	err := s.pool.QueryRow(ctx, query, bettor).Scan(
		&p.Bettor, &p.ServerSeed, &p.HashedServerSeed, &p.ClientSeed, &nonce, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SeedPair{}, fmt.Errorf("postgres: seed pair for %s: %w", bettor, domain.ErrNotFound)
		}
		return domain.SeedPair{}, fmt.Errorf("postgres: get seed pair %s: %w", bettor, err)
	}
	p.Nonce = uint64(nonce)
	return p, nil
}

// Save upserts the bettor's active pair.
func (s *SeedStore) Save(ctx context.Context, p domain.SeedPair) error {
	nonce, err := toInt64(p.Nonce, "nonce")
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO seed_pairs (bettor, server_seed, hashed_server_seed, client_seed, nonce, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (bettor) DO UPDATE SET
			server_seed = EXCLUDED.server_seed,
			hashed_server_seed = EXCLUDED.hashed_server_seed,
			client_seed = EXCLUDED.client_seed,
			nonce = EXCLUDED.nonce,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query,
		p.Bettor, p.ServerSeed, p.HashedServerSeed, p.ClientSeed, nonce, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: save seed pair %s: %w", p.Bettor, err)
	}
	return nil
}

// AdvanceNonce bumps the nonce with a compare-and-set on the expected value.
func (s *SeedStore) AdvanceNonce(ctx context.Context, bettor string, expected uint64) error {
	exp, err := toInt64(expected, "nonce")
	if err != nil {
		return err
	}
	const query = `
		UPDATE seed_pairs SET nonce = nonce + 1, updated_at = NOW()
		WHERE bettor = $1 AND nonce = $2`
	tag, err := s.pool.Exec(ctx, query, bettor, exp)
	if err != nil {
		return fmt.Errorf("postgres: advance nonce %s: %w", bettor, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: advance nonce %s from %d: %w", bettor, expected, domain.ErrConflict)
	}
	return nil
}

// RecordReveal stores the reveal for one nonce. Re-recording the same key
// refreshes the expiry.
func (s *SeedStore) RecordReveal(ctx context.Context, r domain.SeedReveal) error {
	nonce, err := toInt64(r.Nonce, "nonce")
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO seed_reveals (bettor, nonce, server_seed, hashed_server_seed, client_seed, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bettor, hashed_server_seed, nonce) DO UPDATE SET
			server_seed = EXCLUDED.server_seed,
			client_seed = EXCLUDED.client_seed,
			expires_at = EXCLUDED.expires_at`

	if _, err := s.pool.Exec(ctx, query,
		r.Bettor, nonce, r.ServerSeed, r.HashedServerSeed, r.ClientSeed, r.ExpiresAt,
	); err != nil {
		return fmt.Errorf("postgres: record reveal %s/%d: %w", r.Bettor, r.Nonce, err)
	}
	return nil
}

// GetReveal returns one recorded reveal.
func (s *SeedStore) GetReveal(ctx context.Context, bettor, hashedServerSeed string, nonce uint64) (domain.SeedReveal, error) {
	n, err := toInt64(nonce, "nonce")
	if err != nil {
		return domain.SeedReveal{}, err
	}

	const query = `
		SELECT bettor, nonce, server_seed, hashed_server_seed, client_seed, expires_at
		FROM seed_reveals WHERE bettor = $1 AND hashed_server_seed = $2 AND nonce = $3`

	var r domain.SeedReveal
	var scanned int64
	err = s.pool.QueryRow(ctx, query, bettor, hashedServerSeed, n).Scan(
		&r.Bettor, &scanned, &r.ServerSeed, &r.HashedServerSeed, &r.ClientSeed, &r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SeedReveal{}, fmt.Errorf("postgres: reveal %s/%d: %w", bettor, nonce, domain.ErrNotFound)
		}
		return domain.SeedReveal{}, fmt.Errorf("postgres: get reveal %s/%d: %w", bettor, nonce, err)
	}
	r.Nonce = uint64(scanned)
	return r, nil
}

// PurgeReveals deletes reveals that expired before the cutoff.
func (s *SeedStore) PurgeReveals(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM seed_reveals WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge reveals: %w", err)
	}
	return tag.RowsAffected(), nil
}
