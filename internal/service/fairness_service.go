package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
)

// MaxClientSeedLen bounds a bettor-chosen client seed.
const MaxClientSeedLen = 64

// DefaultRevealRetention is how long a per-nonce reveal stays retrievable.
const DefaultRevealRetention = time.Hour

// SeedView is the public face of a seed pair: never the server seed itself.
type SeedView struct {
	Bettor           string `json:"bettor"`
	HashedServerSeed string `json:"hashed_server_seed"`
	ClientSeed       string `json:"client_seed"`
	Nonce            uint64 `json:"nonce"`
}

// FairResult is an outcome drawn from a bettor's seed pair.
type FairResult struct {
	fairness.Outcome
	Bettor           string `json:"bettor"`
	Nonce            uint64 `json:"nonce"`
	HashedServerSeed string `json:"hashed_server_seed"`
	ClientSeed       string `json:"client_seed"`
	Rules            string `json:"rules"`
}

// Rotation reports the seed that was retired and its replacement.
type Rotation struct {
	PreviousServerSeed       string   `json:"previous_server_seed"`
	PreviousHashedServerSeed string   `json:"previous_hashed_server_seed"`
	PreviousNonce            uint64   `json:"previous_nonce"`
	Next                     SeedView `json:"next"`
}

// Reveal is a retired server seed opened for verification.
type Reveal struct {
	Bettor           string    `json:"bettor"`
	Nonce            uint64    `json:"nonce"`
	ServerSeed       string    `json:"server_seed"`
	HashedServerSeed string    `json:"hashed_server_seed"`
	ClientSeed       string    `json:"client_seed"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// FairnessService manages per-bettor seed pairs: creation, client seed
// updates, nonce-indexed results, rotation and reveals.
type FairnessService struct {
	seeds     domain.SeedStore
	vault     SeedSealer
	audit     domain.AuditStore
	bus       Publisher
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

// NewFairnessService creates a FairnessService. retention <= 0 uses
// DefaultRevealRetention.
func NewFairnessService(
	seeds domain.SeedStore,
	vault SeedSealer,
	audit domain.AuditStore,
	bus Publisher,
	retention time.Duration,
	logger *slog.Logger,
) *FairnessService {
	if retention <= 0 {
		retention = DefaultRevealRetention
	}
	return &FairnessService{
		seeds:     seeds,
		vault:     vault,
		audit:     audit,
		bus:       bus,
		logger:    logger.With(slog.String("component", "fairness_service")),
		retention: retention,
		now:       time.Now,
	}
}

// ActiveSeed returns the bettor's current pair, creating one on first use.
func (s *FairnessService) ActiveSeed(ctx context.Context, bettor string) (SeedView, error) {
	if bettor == "" {
		return SeedView{}, fmt.Errorf("fairness_service: %w: bettor is required", domain.ErrInvalidInput)
	}
	pair, err := s.seeds.GetActive(ctx, bettor)
	if errors.Is(err, domain.ErrNotFound) {
		pair, err = s.createPair(ctx, bettor, "")
	}
	if err != nil {
		return SeedView{}, fmt.Errorf("fairness_service: active seed %s: %w", bettor, err)
	}
	return viewOf(pair), nil
}

// SetClientSeed replaces the bettor's client seed. The nonce is kept.
func (s *FairnessService) SetClientSeed(ctx context.Context, bettor, clientSeed string) (SeedView, error) {
	if n := utf8.RuneCountInString(clientSeed); n < 1 || n > MaxClientSeedLen {
		return SeedView{}, fmt.Errorf("fairness_service: %w: client seed must be 1-%d characters", domain.ErrInvalidInput, MaxClientSeedLen)
	}
	pair, err := s.seeds.GetActive(ctx, bettor)
	if err != nil {
		return SeedView{}, fmt.Errorf("fairness_service: set client seed %s: %w", bettor, err)
	}
	pair.ClientSeed = clientSeed
	if err := s.seeds.Save(ctx, pair); err != nil {
		return SeedView{}, fmt.Errorf("fairness_service: set client seed %s: %w", bettor, err)
	}
	auditLog(ctx, s.audit, s.logger, "fairness.client_seed_set", map[string]any{"bettor": bettor})
	return viewOf(pair), nil
}

// NextResult derives the outcome at the current nonce under rules, records
// the reveal for that nonce and advances the nonce. A concurrent call for the
// same bettor loses the nonce race with ErrConflict.
func (s *FairnessService) NextResult(ctx context.Context, bettor string, rules fairness.Rules) (FairResult, error) {
	pair, err := s.seeds.GetActive(ctx, bettor)
	if err != nil {
		return FairResult{}, fmt.Errorf("fairness_service: next result %s: %w", bettor, err)
	}
	serverSeed, err := s.vault.Open(pair.ServerSeed)
	if err != nil {
		return FairResult{}, fmt.Errorf("fairness_service: open server seed %s: %w", bettor, err)
	}
	if !fairness.VerifyServerSeed(serverSeed, pair.HashedServerSeed) {
		return FairResult{}, fmt.Errorf("fairness_service: stored seed for %s: %w", bettor, domain.ErrCommitmentMismatch)
	}

	outcome, err := fairness.DeriveOutcome(serverSeed, pair.ClientSeed, pair.Nonce, rules)
	if err != nil {
		return FairResult{}, fmt.Errorf("fairness_service: derive %s/%d: %w", bettor, pair.Nonce, err)
	}

	if err := s.seeds.AdvanceNonce(ctx, bettor, pair.Nonce); err != nil {
		return FairResult{}, fmt.Errorf("fairness_service: next result %s: %w", bettor, err)
	}
	rev := domain.SeedReveal{
		Bettor:           bettor,
		Nonce:            pair.Nonce,
		ServerSeed:       pair.ServerSeed,
		HashedServerSeed: pair.HashedServerSeed,
		ClientSeed:       pair.ClientSeed,
		ExpiresAt:        s.now().Add(s.retention),
	}
	if err := s.seeds.RecordReveal(ctx, rev); err != nil {
		return FairResult{}, fmt.Errorf("fairness_service: record reveal %s/%d: %w", bettor, pair.Nonce, err)
	}

	res := FairResult{
		Outcome:          outcome,
		Bettor:           bettor,
		Nonce:            pair.Nonce,
		HashedServerSeed: pair.HashedServerSeed,
		ClientSeed:       pair.ClientSeed,
		Rules:            rules.Name,
	}
	publish(ctx, s.bus, s.logger, domain.ChannelFairness, "", Event{
		Type: "fair_result",
		Data: map[string]any{
			"bettor": bettor, "nonce": res.Nonce, "result": res.Result,
			"label": res.Label, "hashed_server_seed": res.HashedServerSeed,
		},
	})
	return res, nil
}

// Rotate retires the active server seed and returns it in the clear. The
// client seed carries over and the nonce restarts at zero.
func (s *FairnessService) Rotate(ctx context.Context, bettor string) (Rotation, error) {
	prev, err := s.seeds.GetActive(ctx, bettor)
	if err != nil {
		return Rotation{}, fmt.Errorf("fairness_service: rotate %s: %w", bettor, err)
	}
	prevSeed, err := s.vault.Open(prev.ServerSeed)
	if err != nil {
		return Rotation{}, fmt.Errorf("fairness_service: open server seed %s: %w", bettor, err)
	}

	next, err := s.createPair(ctx, bettor, prev.ClientSeed)
	if err != nil {
		return Rotation{}, fmt.Errorf("fairness_service: rotate %s: %w", bettor, err)
	}

	auditLog(ctx, s.audit, s.logger, "fairness.seed_rotated", map[string]any{
		"bettor":         bettor,
		"previous_hash":  prev.HashedServerSeed,
		"previous_nonce": prev.Nonce,
		"next_hash":      next.HashedServerSeed,
	})
	s.logger.InfoContext(ctx, "seed rotated",
		slog.String("bettor", bettor),
		slog.Uint64("previous_nonce", prev.Nonce),
	)

	return Rotation{
		PreviousServerSeed:       prevSeed,
		PreviousHashedServerSeed: prev.HashedServerSeed,
		PreviousNonce:            prev.Nonce,
		Next:                     viewOf(next),
	}, nil
}

// Reveal opens the server seed behind one past nonce. The seed must have been
// rotated out and the reveal must be inside its retention window.
func (s *FairnessService) Reveal(ctx context.Context, bettor, hashedServerSeed string, nonce uint64) (Reveal, error) {
	rev, err := s.seeds.GetReveal(ctx, bettor, hashedServerSeed, nonce)
	if err != nil {
		return Reveal{}, fmt.Errorf("fairness_service: reveal %s/%d: %w", bettor, nonce, err)
	}
	if rev.Expired(s.now()) {
		return Reveal{}, fmt.Errorf("fairness_service: reveal %s/%d: %w", bettor, nonce, domain.ErrRevealExpired)
	}

	active, err := s.seeds.GetActive(ctx, bettor)
	switch {
	case err == nil && active.HashedServerSeed == rev.HashedServerSeed:
		return Reveal{}, fmt.Errorf("fairness_service: reveal %s/%d: %w: rotate first", bettor, nonce, domain.ErrSeedStillActive)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return Reveal{}, fmt.Errorf("fairness_service: reveal %s/%d: %w", bettor, nonce, err)
	}

	seed, err := s.vault.Open(rev.ServerSeed)
	if err != nil {
		return Reveal{}, fmt.Errorf("fairness_service: open reveal %s/%d: %w", bettor, nonce, err)
	}
	if !fairness.VerifyServerSeed(seed, rev.HashedServerSeed) {
		return Reveal{}, fmt.Errorf("fairness_service: reveal %s/%d: %w", bettor, nonce, domain.ErrCommitmentMismatch)
	}
	return Reveal{
		Bettor:           rev.Bettor,
		Nonce:            rev.Nonce,
		ServerSeed:       seed,
		HashedServerSeed: rev.HashedServerSeed,
		ClientSeed:       rev.ClientSeed,
		ExpiresAt:        rev.ExpiresAt,
	}, nil
}

// Verify recomputes a result from revealed seeds. It touches no state.
func (s *FairnessService) Verify(serverSeed, clientSeed string, nonce uint64, expected int, rules fairness.Rules) (fairness.Verification, error) {
	return fairness.Verify(serverSeed, clientSeed, nonce, expected, rules)
}

// PurgeExpired deletes reveals past their retention window.
func (s *FairnessService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.seeds.PurgeReveals(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("fairness_service: purge reveals: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "purged expired reveals", slog.Int64("count", n))
	}
	return n, nil
}

// RunPurger purges expired reveals every interval until ctx is done.
func (s *FairnessService) RunPurger(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil {
				s.logger.WarnContext(ctx, "purge failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *FairnessService) createPair(ctx context.Context, bettor, clientSeed string) (domain.SeedPair, error) {
	serverSeed, err := fairness.GenerateServerSeed()
	if err != nil {
		return domain.SeedPair{}, err
	}
	if clientSeed == "" {
		if clientSeed, err = fairness.GenerateClientSeed(); err != nil {
			return domain.SeedPair{}, err
		}
	}
	sealed, err := s.vault.Seal(serverSeed)
	if err != nil {
		return domain.SeedPair{}, fmt.Errorf("seal server seed: %w", err)
	}
	pair := domain.SeedPair{
		Bettor:           bettor,
		ServerSeed:       sealed,
		HashedServerSeed: fairness.HashServerSeed(serverSeed),
		ClientSeed:       clientSeed,
		CreatedAt:        s.now(),
	}
	if err := s.seeds.Save(ctx, pair); err != nil {
		return domain.SeedPair{}, err
	}
	return pair, nil
}

func viewOf(p domain.SeedPair) SeedView {
	return SeedView{
		Bettor:           p.Bettor,
		HashedServerSeed: p.HashedServerSeed,
		ClientSeed:       p.ClientSeed,
		Nonce:            p.Nonce,
	}
}
