package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
	"github.com/alanyoungcy/housefun/internal/notify"
	"github.com/alanyoungcy/housefun/internal/settlement"
)

// DefaultSettleLockTTL bounds how long one resolution may hold a game.
const DefaultSettleLockTTL = 30 * time.Second

// maxSettleAttempts bounds how often payouts or refunds are rebuilt when a
// wager lands between reading the wagers and writing the records.
const maxSettleAttempts = 3

// OutcomeSource draws seed-derived results, normally FairnessService.
type OutcomeSource interface {
	NextResult(ctx context.Context, bettor string, rules fairness.Rules) (FairResult, error)
}

// SettlementOptions are the deployment rules applied to every game.
type SettlementOptions struct {
	Limits          domain.BetLimits
	FeeBps          map[domain.GameKind]uint32
	LockTTL         time.Duration
	FreshnessWindow time.Duration
	// HouseSeedOwner is the seed-pair owner used for seed-derived outcomes.
	HouseSeedOwner string
}

// ResolveRequest selects the winning bucket. Exactly one of Bucket or
// FromSeed must be set. Proof, when present, must be fresh.
type ResolveRequest struct {
	Bucket   *int
	FromSeed bool
	Proof    *domain.Proof
}

// Settlement is a persisted resolution.
type Settlement struct {
	Outcome    domain.ResolvedOutcome `json:"outcome"`
	Records    []domain.PayoutRecord  `json:"records"`
	Summary    settlement.Summary     `json:"summary"`
	FairResult *FairResult            `json:"fair_result,omitempty"`
}

// OddsQuote prices one bucket of an open game.
type OddsQuote struct {
	GameID     string          `json:"game_id"`
	Bucket     int             `json:"bucket"`
	Market     string          `json:"market"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Exact      string          `json:"exact"`
	Totals     []uint64        `json:"totals"`
	TotalPool  uint64          `json:"total_pool"`
	Quote      uint64          `json:"quote,omitempty"`
}

// SettlementService creates games, takes wagers and resolves or cancels
// games under a per-game lock so each game settles at most once.
type SettlementService struct {
	games    domain.GameStore
	wagers   domain.WagerStore
	payouts  domain.PayoutStore
	pools    domain.PoolCache
	locks    domain.LockManager
	outcomes OutcomeSource
	bus      Publisher
	audit    domain.AuditStore
	alerts   Alerter
	opts     SettlementOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettlementService creates a SettlementService. pools, outcomes, bus,
// audit and alerts may be nil.
func NewSettlementService(
	games domain.GameStore,
	wagers domain.WagerStore,
	payouts domain.PayoutStore,
	pools domain.PoolCache,
	locks domain.LockManager,
	outcomes OutcomeSource,
	bus Publisher,
	audit domain.AuditStore,
	alerts Alerter,
	opts SettlementOptions,
	logger *slog.Logger,
) *SettlementService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultSettleLockTTL
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = domain.DefaultFreshnessWindow
	}
	if opts.Limits == (domain.BetLimits{}) {
		opts.Limits = domain.DefaultBetLimits()
	}
	if opts.HouseSeedOwner == "" {
		opts.HouseSeedOwner = "house"
	}
	return &SettlementService{
		games:    games,
		wagers:   wagers,
		payouts:  payouts,
		pools:    pools,
		locks:    locks,
		outcomes: outcomes,
		bus:      bus,
		audit:    audit,
		alerts:   alerts,
		opts:     opts,
		logger:   logger.With(slog.String("component", "settlement_service")),
		now:      time.Now,
	}
}

// feeFor returns the configured fee for kind, or the kind's default.
func (s *SettlementService) feeFor(kind domain.GameKind) uint32 {
	if v, ok := s.opts.FeeBps[kind]; ok {
		return v
	}
	return kind.DefaultFeeBps()
}

// CreateGame opens a new game instance.
func (s *SettlementService) CreateGame(ctx context.Context, kind domain.GameKind, buckets int) (domain.GameInstance, error) {
	g := domain.GameInstance{
		ID:        uuid.NewString(),
		Kind:      kind,
		Buckets:   buckets,
		FeeBps:    s.feeFor(kind),
		Status:    domain.GameStatusOpen,
		CreatedAt: s.now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return domain.GameInstance{}, fmt.Errorf("settlement_service: create game: %w", err)
	}
	if err := s.games.Create(ctx, g); err != nil {
		return domain.GameInstance{}, fmt.Errorf("settlement_service: create game: %w", err)
	}
	auditLog(ctx, s.audit, s.logger, "game.created", map[string]any{
		"game_id": g.ID, "kind": string(g.Kind), "buckets": g.Buckets, "fee_bps": g.FeeBps,
	})
	return g, nil
}

// PlaceWager records a stake on one bucket of an open game.
func (s *SettlementService) PlaceWager(ctx context.Context, gameID, bettor string, bucket int, amount uint64) (domain.Wager, error) {
	if bettor == "" {
		return domain.Wager{}, fmt.Errorf("settlement_service: place wager: %w: bettor is required", domain.ErrInvalidInput)
	}
	if err := s.opts.Limits.Validate(amount); err != nil {
		return domain.Wager{}, fmt.Errorf("settlement_service: place wager: %w", err)
	}
	g, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("settlement_service: place wager: %w", err)
	}
	if g.Status != domain.GameStatusOpen {
		return domain.Wager{}, fmt.Errorf("settlement_service: game %s is %s: %w", gameID, g.Status, domain.ErrGameNotOpen)
	}
	b, err := domain.NewBucket(bucket, g.Buckets)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("settlement_service: place wager: %w", err)
	}

	w := domain.Wager{
		ID:       uuid.NewString(),
		GameID:   gameID,
		Bettor:   bettor,
		Amount:   amount,
		Bucket:   b,
		PlacedAt: s.now().UTC(),
		Status:   domain.WagerStatusPending,
	}
	if err := s.wagers.Create(ctx, w); err != nil {
		return domain.Wager{}, fmt.Errorf("settlement_service: place wager: %w", err)
	}
	if s.pools != nil {
		if err := s.pools.Add(ctx, gameID, b, amount); err != nil {
			s.logger.WarnContext(ctx, "pool cache add failed", slog.String("game_id", gameID), slog.String("error", err.Error()))
			_ = s.pools.Invalidate(ctx, gameID)
		}
	}
	return w, nil
}

// Odds prices bucket on an open game. stake > 0 also quotes the winnings a
// new stake of that size would receive.
func (s *SettlementService) Odds(ctx context.Context, gameID string, bucket int, stake uint64) (OddsQuote, error) {
	g, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return OddsQuote{}, fmt.Errorf("settlement_service: odds: %w", err)
	}
	b, err := domain.NewBucket(bucket, g.Buckets)
	if err != nil {
		return OddsQuote{}, fmt.Errorf("settlement_service: odds: %w", err)
	}
	pool, err := s.pool(ctx, g)
	if err != nil {
		return OddsQuote{}, fmt.Errorf("settlement_service: odds: %w", err)
	}

	market := g.Kind.Market()
	r, err := settlement.ComputeOdds(market, pool, g.FeeBps, b)
	if err != nil {
		return OddsQuote{}, fmt.Errorf("settlement_service: odds: %w", err)
	}
	q := OddsQuote{
		GameID:     gameID,
		Bucket:     bucket,
		Market:     string(market),
		Multiplier: settlement.DisplayOdds(r),
		Exact:      ratString(r),
		Totals:     pool.TotalByBucket,
		TotalPool:  pool.TotalPool,
	}
	if stake > 0 {
		if q.Quote, err = settlement.Quote(pool, g.FeeBps, b, stake); err != nil {
			return OddsQuote{}, fmt.Errorf("settlement_service: quote: %w", err)
		}
	}
	return q, nil
}

// Resolve settles a game exactly once. The game stays open when an operator
// picks a bucket nothing was staked on, so it can be cancelled and refunded.
// A seed-drawn result is binding: an unstaked draw voids the game and
// refunds every wager instead of leaving it open for another draw.
func (s *SettlementService) Resolve(ctx context.Context, gameID string, req ResolveRequest) (Settlement, error) {
	if (req.Bucket == nil) == !req.FromSeed {
		return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w: set exactly one of bucket or from_seed", gameID, domain.ErrInvalidInput)
	}

	unlock, err := s.locks.Acquire(ctx, "settle:"+gameID, s.opts.LockTTL)
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
	}
	defer unlock()

	res, err := s.resolveLocked(ctx, gameID, req)
	if err != nil {
		s.logger.WarnContext(ctx, "resolve failed",
			slog.String("game_id", gameID),
			slog.String("kind", domain.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		if domain.KindOf(err) == domain.KindIntegrity && s.alerts != nil {
			_ = s.alerts.NotifyError(ctx, "game "+gameID, err)
		}
		return Settlement{}, err
	}
	return res, nil
}

func (s *SettlementService) resolveLocked(ctx context.Context, gameID string, req ResolveRequest) (Settlement, error) {
	g, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve: %w", err)
	}
	if req.Proof != nil {
		if err := req.Proof.Check(s.now(), s.opts.FreshnessWindow); err != nil {
			return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
		}
	}

	var (
		winning int
		fair    *FairResult
	)
	if err := requireOpen(g); err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve: %w", err)
	}
	if req.FromSeed {
		if s.outcomes == nil {
			return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w: no seed source", gameID, domain.ErrInvalidInput)
		}
		rules, err := fairness.RulesFor(g.Kind, g.Buckets)
		if err != nil {
			return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
		}
		r, err := s.outcomes.NextResult(ctx, s.opts.HouseSeedOwner, rules)
		if err != nil {
			return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
		}
		winning, fair = r.Result, &r
	} else {
		winning = *req.Bucket
	}

	bucket, err := domain.NewBucket(winning, g.Buckets)
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
	}
	out := domain.ResolvedOutcome{GameID: gameID, WinningBucket: bucket, ResolvedAt: s.now().UTC(), Proof: req.Proof}
	if err := g.Resolve(out); err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve: %w", err)
	}

	var (
		records []domain.PayoutRecord
		settled []domain.Wager
	)
	err = s.withWagerSet(ctx, gameID, func(wagers []domain.Wager) error {
		recs, err := settlement.Settle(wagers, out, g.FeeBps)
		if err != nil {
			return err
		}
		if err := s.games.Settle(ctx, out, recs); err != nil {
			return err
		}
		records, settled = recs, wagers
		return nil
	})
	if errors.Is(err, domain.ErrNoBetsOnWinner) && fair != nil {
		return Settlement{}, s.voidDrawn(ctx, gameID, out, fair, err)
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
	}

	pool, err := settlement.BuildPool(settled, g.Buckets)
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", gameID, err)
	}
	summary := settlement.Summarize(pool, g.FeeBps, records)
	s.afterSettle(ctx, g, out, summary, fair)
	return Settlement{Outcome: out, Records: records, Summary: summary, FairResult: fair}, nil
}

// withWagerSet hands fn the game's current wagers and calls it again with a
// fresh read when the store reports that the wager set moved underneath it.
func (s *SettlementService) withWagerSet(ctx context.Context, gameID string, fn func([]domain.Wager) error) error {
	for attempt := 1; ; attempt++ {
		wagers, err := s.wagers.ListByGame(ctx, gameID)
		if err != nil {
			return err
		}
		err = fn(wagers)
		if !errors.Is(err, domain.ErrWagersChanged) || attempt >= maxSettleAttempts {
			return err
		}
		s.logger.InfoContext(ctx, "wagers changed while settling, rebuilding records",
			slog.String("game_id", gameID),
			slog.Int("attempt", attempt),
		)
	}
}

// voidDrawn cancels a game whose seed-drawn bucket has no stake. The draw
// spent a house nonce, so the game must not stay open for another one.
func (s *SettlementService) voidDrawn(ctx context.Context, gameID string, out domain.ResolvedOutcome, fair *FairResult, cause error) error {
	refunds, err := s.refundWagers(ctx, gameID, s.now().UTC())
	if err != nil {
		err = fmt.Errorf("settlement_service: void %s after seed draw %d: %w", gameID, fair.Nonce, err)
		s.logger.ErrorContext(ctx, "void after unstaked draw failed", slog.String("game_id", gameID), slog.String("error", err.Error()))
		if s.alerts != nil {
			_ = s.alerts.NotifyError(ctx, "game "+gameID, err)
		}
		return err
	}
	s.afterCancel(ctx, gameID, refunds, map[string]any{
		"reason":             "no_bets_on_drawn_bucket",
		"winning_bucket":     out.WinningBucket.Index(),
		"hashed_server_seed": fair.HashedServerSeed,
		"nonce":              fair.Nonce,
	})
	return fmt.Errorf("settlement_service: resolve %s: seed drew bucket %d, game voided and %d wager(s) refunded: %w",
		gameID, out.WinningBucket.Index(), len(refunds), cause)
}

func (s *SettlementService) afterSettle(ctx context.Context, g domain.GameInstance, out domain.ResolvedOutcome, sum settlement.Summary, fair *FairResult) {
	if s.pools != nil {
		_ = s.pools.Invalidate(ctx, g.ID)
	}
	detail := map[string]any{
		"game_id":        g.ID,
		"kind":           string(g.Kind),
		"winning_bucket": out.WinningBucket.Index(),
		"total_pool":     sum.TotalPool,
		"house_fee":      sum.HouseFee,
		"total_winnings": sum.TotalWinnings,
		"winners":        sum.Winners,
		"dust":           sum.Dust,
	}
	if fair != nil {
		detail["hashed_server_seed"] = fair.HashedServerSeed
		detail["nonce"] = fair.Nonce
	}
	if out.Proof != nil {
		if enc, err := dealing.MarshalProof(out.Proof); err == nil {
			detail["proof"] = hex.EncodeToString(enc)
		}
	}
	auditLog(ctx, s.audit, s.logger, "game.settled", detail)
	publish(ctx, s.bus, s.logger, domain.ChannelSettlement, domain.StreamSettlement, Event{Type: "game_settled", Data: detail})
	if s.alerts != nil {
		msg := fmt.Sprintf("bucket %d won; pool %d, fee %d, %d winner(s)", out.WinningBucket.Index(), sum.TotalPool, sum.HouseFee, sum.Winners)
		_ = s.alerts.Notify(ctx, notify.EventGameSettled, "Game "+g.ID+" settled", msg)
	}
	s.logger.InfoContext(ctx, "game settled",
		slog.String("game_id", g.ID),
		slog.Int("winning_bucket", out.WinningBucket.Index()),
		slog.Uint64("total_pool", sum.TotalPool),
		slog.Int("winners", sum.Winners),
	)
}

// Cancel closes an open game and refunds every live wager in full.
func (s *SettlementService) Cancel(ctx context.Context, gameID string) ([]domain.RefundRecord, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+gameID, s.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: cancel %s: %w", gameID, err)
	}
	defer unlock()

	g, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: cancel: %w", err)
	}
	at := s.now().UTC()
	if err := g.Cancel(at); err != nil {
		return nil, fmt.Errorf("settlement_service: cancel: %w", err)
	}
	refunds, err := s.refundWagers(ctx, gameID, at)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: cancel %s: %w", gameID, err)
	}
	s.afterCancel(ctx, gameID, refunds, nil)
	return refunds, nil
}

func (s *SettlementService) refundWagers(ctx context.Context, gameID string, at time.Time) ([]domain.RefundRecord, error) {
	var refunds []domain.RefundRecord
	err := s.withWagerSet(ctx, gameID, func(wagers []domain.Wager) error {
		recs := settlement.Refund(wagers)
		if err := s.games.Cancel(ctx, gameID, at, recs); err != nil {
			return err
		}
		refunds = recs
		return nil
	})
	return refunds, err
}

// afterCancel publishes a cancellation. void carries the seed draw that
// forced it, if any.
func (s *SettlementService) afterCancel(ctx context.Context, gameID string, refunds []domain.RefundRecord, void map[string]any) {
	if s.pools != nil {
		_ = s.pools.Invalidate(ctx, gameID)
	}
	var total uint64
	for _, r := range refunds {
		total += r.Amount
	}
	detail := map[string]any{"game_id": gameID, "refunds": len(refunds), "refunded": total}
	event, title := "game.cancelled", "Game "+gameID+" cancelled"
	if void != nil {
		maps.Copy(detail, void)
		event, title = "game.voided", "Game "+gameID+" voided"
	}
	auditLog(ctx, s.audit, s.logger, event, detail)
	publish(ctx, s.bus, s.logger, domain.ChannelSettlement, domain.StreamSettlement, Event{Type: "game_cancelled", Data: detail})
	if s.alerts != nil {
		_ = s.alerts.Notify(ctx, notify.EventGameCancelled, title, fmt.Sprintf("%d wager(s) refunded", len(refunds)))
	}
}

// Payouts returns the settlement records of a resolved game.
func (s *SettlementService) Payouts(ctx context.Context, gameID string) ([]domain.PayoutRecord, error) {
	records, err := s.payouts.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: payouts %s: %w", gameID, err)
	}
	return records, nil
}

// Claim marks a won wager as paid out.
func (s *SettlementService) Claim(ctx context.Context, wagerID string) error {
	if err := s.wagers.MarkClaimed(ctx, wagerID); err != nil {
		return fmt.Errorf("settlement_service: claim %s: %w", wagerID, err)
	}
	auditLog(ctx, s.audit, s.logger, "wager.claimed", map[string]any{"wager_id": wagerID})
	return nil
}

// Game returns one game instance.
func (s *SettlementService) Game(ctx context.Context, gameID string) (domain.GameInstance, error) {
	g, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return domain.GameInstance{}, fmt.Errorf("settlement_service: game: %w", err)
	}
	return g, nil
}

// ListGames lists games in one lifecycle state.
func (s *SettlementService) ListGames(ctx context.Context, status domain.GameStatus, opts domain.ListOpts) ([]domain.GameInstance, error) {
	switch status {
	case domain.GameStatusOpen, domain.GameStatusResolved, domain.GameStatusCancelled:
	default:
		return nil, fmt.Errorf("settlement_service: list games: %w: status %q", domain.ErrInvalidInput, status)
	}
	games, err := s.games.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: list %s games: %w", status, err)
	}
	return games, nil
}

// BettorWagers lists a bettor's wagers across games.
func (s *SettlementService) BettorWagers(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Wager, error) {
	if bettor == "" {
		return nil, fmt.Errorf("settlement_service: bettor wagers: %w: bettor is required", domain.ErrInvalidInput)
	}
	wagers, err := s.wagers.ListByBettor(ctx, bettor, opts)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: wagers of %s: %w", bettor, err)
	}
	return wagers, nil
}

// pool reads the cached pool or rebuilds it from the wagers.
func (s *SettlementService) pool(ctx context.Context, g domain.GameInstance) (settlement.Pool, error) {
	if s.pools != nil {
		totals, err := s.pools.Get(ctx, g.ID)
		if err == nil && len(totals) == g.Buckets {
			p := settlement.Pool{TotalByBucket: totals}
			for _, t := range totals {
				p.TotalPool += t
			}
			return p, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "pool cache read failed", slog.String("game_id", g.ID), slog.String("error", err.Error()))
		}
	}

	wagers, err := s.wagers.ListByGame(ctx, g.ID)
	if err != nil {
		return settlement.Pool{}, err
	}
	p, err := settlement.BuildPool(wagers, g.Buckets)
	if err != nil {
		return settlement.Pool{}, err
	}
	if s.pools != nil && g.Status == domain.GameStatusOpen {
		if err := s.pools.Set(ctx, g.ID, p.TotalByBucket); err != nil {
			s.logger.WarnContext(ctx, "pool cache write failed", slog.String("game_id", g.ID), slog.String("error", err.Error()))
		}
	}
	return p, nil
}

// requireOpen fails before any seed nonce is spent on a closed game.
func requireOpen(g domain.GameInstance) error {
	switch g.Status {
	case domain.GameStatusOpen:
		return nil
	case domain.GameStatusResolved:
		return fmt.Errorf("game %s: %w", g.ID, domain.ErrAlreadyResolved)
	default:
		return fmt.Errorf("game %s is %s: %w", g.ID, g.Status, domain.ErrGameNotOpen)
	}
}

func ratString(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	return r.RatString()
}
