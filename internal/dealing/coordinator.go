package dealing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
)

// CoordinatorConfig bounds backend calls.
type CoordinatorConfig struct {
	// Timeout applies to each backend attempt.
	Timeout time.Duration
	// FreshnessWindow is the maximum proof age accepted.
	FreshnessWindow time.Duration
	// MaxAttempts bounds retries of computation failures.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry; it doubles per
	// attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultCoordinatorConfig returns the production defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Timeout:         45 * time.Second,
		FreshnessWindow: domain.DefaultFreshnessWindow,
		MaxAttempts:     3,
		BaseBackoff:     500 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
	}
}

// WorstCase is the longest one backend operation can take through
// withRetry: every attempt times out and every backoff is slept in full.
func (c CoordinatorConfig) WorstCase() time.Duration {
	if c.MaxAttempts < 1 {
		return c.Timeout
	}
	total := time.Duration(c.MaxAttempts) * c.Timeout
	delay := c.BaseBackoff
	for i := 1; i < c.MaxAttempts; i++ {
		total += delay
		delay *= 2
		if delay > c.MaxBackoff {
			delay = c.MaxBackoff
		}
	}
	return total
}

// Hand is a snapshot of a table's current hand.
type Hand struct {
	TableID      string
	Number       uint64
	State        HandState
	Participants []string
	Deck         *domain.EncryptedDeck
	Showdown     *domain.Showdown
}

type hand struct {
	number       uint64
	state        HandState
	participants []string
	deck         *domain.EncryptedDeck
	showdown     *domain.Showdown
	busy         bool
}

// Coordinator drives the per-hand dealing state machine for every table it
// serves. It is safe for concurrent use.
type Coordinator struct {
	backend  Backend
	verifier ProofVerifier
	cfg      CoordinatorConfig
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	mu    sync.Mutex
	hands map[string]*hand
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithVerifier checks every backend proof, typically its cluster signature.
func WithVerifier(v ProofVerifier) CoordinatorOption {
	return func(c *Coordinator) { c.verifier = v }
}

// WithClock replaces time.Now for freshness checks.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) CoordinatorOption {
	return func(c *Coordinator) { c.sleep = sleep }
}

// NewCoordinator creates a Coordinator. Zero config fields take their
// defaults.
func NewCoordinator(backend Backend, cfg CoordinatorConfig, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	def := DefaultCoordinatorConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = def.FreshnessWindow
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		hands:   make(map[string]*hand),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GenerateEncryptedDeck starts a new hand at tableID and asks the backend
// for a shuffled deck encrypted to participants. The table must be idle or
// have revealed its previous hand.
func (c *Coordinator) GenerateEncryptedDeck(ctx context.Context, tableID string, participants []string) (domain.EncryptedDeck, error) {
	if tableID == "" {
		return domain.EncryptedDeck{}, fmt.Errorf("dealing: generate deck: %w: empty table id", domain.ErrInvalidInput)
	}
	if err := checkParticipants(participants); err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("dealing: generate deck: %w", err)
	}

	number, err := c.begin(tableID, StateDeckRequested, StateIdle, StateRevealed)
	if err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("dealing: generate deck: %w", err)
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.finish(tableID, StateIdle, nil)
		return domain.EncryptedDeck{}, fmt.Errorf("dealing: generate deck: nonce: %w", err)
	}
	req := DeckRequest{
		TableID:        tableID,
		Participants:   append([]string(nil), participants...),
		NumCards:       domain.DeckSize,
		CommitmentHash: fairness.CommitWithSalt([]byte(tableID+":"+strconv.FormatUint(number, 10)), nonce).Hash,
		Nonce:          hex.EncodeToString(nonce),
	}

	deck, err := withRetry(ctx, c, "generate deck", func(ctx context.Context) (domain.EncryptedDeck, error) {
		d, err := c.backend.GenerateDeck(ctx, req)
		if err != nil {
			return d, err
		}
		return d, c.validateDeck(d, req.Participants)
	})
	if err != nil {
		c.finish(tableID, StateIdle, nil)
		c.logger.WarnContext(ctx, "dealing: deck generation failed",
			slog.String("table", tableID),
			slog.Uint64("hand", number),
			slog.String("kind", domain.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		return domain.EncryptedDeck{}, err
	}
	deck.TableID = tableID

	c.finish(tableID, StateDeckGenerated, func(h *hand) {
		h.participants = req.Participants
		h.deck = &deck
		h.showdown = nil
	})
	c.logger.InfoContext(ctx, "dealing: deck generated",
		slog.String("table", tableID),
		slog.Uint64("hand", number),
		slog.Int("players", len(participants)),
		slog.String("computation_id", deck.Proof.ComputationID),
	)
	return deck, nil
}

// DeliverHoleCards hands each participant the two encrypted cards addressed
// to their seat.
func (c *Coordinator) DeliverHoleCards(tableID string) (map[string][]domain.EncryptedCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.transitionLocked(tableID, StateCardsDelivered)
	if err != nil {
		return nil, fmt.Errorf("dealing: deliver hole cards: %w", err)
	}
	out := make(map[string][]domain.EncryptedCard, len(h.participants))
	for seat, p := range h.participants {
		idx, _ := PlayerHoleCardIndices(seat, len(h.participants))
		out[p] = []domain.EncryptedCard{h.deck.Cards[idx[0]], h.deck.Cards[idx[1]]}
	}
	return out, nil
}

// StartPlay opens betting once hole cards are delivered.
func (c *Coordinator) StartPlay(tableID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.transitionLocked(tableID, StatePlaying); err != nil {
		return fmt.Errorf("dealing: start play: %w", err)
	}
	return nil
}

// DecryptHoleCards decrypts the cards addressed to recipient. Exactly two
// of cards must be addressed to them.
func (c *Coordinator) DecryptHoleCards(ctx context.Context, tableID string, cards []domain.EncryptedCard, recipient string) ([]domain.Card, error) {
	c.mu.Lock()
	h, ok := c.hands[tableID]
	state := StateIdle
	if ok {
		state = h.state
	}
	c.mu.Unlock()
	if state != StateCardsDelivered && state != StatePlaying {
		return nil, fmt.Errorf("dealing: decrypt hole cards: %w: table %s is %s", domain.ErrInvalidTransition, tableID, state)
	}

	mine := make([]domain.EncryptedCard, 0, 2)
	for _, card := range cards {
		if card.Recipient == recipient {
			mine = append(mine, card)
		}
	}
	if len(mine) != 2 {
		return nil, fmt.Errorf("dealing: decrypt hole cards: %w: %d cards for %q",
			domain.ErrUnexpectedCardCount, len(mine), recipient)
	}

	req := DecryptRequest{TableID: tableID, Cards: mine, Recipient: recipient}
	return withRetry(ctx, c, "decrypt hole cards", func(ctx context.Context) ([]domain.Card, error) {
		out, err := c.backend.Decrypt(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(out) != 2 {
			return nil, fmt.Errorf("%w: backend decrypted %d cards", domain.ErrUnexpectedCardCount, len(out))
		}
		for _, card := range out {
			if !card.Valid() {
				return nil, fmt.Errorf("%w: backend returned card %d", domain.ErrMalformedDeck, card)
			}
		}
		return out, nil
	})
}

// GenerateShowdownProof reveals every card of the hand's deck with a proof
// that the reveal matches the deck commitment. A failed request returns the
// hand to Playing so it can be retried; an integrity violation aborts it.
func (c *Coordinator) GenerateShowdownProof(ctx context.Context, tableID string, deck domain.EncryptedDeck) (domain.Showdown, error) {
	number, err := c.begin(tableID, StateShowdownRequested, StatePlaying)
	if err != nil {
		return domain.Showdown{}, fmt.Errorf("dealing: showdown: %w", err)
	}

	c.mu.Lock()
	stored := c.hands[tableID].deck
	c.mu.Unlock()
	if stored == nil || stored.Commitment != deck.Commitment {
		c.finish(tableID, StateIdle, clearHand)
		return domain.Showdown{}, fmt.Errorf("dealing: showdown: %w: deck is not the one dealt", domain.ErrCommitmentMismatch)
	}

	req := ShowdownRequest{TableID: tableID, Deck: deck}
	sd, err := withRetry(ctx, c, "showdown", func(ctx context.Context) (domain.Showdown, error) {
		sd, err := c.backend.Reveal(ctx, req)
		if err != nil {
			return sd, err
		}
		return sd, c.validateShowdown(sd, deck)
	})
	if err != nil {
		next, mutate := StatePlaying, func(*hand) {}
		if domain.KindOf(err) == domain.KindIntegrity {
			next, mutate = StateIdle, clearHand
		}
		c.finish(tableID, next, mutate)
		c.logger.WarnContext(ctx, "dealing: showdown failed",
			slog.String("table", tableID),
			slog.Uint64("hand", number),
			slog.String("kind", domain.KindOf(err).String()),
			slog.String("next_state", next.String()),
			slog.String("error", err.Error()),
		)
		return domain.Showdown{}, err
	}
	sd.TableID = tableID

	c.finish(tableID, StateRevealed, func(h *hand) { h.showdown = &sd })
	c.logger.InfoContext(ctx, "dealing: showdown revealed",
		slog.String("table", tableID),
		slog.Uint64("hand", number),
		slog.String("computation_id", sd.Proof.ComputationID),
	)
	return sd, nil
}

// Abort drops the current hand at tableID and returns the table to Idle.
func (c *Coordinator) Abort(tableID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hands[tableID]
	if !ok {
		return nil
	}
	if h.busy {
		return fmt.Errorf("dealing: abort: %w: table %s", domain.ErrRequestInFlight, tableID)
	}
	h.state = StateIdle
	clearHand(h)
	return nil
}

// Hand returns a snapshot of the table's current hand.
func (c *Coordinator) Hand(tableID string) (Hand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hands[tableID]
	if !ok {
		return Hand{TableID: tableID, State: StateIdle}, false
	}
	return Hand{
		TableID:      tableID,
		Number:       h.number,
		State:        h.state,
		Participants: append([]string(nil), h.participants...),
		Deck:         h.deck,
		Showdown:     h.showdown,
	}, true
}

// State returns the table's hand state; unknown tables are Idle.
func (c *Coordinator) State(tableID string) HandState {
	hd, _ := c.Hand(tableID)
	return hd.State
}

// begin claims the table for a backend request and moves it to next. It
// fails if another request is in flight or the table is not in one of from.
func (c *Coordinator) begin(tableID string, next HandState, from ...HandState) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hands[tableID]
	if !ok {
		h = &hand{state: StateIdle}
		c.hands[tableID] = h
	}
	if h.busy {
		return 0, fmt.Errorf("%w: table %s", domain.ErrRequestInFlight, tableID)
	}
	allowed := false
	for _, s := range from {
		if h.state == s {
			allowed = true
		}
	}
	if !allowed {
		return 0, fmt.Errorf("%w: table %s is %s", domain.ErrInvalidTransition, tableID, h.state)
	}
	if h.state == StateRevealed {
		h.state = StateIdle
	}
	if !CanTransition(h.state, next) {
		return 0, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, h.state, next)
	}
	if next == StateDeckRequested {
		h.number++
		clearHand(h)
	}
	h.state = next
	h.busy = true
	return h.number, nil
}

// finish releases the table and moves it to next.
func (c *Coordinator) finish(tableID string, next HandState, mutate func(*hand)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.hands[tableID]
	h.busy = false
	h.state = next
	if mutate != nil {
		mutate(h)
	}
}

func (c *Coordinator) transitionLocked(tableID string, next HandState) (*hand, error) {
	h, ok := c.hands[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: table %s has no hand", domain.ErrInvalidTransition, tableID)
	}
	if h.busy {
		return nil, fmt.Errorf("%w: table %s", domain.ErrRequestInFlight, tableID)
	}
	if !CanTransition(h.state, next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, h.state, next)
	}
	h.state = next
	return h, nil
}

func clearHand(h *hand) {
	h.participants = nil
	h.deck = nil
	h.showdown = nil
}

// validateDeck rejects a deck the hand cannot use. A response without a
// proof is a failed computation; anything structurally wrong is an
// integrity violation.
func (c *Coordinator) validateDeck(deck domain.EncryptedDeck, participants []string) error {
	if deck.Proof == nil || len(deck.Proof.Proof) == 0 {
		return fmt.Errorf("%w: backend returned no deck proof", domain.ErrMpcComputationFailed)
	}
	if err := checkDeck(deck, c.now(), c.cfg.FreshnessWindow); err != nil {
		return err
	}
	if err := checkDealOrder(deck, participants); err != nil {
		return err
	}
	return c.verify(deck.Proof)
}

func (c *Coordinator) validateShowdown(sd domain.Showdown, deck domain.EncryptedDeck) error {
	if sd.Proof == nil || len(sd.Proof.Proof) == 0 {
		return fmt.Errorf("%w: backend returned no showdown proof", domain.ErrMpcComputationFailed)
	}
	if err := sd.Proof.Check(c.now(), c.cfg.FreshnessWindow); err != nil {
		return err
	}
	if err := checkReveal(sd, deck); err != nil {
		return err
	}
	return c.verify(sd.Proof)
}

func (c *Coordinator) verify(p *domain.Proof) error {
	if c.verifier == nil {
		return nil
	}
	return c.verifier.VerifyProof(p)
}

// withRetry runs fn with a per-attempt timeout. Timeouts and unclassified
// backend errors count as computation failures and are retried with capped
// exponential backoff; every other error is returned at once.
func withRetry[T any](ctx context.Context, c *Coordinator, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := c.cfg.BaseBackoff

	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		out, err := fn(actx)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("dealing: %s: %w", op, ctxErr)
		}
		switch {
		case timedOut:
			err = fmt.Errorf("%w: timed out after %s", domain.ErrMpcComputationFailed, c.cfg.Timeout)
		case domain.KindOf(err) == domain.KindUnknown:
			err = fmt.Errorf("%w: %v", domain.ErrMpcComputationFailed, err)
		}
		if !domain.Retryable(err) || attempt >= c.cfg.MaxAttempts {
			return zero, fmt.Errorf("dealing: %s: attempt %d/%d: %w", op, attempt, c.cfg.MaxAttempts, err)
		}

		c.logger.WarnContext(ctx, "dealing: backend attempt failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("dealing: %s: %w", op, err)
		}
		delay *= 2
		if delay > c.cfg.MaxBackoff {
			delay = c.cfg.MaxBackoff
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// checkParticipants requires 2-9 distinct, non-empty identities short
// enough for the ledger deck layout.
func checkParticipants(participants []string) error {
	if err := checkPlayers(len(participants)); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(participants))
	for i, p := range participants {
		if p == "" || len(p) > math.MaxUint8 {
			return fmt.Errorf("%w: participant %d identity length %d", domain.ErrInvalidInput, i, len(p))
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: participant %q seated twice", domain.ErrInvalidInput, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}
