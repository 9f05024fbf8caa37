package domain

import (
	"fmt"
	"time"
)

// GameKind identifies which casino game a game instance belongs to.
type GameKind string

const (
	GameFlip  GameKind = "flip"  // coin flip
	GameFight GameKind = "fight" // token-vs-token match
	GameDerby GameKind = "derby" // horse race
	GamePoker GameKind = "poker" // hold'em
)

// MarketKind selects the odds scheme used to price a game's pool.
type MarketKind string

const (
	// MarketBinary uses plain proportional-share odds.
	MarketBinary MarketKind = "binary"
	// MarketParimutuel uses inverse-bet weighting across N buckets.
	MarketParimutuel MarketKind = "parimutuel"
)

// Valid reports whether k is a known game kind.
func (k GameKind) Valid() bool {
	switch k {
	case GameFlip, GameFight, GameDerby, GamePoker:
		return true
	}
	return false
}

// Market returns the odds scheme for the game kind.
func (k GameKind) Market() MarketKind {
	if k == GameDerby {
		return MarketParimutuel
	}
	return MarketBinary
}

// BucketRange returns the inclusive bounds on the number of outcome buckets.
func (k GameKind) BucketRange() (lo, hi int) {
	switch k {
	case GameFlip, GameFight:
		return 2, 2
	case GameDerby:
		return 2, 8
	case GamePoker:
		return MinSeats, MaxSeats
	}
	return 0, 0
}

// DefaultFeeBps returns the house fee charged by the game kind when the
// deployment does not override it.
func (k GameKind) DefaultFeeBps() uint32 {
	if k == GamePoker {
		return 50
	}
	return 100
}

// MaxBuckets bounds every game's bucket count.
const MaxBuckets = 9

// Bucket is an outcome index within a game: a coin side, a token, a horse
// or a poker seat.
type Bucket uint8

const (
	BucketHeads Bucket = 0
	BucketTails Bucket = 1

	BucketTokenA Bucket = 0
	BucketTokenB Bucket = 1
)

// NewBucket validates i against a game with n buckets.
func NewBucket(i, n int) (Bucket, error) {
	if n < 1 || n > MaxBuckets || i < 0 || i >= n {
		return 0, fmt.Errorf("%w: %d of %d", ErrInvalidBucket, i, n)
	}
	return Bucket(i), nil
}

// Index returns the bucket as a slice index.
func (b Bucket) Index() int { return int(b) }

// GameStatus tracks the one-way game lifecycle.
type GameStatus string

const (
	GameStatusOpen      GameStatus = "open"
	GameStatusResolved  GameStatus = "resolved"
	GameStatusCancelled GameStatus = "cancelled"
)

// GameInstance is a single round of a game that wagers are placed against.
type GameInstance struct {
	ID          string
	Kind        GameKind
	Buckets     int
	FeeBps      uint32
	Status      GameStatus
	Outcome     *ResolvedOutcome
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Validate checks the static shape of the game instance.
func (g GameInstance) Validate() error {
	if !g.Kind.Valid() {
		return fmt.Errorf("%w: unknown game kind %q", ErrInvalidInput, g.Kind)
	}
	lo, hi := g.Kind.BucketRange()
	if g.Buckets < lo || g.Buckets > hi {
		return fmt.Errorf("%w: %s takes %d-%d buckets, got %d", ErrInvalidBucket, g.Kind, lo, hi, g.Buckets)
	}
	if g.FeeBps > MaxFeeBps {
		return fmt.Errorf("%w: %d", ErrInvalidFee, g.FeeBps)
	}
	return nil
}

// Resolve moves the game from Open to Resolved exactly once.
func (g *GameInstance) Resolve(out ResolvedOutcome) error {
	switch g.Status {
	case GameStatusOpen:
	case GameStatusResolved:
		return fmt.Errorf("game %s: %w", g.ID, ErrAlreadyResolved)
	default:
		return fmt.Errorf("game %s is %s: %w", g.ID, g.Status, ErrGameNotOpen)
	}
	if _, err := NewBucket(out.WinningBucket.Index(), g.Buckets); err != nil {
		return err
	}
	out.GameID = g.ID
	g.Outcome = &out
	g.Status = GameStatusResolved
	return nil
}

// Cancel moves the game from Open to Cancelled.
func (g *GameInstance) Cancel(at time.Time) error {
	if g.Status != GameStatusOpen {
		return fmt.Errorf("game %s is %s: %w", g.ID, g.Status, ErrGameNotOpen)
	}
	g.Status = GameStatusCancelled
	g.CancelledAt = &at
	return nil
}

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10_000
