package domain

import (
	"fmt"
	"time"
)

// WagerStatus tracks a wager through settlement and claim.
type WagerStatus string

const (
	WagerStatusPending  WagerStatus = "pending"
	WagerStatusWon      WagerStatus = "won"
	WagerStatusLost     WagerStatus = "lost"
	WagerStatusRefunded WagerStatus = "refunded"
	WagerStatusClaimed  WagerStatus = "claimed"
)

// Wager is a stake placed by a bettor on one outcome bucket of a game.
// Amount is in the smallest currency unit and never changes after placement.
type Wager struct {
	ID       string
	GameID   string
	Bettor   string
	Amount   uint64
	Bucket   Bucket
	PlacedAt time.Time
	Status   WagerStatus
}

// Default wager bounds in smallest currency units (0.001 and 100 whole units
// at nine decimals).
const (
	DefaultMinBet uint64 = 1_000_000
	DefaultMaxBet uint64 = 100_000_000_000
)

// BetLimits is the inclusive wager range for a deployment.
type BetLimits struct {
	Min uint64
	Max uint64
}

// DefaultBetLimits returns the stock wager range.
func DefaultBetLimits() BetLimits {
	return BetLimits{Min: DefaultMinBet, Max: DefaultMaxBet}
}

// Validate rejects amounts outside [Min, Max].
func (l BetLimits) Validate(amount uint64) error {
	if amount < l.Min || amount > l.Max {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrBetOutOfRange, amount, l.Min, l.Max)
	}
	return nil
}

// ResolvedOutcome is the write-once result of a game instance.
type ResolvedOutcome struct {
	GameID        string
	WinningBucket Bucket
	ResolvedAt    time.Time
	Proof         *Proof
}

// PayoutRecord is the settlement result for one wager. Losing wagers carry
// zero winnings.
type PayoutRecord struct {
	WagerID       string
	Bettor        string
	Won           bool
	Winnings      uint64
	HouseFeeShare uint64
}

// RefundRecord returns a cancelled wager's full stake.
type RefundRecord struct {
	WagerID string
	Bettor  string
	Amount  uint64
}
