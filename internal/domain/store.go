package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// GameStore persists game instances. Settle and Cancel are the only
// transitions out of Open and each applies at most once. Both lock the game
// against new wagers and fail with ErrWagersChanged when the records do not
// cover exactly the game's wagers at that point; the caller rebuilds the
// records and tries again.
type GameStore interface {
	Create(ctx context.Context, game GameInstance) error
	GetByID(ctx context.Context, id string) (GameInstance, error)
	ListByStatus(ctx context.Context, status GameStatus, opts ListOpts) ([]GameInstance, error)
	// Settle records the outcome, payouts and wager statuses atomically.
	// Returns ErrAlreadyResolved if the game has left Open.
	Settle(ctx context.Context, out ResolvedOutcome, payouts []PayoutRecord) error
	// Cancel marks the game cancelled and its wagers refunded atomically.
	Cancel(ctx context.Context, gameID string, at time.Time, refunds []RefundRecord) error
}

// WagerStore persists wagers.
type WagerStore interface {
	Create(ctx context.Context, w Wager) error
	GetByID(ctx context.Context, id string) (Wager, error)
	ListByGame(ctx context.Context, gameID string) ([]Wager, error)
	ListByBettor(ctx context.Context, bettor string, opts ListOpts) ([]Wager, error)
	MarkClaimed(ctx context.Context, id string) error
}

// PayoutStore reads settlement results.
type PayoutStore interface {
	ListByGame(ctx context.Context, gameID string) ([]PayoutRecord, error)
}

// SeedStore persists seed pairs and their reveals. Nonces restart at zero
// on rotation, so reveals are keyed by bettor, seed hash and nonce.
type SeedStore interface {
	GetActive(ctx context.Context, bettor string) (SeedPair, error)
	Save(ctx context.Context, pair SeedPair) error
	// AdvanceNonce increments the active nonce only if it still equals
	// expected, returning ErrConflict otherwise.
	AdvanceNonce(ctx context.Context, bettor string, expected uint64) error
	RecordReveal(ctx context.Context, rev SeedReveal) error
	GetReveal(ctx context.Context, bettor, hashedServerSeed string, nonce uint64) (SeedReveal, error)
	PurgeReveals(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
