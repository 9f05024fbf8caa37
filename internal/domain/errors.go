package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrConflict      = errors.New("concurrent update")
)

// Validation errors: the caller can correct the input and retry.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrEmptySeed               = errors.New("seed must not be empty")
	ErrBetOutOfRange           = errors.New("bet amount out of range")
	ErrInvalidBucket           = errors.New("invalid outcome bucket")
	ErrInvalidFee              = errors.New("fee basis points out of range")
	ErrInvalidParticipantCount = errors.New("invalid participant count")
	ErrInvalidTransition       = errors.New("invalid hand state transition")
	ErrRequestInFlight         = errors.New("request already in flight")
	ErrAlreadyResolved         = errors.New("game already resolved")
	ErrGameNotOpen             = errors.New("game is not open")
	ErrSeedStillActive         = errors.New("server seed still active")
	ErrRevealExpired           = errors.New("seed reveal expired")
	ErrWagersChanged           = errors.New("wagers changed during settlement")
)

// Computation failures: retryable with backoff.
var (
	ErrMpcComputationFailed = errors.New("mpc computation failed")
)

// Integrity violations: abort the hand or bet, never repair the data.
var (
	ErrUnexpectedCardCount = errors.New("unexpected card count")
	ErrDeckSize            = errors.New("deck must contain 52 cards")
	ErrMalformedDeck       = errors.New("malformed encrypted deck")
	ErrMissingProof        = errors.New("proof missing or empty")
	ErrStaleProof          = errors.New("proof outside freshness window")
	ErrCommitmentMismatch  = errors.New("commitment mismatch")
	ErrBadClusterSignature = errors.New("cluster signature invalid")
)

// Arithmetic degenerates: short-circuit to a zero payout.
var (
	ErrNoBetsOnWinner = errors.New("no bets on winning bucket")
	ErrOverflow       = errors.New("arithmetic overflow")
)

// ErrorKind classifies an error for retry and transport decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindComputation
	KindIntegrity
	KindArithmetic
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindComputation:
		return "computation"
	case KindIntegrity:
		return "integrity"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// kindTable is checked in order, so integrity wins over computation when an
// error chain carries both.
var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnexpectedCardCount, KindIntegrity},
	{ErrDeckSize, KindIntegrity},
	{ErrMalformedDeck, KindIntegrity},
	{ErrMissingProof, KindIntegrity},
	{ErrStaleProof, KindIntegrity},
	{ErrCommitmentMismatch, KindIntegrity},
	{ErrBadClusterSignature, KindIntegrity},
	{ErrNoBetsOnWinner, KindArithmetic},
	{ErrOverflow, KindArithmetic},
	{ErrMpcComputationFailed, KindComputation},
	{ErrInvalidInput, KindValidation},
	{ErrEmptySeed, KindValidation},
	{ErrBetOutOfRange, KindValidation},
	{ErrInvalidBucket, KindValidation},
	{ErrInvalidFee, KindValidation},
	{ErrInvalidParticipantCount, KindValidation},
	{ErrInvalidTransition, KindValidation},
	{ErrRequestInFlight, KindValidation},
	{ErrAlreadyResolved, KindValidation},
	{ErrGameNotOpen, KindValidation},
	{ErrSeedStillActive, KindValidation},
	{ErrRevealExpired, KindValidation},
	{ErrWagersChanged, KindValidation},
	{ErrNotFound, KindValidation},
	{ErrAlreadyExists, KindValidation},
	{ErrUnauthorized, KindValidation},
	{ErrLockHeld, KindValidation},
	{ErrConflict, KindValidation},
}

// KindOf reports the taxonomy class of err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether err should be retried with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindComputation
}
