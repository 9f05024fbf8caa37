package domain

import (
	"fmt"
	"time"
)

// DefaultFreshnessWindow bounds how old a proof may be before it is rejected.
const DefaultFreshnessWindow = 5 * time.Minute

// Proof is the attestation returned by the MPC cluster for deck generation,
// showdown reveals and single-outcome computations.
type Proof struct {
	ComputationID    string
	Outcome          uint8
	Proof            []byte
	PublicInputs     []byte
	Timestamp        time.Time
	ClusterSignature []byte
}

// Fresh reports whether the proof timestamp lies within window of now.
// Timestamps further than window in the future are also rejected.
func (p *Proof) Fresh(now time.Time, window time.Duration) bool {
	if p == nil || p.Timestamp.IsZero() {
		return false
	}
	age := now.Sub(p.Timestamp)
	return age <= window && age >= -window
}

// Check returns an integrity error when the proof is missing, empty or stale.
func (p *Proof) Check(now time.Time, window time.Duration) error {
	if p == nil || len(p.Proof) == 0 {
		return ErrMissingProof
	}
	if !p.Fresh(now, window) {
		return fmt.Errorf("%w: issued %s, now %s", ErrStaleProof,
			p.Timestamp.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}
