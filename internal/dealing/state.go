// Package dealing coordinates encrypted card dealing for hold'em tables. A
// Backend performs the shuffle, per-recipient encryption, decryption and
// showdown proof; the Coordinator validates what the backend returns, keeps
// per-hand bookkeeping and refuses to run two backend requests for the same
// table at once.
package dealing

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// ProtocolVersion selects the dealing backend for a deployment. It is chosen
// once at startup and never per call.
type ProtocolVersion string

const (
	// ProtocolLegacy deals with the in-process LocalBackend.
	ProtocolLegacy ProtocolVersion = "legacy"
	// ProtocolMpc deals through the external MPC cluster.
	ProtocolMpc ProtocolVersion = "mpc"
)

// ParseProtocolVersion accepts "legacy" or "mpc" in any case.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch v := ProtocolVersion(strings.ToLower(strings.TrimSpace(s))); v {
	case ProtocolLegacy, ProtocolMpc:
		return v, nil
	}
	return "", fmt.Errorf("%w: protocol version %q", domain.ErrInvalidInput, s)
}

// HandState is the per-hand dealing state.
type HandState int

const (
	StateIdle HandState = iota
	StateDeckRequested
	StateDeckGenerated
	StateCardsDelivered
	StatePlaying
	StateShowdownRequested
	StateRevealed
)

var stateNames = [...]string{
	"idle",
	"deck_requested",
	"deck_generated",
	"cards_delivered",
	"playing",
	"showdown_requested",
	"revealed",
}

func (s HandState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal edges. A failed backend request falls back to
// the state it started from; an integrity violation during showdown aborts
// the hand to Idle. Revealed is terminal for a hand and a new hand starts
// again from Idle.
var transitions = map[HandState][]HandState{
	StateIdle:              {StateDeckRequested},
	StateDeckRequested:     {StateDeckGenerated, StateIdle},
	StateDeckGenerated:     {StateCardsDelivered},
	StateCardsDelivered:    {StatePlaying},
	StatePlaying:           {StateShowdownRequested},
	StateShowdownRequested: {StateRevealed, StatePlaying, StateIdle},
	StateRevealed:          {StateIdle},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to HandState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
