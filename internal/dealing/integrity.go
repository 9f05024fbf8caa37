package dealing

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// CommunityCards is the number of flop, turn and river cards.
const CommunityCards = 5

// PlayerHoleCardIndices returns the deck positions of a seat's hole cards.
// Hole cards are dealt round-robin: seat, then seat + players.
func PlayerHoleCardIndices(seat, players int) ([2]int, error) {
	if err := checkPlayers(players); err != nil {
		return [2]int{}, err
	}
	if seat < 0 || seat >= players {
		return [2]int{}, fmt.Errorf("dealing: %w: seat %d of %d", domain.ErrInvalidInput, seat, players)
	}
	return [2]int{seat, seat + players}, nil
}

// CommunityCardIndices returns the deck positions of the five community
// cards, which follow every hole card in deck order.
func CommunityCardIndices(players int) ([CommunityCards]int, error) {
	var out [CommunityCards]int
	if err := checkPlayers(players); err != nil {
		return out, err
	}
	for i := range out {
		out[i] = 2*players + i
	}
	return out, nil
}

func checkPlayers(n int) error {
	if n < domain.MinSeats || n > domain.MaxSeats {
		return fmt.Errorf("dealing: %w: %d (want %d-%d)", domain.ErrInvalidParticipantCount, n, domain.MinSeats, domain.MaxSeats)
	}
	return nil
}

// ValidateDeckIntegrity is a local pre-flight check on a deck: 52 cards, a
// non-zero commitment, a fresh non-empty proof, and every card carrying
// ciphertext, recipient and proof fragment. It is advisory and never
// replaces verification by the cluster or the ledger.
func ValidateDeckIntegrity(deck domain.EncryptedDeck, now time.Time, window time.Duration) bool {
	return checkDeck(deck, now, window) == nil
}

// checkDeck reports the first integrity problem with a deck.
func checkDeck(deck domain.EncryptedDeck, now time.Time, window time.Duration) error {
	if len(deck.Cards) != domain.DeckSize {
		return fmt.Errorf("%w: got %d", domain.ErrDeckSize, len(deck.Cards))
	}
	if deck.Commitment == ([32]byte{}) {
		return fmt.Errorf("%w: empty commitment", domain.ErrMalformedDeck)
	}
	if err := deck.Proof.Check(now, window); err != nil {
		return err
	}
	for i, c := range deck.Cards {
		if len(c.Ciphertext) == 0 || c.Recipient == "" || len(c.ProofFragment) == 0 {
			return fmt.Errorf("%w: card %d incomplete", domain.ErrMalformedDeck, i)
		}
	}
	return nil
}

// checkDealOrder verifies each seat's hole cards are addressed to that seat.
func checkDealOrder(deck domain.EncryptedDeck, participants []string) error {
	for seat, p := range participants {
		idx, err := PlayerHoleCardIndices(seat, len(participants))
		if err != nil {
			return err
		}
		for _, i := range idx {
			if deck.Cards[i].Recipient != p {
				return fmt.Errorf("%w: card %d addressed to %q, want %q",
					domain.ErrMalformedDeck, i, deck.Cards[i].Recipient, p)
			}
		}
	}
	return nil
}

// checkReveal verifies a showdown is a permutation of the full deck under
// the original commitment.
func checkReveal(sd domain.Showdown, deck domain.EncryptedDeck) error {
	if len(sd.Cards) != domain.DeckSize {
		return fmt.Errorf("%w: showdown revealed %d cards", domain.ErrDeckSize, len(sd.Cards))
	}
	if sd.Commitment != deck.Commitment {
		return domain.ErrCommitmentMismatch
	}
	var seen [domain.DeckSize]bool
	for i, c := range sd.Cards {
		if !c.Valid() || seen[c] {
			return fmt.Errorf("%w: showdown card %d (%s) invalid or repeated", domain.ErrMalformedDeck, i, c)
		}
		seen[c] = true
	}
	return nil
}
