package dealing

import (
	"context"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// DeckRequest asks a backend to shuffle and encrypt a deck for a table.
type DeckRequest struct {
	TableID        string   `json:"table_id"`
	Participants   []string `json:"participant_identities"`
	NumCards       int      `json:"num_cards"`
	CommitmentHash [32]byte `json:"commitment_hash"`
	Nonce          string   `json:"nonce"`
}

// DecryptRequest asks a backend to decrypt cards addressed to one recipient.
type DecryptRequest struct {
	TableID   string                 `json:"table_id"`
	Cards     []domain.EncryptedCard `json:"encrypted_cards"`
	Recipient string                 `json:"recipient_identity"`
}

// ShowdownRequest asks a backend to reveal a deck with a consistency proof.
type ShowdownRequest struct {
	TableID string               `json:"table_id"`
	Deck    domain.EncryptedDeck `json:"encrypted_deck"`
}

// Backend performs the cryptographic work of dealing. The coordinator
// validates structure but trusts a backend's cryptographic correctness.
type Backend interface {
	GenerateDeck(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error)
	Decrypt(ctx context.Context, req DecryptRequest) ([]domain.Card, error)
	Reveal(ctx context.Context, req ShowdownRequest) (domain.Showdown, error)
}

// ProofVerifier checks a backend attestation, typically its cluster
// signature.
type ProofVerifier interface {
	VerifyProof(p *domain.Proof) error
}

// ProofSigner attests proofs produced by an in-process backend.
type ProofSigner interface {
	SignProof(p *domain.Proof) ([]byte, error)
}
