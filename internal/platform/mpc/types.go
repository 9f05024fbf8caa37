package mpc

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
)

// --------------------------------------------------------------------------
// Cluster API DTOs
// --------------------------------------------------------------------------

// APIProof is a computation attestation as returned by the cluster. Byte
// fields travel as standard base64.
type APIProof struct {
	ComputationID    string `json:"computation_id"`
	Outcome          uint8  `json:"outcome"`
	Proof            []byte `json:"proof"`
	PublicInputs     []byte `json:"public_inputs"`
	Timestamp        int64  `json:"timestamp"` // unix milliseconds
	ClusterSignature []byte `json:"cluster_signature"`
}

// APIEncryptedCard is one encrypted deck position.
type APIEncryptedCard struct {
	Ciphertext    []byte `json:"ciphertext"`
	Recipient     string `json:"recipient"`
	ProofFragment []byte `json:"proof_fragment"`
}

// APIDeck is an encrypted deck. Commitment is hex.
type APIDeck struct {
	TableID    string             `json:"table_id"`
	Commitment string             `json:"commitment"`
	Cards      []APIEncryptedCard `json:"cards"`
	Proof      *APIProof          `json:"proof,omitempty"`
}

// APIShowdown is a full reveal. Cards are deck indices in [0, 52).
type APIShowdown struct {
	TableID    string    `json:"table_id"`
	Commitment string    `json:"commitment"`
	Cards      []int     `json:"cards"`
	Proof      *APIProof `json:"proof,omitempty"`
}

// DeckRequestBody is the POST /v1/decks payload.
type DeckRequestBody struct {
	TableID               string   `json:"table_id"`
	ParticipantIdentities []string `json:"participant_identities"`
	NumCards              int      `json:"num_cards"`
	CommitmentHash        string   `json:"commitment_hash"`
	Nonce                 string   `json:"nonce"`
}

// DecryptRequestBody is the POST /v1/decrypt payload.
type DecryptRequestBody struct {
	TableID           string             `json:"table_id"`
	EncryptedCards    []APIEncryptedCard `json:"encrypted_cards"`
	RecipientIdentity string             `json:"recipient_identity"`
}

// DecryptResponse carries decrypted deck indices.
type DecryptResponse struct {
	Cards []int `json:"cards"`
}

// ShowdownRequestBody is the POST /v1/showdown payload.
type ShowdownRequestBody struct {
	TableID       string  `json:"table_id"`
	EncryptedDeck APIDeck `json:"encrypted_deck"`
}

// APIError is the cluster's error envelope.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// --------------------------------------------------------------------------
// Conversions
// --------------------------------------------------------------------------

// ProofFromDomain converts a domain proof for the wire.
func ProofFromDomain(p *domain.Proof) *APIProof {
	if p == nil {
		return nil
	}
	return &APIProof{
		ComputationID:    p.ComputationID,
		Outcome:          p.Outcome,
		Proof:            p.Proof,
		PublicInputs:     p.PublicInputs,
		Timestamp:        p.Timestamp.UnixMilli(),
		ClusterSignature: p.ClusterSignature,
	}
}

// ToDomainProof converts a wire proof. A zero timestamp stays zero so the
// freshness check rejects it.
func (p *APIProof) ToDomainProof() *domain.Proof {
	if p == nil {
		return nil
	}
	out := &domain.Proof{
		ComputationID:    p.ComputationID,
		Outcome:          p.Outcome,
		Proof:            p.Proof,
		PublicInputs:     p.PublicInputs,
		ClusterSignature: p.ClusterSignature,
	}
	if p.Timestamp != 0 {
		out.Timestamp = time.UnixMilli(p.Timestamp)
	}
	return out
}

// DeckFromDomain converts a domain deck for the wire.
func DeckFromDomain(d domain.EncryptedDeck) APIDeck {
	out := APIDeck{
		TableID:    d.TableID,
		Commitment: hex.EncodeToString(d.Commitment[:]),
		Cards:      make([]APIEncryptedCard, len(d.Cards)),
		Proof:      ProofFromDomain(d.Proof),
	}
	for i, c := range d.Cards {
		out.Cards[i] = cardFromDomain(c)
	}
	return out
}

// ToDomainDeck converts a wire deck.
func (d *APIDeck) ToDomainDeck() (domain.EncryptedDeck, error) {
	commitment, err := parseCommitment(d.Commitment)
	if err != nil {
		return domain.EncryptedDeck{}, err
	}
	out := domain.EncryptedDeck{
		TableID:    d.TableID,
		Commitment: commitment,
		Cards:      make([]domain.EncryptedCard, len(d.Cards)),
		Proof:      d.Proof.ToDomainProof(),
	}
	for i, c := range d.Cards {
		out.Cards[i] = domain.EncryptedCard{
			Ciphertext:    c.Ciphertext,
			Recipient:     c.Recipient,
			ProofFragment: c.ProofFragment,
		}
	}
	return out, nil
}

// ShowdownFromDomain converts a domain showdown for the wire.
func ShowdownFromDomain(sd domain.Showdown) APIShowdown {
	out := APIShowdown{
		TableID:    sd.TableID,
		Commitment: hex.EncodeToString(sd.Commitment[:]),
		Cards:      make([]int, len(sd.Cards)),
		Proof:      ProofFromDomain(sd.Proof),
	}
	for i, c := range sd.Cards {
		out.Cards[i] = int(c)
	}
	return out
}

// ToDomainShowdown converts a wire showdown.
func (s *APIShowdown) ToDomainShowdown() (domain.Showdown, error) {
	commitment, err := parseCommitment(s.Commitment)
	if err != nil {
		return domain.Showdown{}, err
	}
	cards, err := toCards(s.Cards)
	if err != nil {
		return domain.Showdown{}, err
	}
	return domain.Showdown{
		TableID:    s.TableID,
		Commitment: commitment,
		Cards:      cards,
		Proof:      s.Proof.ToDomainProof(),
	}, nil
}

// DeckRequestFromDomain converts a deck request for the wire.
func DeckRequestFromDomain(req dealing.DeckRequest) DeckRequestBody {
	return DeckRequestBody{
		TableID:               req.TableID,
		ParticipantIdentities: req.Participants,
		NumCards:              req.NumCards,
		CommitmentHash:        hex.EncodeToString(req.CommitmentHash[:]),
		Nonce:                 req.Nonce,
	}
}

// ToDomain converts a wire deck request.
func (b *DeckRequestBody) ToDomain() (dealing.DeckRequest, error) {
	h, err := parseCommitment(b.CommitmentHash)
	if err != nil {
		return dealing.DeckRequest{}, err
	}
	return dealing.DeckRequest{
		TableID:        b.TableID,
		Participants:   b.ParticipantIdentities,
		NumCards:       b.NumCards,
		CommitmentHash: h,
		Nonce:          b.Nonce,
	}, nil
}

// ToDomainCards converts wire cards.
func ToDomainCards(cards []APIEncryptedCard) []domain.EncryptedCard {
	out := make([]domain.EncryptedCard, len(cards))
	for i, c := range cards {
		out[i] = domain.EncryptedCard{Ciphertext: c.Ciphertext, Recipient: c.Recipient, ProofFragment: c.ProofFragment}
	}
	return out
}

func cardFromDomain(c domain.EncryptedCard) APIEncryptedCard {
	return APIEncryptedCard{Ciphertext: c.Ciphertext, Recipient: c.Recipient, ProofFragment: c.ProofFragment}
}

func parseCommitment(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(out) {
		return out, fmt.Errorf("%w: commitment %q is not 32 hex bytes", domain.ErrMalformedDeck, s)
	}
	copy(out[:], raw)
	return out, nil
}

func toCards(idx []int) ([]domain.Card, error) {
	out := make([]domain.Card, len(idx))
	for i, v := range idx {
		if v < 0 || v >= domain.DeckSize {
			return nil, fmt.Errorf("%w: card index %d", domain.ErrMalformedDeck, v)
		}
		out[i] = domain.Card(v)
	}
	return out, nil
}
