package dealing

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// MarshalDeck encodes a deck for the ledger program:
//
//	commitment[32] | u16le num_cards |
//	per card: u16le len | ciphertext | u8 len | recipient | u16le len | proof_fragment
func MarshalDeck(deck domain.EncryptedDeck) ([]byte, error) {
	if len(deck.Cards) > math.MaxUint16 {
		return nil, fmt.Errorf("dealing: marshal deck: %d cards", len(deck.Cards))
	}
	buf := make([]byte, 0, 32+2+len(deck.Cards)*96)
	buf = append(buf, deck.Commitment[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(deck.Cards)))

	for i, c := range deck.Cards {
		if len(c.Ciphertext) > math.MaxUint16 || len(c.ProofFragment) > math.MaxUint16 || len(c.Recipient) > math.MaxUint8 {
			return nil, fmt.Errorf("dealing: marshal deck: card %d field too long", i)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.Ciphertext)))
		buf = append(buf, c.Ciphertext...)
		buf = append(buf, uint8(len(c.Recipient)))
		buf = append(buf, c.Recipient...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.ProofFragment)))
		buf = append(buf, c.ProofFragment...)
	}
	return buf, nil
}

// MarshalShowdownProof encodes a showdown proof bound to its deck:
//
//	u8 outcome | u32le len | proof | u32le len | public_inputs | deck_commitment[32]
func MarshalShowdownProof(p *domain.Proof, deckCommitment [32]byte) ([]byte, error) {
	if p == nil {
		return nil, domain.ErrMissingProof
	}
	buf := make([]byte, 0, 1+4+len(p.Proof)+4+len(p.PublicInputs)+32)
	buf = append(buf, p.Outcome)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Proof)))
	buf = append(buf, p.Proof...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.PublicInputs)))
	buf = append(buf, p.PublicInputs...)
	buf = append(buf, deckCommitment[:]...)
	return buf, nil
}

// MarshalProof encodes a single-outcome proof:
//
//	computation_id[32, zero padded] | u8 outcome | proof | public_inputs |
//	u64le timestamp_ms | cluster_signature
//
// The variable-length fields are not length-prefixed; the ledger program
// knows their sizes.
func MarshalProof(p *domain.Proof) ([]byte, error) {
	if p == nil {
		return nil, domain.ErrMissingProof
	}
	var id [32]byte
	copy(id[:], p.ComputationID)

	buf := make([]byte, 0, 32+1+len(p.Proof)+len(p.PublicInputs)+8+len(p.ClusterSignature))
	buf = append(buf, id[:]...)
	buf = append(buf, p.Outcome)
	buf = append(buf, p.Proof...)
	buf = append(buf, p.PublicInputs...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Timestamp.UnixMilli()))
	buf = append(buf, p.ClusterSignature...)
	return buf, nil
}
