package dealing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
)

// TableRecipient is the identity community and undealt cards are encrypted
// to.
func TableRecipient(tableID string) string {
	return "table:" + tableID
}

// LocalBackend deals in-process from a master key. Card keys, nonces and the
// commitment salt are all derived from the master key, so the backend keeps
// no per-deck state and any replica holding the key can decrypt or reveal.
type LocalBackend struct {
	masterKey []byte
	signer    ProofSigner
	random    io.Reader
	now       func() time.Time
}

// LocalOption configures a LocalBackend.
type LocalOption func(*LocalBackend)

// WithSigner signs every proof the backend issues.
func WithSigner(s ProofSigner) LocalOption {
	return func(b *LocalBackend) { b.signer = s }
}

// WithRandom replaces crypto/rand as the shuffle seed source.
func WithRandom(r io.Reader) LocalOption {
	return func(b *LocalBackend) { b.random = r }
}

// WithLocalClock replaces time.Now for proof timestamps.
func WithLocalClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) { b.now = now }
}

// NewLocalBackend returns a backend keyed by masterKey.
func NewLocalBackend(masterKey []byte, opts ...LocalOption) *LocalBackend {
	b := &LocalBackend{
		masterKey: append([]byte(nil), masterKey...),
		random:    rand.Reader,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

var _ Backend = (*LocalBackend)(nil)

// GenerateDeck shuffles with a fresh random seed and encrypts hole cards to
// their seats and every other card to the table.
func (b *LocalBackend) GenerateDeck(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error) {
	if err := ctx.Err(); err != nil {
		return domain.EncryptedDeck{}, err
	}
	n := len(req.Participants)
	if err := checkPlayers(n); err != nil {
		return domain.EncryptedDeck{}, err
	}
	if req.NumCards != domain.DeckSize {
		return domain.EncryptedDeck{}, fmt.Errorf("dealing/local: %w: %d cards requested", domain.ErrDeckSize, req.NumCards)
	}

	seed := make([]byte, 32)
	if _, err := io.ReadFull(b.random, seed); err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("dealing/local: %w: reading seed: %v", domain.ErrMpcComputationFailed, err)
	}
	order := shuffledDeck(append(seed, req.CommitmentHash[:]...))

	salt := b.mac("salt", []byte(req.TableID), req.CommitmentHash[:])
	commitment := fairness.CommitWithSalt(cardBytes(order), salt).Hash

	deck := domain.EncryptedDeck{
		TableID:    req.TableID,
		Commitment: commitment,
		Cards:      make([]domain.EncryptedCard, len(order)),
	}
	for i, card := range order {
		recipient := TableRecipient(req.TableID)
		if i < 2*n {
			recipient = req.Participants[i%n]
		}
		ct, err := b.seal(req.TableID, recipient, commitment, i, card)
		if err != nil {
			return domain.EncryptedDeck{}, err
		}
		deck.Cards[i] = domain.EncryptedCard{
			Ciphertext:    ct,
			Recipient:     recipient,
			ProofFragment: b.mac("fragment", commitment[:], u32(i), ct)[:16],
		}
	}

	proof, err := b.issue(b.mac("deck", []byte(req.TableID), commitment[:]), req.CommitmentHash[:])
	if err != nil {
		return domain.EncryptedDeck{}, err
	}
	deck.Proof = proof
	return deck, nil
}

// Decrypt opens cards addressed to req.Recipient.
func (b *LocalBackend) Decrypt(ctx context.Context, req DecryptRequest) ([]domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Card, 0, len(req.Cards))
	for i, c := range req.Cards {
		if c.Recipient != req.Recipient {
			return nil, fmt.Errorf("dealing/local: %w: card %d is not addressed to %q", domain.ErrMalformedDeck, i, req.Recipient)
		}
		card, err := b.open(req.TableID, c)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, nil
}

// Reveal decrypts the whole deck and proves it matches the commitment. The
// proof's public inputs carry the commitment salt so anyone can recompute
// SHA256(cards ++ salt).
func (b *LocalBackend) Reveal(ctx context.Context, req ShowdownRequest) (domain.Showdown, error) {
	if err := ctx.Err(); err != nil {
		return domain.Showdown{}, err
	}
	deck := req.Deck
	if deck.Proof == nil || len(deck.Proof.PublicInputs) != 32 {
		return domain.Showdown{}, fmt.Errorf("dealing/local: %w: deck proof lacks commitment inputs", domain.ErrMalformedDeck)
	}

	cards := make([]domain.Card, len(deck.Cards))
	for i, c := range deck.Cards {
		card, err := b.open(req.TableID, c)
		if err != nil {
			return domain.Showdown{}, fmt.Errorf("card %d: %w", i, err)
		}
		cards[i] = card
	}

	salt := b.mac("salt", []byte(req.TableID), deck.Proof.PublicInputs)
	if fairness.CommitWithSalt(cardBytes(cards), salt).Hash != deck.Commitment {
		return domain.Showdown{}, fmt.Errorf("dealing/local: %w", domain.ErrCommitmentMismatch)
	}

	proof, err := b.issue(b.mac("showdown", []byte(req.TableID), deck.Commitment[:], cardBytes(cards)), salt)
	if err != nil {
		return domain.Showdown{}, err
	}
	return domain.Showdown{
		TableID:    req.TableID,
		Commitment: deck.Commitment,
		Cards:      cards,
		Proof:      proof,
	}, nil
}

// VerifyLocalReveal recomputes a LocalBackend showdown commitment from the
// revealed cards and the salt in the proof's public inputs.
func VerifyLocalReveal(sd domain.Showdown) bool {
	if sd.Proof == nil {
		return false
	}
	return fairness.VerifyCommitment(fairness.Commitment{Hash: sd.Commitment, Salt: sd.Proof.PublicInputs}, cardBytes(sd.Cards))
}

func (b *LocalBackend) issue(body, publicInputs []byte) (*domain.Proof, error) {
	p := &domain.Proof{
		ComputationID: uuid.NewString(),
		Proof:         body,
		PublicInputs:  append([]byte(nil), publicInputs...),
		Timestamp:     b.now(),
	}
	if b.signer != nil {
		sig, err := b.signer.SignProof(p)
		if err != nil {
			return nil, fmt.Errorf("dealing/local: %w: %v", domain.ErrMpcComputationFailed, err)
		}
		p.ClusterSignature = sig
	}
	return p, nil
}

func (b *LocalBackend) aead(tableID, recipient string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.mac("card-key", []byte(tableID), []byte(recipient)))
	if err != nil {
		return nil, fmt.Errorf("dealing/local: creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// seal returns nonce || AES-GCM(card). The nonce is unique per commitment
// and deck position.
func (b *LocalBackend) seal(tableID, recipient string, commitment [32]byte, i int, card domain.Card) ([]byte, error) {
	gcm, err := b.aead(tableID, recipient)
	if err != nil {
		return nil, err
	}
	nonce := b.mac("nonce", commitment[:], u32(i))[:gcm.NonceSize()]
	return gcm.Seal(append([]byte(nil), nonce...), nonce, []byte{byte(card)}, []byte(tableID+"|"+recipient)), nil
}

func (b *LocalBackend) open(tableID string, c domain.EncryptedCard) (domain.Card, error) {
	gcm, err := b.aead(tableID, c.Recipient)
	if err != nil {
		return 0, err
	}
	ns := gcm.NonceSize()
	if len(c.Ciphertext) <= ns {
		return 0, fmt.Errorf("dealing/local: %w: ciphertext too short", domain.ErrMalformedDeck)
	}
	plain, err := gcm.Open(nil, c.Ciphertext[:ns], c.Ciphertext[ns:], []byte(tableID+"|"+c.Recipient))
	if err != nil || len(plain) != 1 || !domain.Card(plain[0]).Valid() {
		return 0, fmt.Errorf("dealing/local: %w: card does not decrypt", domain.ErrMalformedDeck)
	}
	return domain.Card(plain[0]), nil
}

// mac is HMAC-SHA256 over a label and length-prefixed parts.
func (b *LocalBackend) mac(label string, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, b.masterKey)
	m.Write([]byte(label))
	for _, p := range parts {
		m.Write(u32(len(p)))
		m.Write(p)
	}
	return m.Sum(nil)
}

func u32(n int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	return b[:]
}

// shuffledDeck is a Fisher-Yates shuffle driven by SHA256(seed || counter).
func shuffledDeck(seed []byte) []domain.Card {
	deck := make([]domain.Card, domain.DeckSize)
	for i := range deck {
		deck[i] = domain.Card(i)
	}
	buf := make([]byte, len(seed)+8)
	copy(buf, seed)
	var counter uint64
	for i := len(deck) - 1; i > 0; i-- {
		binary.LittleEndian.PutUint64(buf[len(seed):], counter)
		h := sha256.Sum256(buf)
		counter++
		j := int(binary.LittleEndian.Uint64(h[:8]) % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

func cardBytes(cards []domain.Card) []byte {
	out := make([]byte, len(cards))
	for i, c := range cards {
		out[i] = byte(c)
	}
	return out
}
