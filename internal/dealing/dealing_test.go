package dealing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/crypto"
	"github.com/alanyoungcy/housefun/internal/domain"
)

var players = []string{"alice", "bob", "carol", "dave"}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptedBackend delegates to a LocalBackend unless a hook overrides the
// call.
type scriptedBackend struct {
	local    *LocalBackend
	generate func(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error)
	reveal   func(ctx context.Context, req ShowdownRequest) (domain.Showdown, error)

	deckCalls   atomic.Int32
	revealCalls atomic.Int32
}

func (b *scriptedBackend) GenerateDeck(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error) {
	b.deckCalls.Add(1)
	if b.generate != nil {
		return b.generate(ctx, req)
	}
	return b.local.GenerateDeck(ctx, req)
}

func (b *scriptedBackend) Decrypt(ctx context.Context, req DecryptRequest) ([]domain.Card, error) {
	return b.local.Decrypt(ctx, req)
}

func (b *scriptedBackend) Reveal(ctx context.Context, req ShowdownRequest) (domain.Showdown, error) {
	b.revealCalls.Add(1)
	if b.reveal != nil {
		return b.reveal(ctx, req)
	}
	return b.local.Reveal(ctx, req)
}

func newTestCoordinator(b Backend, opts ...CoordinatorOption) *Coordinator {
	cfg := CoordinatorConfig{
		Timeout:     time.Second,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  4 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []CoordinatorOption{WithSleep(func(context.Context, time.Duration) error { return nil })}
	return NewCoordinator(b, cfg, logger, append(base, opts...)...)
}

func TestDealingOrderIndices(t *testing.T) {
	idx, err := PlayerHoleCardIndices(0, 4)
	require.NoError(t, err)
	require.Equal(t, [2]int{0, 4}, idx)

	idx, err = PlayerHoleCardIndices(8, 9)
	require.NoError(t, err)
	require.Equal(t, [2]int{8, 17}, idx)

	comm, err := CommunityCardIndices(4)
	require.NoError(t, err)
	require.Equal(t, [5]int{8, 9, 10, 11, 12}, comm)

	comm, err = CommunityCardIndices(9)
	require.NoError(t, err)
	require.Equal(t, [5]int{18, 19, 20, 21, 22}, comm)

	_, err = PlayerHoleCardIndices(4, 4)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = CommunityCardIndices(1)
	require.ErrorIs(t, err, domain.ErrInvalidParticipantCount)
	_, err = CommunityCardIndices(10)
	require.ErrorIs(t, err, domain.ErrInvalidParticipantCount)
}

func TestStateTransitions(t *testing.T) {
	path := []HandState{StateIdle, StateDeckRequested, StateDeckGenerated, StateCardsDelivered,
		StatePlaying, StateShowdownRequested, StateRevealed, StateIdle}
	for i := 0; i+1 < len(path); i++ {
		require.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
	require.True(t, CanTransition(StateDeckRequested, StateIdle))
	require.True(t, CanTransition(StateShowdownRequested, StatePlaying))
	require.False(t, CanTransition(StateIdle, StatePlaying))
	require.False(t, CanTransition(StateRevealed, StateShowdownRequested))
	require.False(t, CanTransition(StateDeckGenerated, StatePlaying))
	require.Equal(t, "cards_delivered", StateCardsDelivered.String())

	v, err := ParseProtocolVersion(" MPC ")
	require.NoError(t, err)
	require.Equal(t, ProtocolMpc, v)
	_, err = ParseProtocolVersion("arcium")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFullHand(t *testing.T) {
	signer, err := crypto.GenerateClusterSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewClusterVerifier(signer.PublicKeyHex())
	require.NoError(t, err)

	local := NewLocalBackend([]byte("master-key"), WithSigner(signer))
	c := newTestCoordinator(local, WithVerifier(verifier))
	ctx := context.Background()

	deck, err := c.GenerateEncryptedDeck(ctx, "t1", players)
	require.NoError(t, err)
	require.Len(t, deck.Cards, domain.DeckSize)
	require.True(t, ValidateDeckIntegrity(deck, time.Now(), domain.DefaultFreshnessWindow))
	require.Equal(t, StateDeckGenerated, c.State("t1"))

	for i := 2 * len(players); i < domain.DeckSize; i++ {
		require.Equal(t, TableRecipient("t1"), deck.Cards[i].Recipient)
	}

	_, err = c.DecryptHoleCards(ctx, "t1", deck.Cards, "alice")
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "cards not delivered yet")

	delivered, err := c.DeliverHoleCards("t1")
	require.NoError(t, err)
	require.Len(t, delivered, len(players))
	require.NoError(t, c.StartPlay("t1"))

	hole := make(map[string][]domain.Card)
	for _, p := range players {
		cards, err := c.DecryptHoleCards(ctx, "t1", deck.Cards, p)
		require.NoError(t, err)
		require.Len(t, cards, 2)
		hole[p] = cards
	}

	sd, err := c.GenerateShowdownProof(ctx, "t1", deck)
	require.NoError(t, err)
	require.Equal(t, StateRevealed, c.State("t1"))
	require.Equal(t, deck.Commitment, sd.Commitment)
	require.True(t, VerifyLocalReveal(sd))
	require.NoError(t, verifier.VerifyProof(sd.Proof))

	for seat, p := range players {
		idx, err := PlayerHoleCardIndices(seat, len(players))
		require.NoError(t, err)
		require.Equal(t, []domain.Card{sd.Cards[idx[0]], sd.Cards[idx[1]]}, hole[p])
	}

	// A revealed table starts the next hand.
	_, err = c.GenerateEncryptedDeck(ctx, "t1", players[:2])
	require.NoError(t, err)
	h, ok := c.Hand("t1")
	require.True(t, ok)
	require.Equal(t, uint64(2), h.Number)
	require.Nil(t, h.Showdown)
}

func TestValidateDeckIntegrity(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	local := NewLocalBackend([]byte("k"), WithLocalClock(func() time.Time { return now }))
	good, err := local.GenerateDeck(context.Background(), DeckRequest{
		TableID: "t", Participants: players, NumCards: domain.DeckSize, CommitmentHash: [32]byte{1},
	})
	require.NoError(t, err)

	withCards := func(f func([]domain.EncryptedCard) []domain.EncryptedCard) domain.EncryptedDeck {
		d := good
		d.Cards = f(append([]domain.EncryptedCard(nil), good.Cards...))
		return d
	}

	tests := []struct {
		name string
		deck domain.EncryptedDeck
		now  time.Time
		want bool
	}{
		{"well formed", good, now, true},
		{"51 cards", withCards(func(c []domain.EncryptedCard) []domain.EncryptedCard { return c[:51] }), now, false},
		{"53 cards", withCards(func(c []domain.EncryptedCard) []domain.EncryptedCard { return append(c, c[0]) }), now, false},
		{"missing proof", func() domain.EncryptedDeck { d := good; d.Proof = nil; return d }(), now, false},
		{"empty commitment", func() domain.EncryptedDeck { d := good; d.Commitment = [32]byte{}; return d }(), now, false},
		{"stale proof", good, now.Add(5*time.Minute + time.Second), false},
		{"at freshness bound", good, now.Add(5 * time.Minute), true},
		{"card without fragment", withCards(func(c []domain.EncryptedCard) []domain.EncryptedCard {
			c[10].ProofFragment = nil
			return c
		}), now, false},
		{"card without recipient", withCards(func(c []domain.EncryptedCard) []domain.EncryptedCard {
			c[51].Recipient = ""
			return c
		}), now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ValidateDeckIntegrity(tt.deck, tt.now, domain.DefaultFreshnessWindow))
		})
	}
}

func TestGenerateRejectsBadParticipants(t *testing.T) {
	b := &scriptedBackend{local: NewLocalBackend([]byte("k"))}
	c := newTestCoordinator(b)
	ctx := context.Background()

	_, err := c.GenerateEncryptedDeck(ctx, "t", []string{"solo"})
	require.ErrorIs(t, err, domain.ErrInvalidParticipantCount)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	ten := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	_, err = c.GenerateEncryptedDeck(ctx, "t", ten)
	require.ErrorIs(t, err, domain.ErrInvalidParticipantCount)

	_, err = c.GenerateEncryptedDeck(ctx, "t", []string{"a", "a"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	require.Zero(t, b.deckCalls.Load())
	require.Equal(t, StateIdle, c.State("t"))
}

func TestGenerateRetriesComputationFailures(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	b := &scriptedBackend{local: local}
	b.generate = func(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error) {
		if b.deckCalls.Load() < 3 {
			return domain.EncryptedDeck{}, errors.New("cluster returned 503")
		}
		return local.GenerateDeck(ctx, req)
	}

	var slept []time.Duration
	c := newTestCoordinator(b, WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	_, err := c.GenerateEncryptedDeck(context.Background(), "t", players)
	require.NoError(t, err)
	require.Equal(t, int32(3), b.deckCalls.Load())
	require.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, slept)
}

func TestGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	b := &scriptedBackend{local: NewLocalBackend([]byte("k"))}
	b.generate = func(context.Context, DeckRequest) (domain.EncryptedDeck, error) {
		// Deck without a proof.
		return domain.EncryptedDeck{Commitment: [32]byte{1}, Cards: make([]domain.EncryptedCard, 52)}, nil
	}
	c := newTestCoordinator(b)

	_, err := c.GenerateEncryptedDeck(context.Background(), "t", players)
	require.ErrorIs(t, err, domain.ErrMpcComputationFailed)
	require.True(t, domain.Retryable(err))
	require.Equal(t, int32(3), b.deckCalls.Load())
	require.Equal(t, StateIdle, c.State("t"), "failed request reverts to idle")
}

func TestWorstCaseCoversEveryAttemptAndBackoff(t *testing.T) {
	def := DefaultCoordinatorConfig()
	require.Equal(t, 3*45*time.Second+500*time.Millisecond+time.Second, def.WorstCase())

	capped := CoordinatorConfig{Timeout: time.Second, MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second}
	require.Equal(t, 5*time.Second+(1+2+3+3)*time.Second, capped.WorstCase())

	once := CoordinatorConfig{Timeout: time.Second, MaxAttempts: 1, BaseBackoff: time.Hour}
	require.Equal(t, time.Second, once.WorstCase())
}

func TestIntegrityViolationsAreNotRetried(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	b := &scriptedBackend{local: local}
	b.generate = func(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error) {
		d, err := local.GenerateDeck(ctx, req)
		d.Cards = d.Cards[:51]
		return d, err
	}
	c := newTestCoordinator(b)

	_, err := c.GenerateEncryptedDeck(context.Background(), "t", players)
	require.ErrorIs(t, err, domain.ErrDeckSize)
	require.Equal(t, domain.KindIntegrity, domain.KindOf(err))
	require.Equal(t, int32(1), b.deckCalls.Load())
}

func TestDealOrderMismatchIsIntegrityViolation(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	b := &scriptedBackend{local: local}
	b.generate = func(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error) {
		d, err := local.GenerateDeck(ctx, req)
		d.Cards[0], d.Cards[1] = d.Cards[1], d.Cards[0]
		return d, err
	}
	c := newTestCoordinator(b)

	_, err := c.GenerateEncryptedDeck(context.Background(), "t", players)
	require.ErrorIs(t, err, domain.ErrMalformedDeck)
	require.Equal(t, int32(1), b.deckCalls.Load())
}

func TestBadClusterSignatureRejected(t *testing.T) {
	signer, err := crypto.GenerateClusterSigner()
	require.NoError(t, err)
	other, err := crypto.GenerateClusterSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewClusterVerifier(other.PublicKeyHex())
	require.NoError(t, err)

	b := &scriptedBackend{local: NewLocalBackend([]byte("k"), WithSigner(signer))}
	c := newTestCoordinator(b, WithVerifier(verifier))

	_, err = c.GenerateEncryptedDeck(context.Background(), "t", players)
	require.ErrorIs(t, err, domain.ErrBadClusterSignature)
	require.Equal(t, int32(1), b.deckCalls.Load())
}

func TestBackendTimeout(t *testing.T) {
	b := &scriptedBackend{local: NewLocalBackend([]byte("k"))}
	b.generate = func(ctx context.Context, _ DeckRequest) (domain.EncryptedDeck, error) {
		<-ctx.Done()
		return domain.EncryptedDeck{}, ctx.Err()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCoordinator(b, CoordinatorConfig{Timeout: 10 * time.Millisecond, MaxAttempts: 2}, logger,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	_, err := c.GenerateEncryptedDeck(context.Background(), "t", players)
	require.ErrorIs(t, err, domain.ErrMpcComputationFailed)
	require.Contains(t, err.Error(), "timed out")
	require.Equal(t, int32(2), b.deckCalls.Load())
	require.Equal(t, StateIdle, c.State("t"))
}

func TestCallerCancellationStopsRetries(t *testing.T) {
	b := &scriptedBackend{local: NewLocalBackend([]byte("k"))}
	ctx, cancel := context.WithCancel(context.Background())
	b.generate = func(context.Context, DeckRequest) (domain.EncryptedDeck, error) {
		cancel()
		return domain.EncryptedDeck{}, errors.New("connection reset")
	}
	c := newTestCoordinator(b)

	_, err := c.GenerateEncryptedDeck(ctx, "t", players)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), b.deckCalls.Load())
}

func TestOneRequestInFlightPerTable(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	entered := make(chan struct{})
	release := make(chan struct{})
	b := &scriptedBackend{local: local}
	b.generate = func(ctx context.Context, req DeckRequest) (domain.EncryptedDeck, error) {
		if req.TableID == "busy" {
			close(entered)
			<-release
		}
		return local.GenerateDeck(ctx, req)
	}
	c := newTestCoordinator(b)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.GenerateEncryptedDeck(ctx, "busy", players)
		done <- err
	}()
	<-entered

	_, err := c.GenerateEncryptedDeck(ctx, "busy", players)
	require.ErrorIs(t, err, domain.ErrRequestInFlight)
	require.ErrorIs(t, c.Abort("busy"), domain.ErrRequestInFlight)
	require.Equal(t, StateDeckRequested, c.State("busy"))

	// Other tables are unaffected.
	_, err = c.GenerateEncryptedDeck(ctx, "other", players)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, StateDeckGenerated, c.State("busy"))
}

func TestDecryptHoleCardsRequiresExactlyTwo(t *testing.T) {
	c := newTestCoordinator(NewLocalBackend([]byte("k")))
	ctx := context.Background()

	deck, err := c.GenerateEncryptedDeck(ctx, "t", players)
	require.NoError(t, err)
	_, err = c.DeliverHoleCards("t")
	require.NoError(t, err)

	_, err = c.DecryptHoleCards(ctx, "t", deck.Cards[:1], "alice")
	require.ErrorIs(t, err, domain.ErrUnexpectedCardCount)
	require.Equal(t, domain.KindIntegrity, domain.KindOf(err))

	three := append([]domain.EncryptedCard(nil), deck.Cards[:8]...)
	three = append(three, domain.EncryptedCard{Ciphertext: []byte{1}, Recipient: "alice", ProofFragment: []byte{1}})
	_, err = c.DecryptHoleCards(ctx, "t", three, "alice")
	require.ErrorIs(t, err, domain.ErrUnexpectedCardCount)

	_, err = c.DecryptHoleCards(ctx, "t", deck.Cards, "mallory")
	require.ErrorIs(t, err, domain.ErrUnexpectedCardCount)

	cards, err := c.DecryptHoleCards(ctx, "t", deck.Cards, "bob")
	require.NoError(t, err)
	require.Len(t, cards, 2)
}

func dealToPlaying(t *testing.T, c *Coordinator, table string) domain.EncryptedDeck {
	t.Helper()
	deck, err := c.GenerateEncryptedDeck(context.Background(), table, players)
	require.NoError(t, err)
	_, err = c.DeliverHoleCards(table)
	require.NoError(t, err)
	require.NoError(t, c.StartPlay(table))
	return deck
}

func TestStaleShowdownProofAbortsHand(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	issued := clock.Now()
	local := NewLocalBackend([]byte("k"), WithLocalClock(func() time.Time { return issued }))
	c := newTestCoordinator(local, WithClock(clock.Now))

	deck := dealToPlaying(t, c, "t")
	clock.Advance(10 * time.Minute)

	_, err := c.GenerateShowdownProof(context.Background(), "t", deck)
	require.ErrorIs(t, err, domain.ErrStaleProof)
	require.False(t, domain.Retryable(err))
	require.Equal(t, StateIdle, c.State("t"))
}

func TestShowdownFailureReturnsToPlaying(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	b := &scriptedBackend{local: local}
	b.reveal = func(context.Context, ShowdownRequest) (domain.Showdown, error) {
		return domain.Showdown{}, errors.New("cluster unavailable")
	}
	c := newTestCoordinator(b)
	deck := dealToPlaying(t, c, "t")

	_, err := c.GenerateShowdownProof(context.Background(), "t", deck)
	require.ErrorIs(t, err, domain.ErrMpcComputationFailed)
	require.Equal(t, int32(3), b.revealCalls.Load())
	require.Equal(t, StatePlaying, c.State("t"))

	b.reveal = nil
	sd, err := c.GenerateShowdownProof(context.Background(), "t", deck)
	require.NoError(t, err)
	require.True(t, VerifyLocalReveal(sd))
}

func TestShowdownRejectsForeignDeckAndDuplicates(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	b := &scriptedBackend{local: local}
	c := newTestCoordinator(b)
	deck := dealToPlaying(t, c, "t")

	foreign := deck
	foreign.Commitment = [32]byte{9}
	_, err := c.GenerateShowdownProof(context.Background(), "t", foreign)
	require.ErrorIs(t, err, domain.ErrCommitmentMismatch)
	require.Equal(t, StateIdle, c.State("t"))

	deck = dealToPlaying(t, c, "t")
	b.reveal = func(ctx context.Context, req ShowdownRequest) (domain.Showdown, error) {
		sd, err := local.Reveal(ctx, req)
		sd.Cards[1] = sd.Cards[0]
		return sd, err
	}
	_, err = c.GenerateShowdownProof(context.Background(), "t", deck)
	require.ErrorIs(t, err, domain.ErrMalformedDeck)
	require.Equal(t, int32(1), b.revealCalls.Load())
}

func TestLocalBackendKeepsCardsPrivate(t *testing.T) {
	local := NewLocalBackend([]byte("k"))
	ctx := context.Background()
	deck, err := local.GenerateDeck(ctx, DeckRequest{
		TableID: "t", Participants: players, NumCards: domain.DeckSize, CommitmentHash: [32]byte{7},
	})
	require.NoError(t, err)

	// A card re-addressed to another player does not decrypt.
	stolen := deck.Cards[0]
	stolen.Recipient = "bob"
	_, err = local.Decrypt(ctx, DecryptRequest{TableID: "t", Cards: []domain.EncryptedCard{stolen}, Recipient: "bob"})
	require.ErrorIs(t, err, domain.ErrMalformedDeck)

	_, err = local.Decrypt(ctx, DecryptRequest{TableID: "t", Cards: deck.Cards[:1], Recipient: "bob"})
	require.ErrorIs(t, err, domain.ErrMalformedDeck)

	// A different master key cannot open the deck.
	_, err = NewLocalBackend([]byte("other")).Reveal(ctx, ShowdownRequest{TableID: "t", Deck: deck})
	require.ErrorIs(t, err, domain.ErrMalformedDeck)
}

func TestShuffleIsPermutation(t *testing.T) {
	a := shuffledDeck([]byte("seed-a"))
	b := shuffledDeck([]byte("seed-b"))
	require.Equal(t, a, shuffledDeck([]byte("seed-a")))
	require.NotEqual(t, a, b)

	var seen [domain.DeckSize]bool
	for _, c := range a {
		require.False(t, seen[c])
		seen[c] = true
	}
}

func TestMarshalDeckLayout(t *testing.T) {
	var commitment [32]byte
	for i := range commitment {
		commitment[i] = 0xaa
	}
	deck := domain.EncryptedDeck{
		Commitment: commitment,
		Cards: []domain.EncryptedCard{
			{Ciphertext: []byte{1, 2}, Recipient: "p", ProofFragment: []byte{9}},
		},
	}
	got, err := MarshalDeck(deck)
	require.NoError(t, err)

	want := append(bytes.Repeat([]byte{0xaa}, 32),
		0x01, 0x00,
		0x02, 0x00, 0x01, 0x02,
		0x01, 'p',
		0x01, 0x00, 0x09,
	)
	require.Equal(t, want, got)

	deck.Cards[0].Recipient = string(bytes.Repeat([]byte{'x'}, 256))
	_, err = MarshalDeck(deck)
	require.Error(t, err)
}

func TestMarshalProofLayouts(t *testing.T) {
	p := &domain.Proof{
		ComputationID:    "c1",
		Outcome:          3,
		Proof:            []byte{0xde, 0xad},
		PublicInputs:     []byte{0x01},
		Timestamp:        time.UnixMilli(258),
		ClusterSignature: []byte{0xff},
	}
	var commitment [32]byte
	commitment[0] = 0x42

	got, err := MarshalShowdownProof(p, commitment)
	require.NoError(t, err)
	want := []byte{0x03, 0x02, 0, 0, 0, 0xde, 0xad, 0x01, 0, 0, 0, 0x01}
	want = append(want, commitment[:]...)
	require.Equal(t, want, got)

	got, err = MarshalProof(p)
	require.NoError(t, err)
	require.Len(t, got, 32+1+2+1+8+1)
	require.Equal(t, []byte("c1"), got[:2])
	require.Equal(t, make([]byte, 30), got[2:32])
	require.Equal(t, []byte{0x03, 0xde, 0xad, 0x01, 0x02, 0x01, 0, 0, 0, 0, 0, 0, 0xff}, got[32:])

	_, err = MarshalProof(nil)
	require.ErrorIs(t, err, domain.ErrMissingProof)
}
