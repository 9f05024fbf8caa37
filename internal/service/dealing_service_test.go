package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/crypto"
	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
)

// truncatingBackend drops the last revealed card.
type truncatingBackend struct{ *dealing.LocalBackend }

func (b truncatingBackend) Reveal(ctx context.Context, req dealing.ShowdownRequest) (domain.Showdown, error) {
	sd, err := b.LocalBackend.Reveal(ctx, req)
	if err != nil {
		return sd, err
	}
	sd.Cards = sd.Cards[:len(sd.Cards)-1]
	return sd, nil
}

type dealingFixture struct {
	svc     *DealingService
	locks   *memLocks
	archive *memArchive
	bus     *memBus
	audit   *memAudit
	alerts  *recAlerts
}

func newDealingFixture(t *testing.T, wrap func(*dealing.LocalBackend) dealing.Backend) *dealingFixture {
	t.Helper()
	signer, err := crypto.GenerateClusterSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewClusterVerifier(signer.PublicKeyHex())
	require.NoError(t, err)

	var backend dealing.Backend = dealing.NewLocalBackend([]byte("master"), dealing.WithSigner(signer))
	if wrap != nil {
		backend = wrap(backend.(*dealing.LocalBackend))
	}
	coord := dealing.NewCoordinator(backend, dealing.DefaultCoordinatorConfig(), discardLogger(), dealing.WithVerifier(verifier))

	f := &dealingFixture{
		locks:   newMemLocks(),
		archive: &memArchive{},
		bus:     newMemBus(),
		audit:   &memAudit{},
		alerts:  &recAlerts{},
	}
	f.svc = NewDealingService(coord, dealing.ProtocolLegacy, f.locks, f.archive, f.bus, f.audit, f.alerts, time.Minute, discardLogger())
	return f
}

func TestDealingServicePlaysAndArchivesHand(t *testing.T) {
	f := newDealingFixture(t, nil)
	ctx := context.Background()
	players := []string{"alice", "bob", "carol"}

	deck, err := f.svc.Deal(ctx, "t1", players)
	require.NoError(t, err)
	require.Len(t, deck.Cards, domain.DeckSize)
	require.Equal(t, dealing.StateDeckGenerated, f.svc.Hand("t1").State)

	_, err = f.svc.Showdown(ctx, "t1")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	delivered, err := f.svc.DeliverHoleCards(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, delivered, len(players))
	require.NoError(t, f.svc.StartPlay(ctx, "t1"))

	cards, err := f.svc.DecryptHoleCards(ctx, "t1", "bob")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	res, err := f.svc.Showdown(ctx, "t1")
	require.NoError(t, err)
	require.True(t, dealing.VerifyLocalReveal(res.Showdown))
	require.Equal(t, deck.Commitment, res.Showdown.Commitment)
	require.Equal(t, []domain.Card{res.Showdown.Cards[1], res.Showdown.Cards[4]}, cards)
	require.Equal(t, "hands/t1/1.json", res.ArchivePath)
	require.Equal(t, dealing.StateRevealed, f.svc.Hand("t1").State)

	require.Len(t, f.archive.hands, 1)
	rec := f.archive.hands[0]
	require.Equal(t, "legacy", rec.Protocol)
	require.Equal(t, players, rec.Participants)
	require.NotEmpty(t, rec.DeckLedger)
	require.NotEmpty(t, rec.ShowdownLedger)

	require.Equal(t, []string{"deck_generated", "hole_cards_delivered", "play_started", "hand_revealed"},
		f.bus.types(domain.ChannelDealing))
	require.Equal(t, []string{"hand.deck_generated", "hand.revealed"}, f.audit.events())
	require.Equal(t, []string{"deal:t1", "deal:t1", "deal:t1", "deal:t1"}, f.locks.keys)
	require.Empty(t, f.alerts.errs)

	// A new hand starts from Revealed.
	_, err = f.svc.Deal(ctx, "t1", players)
	require.NoError(t, err)
	require.Equal(t, uint64(2), f.svc.Hand("t1").Number)
}

func TestDealingServiceArchiveFailureKeepsReveal(t *testing.T) {
	f := newDealingFixture(t, nil)
	f.archive.err = errors.New("bucket unavailable")
	ctx := context.Background()

	_, err := f.svc.Deal(ctx, "t1", []string{"alice", "bob"})
	require.NoError(t, err)
	_, err = f.svc.DeliverHoleCards(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, f.svc.StartPlay(ctx, "t1"))

	res, err := f.svc.Showdown(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, res.ArchivePath)
	require.Len(t, f.alerts.errs, 1)
	require.Equal(t, dealing.StateRevealed, f.svc.Hand("t1").State)
}

func TestDealingServiceIntegrityViolationAbortsHand(t *testing.T) {
	f := newDealingFixture(t, func(b *dealing.LocalBackend) dealing.Backend { return truncatingBackend{b} })
	ctx := context.Background()

	_, err := f.svc.Deal(ctx, "t1", []string{"alice", "bob"})
	require.NoError(t, err)
	_, err = f.svc.DeliverHoleCards(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, f.svc.StartPlay(ctx, "t1"))

	_, err = f.svc.Showdown(ctx, "t1")
	require.Error(t, err)
	require.Equal(t, domain.KindIntegrity, domain.KindOf(err))
	require.Equal(t, dealing.StateIdle, f.svc.Hand("t1").State)
	require.Len(t, f.alerts.errs, 1)
	require.Contains(t, f.audit.events(), "hand.integrity_violation")
	require.Empty(t, f.archive.hands)
}

func TestDealingServiceRespectsTableLock(t *testing.T) {
	f := newDealingFixture(t, nil)
	ctx := context.Background()

	unlock, err := f.locks.Acquire(ctx, "deal:t1", time.Minute)
	require.NoError(t, err)
	_, err = f.svc.Deal(ctx, "t1", []string{"alice", "bob"})
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.Equal(t, dealing.StateIdle, f.svc.Hand("t1").State)
	unlock()

	_, err = f.svc.Deal(ctx, "t1", []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Abort(ctx, "t1"))
	require.Equal(t, dealing.StateIdle, f.svc.Hand("t1").State)

	_, err = f.svc.Deal(ctx, "t2", []string{"solo"})
	require.ErrorIs(t, err, domain.ErrInvalidParticipantCount)
}
