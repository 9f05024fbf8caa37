package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
)

type fairnessFixture struct {
	svc   *FairnessService
	seeds *memSeeds
	audit *memAudit
	bus   *memBus
	clock *fakeClock
}

func newFairnessFixture() *fairnessFixture {
	f := &fairnessFixture{
		seeds: newMemSeeds(),
		audit: &memAudit{},
		bus:   newMemBus(),
		clock: &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = NewFairnessService(f.seeds, prefixSealer{}, f.audit, f.bus, time.Hour, discardLogger())
	f.svc.now = f.clock.Now
	return f
}

func TestActiveSeedCreatesSealedPairOnce(t *testing.T) {
	f := newFairnessFixture()
	ctx := context.Background()

	first, err := f.svc.ActiveSeed(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, first.HashedServerSeed, 64)
	require.NotEmpty(t, first.ClientSeed)
	require.Zero(t, first.Nonce)

	again, err := f.svc.ActiveSeed(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, first, again)

	stored := f.seeds.pairs["alice"]
	require.True(t, strings.HasPrefix(stored.ServerSeed, "sealed:"))

	_, err = f.svc.ActiveSeed(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSetClientSeed(t *testing.T) {
	f := newFairnessFixture()
	ctx := context.Background()

	_, err := f.svc.SetClientSeed(ctx, "nobody", "lucky")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.ActiveSeed(ctx, "alice")
	require.NoError(t, err)

	for _, bad := range []string{"", strings.Repeat("x", MaxClientSeedLen+1)} {
		_, err := f.svc.SetClientSeed(ctx, "alice", bad)
		require.ErrorIs(t, err, domain.ErrInvalidInput, "client seed %q", bad)
	}

	view, err := f.svc.SetClientSeed(ctx, "alice", strings.Repeat("é", MaxClientSeedLen))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", MaxClientSeedLen), view.ClientSeed)
	require.Contains(t, f.audit.events(), "fairness.client_seed_set")
}

func TestSeedLifecycleRevealsOnlyAfterRotation(t *testing.T) {
	f := newFairnessFixture()
	ctx := context.Background()

	_, err := f.svc.ActiveSeed(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.SetClientSeed(ctx, "alice", "lucky")
	require.NoError(t, err)

	var results []FairResult
	for i := 0; i < 3; i++ {
		res, err := f.svc.NextResult(ctx, "alice", fairness.CoinFlip)
		require.NoError(t, err)
		require.Equal(t, uint64(i), res.Nonce)
		results = append(results, res)
	}
	require.Len(t, f.bus.types(domain.ChannelFairness), 3)

	hash := results[0].HashedServerSeed
	_, err = f.svc.Reveal(ctx, "alice", hash, 0)
	require.ErrorIs(t, err, domain.ErrSeedStillActive)

	rot, err := f.svc.Rotate(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, hash, rot.PreviousHashedServerSeed)
	require.Equal(t, uint64(3), rot.PreviousNonce)
	require.Equal(t, fairness.HashServerSeed(rot.PreviousServerSeed), hash)
	require.Equal(t, "lucky", rot.Next.ClientSeed)
	require.Zero(t, rot.Next.Nonce)
	require.NotEqual(t, hash, rot.Next.HashedServerSeed)

	for _, res := range results {
		v, err := f.svc.Verify(rot.PreviousServerSeed, "lucky", res.Nonce, res.Result, fairness.CoinFlip)
		require.NoError(t, err)
		require.True(t, v.Verified)
		require.Equal(t, res.Digest, v.Digest)
	}

	rev, err := f.svc.Reveal(ctx, "alice", hash, 1)
	require.NoError(t, err)
	require.Equal(t, rot.PreviousServerSeed, rev.ServerSeed)
	require.Equal(t, "lucky", rev.ClientSeed)

	// The new seed starts again at nonce 0 without clobbering old reveals.
	next, err := f.svc.NextResult(ctx, "alice", fairness.CoinFlip)
	require.NoError(t, err)
	require.Zero(t, next.Nonce)
	_, err = f.svc.Reveal(ctx, "alice", hash, 0)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Reveal(ctx, "alice", hash, 0)
	require.ErrorIs(t, err, domain.ErrRevealExpired)

	f.clock.Advance(time.Minute)
	n, err := f.svc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	_, err = f.svc.Reveal(ctx, "alice", hash, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.Contains(t, f.audit.events(), "fairness.seed_rotated")
}

func TestNextResultLosesNonceRace(t *testing.T) {
	f := newFairnessFixture()
	ctx := context.Background()
	_, err := f.svc.ActiveSeed(ctx, "alice")
	require.NoError(t, err)

	f.seeds.advanceErr = domain.ErrConflict
	_, err = f.svc.NextResult(ctx, "alice", fairness.CoinFlip)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Empty(t, f.seeds.reveals)

	res, err := f.svc.NextResult(ctx, "alice", fairness.CoinFlip)
	require.NoError(t, err)
	require.Zero(t, res.Nonce)
}

func TestNextResultRejectsTamperedSeed(t *testing.T) {
	f := newFairnessFixture()
	ctx := context.Background()
	_, err := f.svc.ActiveSeed(ctx, "alice")
	require.NoError(t, err)

	p := f.seeds.pairs["alice"]
	p.ServerSeed = "sealed:swapped"
	f.seeds.pairs["alice"] = p

	_, err = f.svc.NextResult(ctx, "alice", fairness.CoinFlip)
	require.ErrorIs(t, err, domain.ErrCommitmentMismatch)
	require.Equal(t, domain.KindIntegrity, domain.KindOf(err))
}

func TestNextResultUniformRules(t *testing.T) {
	f := newFairnessFixture()
	ctx := context.Background()
	_, err := f.svc.ActiveSeed(ctx, "bob")
	require.NoError(t, err)

	rules := fairness.Uniform("derby_6", 6)
	for i := 0; i < 20; i++ {
		res, err := f.svc.NextResult(ctx, "bob", rules)
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Result, 0)
		require.Less(t, res.Result, 6)
		require.Equal(t, "derby_6", res.Rules)
	}
}
