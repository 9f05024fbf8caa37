package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/config"
	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
)

const testSignerKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Defaults()
	cfg.Dealing.LocalMasterKey = "master"
	if mutate != nil {
		mutate(&cfg)
	}
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLegacyCoordinatorSignsAndVerifies(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Dealing.SignerKey = "0x" + testSignerKey })

	protocol, coord, err := a.buildCoordinator(context.Background())
	require.NoError(t, err)
	require.Equal(t, dealing.ProtocolLegacy, protocol)

	deck, err := coord.GenerateEncryptedDeck(context.Background(), "t1", []string{"alice", "bob"})
	require.NoError(t, err)
	require.NotNil(t, deck.Proof)
	require.NotEmpty(t, deck.Proof.ClusterSignature)
}

func TestLegacyCoordinatorRejectsBadKey(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Dealing.SignerKey = "zz" })
	_, _, err := a.buildCoordinator(context.Background())
	require.Error(t, err)
}

func TestMpcCoordinator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := testApp(t, func(c *config.Config) {
		c.Dealing.Protocol = "mpc"
		c.MPC.BaseURL = srv.URL
		c.MPC.APIKey = "k"
		c.MPC.APISecret = "c2VjcmV0"
	})
	protocol, coord, err := a.buildCoordinator(context.Background())
	require.NoError(t, err)
	require.Equal(t, dealing.ProtocolMpc, protocol)
	require.NotNil(t, coord)

	a.cfg.MPC.ClusterPublicKey = "abcd"
	_, _, err = a.buildCoordinator(context.Background())
	require.Error(t, err)

	a.cfg.Dealing.Protocol = "carrier-pigeon"
	_, _, err = a.buildCoordinator(context.Background())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettlementOptionsFromConfig(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Settlement.FeeBps["derby"] = 250 })
	limits, fees := settlementOptions(a.cfg)
	require.Equal(t, domain.BetLimits{Min: 1_000_000, Max: 100_000_000_000}, limits)
	require.Equal(t, uint32(250), fees[domain.GameDerby])
	require.Equal(t, uint32(50), fees[domain.GamePoker])
}
