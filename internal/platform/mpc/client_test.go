package mpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/crypto"
	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
)

var testAuth = &crypto.HMACAuth{Key: "cluster-key", Secret: "Y2x1c3Rlci1zZWNyZXQ="}

// fakeCluster serves the cluster API from a LocalBackend.
func fakeCluster(t *testing.T, local *dealing.LocalBackend) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	authed := func(next func(w http.ResponseWriter, body []byte)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			ok := testAuth.VerifyHeaders(r.Method, r.URL.Path, string(body),
				r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature), time.Now(), time.Minute)
			if !ok || r.Header.Get(crypto.HeaderAPIKey) != testAuth.Key {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(APIError{Error: "bad signature"})
				return
			}
			next(w, body)
		}
	}

	mux.HandleFunc("POST "+PathDecks, authed(func(w http.ResponseWriter, body []byte) {
		var b DeckRequestBody
		require.NoError(t, json.Unmarshal(body, &b))
		req, err := b.ToDomain()
		require.NoError(t, err)
		deck, err := local.GenerateDeck(context.Background(), req)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(DeckFromDomain(deck))
	}))
	mux.HandleFunc("POST "+PathDecrypt, authed(func(w http.ResponseWriter, body []byte) {
		var b DecryptRequestBody
		require.NoError(t, json.Unmarshal(body, &b))
		cards, err := local.Decrypt(context.Background(), dealing.DecryptRequest{
			TableID: b.TableID, Cards: ToDomainCards(b.EncryptedCards), Recipient: b.RecipientIdentity,
		})
		require.NoError(t, err)
		resp := DecryptResponse{}
		for _, c := range cards {
			resp.Cards = append(resp.Cards, int(c))
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	mux.HandleFunc("POST "+PathShowdown, authed(func(w http.ResponseWriter, body []byte) {
		var b ShowdownRequestBody
		require.NoError(t, json.Unmarshal(body, &b))
		deck, err := b.EncryptedDeck.ToDomainDeck()
		require.NoError(t, err)
		sd, err := local.Reveal(context.Background(), dealing.ShowdownRequest{TableID: b.TableID, Deck: deck})
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(ShowdownFromDomain(sd))
	}))
	mux.HandleFunc("GET "+PathHealth, authed(func(w http.ResponseWriter, _ []byte) {
		w.WriteHeader(http.StatusOK)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDrivesFullHand(t *testing.T) {
	signer, err := crypto.GenerateClusterSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewClusterVerifier(signer.PublicKeyHex())
	require.NoError(t, err)

	srv := fakeCluster(t, dealing.NewLocalBackend([]byte("cluster-master"), dealing.WithSigner(signer)))
	client := NewClient(srv.URL+"/", testAuth, 5*time.Second)
	require.NoError(t, client.Ping(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := dealing.NewCoordinator(client, dealing.DefaultCoordinatorConfig(), logger, dealing.WithVerifier(verifier))
	ctx := context.Background()
	players := []string{"alice", "bob", "carol"}

	deck, err := coord.GenerateEncryptedDeck(ctx, "t1", players)
	require.NoError(t, err)
	require.Len(t, deck.Cards, domain.DeckSize)
	_, err = coord.DeliverHoleCards("t1")
	require.NoError(t, err)
	require.NoError(t, coord.StartPlay("t1"))

	cards, err := coord.DecryptHoleCards(ctx, "t1", deck.Cards, "carol")
	require.NoError(t, err)

	sd, err := coord.GenerateShowdownProof(ctx, "t1", deck)
	require.NoError(t, err)
	require.True(t, dealing.VerifyLocalReveal(sd))
	require.Equal(t, []domain.Card{sd.Cards[2], sd.Cards[5]}, cards)
}

func TestClientRejectsBadCredentials(t *testing.T) {
	srv := fakeCluster(t, dealing.NewLocalBackend([]byte("k")))
	client := NewClient(srv.URL, &crypto.HMACAuth{Key: "cluster-key", Secret: "d3Jvbmc="}, time.Second)

	err := client.Ping(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Contains(t, err.Error(), "bad signature")
	require.False(t, domain.Retryable(err))
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		body string
		want error
	}{
		{http.StatusNotFound, "", domain.ErrNotFound},
		{http.StatusForbidden, "", domain.ErrUnauthorized},
		{http.StatusTooManyRequests, "", domain.ErrRateLimited},
		{http.StatusTooManyRequests, "", domain.ErrMpcComputationFailed},
		{http.StatusUnprocessableEntity, `{"error":"bad deck"}`, domain.ErrInvalidInput},
		{http.StatusServiceUnavailable, "", domain.ErrMpcComputationFailed},
		{http.StatusGatewayTimeout, "", domain.ErrMpcComputationFailed},
	}
	for _, tt := range tests {
		require.ErrorIs(t, checkHTTPStatus(tt.code, []byte(tt.body)), tt.want, "HTTP %d", tt.code)
	}
	require.NoError(t, checkHTTPStatus(http.StatusOK, nil))
	require.Contains(t, checkHTTPStatus(http.StatusUnprocessableEntity, []byte(`{"error":"bad deck"}`)).Error(), "bad deck")
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := dealing.NewCoordinator(NewClient(srv.URL, nil, time.Second), dealing.CoordinatorConfig{MaxAttempts: 2}, logger,
		dealing.WithSleep(func(context.Context, time.Duration) error { return nil }))

	_, err := coord.GenerateEncryptedDeck(context.Background(), "t", []string{"a", "b"})
	require.ErrorIs(t, err, domain.ErrMpcComputationFailed)
	require.Equal(t, int32(2), calls.Load())
}

func TestMalformedResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathDecks:
			_ = json.NewEncoder(w).Encode(APIDeck{Commitment: "abcd"})
		case PathDecrypt:
			_ = json.NewEncoder(w).Encode(DecryptResponse{Cards: []int{3, 52}})
		default:
			_, _ = w.Write([]byte("not json"))
		}
	}))
	defer srv.Close()
	client := NewClient(srv.URL, nil, time.Second)
	ctx := context.Background()

	_, err := client.GenerateDeck(ctx, dealing.DeckRequest{TableID: "t"})
	require.ErrorIs(t, err, domain.ErrMalformedDeck)

	_, err = client.Decrypt(ctx, dealing.DecryptRequest{TableID: "t"})
	require.ErrorIs(t, err, domain.ErrMalformedDeck)

	_, err = client.Reveal(ctx, dealing.ShowdownRequest{TableID: "t"})
	require.ErrorIs(t, err, domain.ErrMpcComputationFailed)
}

func TestProofTimestampRoundTrip(t *testing.T) {
	p := &domain.Proof{ComputationID: "c", Proof: []byte{1}, Timestamp: time.UnixMilli(1_700_000_000_123)}
	got := ProofFromDomain(p).ToDomainProof()
	require.True(t, p.Timestamp.Equal(got.Timestamp))

	require.True(t, (&APIProof{Proof: []byte{1}}).ToDomainProof().Timestamp.IsZero())
	require.Nil(t, (*APIProof)(nil).ToDomainProof())
}
