// Package mpc is the REST client for the external MPC dealing cluster. It
// implements dealing.Backend; the coordinator owns timeouts and retries, so
// the client makes exactly one HTTP call per method.
package mpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/housefun/internal/crypto"
	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
)

// Cluster API paths.
const (
	PathDecks    = "/v1/decks"
	PathDecrypt  = "/v1/decrypt"
	PathShowdown = "/v1/showdown"
	PathHealth   = "/v1/health"
)

// Client talks to the MPC cluster API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
}

// NewClient creates a cluster client.
//
// baseURL is the cluster API root, e.g. "https://mpc.internal:8443".
// hmac signs every request; nil sends unauthenticated requests.
// timeout caps a single HTTP exchange and should be at least the
// coordinator's per-attempt timeout.
func NewClient(baseURL string, hmac *crypto.HMACAuth, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		hmacAuth: hmac,
	}
}

var _ dealing.Backend = (*Client)(nil)

// GenerateDeck asks the cluster to shuffle and encrypt a deck.
func (c *Client) GenerateDeck(ctx context.Context, req dealing.DeckRequest) (domain.EncryptedDeck, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, PathDecks, DeckRequestFromDomain(req))
	if err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("mpc: generate deck: %w", err)
	}

	var apiDeck APIDeck
	if err := json.Unmarshal(respBody, &apiDeck); err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("mpc: decode deck: %w: %v", domain.ErrMpcComputationFailed, err)
	}
	deck, err := apiDeck.ToDomainDeck()
	if err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("mpc: decode deck: %w", err)
	}
	return deck, nil
}

// Decrypt asks the cluster to decrypt cards for one recipient.
func (c *Client) Decrypt(ctx context.Context, req dealing.DecryptRequest) ([]domain.Card, error) {
	body := DecryptRequestBody{
		TableID:           req.TableID,
		EncryptedCards:    make([]APIEncryptedCard, len(req.Cards)),
		RecipientIdentity: req.Recipient,
	}
	for i, card := range req.Cards {
		body.EncryptedCards[i] = cardFromDomain(card)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, PathDecrypt, body)
	if err != nil {
		return nil, fmt.Errorf("mpc: decrypt: %w", err)
	}

	var result DecryptResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("mpc: decode decrypt response: %w: %v", domain.ErrMpcComputationFailed, err)
	}
	cards, err := toCards(result.Cards)
	if err != nil {
		return nil, fmt.Errorf("mpc: decode decrypt response: %w", err)
	}
	return cards, nil
}

// Reveal asks the cluster for the full deck and its consistency proof.
func (c *Client) Reveal(ctx context.Context, req dealing.ShowdownRequest) (domain.Showdown, error) {
	body := ShowdownRequestBody{
		TableID:       req.TableID,
		EncryptedDeck: DeckFromDomain(req.Deck),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, PathShowdown, body)
	if err != nil {
		return domain.Showdown{}, fmt.Errorf("mpc: showdown: %w", err)
	}

	var apiShowdown APIShowdown
	if err := json.Unmarshal(respBody, &apiShowdown); err != nil {
		return domain.Showdown{}, fmt.Errorf("mpc: decode showdown: %w: %v", domain.ErrMpcComputationFailed, err)
	}
	sd, err := apiShowdown.ToDomainShowdown()
	if err != nil {
		return domain.Showdown{}, fmt.Errorf("mpc: decode showdown: %w", err)
	}
	return sd, nil
}

// Ping checks the cluster health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doAuthenticatedRequest(ctx, http.MethodGet, PathHealth, nil); err != nil {
		return fmt.Errorf("mpc: health: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the cluster API. It returns the raw response body.
func (c *Client) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Deadline errors pass through so the caller can tell a timeout
		// from a refused connection.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("http request: %w", err)
		}
		return nil, fmt.Errorf("http request: %w: %v", domain.ErrMpcComputationFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %v", domain.ErrMpcComputationFailed, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
// Server-side failures are computation failures and are retried by the
// coordinator; client errors are not.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrMpcComputationFailed, domain.ErrRateLimited, msg)
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrInvalidInput, statusCode, msg)
	case statusCode == http.StatusRequestTimeout, statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrMpcComputationFailed, statusCode, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
