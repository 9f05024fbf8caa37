package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
)

// Verifier recomputes a result from revealed seeds.
type Verifier interface {
	Verify(serverSeed, clientSeed string, nonce uint64, expected int, rules fairness.Rules) (fairness.Verification, error)
}

// VerifyHandler serves the public, side-effect free verification endpoint.
type VerifyHandler struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(verifier Verifier, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logHandler(logger, "verify")}
}

// verifyRequest is the POST body. Expected is a label such as "HEADS" or a
// decimal result.
type verifyRequest struct {
	ServerSeed string  `json:"server_seed"`
	ClientSeed string  `json:"client_seed"`
	Nonce      *uint64 `json:"nonce"`
	Expected   string  `json:"expected"`
	Game       string  `json:"game,omitempty"`
	Buckets    int     `json:"buckets,omitempty"`
}

type verifyResponse struct {
	fairness.Verification
	Rules       string `json:"rules"`
	Description string `json:"description"`
}

// VerifyPost checks a result from a JSON body.
// POST /api/verify
func (h *VerifyHandler) VerifyPost(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "verify", err)
		return
	}
	if req.Nonce == nil {
		writeDomainError(w, r, h.logger, "verify", fmt.Errorf("%w: nonce is required", domain.ErrInvalidInput))
		return
	}
	h.verify(w, r, req)
}

// VerifyGet checks a result from query parameters.
// GET /api/verify?server_seed=&client_seed=&nonce=&expected=&game=&buckets=
func (h *VerifyHandler) VerifyGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nonce, err := parseNonce(q.Get("nonce"))
	if err != nil {
		writeDomainError(w, r, h.logger, "verify", err)
		return
	}
	buckets, err := parseOptionalInt(q.Get("buckets"), 0, "buckets")
	if err != nil {
		writeDomainError(w, r, h.logger, "verify", err)
		return
	}
	h.verify(w, r, verifyRequest{
		ServerSeed: q.Get("server_seed"),
		ClientSeed: q.Get("client_seed"),
		Nonce:      &nonce,
		Expected:   q.Get("expected"),
		Game:       q.Get("game"),
		Buckets:    buckets,
	})
}

func (h *VerifyHandler) verify(w http.ResponseWriter, r *http.Request, req verifyRequest) {
	rules, err := rulesFor(req.Game, req.Buckets)
	if err != nil {
		writeDomainError(w, r, h.logger, "verify", err)
		return
	}
	if req.Expected == "" {
		writeDomainError(w, r, h.logger, "verify", fmt.Errorf("%w: expected result is required", domain.ErrInvalidInput))
		return
	}
	expected, err := rules.ParseResult(req.Expected)
	if err != nil {
		writeDomainError(w, r, h.logger, "verify", err)
		return
	}

	v, err := h.verifier.Verify(req.ServerSeed, req.ClientSeed, *req.Nonce, expected, rules)
	if err != nil {
		writeDomainError(w, r, h.logger, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Verification: v,
		Rules:        rules.Name,
		Description:  rules.Describe(),
	})
}
