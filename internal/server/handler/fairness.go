package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
	"github.com/alanyoungcy/housefun/internal/service"
)

// FairnessService is the seed-pair lifecycle the fairness handler drives.
type FairnessService interface {
	ActiveSeed(ctx context.Context, bettor string) (service.SeedView, error)
	SetClientSeed(ctx context.Context, bettor, clientSeed string) (service.SeedView, error)
	NextResult(ctx context.Context, bettor string, rules fairness.Rules) (service.FairResult, error)
	Rotate(ctx context.Context, bettor string) (service.Rotation, error)
	Reveal(ctx context.Context, bettor, hashedServerSeed string, nonce uint64) (service.Reveal, error)
}

// FairnessHandler serves per-bettor seed endpoints.
type FairnessHandler struct {
	seeds  FairnessService
	logger *slog.Logger
}

// NewFairnessHandler creates a FairnessHandler.
func NewFairnessHandler(seeds FairnessService, logger *slog.Logger) *FairnessHandler {
	return &FairnessHandler{seeds: seeds, logger: logHandler(logger, "fairness")}
}

type bettorRequest struct {
	Bettor string `json:"bettor"`
}

type clientSeedRequest struct {
	Bettor     string `json:"bettor"`
	ClientSeed string `json:"client_seed"`
}

type nextRequest struct {
	Bettor  string `json:"bettor"`
	Game    string `json:"game,omitempty"`
	Buckets int    `json:"buckets,omitempty"`
}

// GetSeed returns the bettor's active seed pair, creating one on first use.
// GET /api/fairness/seed?bettor=
func (h *FairnessHandler) GetSeed(w http.ResponseWriter, r *http.Request) {
	view, err := h.seeds.ActiveSeed(r.Context(), r.URL.Query().Get("bettor"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get seed", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SetClientSeed replaces the bettor's client seed.
// PUT /api/fairness/client-seed
func (h *FairnessHandler) SetClientSeed(w http.ResponseWriter, r *http.Request) {
	var req clientSeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "set client seed", err)
		return
	}
	view, err := h.seeds.SetClientSeed(r.Context(), req.Bettor, req.ClientSeed)
	if err != nil {
		writeDomainError(w, r, h.logger, "set client seed", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Next draws the result at the bettor's current nonce.
// POST /api/fairness/next
func (h *FairnessHandler) Next(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "next result", err)
		return
	}
	if req.Bettor == "" {
		writeDomainError(w, r, h.logger, "next result", fmt.Errorf("%w: bettor is required", domain.ErrInvalidInput))
		return
	}
	rules, err := rulesFor(req.Game, req.Buckets)
	if err != nil {
		writeDomainError(w, r, h.logger, "next result", err)
		return
	}
	res, err := h.seeds.NextResult(r.Context(), req.Bettor, rules)
	if err != nil {
		writeDomainError(w, r, h.logger, "next result", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Rotate retires the active server seed and returns it in the clear.
// POST /api/fairness/rotate
func (h *FairnessHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	var req bettorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "rotate", err)
		return
	}
	rot, err := h.seeds.Rotate(r.Context(), req.Bettor)
	if err != nil {
		writeDomainError(w, r, h.logger, "rotate", err)
		return
	}
	writeJSON(w, http.StatusOK, rot)
}

// Reveal opens a rotated seed for one nonce.
// GET /api/fairness/reveal/{nonce}?bettor=&hashed_server_seed=
func (h *FairnessHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	nonce, err := parseNonce(pathParam(r, "nonce"))
	if err != nil {
		writeDomainError(w, r, h.logger, "reveal", err)
		return
	}
	q := r.URL.Query()
	bettor, hash := q.Get("bettor"), q.Get("hashed_server_seed")
	if bettor == "" || hash == "" {
		writeDomainError(w, r, h.logger, "reveal", fmt.Errorf("%w: bettor and hashed_server_seed are required", domain.ErrInvalidInput))
		return
	}
	rev, err := h.seeds.Reveal(r.Context(), bettor, hash, nonce)
	if err != nil {
		writeDomainError(w, r, h.logger, "reveal", err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}
