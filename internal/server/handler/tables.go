package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/service"
)

// DealingService is the hand lifecycle the tables handler drives.
type DealingService interface {
	Protocol() dealing.ProtocolVersion
	Deal(ctx context.Context, tableID string, participants []string) (domain.EncryptedDeck, error)
	DeliverHoleCards(ctx context.Context, tableID string) (map[string][]domain.EncryptedCard, error)
	StartPlay(ctx context.Context, tableID string) error
	DecryptHoleCards(ctx context.Context, tableID, recipient string) ([]domain.Card, error)
	Showdown(ctx context.Context, tableID string) (service.ShowdownResult, error)
	Abort(ctx context.Context, tableID string) error
	Hand(tableID string) dealing.Hand
}

// TableHandler serves poker dealing endpoints.
type TableHandler struct {
	dealer DealingService
	logger *slog.Logger
}

// NewTableHandler creates a TableHandler.
func NewTableHandler(dealer DealingService, logger *slog.Logger) *TableHandler {
	return &TableHandler{dealer: dealer, logger: logHandler(logger, "tables")}
}

type dealRequest struct {
	Participants []string `json:"participants"`
}

type decryptRequest struct {
	Recipient string `json:"recipient"`
}

type cardView struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type encryptedCardView struct {
	Ciphertext    []byte `json:"ciphertext"`
	Recipient     string `json:"recipient"`
	ProofFragment []byte `json:"proof_fragment,omitempty"`
}

type proofView struct {
	ComputationID string `json:"computation_id"`
	Timestamp     int64  `json:"timestamp"`
	Signed        bool   `json:"signed"`
}

type handView struct {
	TableID      string     `json:"table_id"`
	Hand         uint64     `json:"hand"`
	State        string     `json:"state"`
	Protocol     string     `json:"protocol"`
	Participants []string   `json:"participants,omitempty"`
	Commitment   string     `json:"commitment,omitempty"`
	Proof        *proofView `json:"proof,omitempty"`
}

// GetHand reports the table's hand state.
// GET /api/tables/{id}
func (h *TableHandler) GetHand(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view(pathParam(r, "id")))
}

// Deal shuffles and encrypts a fresh deck for the table.
// POST /api/tables/{id}/deal
func (h *TableHandler) Deal(w http.ResponseWriter, r *http.Request) {
	var req dealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "deal", err)
		return
	}
	id := pathParam(r, "id")
	deck, err := h.dealer.Deal(r.Context(), id, req.Participants)
	if err != nil {
		writeDomainError(w, r, h.logger, "deal", err)
		return
	}
	v := h.view(id)
	v.Commitment = hex.EncodeToString(deck.Commitment[:])
	v.Proof = toProofView(deck.Proof)
	writeJSON(w, http.StatusCreated, v)
}

// Deliver hands out each seat's encrypted hole cards.
// POST /api/tables/{id}/deliver
func (h *TableHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	cards, err := h.dealer.DeliverHoleCards(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "deliver", err)
		return
	}
	seats := make(map[string][]encryptedCardView, len(cards))
	for seat, cs := range cards {
		for _, c := range cs {
			seats[seat] = append(seats[seat], encryptedCardView{Ciphertext: c.Ciphertext, Recipient: c.Recipient, ProofFragment: c.ProofFragment})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"table_id": id, "hole_cards": seats})
}

// Start opens betting on the dealt hand.
// POST /api/tables/{id}/start
func (h *TableHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.dealer.StartPlay(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(id))
}

// Decrypt reveals one seat's hole cards to that seat.
// POST /api/tables/{id}/decrypt
func (h *TableHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "decrypt", err)
		return
	}
	id := pathParam(r, "id")
	cards, err := h.dealer.DecryptHoleCards(r.Context(), id, req.Recipient)
	if err != nil {
		writeDomainError(w, r, h.logger, "decrypt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table_id": id, "recipient": req.Recipient, "cards": toCardViews(cards)})
}

// Showdown reveals and verifies the full deck.
// POST /api/tables/{id}/showdown
func (h *TableHandler) Showdown(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	res, err := h.dealer.Showdown(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "showdown", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table_id":     id,
		"hand":         res.HandNumber,
		"commitment":   hex.EncodeToString(res.Showdown.Commitment[:]),
		"cards":        toCardViews(res.Showdown.Cards),
		"proof":        toProofView(res.Showdown.Proof),
		"archive_path": res.ArchivePath,
	})
}

// Abort drops the table's hand.
// POST /api/tables/{id}/abort
func (h *TableHandler) Abort(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.dealer.Abort(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, "abort", err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(id))
}

func (h *TableHandler) view(tableID string) handView {
	hand := h.dealer.Hand(tableID)
	v := handView{
		TableID:      tableID,
		Hand:         hand.Number,
		State:        hand.State.String(),
		Protocol:     string(h.dealer.Protocol()),
		Participants: hand.Participants,
	}
	if hand.Deck != nil {
		v.Commitment = hex.EncodeToString(hand.Deck.Commitment[:])
	}
	return v
}

func toProofView(p *domain.Proof) *proofView {
	if p == nil {
		return nil
	}
	return &proofView{
		ComputationID: p.ComputationID,
		Timestamp:     p.Timestamp.UnixMilli(),
		Signed:        len(p.ClusterSignature) > 0,
	}
}

func toCardViews(cards []domain.Card) []cardView {
	out := make([]cardView, len(cards))
	for i, c := range cards {
		out[i] = cardView{Index: int(c), Name: c.String()}
	}
	return out
}

