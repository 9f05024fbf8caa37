package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/service"
	"github.com/alanyoungcy/housefun/internal/settlement"
)

// SettlementService is the game lifecycle the games handler drives.
type SettlementService interface {
	CreateGame(ctx context.Context, kind domain.GameKind, buckets int) (domain.GameInstance, error)
	Game(ctx context.Context, gameID string) (domain.GameInstance, error)
	ListGames(ctx context.Context, status domain.GameStatus, opts domain.ListOpts) ([]domain.GameInstance, error)
	BettorWagers(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Wager, error)
	PlaceWager(ctx context.Context, gameID, bettor string, bucket int, amount uint64) (domain.Wager, error)
	Odds(ctx context.Context, gameID string, bucket int, stake uint64) (service.OddsQuote, error)
	Resolve(ctx context.Context, gameID string, req service.ResolveRequest) (service.Settlement, error)
	Cancel(ctx context.Context, gameID string) ([]domain.RefundRecord, error)
	Payouts(ctx context.Context, gameID string) ([]domain.PayoutRecord, error)
	Claim(ctx context.Context, wagerID string) error
}

// GameHandler serves game, wager and settlement endpoints.
type GameHandler struct {
	games  SettlementService
	logger *slog.Logger
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(games SettlementService, logger *slog.Logger) *GameHandler {
	return &GameHandler{games: games, logger: logHandler(logger, "games")}
}

type createGameRequest struct {
	Kind    string `json:"kind"`
	Buckets int    `json:"buckets"`
}

type placeWagerRequest struct {
	Bettor string `json:"bettor"`
	Bucket int    `json:"bucket"`
	Amount uint64 `json:"amount"`
}

// proofBody is a cluster attestation as submitted by an operator. Byte
// fields are standard base64 and the timestamp is unix milliseconds.
type proofBody struct {
	ComputationID    string `json:"computation_id"`
	Outcome          uint8  `json:"outcome"`
	Proof            []byte `json:"proof"`
	PublicInputs     []byte `json:"public_inputs"`
	Timestamp        int64  `json:"timestamp"`
	ClusterSignature []byte `json:"cluster_signature"`
}

type resolveRequest struct {
	Bucket   *int       `json:"bucket"`
	FromSeed bool       `json:"from_seed"`
	Proof    *proofBody `json:"proof"`
}

type outcomeView struct {
	WinningBucket int       `json:"winning_bucket"`
	ResolvedAt    time.Time `json:"resolved_at"`
	ComputationID string    `json:"computation_id,omitempty"`
}

type gameView struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Market      string       `json:"market"`
	Buckets     int          `json:"buckets"`
	FeeBps      uint32       `json:"fee_bps"`
	Status      string       `json:"status"`
	Outcome     *outcomeView `json:"outcome,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
}

type wagerView struct {
	ID       string    `json:"id"`
	GameID   string    `json:"game_id"`
	Bettor   string    `json:"bettor"`
	Amount   uint64    `json:"amount"`
	Bucket   int       `json:"bucket"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placed_at"`
}

type payoutView struct {
	WagerID       string `json:"wager_id"`
	Bettor        string `json:"bettor"`
	Won           bool   `json:"won"`
	Winnings      uint64 `json:"winnings"`
	HouseFeeShare uint64 `json:"house_fee_share"`
}

type refundView struct {
	WagerID string `json:"wager_id"`
	Bettor  string `json:"bettor"`
	Amount  uint64 `json:"amount"`
}

type summaryView struct {
	TotalPool     uint64 `json:"total_pool"`
	HouseFee      uint64 `json:"house_fee"`
	PayoutPool    uint64 `json:"payout_pool"`
	TotalWinnings uint64 `json:"total_winnings"`
	Winners       int    `json:"winners"`
	Dust          uint64 `json:"dust"`
}

type settlementView struct {
	GameID     string              `json:"game_id"`
	Outcome    outcomeView         `json:"outcome"`
	Payouts    []payoutView        `json:"payouts"`
	Summary    summaryView         `json:"summary"`
	FairResult *service.FairResult `json:"fair_result,omitempty"`
}

// CreateGame opens a game instance.
// POST /api/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "create game", err)
		return
	}
	g, err := h.games.CreateGame(r.Context(), domain.GameKind(req.Kind), req.Buckets)
	if err != nil {
		writeDomainError(w, r, h.logger, "create game", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGameView(g))
}

// GetGame returns one game instance.
// GET /api/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.Game(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get game", err)
		return
	}
	writeJSON(w, http.StatusOK, toGameView(g))
}

// ListGames lists games by status, open by default.
// GET /api/games?status=&limit=&offset=
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	status := domain.GameStatusOpen
	if v := r.URL.Query().Get("status"); v != "" {
		status = domain.GameStatus(v)
	}
	games, err := h.games.ListGames(r.Context(), status, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list games", err)
		return
	}
	out := make([]gameView, len(games))
	for i, g := range games {
		out[i] = toGameView(g)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "games": out})
}

// ListWagers lists one bettor's wagers.
// GET /api/wagers?bettor=&limit=&offset=
func (h *GameHandler) ListWagers(w http.ResponseWriter, r *http.Request) {
	bettor := r.URL.Query().Get("bettor")
	wagers, err := h.games.BettorWagers(r.Context(), bettor, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list wagers", err)
		return
	}
	out := make([]wagerView, len(wagers))
	for i, wg := range wagers {
		out[i] = toWagerView(wg)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bettor": bettor, "wagers": out})
}

// PlaceWager stakes on one bucket of an open game.
// POST /api/games/{id}/wagers
func (h *GameHandler) PlaceWager(w http.ResponseWriter, r *http.Request) {
	var req placeWagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "place wager", err)
		return
	}
	wager, err := h.games.PlaceWager(r.Context(), pathParam(r, "id"), req.Bettor, req.Bucket, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "place wager", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWagerView(wager))
}

// Odds prices one bucket of an open game.
// GET /api/games/{id}/odds?bucket=&stake=
func (h *GameHandler) Odds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("bucket") == "" {
		writeDomainError(w, r, h.logger, "odds", fmt.Errorf("%w: bucket is required", domain.ErrInvalidInput))
		return
	}
	bucket, err := parseOptionalInt(q.Get("bucket"), 0, "bucket")
	if err != nil {
		writeDomainError(w, r, h.logger, "odds", err)
		return
	}
	var stake uint64
	if s := q.Get("stake"); s != "" {
		if stake, err = strconv.ParseUint(s, 10, 64); err != nil {
			writeDomainError(w, r, h.logger, "odds", fmt.Errorf("%w: stake %q", domain.ErrInvalidInput, s))
			return
		}
	}
	quote, err := h.games.Odds(r.Context(), pathParam(r, "id"), bucket, stake)
	if err != nil {
		writeDomainError(w, r, h.logger, "odds", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Resolve settles a game once.
// POST /api/games/{id}/resolve
func (h *GameHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "resolve", err)
		return
	}
	res, err := h.games.Resolve(r.Context(), pathParam(r, "id"), service.ResolveRequest{
		Bucket:   req.Bucket,
		FromSeed: req.FromSeed,
		Proof:    req.Proof.toDomain(),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, settlementView{
		GameID:     res.Outcome.GameID,
		Outcome:    toOutcomeView(res.Outcome),
		Payouts:    toPayoutViews(res.Records),
		Summary:    toSummaryView(res.Summary),
		FairResult: res.FairResult,
	})
}

// Cancel refunds every wager on an open game.
// POST /api/games/{id}/cancel
func (h *GameHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	refunds, err := h.games.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "cancel", err)
		return
	}
	out := make([]refundView, len(refunds))
	for i, rf := range refunds {
		out[i] = refundView{WagerID: rf.WagerID, Bettor: rf.Bettor, Amount: rf.Amount}
	}
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "status": "cancelled", "refunds": out})
}

// Payouts lists the settlement records of a resolved game.
// GET /api/games/{id}/payouts
func (h *GameHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	records, err := h.games.Payouts(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "payouts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "payouts": toPayoutViews(records)})
}

// Claim marks a won wager as paid.
// POST /api/wagers/{id}/claim
func (h *GameHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.games.Claim(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"wager_id": id, "status": string(domain.WagerStatusClaimed)})
}

func (p *proofBody) toDomain() *domain.Proof {
	if p == nil {
		return nil
	}
	out := &domain.Proof{
		ComputationID:    p.ComputationID,
		Outcome:          p.Outcome,
		Proof:            p.Proof,
		PublicInputs:     p.PublicInputs,
		ClusterSignature: p.ClusterSignature,
	}
	if p.Timestamp != 0 {
		out.Timestamp = time.UnixMilli(p.Timestamp)
	}
	return out
}

func toOutcomeView(o domain.ResolvedOutcome) outcomeView {
	v := outcomeView{WinningBucket: o.WinningBucket.Index(), ResolvedAt: o.ResolvedAt}
	if o.Proof != nil {
		v.ComputationID = o.Proof.ComputationID
	}
	return v
}

func toGameView(g domain.GameInstance) gameView {
	v := gameView{
		ID:          g.ID,
		Kind:        string(g.Kind),
		Market:      string(g.Kind.Market()),
		Buckets:     g.Buckets,
		FeeBps:      g.FeeBps,
		Status:      string(g.Status),
		CreatedAt:   g.CreatedAt,
		CancelledAt: g.CancelledAt,
	}
	if g.Outcome != nil {
		o := toOutcomeView(*g.Outcome)
		v.Outcome = &o
	}
	return v
}

func toWagerView(w domain.Wager) wagerView {
	return wagerView{
		ID:       w.ID,
		GameID:   w.GameID,
		Bettor:   w.Bettor,
		Amount:   w.Amount,
		Bucket:   w.Bucket.Index(),
		Status:   string(w.Status),
		PlacedAt: w.PlacedAt,
	}
}

func toPayoutViews(records []domain.PayoutRecord) []payoutView {
	out := make([]payoutView, len(records))
	for i, p := range records {
		out[i] = payoutView{
			WagerID:       p.WagerID,
			Bettor:        p.Bettor,
			Won:           p.Won,
			Winnings:      p.Winnings,
			HouseFeeShare: p.HouseFeeShare,
		}
	}
	return out
}

func toSummaryView(s settlement.Summary) summaryView {
	return summaryView{
		TotalPool:     s.TotalPool,
		HouseFee:      s.HouseFee,
		PayoutPool:    s.PayoutPool,
		TotalWinnings: s.TotalWinnings,
		Winners:       s.Winners,
		Dust:          s.Dust,
	}
}
