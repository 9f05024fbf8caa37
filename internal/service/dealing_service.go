package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
)

// DefaultDealLockTTL must outlast the coordinator's worst-case retries.
const DefaultDealLockTTL = 3 * time.Minute

// DealingService runs poker hands through the coordinator. A Redis lock
// keeps one backend request per table across processes; the coordinator
// guards the same within one process.
type DealingService struct {
	coord    *dealing.Coordinator
	protocol dealing.ProtocolVersion
	locks    domain.LockManager
	archiver domain.HandArchiver
	bus      Publisher
	audit    domain.AuditStore
	alerts   Alerter
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewDealingService creates a DealingService. archiver, bus, audit and
// alerts may be nil.
func NewDealingService(
	coord *dealing.Coordinator,
	protocol dealing.ProtocolVersion,
	locks domain.LockManager,
	archiver domain.HandArchiver,
	bus Publisher,
	audit domain.AuditStore,
	alerts Alerter,
	lockTTL time.Duration,
	logger *slog.Logger,
) *DealingService {
	if lockTTL <= 0 {
		lockTTL = DefaultDealLockTTL
	}
	return &DealingService{
		coord:    coord,
		protocol: protocol,
		locks:    locks,
		archiver: archiver,
		bus:      bus,
		audit:    audit,
		alerts:   alerts,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "dealing_service"), slog.String("protocol", string(protocol))),
		now:      time.Now,
	}
}

// Protocol reports the deployment's dealing protocol.
func (s *DealingService) Protocol() dealing.ProtocolVersion { return s.protocol }

// Deal generates a fresh encrypted deck for the table.
func (s *DealingService) Deal(ctx context.Context, tableID string, participants []string) (domain.EncryptedDeck, error) {
	unlock, err := s.locks.Acquire(ctx, "deal:"+tableID, s.lockTTL)
	if err != nil {
		return domain.EncryptedDeck{}, fmt.Errorf("dealing_service: deal %s: %w", tableID, err)
	}
	defer unlock()

	deck, err := s.coord.GenerateEncryptedDeck(ctx, tableID, participants)
	if err != nil {
		s.fail(ctx, tableID, "deal", err)
		return domain.EncryptedDeck{}, fmt.Errorf("dealing_service: deal %s: %w", tableID, err)
	}

	hand, _ := s.coord.Hand(tableID)
	detail := map[string]any{
		"table_id":     tableID,
		"hand":         hand.Number,
		"participants": len(participants),
		"commitment":   hex.EncodeToString(deck.Commitment[:]),
	}
	auditLog(ctx, s.audit, s.logger, "hand.deck_generated", detail)
	publish(ctx, s.bus, s.logger, domain.ChannelDealing, "", Event{Type: "deck_generated", Data: detail})
	return deck, nil
}

// DeliverHoleCards hands each seat its two encrypted hole cards.
func (s *DealingService) DeliverHoleCards(ctx context.Context, tableID string) (map[string][]domain.EncryptedCard, error) {
	cards, err := s.coord.DeliverHoleCards(tableID)
	if err != nil {
		return nil, fmt.Errorf("dealing_service: deliver %s: %w", tableID, err)
	}
	publish(ctx, s.bus, s.logger, domain.ChannelDealing, "", Event{
		Type: "hole_cards_delivered",
		Data: map[string]any{"table_id": tableID, "seats": len(cards)},
	})
	return cards, nil
}

// StartPlay opens betting on the dealt hand.
func (s *DealingService) StartPlay(ctx context.Context, tableID string) error {
	if err := s.coord.StartPlay(tableID); err != nil {
		return fmt.Errorf("dealing_service: start %s: %w", tableID, err)
	}
	publish(ctx, s.bus, s.logger, domain.ChannelDealing, "", Event{
		Type: "play_started",
		Data: map[string]any{"table_id": tableID},
	})
	return nil
}

// DecryptHoleCards decrypts the recipient's two hole cards from the current
// deck.
func (s *DealingService) DecryptHoleCards(ctx context.Context, tableID, recipient string) ([]domain.Card, error) {
	hand, ok := s.coord.Hand(tableID)
	if !ok || hand.Deck == nil {
		return nil, fmt.Errorf("dealing_service: decrypt %s: %w: no deck", tableID, domain.ErrInvalidTransition)
	}

	unlock, err := s.locks.Acquire(ctx, "deal:"+tableID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("dealing_service: decrypt %s: %w", tableID, err)
	}
	defer unlock()

	cards, err := s.coord.DecryptHoleCards(ctx, tableID, hand.Deck.Cards, recipient)
	if err != nil {
		s.fail(ctx, tableID, "decrypt", err)
		return nil, fmt.Errorf("dealing_service: decrypt %s: %w", tableID, err)
	}
	return cards, nil
}

// ShowdownResult is a verified reveal and where it was archived.
type ShowdownResult struct {
	Showdown    domain.Showdown
	HandNumber  uint64
	ArchivePath string
}

// Showdown reveals the deck, verifies it against the commitment and archives
// the finished hand. An archive failure is reported but does not undo the
// reveal.
func (s *DealingService) Showdown(ctx context.Context, tableID string) (ShowdownResult, error) {
	hand, ok := s.coord.Hand(tableID)
	if !ok || hand.Deck == nil {
		return ShowdownResult{}, fmt.Errorf("dealing_service: showdown %s: %w: no deck", tableID, domain.ErrInvalidTransition)
	}

	unlock, err := s.locks.Acquire(ctx, "deal:"+tableID, s.lockTTL)
	if err != nil {
		return ShowdownResult{}, fmt.Errorf("dealing_service: showdown %s: %w", tableID, err)
	}
	defer unlock()

	sd, err := s.coord.GenerateShowdownProof(ctx, tableID, *hand.Deck)
	if err != nil {
		s.fail(ctx, tableID, "showdown", err)
		return ShowdownResult{}, fmt.Errorf("dealing_service: showdown %s: %w", tableID, err)
	}

	res := ShowdownResult{Showdown: sd, HandNumber: hand.Number}
	detail := map[string]any{
		"table_id":   tableID,
		"hand":       hand.Number,
		"commitment": hex.EncodeToString(sd.Commitment[:]),
	}
	if s.archiver != nil {
		path, err := s.archive(ctx, hand, sd)
		if err != nil {
			s.logger.ErrorContext(ctx, "archive hand failed",
				slog.String("table_id", tableID),
				slog.Uint64("hand", hand.Number),
				slog.String("error", err.Error()),
			)
			if s.alerts != nil {
				_ = s.alerts.NotifyError(ctx, "archive "+tableID, err)
			}
		} else {
			res.ArchivePath = path
			detail["archive_path"] = path
		}
	}

	auditLog(ctx, s.audit, s.logger, "hand.revealed", detail)
	publish(ctx, s.bus, s.logger, domain.ChannelDealing, "", Event{Type: "hand_revealed", Data: detail})
	s.logger.InfoContext(ctx, "hand revealed", slog.String("table_id", tableID), slog.Uint64("hand", hand.Number))
	return res, nil
}

// Abort drops the table's hand after an external failure.
func (s *DealingService) Abort(ctx context.Context, tableID string) error {
	if err := s.coord.Abort(tableID); err != nil {
		return fmt.Errorf("dealing_service: abort %s: %w", tableID, err)
	}
	auditLog(ctx, s.audit, s.logger, "hand.aborted", map[string]any{"table_id": tableID})
	return nil
}

// Hand returns the table's current hand snapshot.
func (s *DealingService) Hand(tableID string) dealing.Hand {
	h, _ := s.coord.Hand(tableID)
	return h
}

func (s *DealingService) archive(ctx context.Context, hand dealing.Hand, sd domain.Showdown) (string, error) {
	deckLedger, err := dealing.MarshalDeck(*hand.Deck)
	if err != nil {
		return "", err
	}
	proofLedger, err := dealing.MarshalShowdownProof(sd.Proof, hand.Deck.Commitment)
	if err != nil {
		return "", err
	}
	return s.archiver.ArchiveHand(ctx, domain.HandRecord{
		TableID:        hand.TableID,
		HandNumber:     hand.Number,
		Protocol:       string(s.protocol),
		Participants:   hand.Participants,
		Deck:           *hand.Deck,
		Showdown:       sd,
		DeckLedger:     deckLedger,
		ShowdownLedger: proofLedger,
		FinishedAt:     s.now().UTC(),
	})
}

// fail logs a dealing error and alerts on integrity violations.
func (s *DealingService) fail(ctx context.Context, tableID, op string, err error) {
	kind := domain.KindOf(err)
	s.logger.WarnContext(ctx, "dealing failed",
		slog.String("table_id", tableID),
		slog.String("op", op),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	)
	if kind != domain.KindIntegrity {
		return
	}
	auditLog(ctx, s.audit, s.logger, "hand.integrity_violation", map[string]any{
		"table_id": tableID, "op": op, "error": err.Error(),
	})
	if s.alerts != nil {
		_ = s.alerts.NotifyError(ctx, "table "+tableID, err)
	}
}
