package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// prefixSealer marks sealed values so tests can tell them apart.
type prefixSealer struct{}

func (prefixSealer) Seal(seed string) (string, error) { return "sealed:" + seed, nil }

func (prefixSealer) Open(sealed string) (string, error) {
	seed, ok := strings.CutPrefix(sealed, "sealed:")
	if !ok {
		return "", fmt.Errorf("not sealed: %w", domain.ErrInvalidInput)
	}
	return seed, nil
}

// memSeeds implements domain.SeedStore.
type memSeeds struct {
	mu         sync.Mutex
	pairs      map[string]domain.SeedPair
	reveals    map[string]domain.SeedReveal
	advanceErr error
}

func newMemSeeds() *memSeeds {
	return &memSeeds{pairs: map[string]domain.SeedPair{}, reveals: map[string]domain.SeedReveal{}}
}

func revealKey(bettor, hash string, nonce uint64) string {
	return fmt.Sprintf("%s|%s|%d", bettor, hash, nonce)
}

func (m *memSeeds) GetActive(_ context.Context, bettor string) (domain.SeedPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairs[bettor]
	if !ok {
		return domain.SeedPair{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memSeeds) Save(_ context.Context, p domain.SeedPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs[p.Bettor] = p
	return nil
}

func (m *memSeeds) AdvanceNonce(_ context.Context, bettor string, expected uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advanceErr != nil {
		err := m.advanceErr
		m.advanceErr = nil
		return err
	}
	p, ok := m.pairs[bettor]
	if !ok || p.Nonce != expected {
		return domain.ErrConflict
	}
	p.Nonce++
	m.pairs[bettor] = p
	return nil
}

func (m *memSeeds) RecordReveal(_ context.Context, r domain.SeedReveal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reveals[revealKey(r.Bettor, r.HashedServerSeed, r.Nonce)] = r
	return nil
}

func (m *memSeeds) GetReveal(_ context.Context, bettor, hash string, nonce uint64) (domain.SeedReveal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reveals[revealKey(bettor, hash, nonce)]
	if !ok {
		return domain.SeedReveal{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memSeeds) PurgeReveals(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.reveals {
		if r.ExpiresAt.Before(before) {
			delete(m.reveals, k)
			n++
		}
	}
	return n, nil
}

// memLedger implements the game, wager and payout stores over one map set.
type memLedger struct {
	mu      sync.Mutex
	games   map[string]domain.GameInstance
	wagers  map[string]domain.Wager
	order   []string
	payouts map[string][]domain.PayoutRecord
}

func newMemLedger() *memLedger {
	return &memLedger{
		games:   map[string]domain.GameInstance{},
		wagers:  map[string]domain.Wager{},
		payouts: map[string][]domain.PayoutRecord{},
	}
}

// coversLive reports whether ids are exactly the game's unrefunded wagers.
// The caller holds mu.
func (m *memLedger) coversLive(gameID string, ids []string) bool {
	var live []string
	for _, id := range m.order {
		if w := m.wagers[id]; w.GameID == gameID && w.Status != domain.WagerStatusRefunded {
			live = append(live, id)
		}
	}
	return slices.Equal(slices.Sorted(slices.Values(live)), slices.Sorted(slices.Values(ids)))
}

type memGames struct{ *memLedger }
type memWagers struct{ *memLedger }
type memPayouts struct{ *memLedger }

func (m memGames) Create(_ context.Context, g domain.GameInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.games[g.ID] = g
	return nil
}

func (m memGames) GetByID(_ context.Context, id string) (domain.GameInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return domain.GameInstance{}, domain.ErrNotFound
	}
	return g, nil
}

func (m memGames) ListByStatus(_ context.Context, status domain.GameStatus, _ domain.ListOpts) ([]domain.GameInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GameInstance
	for _, g := range m.games {
		if g.Status == status {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memGames) Settle(_ context.Context, out domain.ResolvedOutcome, payouts []domain.PayoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[out.GameID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := g.Resolve(out); err != nil {
		return err
	}
	ids := make([]string, len(payouts))
	for i, p := range payouts {
		ids[i] = p.WagerID
	}
	if !m.coversLive(g.ID, ids) {
		return domain.ErrWagersChanged
	}
	m.games[g.ID] = g
	for _, p := range payouts {
		w := m.wagers[p.WagerID]
		w.Status = domain.WagerStatusLost
		if p.Won {
			w.Status = domain.WagerStatusWon
		}
		m.wagers[p.WagerID] = w
	}
	m.payouts[out.GameID] = append([]domain.PayoutRecord(nil), payouts...)
	return nil
}

func (m memGames) Cancel(_ context.Context, gameID string, at time.Time, refunds []domain.RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := g.Cancel(at); err != nil {
		return err
	}
	ids := make([]string, len(refunds))
	for i, r := range refunds {
		ids[i] = r.WagerID
	}
	if !m.coversLive(gameID, ids) {
		return domain.ErrWagersChanged
	}
	m.games[gameID] = g
	for _, r := range refunds {
		w := m.wagers[r.WagerID]
		w.Status = domain.WagerStatusRefunded
		m.wagers[r.WagerID] = w
	}
	return nil
}

func (m memWagers) Create(_ context.Context, w domain.Wager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[w.GameID]; !ok || g.Status != domain.GameStatusOpen {
		return domain.ErrGameNotOpen
	}
	m.wagers[w.ID] = w
	m.order = append(m.order, w.ID)
	return nil
}

func (m memWagers) GetByID(_ context.Context, id string) (domain.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wagers[id]
	if !ok {
		return domain.Wager{}, domain.ErrNotFound
	}
	return w, nil
}

func (m memWagers) ListByGame(_ context.Context, gameID string) ([]domain.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Wager
	for _, id := range m.order {
		if w := m.wagers[id]; w.GameID == gameID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m memWagers) ListByBettor(_ context.Context, bettor string, _ domain.ListOpts) ([]domain.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Wager
	for _, id := range m.order {
		if w := m.wagers[id]; w.Bettor == bettor {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m memWagers) MarkClaimed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wagers[id]
	if !ok {
		return domain.ErrNotFound
	}
	if w.Status != domain.WagerStatusWon {
		return domain.ErrInvalidInput
	}
	w.Status = domain.WagerStatusClaimed
	m.wagers[id] = w
	return nil
}

func (m memPayouts) ListByGame(_ context.Context, gameID string) ([]domain.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payouts[gameID], nil
}

// memPools implements domain.PoolCache.
type memPools struct {
	mu    sync.Mutex
	pools map[string][]uint64
	gets  int
}

func newMemPools() *memPools { return &memPools{pools: map[string][]uint64{}} }

func (m *memPools) Get(_ context.Context, id string) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	p, ok := m.pools[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]uint64(nil), p...), nil
}

func (m *memPools) Set(_ context.Context, id string, totals []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id] = append([]uint64(nil), totals...)
	return nil
}

func (m *memPools) Add(_ context.Context, id string, b domain.Bucket, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[id]; ok {
		p[b.Index()] += amount
	}
	return nil
}

func (m *memPools) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, id)
	return nil
}

// memLocks implements domain.LockManager in process.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func newMemLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	m.keys = append(m.keys, key)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

// memBus records published events.
type memBus struct {
	mu      sync.Mutex
	events  map[string][]Event
	streams map[string]int
}

func newMemBus() *memBus { return &memBus{events: map[string][]Event{}, streams: map[string]int{}} }

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[channel] = append(b.events[channel], evt)
	return nil
}

func (b *memBus) Append(_ context.Context, stream string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream]++
	return nil
}

func (b *memBus) types(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events[channel] {
		out = append(out, e.Type)
	}
	return out
}

// memAudit records audit events.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{ID: int64(len(a.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

func (a *memAudit) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Event)
	}
	return out
}

// recAlerts records alerts by event.
type recAlerts struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recAlerts) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recAlerts) NotifyError(_ context.Context, _ string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	return nil
}

// memArchive implements domain.HandArchiver.
type memArchive struct {
	mu    sync.Mutex
	hands []domain.HandRecord
	err   error
}

func (a *memArchive) ArchiveHand(_ context.Context, rec domain.HandRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.hands = append(a.hands, rec)
	return fmt.Sprintf("hands/%s/%d.json", rec.TableID, rec.HandNumber), nil
}

func (a *memArchive) ExportAudit(context.Context, time.Time, time.Time) (string, int, error) {
	return "", 0, nil
}
