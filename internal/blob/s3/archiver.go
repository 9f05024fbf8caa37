package s3blob

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// auditPageSize bounds each audit query issued during an export.
const auditPageSize = 500

// Archiver implements domain.HandArchiver. Hands are written as one JSON
// object each; audit exports are streamed as JSONL. Nothing is deleted from
// the primary store here.
type Archiver struct {
	store  domain.ObjectStore
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates an Archiver. prefix is prepended to every key and may
// be empty.
func NewArchiver(store domain.ObjectStore, audit domain.AuditStore, prefix string) *Archiver {
	return &Archiver{store: store, audit: audit, prefix: prefix}
}

var _ domain.HandArchiver = (*Archiver)(nil)

// ArchiveHand uploads a finished hand. A hand that is already archived is
// left untouched and its existing key returned.
func (a *Archiver) ArchiveHand(ctx context.Context, rec domain.HandRecord) (string, error) {
	key := a.prefix + handPath(rec.TableID, rec.HandNumber, rec.FinishedAt)

	if _, ok, err := a.store.Stat(ctx, key); err != nil {
		return "", fmt.Errorf("s3blob: archive hand: %w", err)
	} else if ok {
		return key, nil
	}

	data, err := json.Marshal(handDocumentFrom(rec))
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal hand %s/%d: %w", rec.TableID, rec.HandNumber, err)
	}
	if err := a.store.Put(ctx, key, data, contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive hand: %w", err)
	}
	return key, nil
}

// FetchHand returns the archived JSON document of one hand. The day
// partition is not known to the caller, so the table prefix is listed.
func (a *Archiver) FetchHand(ctx context.Context, tableID string, hand uint64) ([]byte, error) {
	objects, err := a.store.List(ctx, a.prefix+"hands/"+tableID+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: fetch hand: %w", err)
	}
	suffix := fmt.Sprintf("/%06d.json", hand)
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, suffix) {
			continue
		}
		body, err := a.store.Open(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("s3blob: fetch hand: %w", err)
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("s3blob: read %s: %w", obj.Key, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("s3blob: hand %s/%d: %w", tableID, hand, domain.ErrNotFound)
}

// ExportAudit pages through audit entries in [since, until] and uploads them
// as one JSONL object. It returns the object key and the entry count.
func (a *Archiver) ExportAudit(ctx context.Context, since, until time.Time) (string, int, error) {
	key := a.prefix + auditPath(since, until)

	pr, pw := io.Pipe()
	counted := make(chan int, 1)
	go func() {
		n, err := a.writeAudit(ctx, pw, since, until)
		counted <- n
		_ = pw.CloseWithError(err)
	}()

	err := a.store.Upload(ctx, key, pr, contentTypeJSONL)
	// Unblock the producer if the upload stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	n := <-counted
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export audit: %w", err)
	}
	return key, n, nil
}

func (a *Archiver) writeAudit(ctx context.Context, w io.Writer, since, until time.Time) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	for offset := 0; ; offset += auditPageSize {
		page, err := a.audit.List(ctx, domain.ListOpts{
			Since: &since, Until: &until, Limit: auditPageSize, Offset: offset,
		})
		if err != nil {
			return n, fmt.Errorf("list audit: %w", err)
		}
		for _, e := range page {
			if err := enc.Encode(auditLine{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt}); err != nil {
				return n, fmt.Errorf("jsonl encode audit %d: %w", e.ID, err)
			}
			n++
		}
		if len(page) < auditPageSize {
			return n, nil
		}
	}
}

// handPath partitions hands by table and day:
//
//	hands/{table}/2026-01-02/000042.json
func handPath(tableID string, hand uint64, at time.Time) string {
	return fmt.Sprintf("hands/%s/%s/%06d.json", tableID, at.UTC().Format("2006-01-02"), hand)
}

// auditPath names an export by its window:
//
//	audit/20260101T000000Z-20260102T000000Z.jsonl
func auditPath(since, until time.Time) string {
	const layout = "20060102T150405Z"
	return fmt.Sprintf("audit/%s-%s.jsonl", since.UTC().Format(layout), until.UTC().Format(layout))
}

// --------------------------------------------------------------------------
// Archive documents
// --------------------------------------------------------------------------

type auditLine struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type proofDocument struct {
	ComputationID    string    `json:"computation_id"`
	Outcome          uint8     `json:"outcome"`
	Proof            []byte    `json:"proof"`
	PublicInputs     []byte    `json:"public_inputs,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ClusterSignature []byte    `json:"cluster_signature,omitempty"`
}

type cardDocument struct {
	Ciphertext    []byte `json:"ciphertext"`
	Recipient     string `json:"recipient"`
	ProofFragment []byte `json:"proof_fragment"`
}

type handDocument struct {
	TableID        string         `json:"table_id"`
	HandNumber     uint64         `json:"hand_number"`
	Protocol       string         `json:"protocol"`
	Participants   []string       `json:"participants"`
	Commitment     string         `json:"commitment"`
	EncryptedCards []cardDocument `json:"encrypted_cards"`
	DeckProof      *proofDocument `json:"deck_proof,omitempty"`
	RevealedCards  []int          `json:"revealed_cards"`
	ShowdownProof  *proofDocument `json:"showdown_proof,omitempty"`
	DeckLedger     []byte         `json:"deck_ledger,omitempty"`
	ShowdownLedger []byte         `json:"showdown_ledger,omitempty"`
	FinishedAt     time.Time      `json:"finished_at"`
}

func handDocumentFrom(rec domain.HandRecord) handDocument {
	doc := handDocument{
		TableID:        rec.TableID,
		HandNumber:     rec.HandNumber,
		Protocol:       rec.Protocol,
		Participants:   rec.Participants,
		Commitment:     hex.EncodeToString(rec.Deck.Commitment[:]),
		EncryptedCards: make([]cardDocument, len(rec.Deck.Cards)),
		DeckProof:      proofDocumentFrom(rec.Deck.Proof),
		RevealedCards:  make([]int, len(rec.Showdown.Cards)),
		ShowdownProof:  proofDocumentFrom(rec.Showdown.Proof),
		DeckLedger:     rec.DeckLedger,
		ShowdownLedger: rec.ShowdownLedger,
		FinishedAt:     rec.FinishedAt.UTC(),
	}
	for i, c := range rec.Deck.Cards {
		doc.EncryptedCards[i] = cardDocument{Ciphertext: c.Ciphertext, Recipient: c.Recipient, ProofFragment: c.ProofFragment}
	}
	for i, c := range rec.Showdown.Cards {
		doc.RevealedCards[i] = int(c)
	}
	return doc
}

func proofDocumentFrom(p *domain.Proof) *proofDocument {
	if p == nil {
		return nil
	}
	return &proofDocument{
		ComputationID:    p.ComputationID,
		Outcome:          p.Outcome,
		Proof:            p.Proof,
		PublicInputs:     p.PublicInputs,
		Timestamp:        p.Timestamp.UTC(),
		ClusterSignature: p.ClusterSignature,
	}
}
