package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// HandArchive reads finished hands back from cold storage.
type HandArchive interface {
	FetchHand(ctx context.Context, tableID string, hand uint64) ([]byte, error)
}

// ArchiveHandler serves archived hand documents to auditors.
type ArchiveHandler struct {
	archive HandArchive
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archive HandArchive, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logHandler(logger, "archive")}
}

// GetHand streams the stored document unchanged so its bytes match what was
// archived at showdown.
// GET /api/tables/{id}/hands/{hand}
func (h *ArchiveHandler) GetHand(w http.ResponseWriter, r *http.Request) {
	hand, err := strconv.ParseUint(pathParam(r, "hand"), 10, 64)
	if err != nil {
		writeDomainError(w, r, h.logger, "fetch hand",
			fmt.Errorf("%w: hand %q must be a non-negative integer", domain.ErrInvalidInput, pathParam(r, "hand")))
		return
	}
	doc, err := h.archive.FetchHand(r.Context(), pathParam(r, "id"), hand)
	if err != nil {
		writeDomainError(w, r, h.logger, "fetch hand", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
