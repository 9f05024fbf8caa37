package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
	"github.com/alanyoungcy/housefun/internal/server/middleware"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps an error to its HTTP status through the error taxonomy.
// Unclassified errors are 500.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindComputation:
		return http.StatusBadGateway
	case domain.KindIntegrity:
		return http.StatusConflict
	case domain.KindArithmetic:
		return http.StatusUnprocessableEntity
	case domain.KindValidation:
	default:
		return http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRevealExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrUnauthorized):
		// Only the dealing cluster rejects our credentials.
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrGameNotOpen),
		errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrWagersChanged),
		errors.Is(err, domain.ErrRequestInFlight),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSeedStillActive):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// writeDomainError logs err and writes its mapped status. Internal errors
// are reported with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	kind := domain.KindOf(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, op+" failed")
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseNonce parses a non-negative decimal nonce. A leading minus sign is
// rejected explicitly so "-1" does not read as a huge value.
func parseNonce(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: nonce is required", domain.ErrInvalidInput)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: nonce %q must be a non-negative integer", domain.ErrInvalidInput, s)
	}
	return n, nil
}

// parseOptionalInt parses s as an int, returning def when s is empty.
func parseOptionalInt(s string, def int, name string) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", domain.ErrInvalidInput, name, s)
	}
	return n, nil
}

// rulesFor resolves the published rules for a game name. An empty name is
// the coin flip.
func rulesFor(game string, buckets int) (fairness.Rules, error) {
	if game == "" {
		game = string(domain.GameFlip)
	}
	return fairness.RulesFor(domain.GameKind(game), buckets)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
