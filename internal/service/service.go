// Package service orchestrates the pure fairness, settlement and dealing
// packages against the stores, locks, bus and archive.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// Alerter is the slice of notify.Notifier the services use.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
	NotifyError(ctx context.Context, subject string, err error) error
}

// SeedSealer encrypts server seeds before they reach the store.
type SeedSealer interface {
	Seal(seed string) (string, error)
	Open(sealed string) (string, error)
}

// Publisher is the slice of domain.SignalBus the services use.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Append(ctx context.Context, stream string, payload []byte) error
}

// Event is the envelope published on the bus and relayed to websocket
// clients.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// publish sends evt on channel and, when stream is non-empty, appends it to
// the durable stream. Bus failures are logged, never returned.
func publish(ctx context.Context, bus Publisher, logger *slog.Logger, channel, stream string, evt Event) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.WarnContext(ctx, "marshal event failed", slog.String("type", evt.Type), slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish event failed",
			slog.String("type", evt.Type),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if stream == "" {
		return
	}
	if err := bus.Append(ctx, stream, payload); err != nil {
		logger.WarnContext(ctx, "stream append failed",
			slog.String("type", evt.Type),
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog writes an audit entry, logging instead of failing the caller.
func auditLog(ctx context.Context, audit domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
