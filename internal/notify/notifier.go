// Package notify fans operator alerts out to Telegram and Discord. Integrity
// violations and settlement failures are the events worth waking someone for;
// the configured event list filters the rest.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// Event types accepted by Notify.
const (
	EventIntegrityViolation = "integrity_violation"
	EventGameSettled        = "game_settled"
	EventGameCancelled      = "game_cancelled"
	EventError              = "error"
)

// Notifier dispatches to every sender. Notify only forwards events in the
// allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Alert{Event: event, Title: title, Message: message, At: time.Now()})
}

// Allows reports whether Notify would forward event.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// NotifyError routes err by its taxonomy class: integrity violations go out
// under EventIntegrityViolation, everything else under EventError.
func (n *Notifier) NotifyError(ctx context.Context, subject string, err error) error {
	if err == nil {
		return nil
	}
	kind := domain.KindOf(err)
	event := EventError
	if kind == domain.KindIntegrity {
		event = EventIntegrityViolation
	}
	title := fmt.Sprintf("%s failure: %s", kind, subject)
	return n.Notify(ctx, event, title, err.Error())
}

// NotifyAll sends to every sender regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, Alert{Title: title, Message: message, At: time.Now()})
}

// dispatch delivers to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", alert.Event),
			slog.String("title", alert.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
