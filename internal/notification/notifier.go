// Package notification delivers triggered price alerts to external
// channels (Telegram, generic webhooks).
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartengine/internal/model"
)

// Notifier is the interface all delivery backends implement.
type Notifier interface {
	// Send delivers a triggered alert. Returns an error if delivery fails.
	Send(ctx context.Context, alert model.PriceAlert) error
}

// alertText formats a triggered alert for human-readable channels.
func alertText(a model.PriceAlert) string {
	dir := "rose above"
	if a.Direction == model.AlertBelow {
		dir = "fell below"
	}
	return fmt.Sprintf("%s %s %.2f", a.Symbol, dir, a.Price)
}

// LogNotifier writes alerts to the structured log. Used when no external
// channel is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, alert model.PriceAlert) error {
	n.log.Info("price alert triggered",
		"symbol", alert.Symbol,
		"price", alert.Price,
		"direction", string(alert.Direction),
	)
	return nil
}

// Dispatcher fans a triggered alert out to every configured backend.
// Delivery is fire-and-forget: a failing backend is logged and skipped so
// one dead channel cannot block the others.
type Dispatcher struct {
	backends []Notifier
	log      *slog.Logger
	timeout  time.Duration
}

func NewDispatcher(log *slog.Logger, backends ...Notifier) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		backends: backends,
		log:      log,
		timeout:  10 * time.Second,
	}
}

// Notify sends the alert to all backends asynchronously.
func (d *Dispatcher) Notify(alert model.PriceAlert) {
	for _, b := range d.backends {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := n.Send(ctx, alert); err != nil {
				d.log.Warn("alert delivery failed",
					"symbol", alert.Symbol,
					"err", err,
				)
			}
		}(b)
	}
}
