// Package notify delivers significant-opportunity alerts over webhook
// channels. Delivery is best effort: a failed channel is logged and
// skipped, and the orchestrator never treats alert failure as a scan
// failure.
package notify

import (
	"context"
	"fmt"
	"strings"

	"arbscan/business/scanner/domain"
	"arbscan/internal/logger"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a message with the given title and body.
	Send(ctx context.Context, title, message string) error
	// Name returns the channel identifier (e.g. "discord").
	Name() string
}

// Notifier formats opportunity records and dispatches them to every
// configured sender.
type Notifier struct {
	senders []Sender
	logger  logger.LoggerInterface
}

// NewNotifier creates a Notifier over the given senders.
func NewNotifier(senders []Sender, log logger.LoggerInterface) *Notifier {
	return &Notifier{senders: senders, logger: log}
}

// NotifySignificant sends one batch message covering all new or
// reactivated records. Errors from individual senders are collected; a
// single failed channel does not block the others.
func (n *Notifier) NotifySignificant(ctx context.Context, records []domain.Record) error {
	if len(n.senders) == 0 || len(records) == 0 {
		return nil
	}

	title := fmt.Sprintf("%d significant arbitrage opportunities", len(records))
	if len(records) == 1 {
		title = "Significant arbitrage opportunity"
	}
	message := formatRecords(records)

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Warn(ctx, "sender failed", "sender", s.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug(ctx, "notification sent", "sender", s.Name(), "records", len(records))
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func formatRecords(records []domain.Record) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		snap := r.Snapshot
		fmt.Fprintf(&b, "%s: buy %s @ %s, sell %s @ %s, net %s%% (confidence %s, risk %s)",
			snap.Symbol,
			snap.BuySource, snap.BuyVWAP.StringFixed(4),
			snap.SellSource, snap.SellVWAP.StringFixed(4),
			snap.NetProfitPct.StringFixed(2),
			snap.Confidence.StringFixed(0),
			snap.Risk,
		)
	}
	return b.String()
}
