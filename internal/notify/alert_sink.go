package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Redis channels and streams carrying alert events for in-process and
// websocket consumers.
const (
	ChannelAlerts = "alerts"
	StreamAlerts  = "stream:alerts"
)

// AlertSink fans a qualifying opportunity out to every configured alert
// channel: rendered messages through the Notifier, the structured peer
// webhook, and the signal bus for websocket and stream consumers. Channel
// failures are combined; partial delivery still reports an error so the
// engine counts the dispatch as a miss.
type AlertSink struct {
	notifier *Notifier
	peer     *PeerSender
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewAlertSink creates an AlertSink. Any of notifier, peer, and bus may be
// nil; the sink delivers to whatever is configured.
func NewAlertSink(notifier *Notifier, peer *PeerSender, bus domain.SignalBus, logger *slog.Logger) *AlertSink {
	return &AlertSink{
		notifier: notifier,
		peer:     peer,
		bus:      bus,
		logger:   logger.With(slog.String("component", "alert_sink")),
	}
}

// SendAlert delivers the opportunity to all configured channels.
func (s *AlertSink) SendAlert(ctx context.Context, opp domain.Opportunity) error {
	var errs []error

	if s.bus != nil {
		payload, err := json.Marshal(opp)
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: marshal alert %s: %w", opp.ID, err))
		} else {
			if err := s.bus.Publish(ctx, ChannelAlerts, payload); err != nil {
				errs = append(errs, err)
			}
			if err := s.bus.StreamAppend(ctx, StreamAlerts, payload); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("MEV %s opportunity on %s", opp.Kind, opp.PoolID)
		message := fmt.Sprintf(
			"Estimated value: %.4f ETH\nRisk score: %.2f\nConfidence: %.2f\nBlock: %d",
			opp.EstimatedValue, opp.RiskScore, opp.Confidence, opp.BlockNumber,
		)
		if err := s.notifier.Notify(ctx, EventAlert, title, message); err != nil {
			errs = append(errs, err)
		}
	}

	if s.peer != nil {
		if err := s.peer.SendOpportunity(ctx, opp); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: alert %s: %w", opp.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AlertSink = (*AlertSink)(nil)
