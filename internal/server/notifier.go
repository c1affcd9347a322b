package server

import (
	"log/slog"

	"github.com/example/campus-rideshare/internal/application"
	"github.com/example/campus-rideshare/internal/observability"
	"github.com/example/campus-rideshare/internal/presence"
)

// PushNotifier delivers application notices over live connections from the
// presence registry. Delivery is best effort: an offline peer or a failed
// write drops the notice and never propagates an error, because the durable
// state change that triggered the push has already committed.
type PushNotifier struct {
	registry *presence.Registry
	logger   *slog.Logger
}

// NewPushNotifier wires a notifier over the shared registry.
func NewPushNotifier(registry *presence.Registry, logger *slog.Logger) *PushNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushNotifier{registry: registry, logger: logger}
}

// PushDriver sends a notice to a connected driver.
func (n *PushNotifier) PushDriver(username string, notice application.Notice) {
	peer, ok := n.registry.DriverPeer(username)
	n.deliver(peer, ok, username, notice)
}

// PushPassenger sends a notice to a connected passenger.
func (n *PushNotifier) PushPassenger(username string, notice application.Notice) {
	peer, ok := n.registry.PassengerPeer(username)
	n.deliver(peer, ok, username, notice)
}

func (n *PushNotifier) deliver(peer presence.Peer, online bool, username string, notice application.Notice) {
	event := notice.Event()
	if !online {
		observability.PushesDroppedTotal.WithLabelValues(event).Inc()
		n.logger.Debug("push dropped, peer offline", "event", event, "username", username)
		return
	}
	if err := peer.Send(notice); err != nil {
		observability.PushesDroppedTotal.WithLabelValues(event).Inc()
		n.logger.Warn("push write failed", "event", event, "username", username, "error", err)
		return
	}
	observability.PushesSentTotal.WithLabelValues(event).Inc()
}
