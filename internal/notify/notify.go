// Package notify defines outbound mention signaling. The wire protocol
// (webmention discovery and delivery) is an external collaborator; the
// engine only dispatches best-effort notifications through this interface.
package notify

import (
	"context"
	"log/slog"
)

// Notifier signals a mention target that fromPath references it. The return
// value reports whether a notification was actually delivered; dispatchers
// treat the whole call as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, fromPath, toURL string) bool
}

// LogNotifier records dispatches without delivering anything. It is the
// default when no delivery collaborator is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the dispatch and reports no delivery.
func (n *LogNotifier) Notify(_ context.Context, fromPath, toURL string) bool {
	n.Logger.Debug("notify: dispatch",
		slog.String("from", fromPath),
		slog.String("to", toURL))
	return false
}
