package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier records that a code was issued without delivering it.
// It is meant for local development where no relay is available.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendResetCode implements Notifier.
func (n *LogNotifier) SendResetCode(ctx context.Context, msg ResetCode) error {
	n.logger.InfoContext(ctx, "reset code issued (log notifier, not delivered)", slog.Any("reset", msg))
	return nil
}
