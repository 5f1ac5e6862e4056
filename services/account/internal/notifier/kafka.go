package notifier

import (
	"context"
	"time"
)

// ResetEventPublisher is implemented by event.Producer.
type ResetEventPublisher interface {
	PublishPasswordResetRequested(ctx context.Context, userID int64, email, code string, expiresAt time.Time) error
}

// KafkaNotifier hands reset codes to a downstream mail gateway over Kafka.
type KafkaNotifier struct {
	events ResetEventPublisher
}

// NewKafkaNotifier creates a notifier that publishes reset events.
func NewKafkaNotifier(events ResetEventPublisher) *KafkaNotifier {
	return &KafkaNotifier{events: events}
}

// SendResetCode implements Notifier.
func (n *KafkaNotifier) SendResetCode(ctx context.Context, msg ResetCode) error {
	return n.events.PublishPasswordResetRequested(ctx, msg.UserID, msg.Email, msg.Code, msg.ExpiresAt)
}
