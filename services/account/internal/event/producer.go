package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	pkgkafka "github.com/utafrali/MediaCatalog/pkg/kafka"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
)

// Kafka topics for account domain events.
var (
	TopicUserRegistered         = pkgkafka.Topic("account", "user_registered")
	TopicPasswordResetRequested = pkgkafka.Topic("account", "password_reset_requested")
	TopicPasswordChanged        = pkgkafka.Topic("account", "password_changed")
)

// AggregateTypeUser is the aggregate type of every account event.
const AggregateTypeUser = "user"

// SourceAccountService identifies events originating from this service.
const SourceAccountService = "account-service"

// UserRegisteredData is the payload for a user_registered event.
type UserRegisteredData struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PasswordResetRequestedData is the payload consumed by the mail gateway.
// Code is the plaintext reset code; the topic must be readable only by
// the delivery service.
type PasswordResetRequestedData struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordChangedData is the payload for a password_changed event.
type PasswordChangedData struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Publisher is the subset of *pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes account domain events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the account service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishUserRegistered publishes a user_registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, data)
}

// PublishPasswordResetRequested publishes the reset code for delivery.
func (p *Producer) PublishPasswordResetRequested(ctx context.Context, userID int64, email, code string, expiresAt time.Time) error {
	data := PasswordResetRequestedData{
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: expiresAt,
	}
	return p.publish(ctx, TopicPasswordResetRequested, userID, data)
}

// PublishPasswordChanged publishes a password_changed event.
func (p *Producer) PublishPasswordChanged(ctx context.Context, userID int64, email string) error {
	return p.publish(ctx, TopicPasswordChanged, userID, PasswordChangedData{UserID: userID, Email: email})
}

func (p *Producer) publish(ctx context.Context, topic string, userID int64, data any) error {
	aggregateID := strconv.FormatInt(userID, 10)

	evt, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeUser, SourceAccountService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithContext(ctx)

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published account event",
		slog.String("topic", topic),
		slog.Int64("user_id", userID),
	)
	return nil
}
