package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// Sender is the subset of *gomail.Dialer used by SMTPNotifier.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier emails reset codes through an SMTP relay.
type SMTPNotifier struct {
	sender  Sender
	from    string
	subject string
}

// NewSMTPNotifier dials the relay described by cfg on every send.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, errors.New("smtp notifier requires host, port and from address")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewSMTPNotifierWithSender(d, cfg.From, cfg.Subject), nil
}

// NewSMTPNotifierWithSender uses an existing sender. Tests pass a fake.
func NewSMTPNotifierWithSender(s Sender, from, subject string) *SMTPNotifier {
	if subject == "" {
		subject = "Password Reset OTP"
	}
	return &SMTPNotifier{sender: s, from: from, subject: subject}
}

// SendResetCode implements Notifier. gomail has no context support, so
// cancellation is only honoured before dialing.
func (n *SMTPNotifier) SendResetCode(ctx context.Context, msg ResetCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.Email)
	m.SetHeader("Subject", n.subject)
	m.SetBody("text/plain", resetBody(msg))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func resetBody(msg ResetCode) string {
	minutes := int(time.Until(msg.ExpiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Your OTP for password reset is %s.\n\nIt expires in %d minutes. If you did not request a reset, you can ignore this email.\n",
		msg.Code, minutes)
}
