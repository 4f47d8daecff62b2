package notification

import (
	"context"
	"log/slog"

	"github.com/raga-mitra/raga_mitra/internal/phone"
)

const (
	// KindVerificationCode is the SMS carrying a one-time verification code.
	KindVerificationCode = "verification_code"
)

// Message describes an outbound SMS.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Sender delivers SMS messages to a gateway.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// LoggerSender writes messages to the logger instead of a real gateway. Used in development.
type LoggerSender struct {
	logger *slog.Logger
}

// NewLoggerSender constructs a logging sender.
func NewLoggerSender(logger *slog.Logger) *LoggerSender {
	return &LoggerSender{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerSender) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("sms", "kind", message.Kind, "destination", phone.Mask(message.Destination), "body", message.Body)
	return nil
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, message Message) error

func (f SenderFunc) Send(ctx context.Context, message Message) error { return f(ctx, message) }
