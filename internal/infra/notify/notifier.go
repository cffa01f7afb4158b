package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/infra/logger"
)

// LoggingNotifier writes one-time codes to the application log instead of
// dispatching email. The plaintext code is only logged when devLogCodes is
// set; otherwise the entry records the masked recipient and expiry only.
type LoggingNotifier struct {
	logger      *zap.Logger
	devLogCodes bool
}

// NewLoggingNotifier constructs a log-backed notifier.
func NewLoggingNotifier(log *zap.Logger, devLogCodes bool) *LoggingNotifier {
	return &LoggingNotifier{logger: log, devLogCodes: devLogCodes}
}

// Send records the delivery. Returns nil unconditionally so development
// environments never fail challenge issuance over a missing mail relay.
func (n *LoggingNotifier) Send(_ context.Context, email, code string, expiresAt time.Time) error {
	fields := []zap.Field{
		zap.String("email", logger.MaskEmail(email)),
		zap.Time("expires_at", expiresAt),
	}
	if n.devLogCodes {
		fields = append(fields, zap.String("code", code))
	}

	n.logger.Info("one-time code issued", fields...)
	return nil
}

var _ port.Notifier = (*LoggingNotifier)(nil)

// NoopNotifier silently accepts every delivery. Used in tests and in
// environments where the outbound relay is wired elsewhere.
type NoopNotifier struct{}

// Send accepts the delivery without acting on it.
func (NoopNotifier) Send(context.Context, string, string, time.Time) error {
	return nil
}

var _ port.Notifier = NoopNotifier{}
