package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/core/port"
)

// StubAuditSink logs audit events instead of sending them to Kafka. Useful
// for development environments without a broker.
type StubAuditSink struct {
	logger *zap.Logger
}

// NewStubAuditSink constructs a development-friendly audit sink.
func NewStubAuditSink(logger *zap.Logger) *StubAuditSink {
	return &StubAuditSink{logger: logger}
}

// Record logs the event at info level.
func (s *StubAuditSink) Record(_ context.Context, event domain.AuditEvent) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	s.logger.Info("Stub audit event",
		zap.String("action", event.Action),
		zap.String("actor_id", event.ActorID),
		zap.String("actor_role", string(event.ActorRole)),
		zap.String("entity_type", event.EntityType),
		zap.String("entity_id", event.EntityID),
		zap.Time("timestamp", ts.UTC()),
		zap.Any("metadata", event.Metadata),
	)
}

var _ port.AuditSink = (*StubAuditSink)(nil)
