package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// AuditPublisher implements port.AuditSink using Kafka. Delivery is
// fire-and-forget: producer failures are logged, never returned to the
// authentication flow.
type AuditPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditPublisher constructs a Kafka-backed audit sink.
func NewAuditPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditPublisher {
	return &AuditPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type auditEnvelope struct {
	EventID    string            `json:"event_id"`
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorRole  string            `json:"actor_role,omitempty"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	Service    map[string]string `json:"service"`
}

// Record enqueues an audit event for asynchronous delivery.
func (p *AuditPublisher) Record(ctx context.Context, event domain.AuditEvent) {
	id := event.EventID
	if id == "" {
		id = uuid.NewString()
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	envelope := auditEnvelope{
		EventID:    id,
		Action:     event.Action,
		ActorID:    event.ActorID,
		ActorRole:  string(event.ActorRole),
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Timestamp:  ts.UTC(),
		Version:    schemaVersion,
		Metadata:   event.Metadata,
		Service: map[string]string{
			"name":        p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("marshal audit envelope failed",
			zap.String("action", event.Action),
			zap.Error(err),
		)
		return
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(event.Action),
		Key:   sarama.StringEncoder(event.ActorID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
	case <-ctx.Done():
		p.logger.Warn("audit event dropped, context cancelled",
			zap.String("action", event.Action),
		)
	}
}

var _ port.AuditSink = (*AuditPublisher)(nil)
