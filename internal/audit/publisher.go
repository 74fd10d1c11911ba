package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
	"repairdesk/internal/util"
)

// Publisher pushes audit events onto the stream. Publishing is fire-and-forget
// for callers: a broken broker must never fail a login.
type Publisher interface {
	Publish(ctx context.Context, event models.AuditEvent)
}

type kafkaPublisher struct {
	producer *client.KafkaProducer
	logger   *zap.Logger
}

func NewKafkaPublisher(producer *client.KafkaProducer, logger *zap.Logger) Publisher {
	return &kafkaPublisher{producer: producer, logger: logger}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event models.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal audit event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.producer.ProduceMessage(ctx, []byte(event.EmployeeCode), value); err != nil {
		util.Error("Failed to publish audit event",
			zap.String("event_type", event.EventType),
			zap.Uint("account_id", event.AccountID),
			zap.Error(err))
	}
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops everything. Used when Kafka
// is not configured, typically in local development.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, models.AuditEvent) {}
