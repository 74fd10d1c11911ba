package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
	ch "repairdesk/internal/repository/clickhouse"
	"repairdesk/internal/util"
)

const (
	sinkBatchSize     = 200
	sinkFlushInterval = 5 * time.Second
)

// Sink drains the audit topic into ClickHouse in batches. It is the whole of
// the auditsink binary.
type Sink struct {
	consumer *client.KafkaConsumer
	store    *ch.AuditStore
	logger   *zap.Logger
}

func NewSink(consumer *client.KafkaConsumer, store *ch.AuditStore, logger *zap.Logger) *Sink {
	return &Sink{consumer: consumer, store: store, logger: logger}
}

// Run consumes until the context is cancelled. One goroutine reads Kafka,
// another batches rows into ClickHouse; either failing stops both.
func (s *Sink) Run(ctx context.Context) error {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return err
	}

	events := make(chan models.AuditEvent, sinkBatchSize)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		for {
			msg, err := s.consumer.ConsumeMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			var event models.AuditEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				util.Warn("Skipping undecodable audit message",
					zap.ByteString("key", msg.Key),
					zap.Error(err))
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		batch := make([]models.AuditEvent, 0, sinkBatchSize)
		ticker := time.NewTicker(sinkFlushInterval)
		defer ticker.Stop()

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := s.store.InsertBatch(context.Background(), batch); err != nil {
				return err
			}
			util.Info("Flushed audit batch", zap.Int("events", len(batch)))
			batch = batch[:0]
			return nil
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return flush()
				}
				batch = append(batch, event)
				if len(batch) >= sinkBatchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			case <-ticker.C:
				if err := flush(); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}
