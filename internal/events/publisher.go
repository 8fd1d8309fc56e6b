package events

import (
	"context"
	"encoding/json"
	"time"

	"services/price-ingest-service/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher emits ingestion run reports to Kafka. A nil *Publisher is valid
// and publishes nothing, so callers need no enabled/disabled branching.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a run-report publisher, or nil when no brokers are
// configured.
func NewPublisher(brokers []string, clientID, topic string, logger *zap.Logger) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			Transport: &kafka.Transport{
				ClientID: clientID,
			},
		},
		logger: logger,
	}
}

// PublishRunReport sends one run report keyed by job name. Failures are
// logged and returned but must never fail the ingestion cycle itself.
func (p *Publisher) PublishRunReport(ctx context.Context, report *model.RunReport) error {
	if p == nil {
		return nil
	}

	value, err := json.Marshal(report)
	if err != nil {
		p.logger.Error("Failed to marshal run report", zap.Error(err), zap.String("job", report.Job))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(report.Job),
		Value: value,
		Time:  report.RunUTC,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish run report",
			zap.Error(err),
			zap.String("job", report.Job))
		return err
	}

	p.logger.Debug("Run report published",
		zap.String("job", report.Job),
		zap.Int("inserted", report.TotalInserted()))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
