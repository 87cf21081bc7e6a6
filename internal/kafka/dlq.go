package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/pkg/consumer"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// DLQEvent represents a message published to the dead letter queue.
type DLQEvent struct {
	OriginalEvent     json.RawMessage `json:"original_event,omitempty"`
	OriginalValue     string          `json:"original_value,omitempty"`
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	FailureReason     string          `json:"failure_reason"`
	FailureTimestamp  time.Time       `json:"failure_timestamp"`
	ProcessorID       string          `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// DLQPublisher publishes failed messages to <topic><suffix>.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	metrics     MetricsCollector
	mu          sync.RWMutex
	closed      bool
	processorID string
	now         func() time.Time
}

// NewDLQPublisher creates a new DLQ publisher. When the DLQ is disabled no
// producer is created and Publish is a no-op.
func NewDLQPublisher(
	bootstrapServers []string,
	security SecurityConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
	processorID string,
) (*DLQPublisher, error) {
	p := &DLQPublisher{
		config:      dlqConfig,
		logger:      logger,
		metrics:     metrics,
		processorID: processorID,
		now:         time.Now,
	}
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return p, nil
	}

	producer, err := NewSyncProducer(bootstrapServers, security)
	if err != nil {
		return nil, err
	}
	p.producer = producer

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)
	return p, nil
}

// newMessage builds the DLQ record for msg. A payload that is valid JSON
// is embedded as is; anything else is carried as a string.
func (p *DLQPublisher) newMessage(msg *event.ConsumedMessage, reason string) (*sarama.ProducerMessage, error) {
	dlqEvent := DLQEvent{
		OriginalTopic:     msg.Metadata.Topic,
		OriginalPartition: msg.Metadata.Partition,
		OriginalOffset:    msg.Metadata.Offset,
		FailureReason:     reason,
		FailureTimestamp:  p.now().UTC(),
		ProcessorID:       p.processorID,
	}
	if json.Valid(msg.Raw) {
		dlqEvent.OriginalEvent = msg.Raw
	} else {
		dlqEvent.OriginalValue = string(msg.Raw)
	}

	data, err := json.Marshal(dlqEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	out := &sarama.ProducerMessage{
		Topic: msg.Metadata.Topic + p.config.TopicSuffix,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(msg.Metadata.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: p.now(),
	}
	if len(msg.Metadata.Key) > 0 {
		out.Key = sarama.ByteEncoder(msg.Metadata.Key)
	}
	return out, nil
}

// Publish publishes a failed message to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, msg *event.ConsumedMessage, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrConsumerClosed
	}
	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}

	out, err := p.newMessage(msg, reason)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(out)
	if err != nil {
		p.observe(out.Topic, reason, "error")
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", out.Topic,
			"offset", msg.Metadata.Offset,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}
	p.observe(out.Topic, reason, "success")

	p.logger.Info("published message to DLQ",
		"dlq_topic", out.Topic,
		"partition", partition,
		"offset", offset,
		"reason", reason,
	)
	return nil
}

func (p *DLQPublisher) observe(topic, reason, status string) {
	if p.metrics != nil {
		p.metrics.IncDLQMessages(topic, reason, status)
	}
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing DLQ publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
