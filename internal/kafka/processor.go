package kafka

import (
	"context"
	"log/slog"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/pipeline"
	"github.com/jittakal/kafeventlake/pkg/consumer"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// Handler ingests one raw event document.
type Handler interface {
	HandleJSON(ctx context.Context, data []byte) (pipeline.Result, error)
}

// Processor feeds consumed messages through the pipeline one at a time.
// A failed message is published to the DLQ; every message is committed
// after handling, whether it succeeded or not.
type Processor struct {
	consumer consumer.Consumer
	handler  Handler
	dlq      consumer.DLQPublisher
	logger   *slog.Logger
}

// NewProcessor creates a processor. dlq may be nil.
func NewProcessor(c consumer.Consumer, h Handler, dlq consumer.DLQPublisher, logger *slog.Logger) *Processor {
	return &Processor{consumer: c, handler: h, dlq: dlq, logger: logger}
}

// Run consumes until ctx is cancelled or the message channel closes.
func (p *Processor) Run(ctx context.Context) error {
	messages, errs, err := p.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, stopping processing")
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				p.logger.Error("consumer error", "error", err)
			}
		case msg, ok := <-messages:
			if !ok {
				p.logger.Info("message channel closed")
				return nil
			}
			p.Process(ctx, msg)
		}
	}
}

// Process handles a single message.
func (p *Processor) Process(ctx context.Context, msg *event.ConsumedMessage) {
	res, err := p.handler.HandleJSON(ctx, msg.Payload)
	if err != nil {
		reason := failureReason(err)
		p.logger.Warn("event failed",
			"topic", msg.Metadata.Topic,
			"partition", msg.Metadata.Partition,
			"offset", msg.Metadata.Offset,
			"reason", reason,
			"error", err,
		)
		if p.dlq != nil {
			if err := p.dlq.Publish(ctx, msg, reason); err != nil {
				p.logger.Error("failed to publish to DLQ", "error", err)
			}
		}
	} else {
		p.logger.Debug("event ingested",
			"event_id", res.EventID,
			"table", res.TableKey,
			"offset", msg.Metadata.Offset,
		)
	}

	if msg.CommitFunc != nil {
		if err := msg.CommitFunc(); err != nil {
			p.logger.Error("failed to commit offset",
				"partition", msg.PartitionID().String(),
				"offset", msg.Metadata.Offset,
				"error", err,
			)
		}
	}
}

func failureReason(err error) string {
	if kind := apperrors.KindOf(err); kind != "" {
		return string(kind)
	}
	return string(apperrors.KindHandler)
}
