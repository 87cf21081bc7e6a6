// Package consumer defines interfaces for Kafka event consumption.
//
// This package provides abstractions for consuming raw event messages
// from Kafka and parking failed ones on a dead letter queue.
package consumer

import (
	"context"

	"github.com/jittakal/kafeventlake/pkg/event"
)

// Consumer reads messages from Kafka topics.
type Consumer interface {
	// Subscribe subscribes to one or more topics.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming messages from subscribed topics.
	// Returns channels for messages and errors.
	Consume(ctx context.Context) (<-chan *event.ConsumedMessage, <-chan error, error)

	// Close closes the consumer and releases resources.
	Close() error
}

// DLQPublisher publishes failed messages to a dead letter queue.
type DLQPublisher interface {
	// Publish sends a message to the DLQ with the failure reason.
	Publish(ctx context.Context, msg *event.ConsumedMessage, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}
