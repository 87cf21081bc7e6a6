package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Sink delivers one generated event.
type Sink interface {
	Send(ctx context.Context, e map[string]any) error
	Close() error
}

// WriterSink writes one JSON document per line.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink creates a sink over w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Send implements Sink.
func (s *WriterSink) Send(ctx context.Context, e map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}

// Close implements Sink.
func (s *WriterSink) Close() error { return nil }

// HTTPSink posts events to the ingest API.
type HTTPSink struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPSink creates a sink posting to url with an optional bearer token.
func NewHTTPSink(url, token string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

// Send implements Sink. Any non-2xx status is an error carrying the
// response body.
func (s *HTTPSink) Send(ctx context.Context, e map[string]any) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ingest returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close implements Sink.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// KafkaSink produces events to a topic, keyed by user_id, optionally
// wrapped in a structured CloudEvents envelope.
type KafkaSink struct {
	producer    sarama.SyncProducer
	topic       string
	cloudEvents bool
}

// NewKafkaSink creates a sink over producer.
func NewKafkaSink(producer sarama.SyncProducer, topic string, cloudEvents bool) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, cloudEvents: cloudEvents}
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, e map[string]any) error {
	msg := &sarama.ProducerMessage{Topic: s.topic}
	if id, ok := e["user_id"].(string); ok {
		msg.Key = sarama.StringEncoder(id)
	}

	var (
		value []byte
		err   error
	)
	if s.cloudEvents {
		ce, cerr := CloudEvent(e)
		if cerr != nil {
			return cerr
		}
		value, err = json.Marshal(ce)
		msg.Headers = []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/cloudevents+json")},
		}
	} else {
		value, err = json.Marshal(e)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg.Value = sarama.ByteEncoder(value)

	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}
	return nil
}

// Close closes the producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
