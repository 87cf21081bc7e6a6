package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/pipeline"
	"github.com/jittakal/kafeventlake/pkg/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMetricsCollector implements MetricsCollector for testing.
type mockMetricsCollector struct {
	mu       sync.Mutex
	commits  int
	consumed int
	dlq      map[string]int
}

func (m *mockMetricsCollector) IncMessagesConsumed(topic string, partition int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed++
}
func (m *mockMetricsCollector) IncRebalances(groupID string) {}
func (m *mockMetricsCollector) IncOffsetCommits(topic string, partition int32, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
}
func (m *mockMetricsCollector) ObserveRebalanceDuration(groupID string, duration float64) {}
func (m *mockMetricsCollector) ObserveCommitLatency(topic string, partition int32, d float64) {}
func (m *mockMetricsCollector) SetPartitionsAssigned(topic string, count float64) {}
func (m *mockMetricsCollector) IncDLQMessages(topic, reason, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dlq == nil {
		m.dlq = make(map[string]int)
	}
	m.dlq[topic+"/"+reason+"/"+status]++
}

const plainEvent = `{"event_id":"evt-1","event_type":"click","user_id":"u1","timestamp":"2024-03-15T10:30:00.000000Z"}`

func TestUnwrap(t *testing.T) {
	structured := `{"specversion":"1.0","id":"ce-1","source":"web","type":"analytics.click","datacontenttype":"application/json","data":` + plainEvent + `}`

	tests := []struct {
		name    string
		value   string
		headers map[string]string
		want    string
		wantErr bool
	}{
		{name: "plain event passes through", value: plainEvent, want: plainEvent},
		{name: "structured cloud event", value: structured, want: plainEvent},
		{
			name:    "content type header forces envelope decoding",
			value:   structured,
			headers: map[string]string{"content-type": "application/cloudevents+json; charset=utf-8"},
			want:    plainEvent,
		},
		{name: "not json passes through", value: "garbage", want: "garbage"},
		{
			name:    "envelope without data",
			value:   `{"specversion":"1.0","id":"ce-2","source":"web","type":"t"}`,
			headers: map[string]string{"content-type": "application/cloudevents+json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unwrap([]byte(tt.value), tt.headers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unwrap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !jsonEqual(t, got, []byte(tt.want)) {
				t.Errorf("Unwrap() = %s, want %s", got, tt.want)
			}
		})
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	return fmt.Sprint(va) == fmt.Sprint(vb)
}

type recordingMarker struct {
	marked []*sarama.ConsumerMessage
}

func (m *recordingMarker) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

func TestToConsumedMessage(t *testing.T) {
	metrics := &mockMetricsCollector{}
	c := &SaramaConsumer{logger: testLogger(), metrics: metrics}
	marker := &recordingMarker{}

	raw := `{"specversion":"1.0","id":"ce-1","source":"web","type":"t","data":` + plainEvent + `}`
	msg := &sarama.ConsumerMessage{
		Topic:     "analytics-events",
		Partition: 3,
		Offset:    42,
		Key:       []byte("u1"),
		Value:     []byte(raw),
		Headers:   []*sarama.RecordHeader{{Key: []byte("source"), Value: []byte("web")}},
		Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}

	cm := c.toConsumedMessage(marker, msg)
	if !jsonEqual(t, cm.Payload, []byte(plainEvent)) {
		t.Errorf("Payload = %s", cm.Payload)
	}
	if string(cm.Raw) != raw {
		t.Errorf("Raw was modified")
	}
	if cm.Metadata.Headers["source"] != "web" || cm.Metadata.Offset != 42 {
		t.Errorf("Metadata = %+v", cm.Metadata)
	}
	if got := cm.PartitionID().String(); got != "analytics-events-3" {
		t.Errorf("PartitionID() = %q", got)
	}

	if len(marker.marked) != 0 {
		t.Fatal("message marked before commit")
	}
	if err := cm.CommitFunc(); err != nil {
		t.Fatalf("CommitFunc() error = %v", err)
	}
	if len(marker.marked) != 1 || marker.marked[0] != msg {
		t.Errorf("marked = %v", marker.marked)
	}
	if metrics.commits != 1 {
		t.Errorf("commits = %d, want 1", metrics.commits)
	}
}

func TestToConsumedMessage_BadEnvelopeFallsBack(t *testing.T) {
	c := &SaramaConsumer{logger: testLogger()}
	msg := &sarama.ConsumerMessage{
		Value:   []byte(`{"specversion":"1.0","data":`),
		Headers: []*sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte("application/cloudevents+json")}},
	}
	cm := c.toConsumedMessage(&recordingMarker{}, msg)
	if string(cm.Payload) != string(msg.Value) {
		t.Errorf("Payload = %s, want raw value", cm.Payload)
	}
}

func newTestDLQ(t *testing.T, producer sarama.SyncProducer, metrics MetricsCollector) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      DLQConfig{Enabled: true, TopicSuffix: ".dlq"},
		logger:      testLogger(),
		metrics:     metrics,
		processorID: "kafeventlake-test",
		now:         func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func TestDLQPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "analytics-events.dlq" {
			return fmt.Errorf("topic = %s", msg.Topic)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got DLQEvent
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.FailureReason != "ValidationError" || got.OriginalOffset != 7 || got.ProcessorID != "kafeventlake-test" {
			return fmt.Errorf("dlq event = %+v", got)
		}
		if !jsonEqual(t, got.OriginalEvent, []byte(plainEvent)) {
			return fmt.Errorf("original event = %s", got.OriginalEvent)
		}
		if string(msg.Headers[0].Value) != "ValidationError" {
			return fmt.Errorf("failure_reason header = %s", msg.Headers[0].Value)
		}
		return nil
	})

	metrics := &mockMetricsCollector{}
	p := newTestDLQ(t, producer, metrics)
	msg := &event.ConsumedMessage{
		Raw:      []byte(plainEvent),
		Metadata: event.KafkaMetadata{Topic: "analytics-events", Offset: 7},
	}
	if err := p.Publish(context.Background(), msg, "ValidationError"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if metrics.dlq["analytics-events.dlq/ValidationError/success"] != 1 {
		t.Errorf("dlq metrics = %v", metrics.dlq)
	}
	if err := producer.Close(); err != nil {
		t.Errorf("producer expectations: %v", err)
	}
}

func TestDLQPublisher_NonJSONValue(t *testing.T) {
	p := newTestDLQ(t, nil, nil)
	out, err := p.newMessage(&event.ConsumedMessage{Raw: []byte("not json")}, "ValidationError")
	if err != nil {
		t.Fatalf("newMessage() error = %v", err)
	}
	value, _ := out.Value.Encode()
	var got DLQEvent
	if err := json.Unmarshal(value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.OriginalValue != "not json" || got.OriginalEvent != nil {
		t.Errorf("dlq event = %+v", got)
	}
}

func TestDLQPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	metrics := &mockMetricsCollector{}
	p := newTestDLQ(t, producer, metrics)
	err := p.Publish(context.Background(), &event.ConsumedMessage{Metadata: event.KafkaMetadata{Topic: "t"}}, "WriteError")
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Publish() error = %v, want ErrOutOfBrokers", err)
	}
	if metrics.dlq["t.dlq/WriteError/error"] != 1 {
		t.Errorf("dlq metrics = %v", metrics.dlq)
	}
}

func TestDLQPublisher_DisabledAndClosed(t *testing.T) {
	p, err := NewDLQPublisher(nil, SecurityConfig{}, DLQConfig{Enabled: false}, testLogger(), nil, "test")
	if err != nil {
		t.Fatalf("NewDLQPublisher() error = %v", err)
	}
	if err := p.Publish(context.Background(), &event.ConsumedMessage{}, "WriteError"); err != nil {
		t.Errorf("disabled Publish() error = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := p.Publish(context.Background(), &event.ConsumedMessage{}, "WriteError"); !errors.Is(err, apperrors.ErrConsumerClosed) {
		t.Errorf("Publish() after Close error = %v", err)
	}
}

type stubHandler struct {
	err   error
	calls [][]byte
}

func (h *stubHandler) HandleJSON(_ context.Context, data []byte) (pipeline.Result, error) {
	h.calls = append(h.calls, data)
	if h.err != nil {
		return pipeline.Result{}, h.err
	}
	return pipeline.Result{EventID: "evt-1", TableKey: "events_click"}, nil
}

type stubDLQ struct {
	reasons []string
}

func (d *stubDLQ) Publish(_ context.Context, _ *event.ConsumedMessage, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}
func (d *stubDLQ) Close() error { return nil }

type chanConsumer struct {
	messages chan *event.ConsumedMessage
	errs     chan error
}

func (c *chanConsumer) Subscribe(context.Context, []string) error { return nil }
func (c *chanConsumer) Consume(context.Context) (<-chan *event.ConsumedMessage, <-chan error, error) {
	return c.messages, c.errs, nil
}
func (c *chanConsumer) Close() error { return nil }

func TestProcessor_Process(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantReason []string
	}{
		{name: "success", err: nil},
		{
			name:       "pipeline failure",
			err:        apperrors.New(apperrors.KindValidation, apperrors.StageValidate, apperrors.ErrMissingField),
			wantReason: []string{"ValidationError"},
		},
		{name: "unclassified failure", err: errors.New("boom"), wantReason: []string{"HandlerError"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &stubHandler{err: tt.err}
			dlq := &stubDLQ{}
			p := NewProcessor(nil, handler, dlq, testLogger())

			committed := false
			p.Process(context.Background(), &event.ConsumedMessage{
				Payload:    []byte(plainEvent),
				CommitFunc: func() error { committed = true; return nil },
			})

			if !committed {
				t.Error("message was not committed")
			}
			if len(handler.calls) != 1 || string(handler.calls[0]) != plainEvent {
				t.Errorf("handler calls = %q", handler.calls)
			}
			if fmt.Sprint(dlq.reasons) != fmt.Sprint(tt.wantReason) {
				t.Errorf("dlq reasons = %v, want %v", dlq.reasons, tt.wantReason)
			}
		})
	}
}

func TestProcessor_RunStopsWhenChannelCloses(t *testing.T) {
	c := &chanConsumer{
		messages: make(chan *event.ConsumedMessage, 2),
		errs:     make(chan error, 1),
	}
	handler := &stubHandler{}
	p := NewProcessor(c, handler, nil, testLogger())

	c.messages <- &event.ConsumedMessage{Payload: []byte(plainEvent)}
	c.messages <- &event.ConsumedMessage{Payload: []byte(plainEvent)}
	close(c.messages)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(handler.calls) != 2 {
		t.Errorf("handled %d messages, want 2", len(handler.calls))
	}
}
