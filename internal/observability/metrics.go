package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Kafka source metrics
	MessagesConsumed   *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec
	DLQMessages        *prometheus.CounterVec

	// Pipeline metrics
	EventsProcessed    *prometheus.CounterVec
	StageFailures      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorRecords       *prometheus.CounterVec

	// Table metrics
	TableAppends   *prometheus.CounterVec
	AppendDuration *prometheus.HistogramVec
	TableLoads     *prometheus.CounterVec

	// Storage metrics
	ObjectsWritten       *prometheus.CounterVec
	ObjectSize           *prometheus.HistogramVec
	StorageWriteDuration *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec

	// Ingest API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group sessions",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),
		DLQMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_dlq_messages_total",
				Help: "Total number of messages published to dead letter queues",
			},
			[]string{"topic", "reason", "status"},
		),

		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_processed_total",
				Help: "Total number of events handled by the pipeline",
			},
			[]string{"event_type", "status"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_failures_total",
				Help: "Total number of pipeline failures by error kind and stage",
			},
			[]string{"error_type", "stage"},
		),
		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "processing_duration_seconds",
				Help:    "Duration of end-to-end event handling",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		ErrorRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "error_records_total",
				Help: "Total number of error records captured, by outcome (written or fallback)",
			},
			[]string{"error_type", "stage", "status"},
		),

		TableAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "table_appends_total",
				Help: "Total number of table append operations",
			},
			[]string{"table", "status"},
		),
		AppendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "table_append_duration_seconds",
				Help:    "Duration of table appends including encoding and upload",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"table"},
		),
		TableLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_table_loads_total",
				Help: "Total number of table handle loads from the catalog",
			},
			[]string{"table", "status"},
		),

		ObjectsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objects_written_total",
				Help: "Total number of objects written to warehouse storage",
			},
			[]string{"backend", "status"},
		),
		ObjectSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "object_size_bytes",
				Help:    "Size of objects written to warehouse storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"backend"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of object uploads",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_http_requests_total",
				Help: "Total number of ingest API requests",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_http_request_duration_seconds",
				Help:    "Duration of ingest API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

func partitionLabel(p int32) string { return strconv.FormatInt(int64(p), 10) }

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, partitionLabel(partition)).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, partitionLabel(partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, partitionLabel(partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncDLQMessages counts a DLQ publish attempt.
func (m *Metrics) IncDLQMessages(topic, reason, status string) {
	m.DLQMessages.WithLabelValues(topic, reason, status).Inc()
}

// IncEventsProcessed counts a handled event.
func (m *Metrics) IncEventsProcessed(eventType, status string) {
	m.EventsProcessed.WithLabelValues(eventType, status).Inc()
}

// IncStageFailures counts a failed pipeline stage.
func (m *Metrics) IncStageFailures(kind, stage string) {
	m.StageFailures.WithLabelValues(kind, stage).Inc()
}

// ObserveProcessingDuration observes end-to-end handling time.
func (m *Metrics) ObserveProcessingDuration(eventType string, seconds float64) {
	m.ProcessingDuration.WithLabelValues(eventType).Observe(seconds)
}

// IncErrorRecords counts a captured error record.
func (m *Metrics) IncErrorRecords(errorType, stage, status string) {
	m.ErrorRecords.WithLabelValues(errorType, stage, status).Inc()
}

// IncTableAppends counts a table append.
func (m *Metrics) IncTableAppends(table, status string) {
	m.TableAppends.WithLabelValues(table, status).Inc()
}

// ObserveAppendDuration observes table append duration.
func (m *Metrics) ObserveAppendDuration(table string, seconds float64) {
	m.AppendDuration.WithLabelValues(table).Observe(seconds)
}

// IncTableLoads counts a catalog table load.
func (m *Metrics) IncTableLoads(table, status string) {
	m.TableLoads.WithLabelValues(table, status).Inc()
}

// IncObjectsWritten increments objects written counter.
func (m *Metrics) IncObjectsWritten(backend, status string) {
	m.ObjectsWritten.WithLabelValues(backend, status).Inc()
}

// ObserveObjectSize observes object size.
func (m *Metrics) ObserveObjectSize(backend string, size float64) {
	m.ObjectSize.WithLabelValues(backend).Observe(size)
}

// ObserveStorageWriteDuration observes object upload duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncHTTPRequests counts an ingest API response.
func (m *Metrics) IncHTTPRequests(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveHTTPDuration observes ingest API request duration.
func (m *Metrics) ObserveHTTPDuration(route string, seconds float64) {
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
