// Package metrics provides Prometheus metrics for the roadwatch proximity service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the roadwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Core proximity metrics
	reportsReceived *prometheus.CounterVec
	reportsRejected *prometheus.CounterVec
	alertsEmitted   prometheus.Counter
	pairsMatched    prometheus.Counter
	deliveryErrors  *prometheus.CounterVec
	activeActors    prometheus.Gauge
	activeCooldowns prometheus.Gauge
	actorsEvicted   prometheus.Counter
	sweepLatency    prometheus.Histogram
	sweepPanics     prometheus.Counter

	// Static index and intersection metrics
	intersectionTransitions *prometheus.CounterVec
	indexPoints             prometheus.Gauge
	indexLoadErrors         prometheus.Counter
	indexLoadDuration       prometheus.Histogram

	// Classifier metrics
	classifierRequests  prometheus.Counter
	classifierPositives prometheus.Counter
	classifierErrors    prometheus.Counter
	classifierLatency   prometheus.Histogram
	framesGated         prometheus.Counter
	framesBusy          prometheus.Counter

	// Queue and loop metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	commandLatency     *prometheus.HistogramVec

	// Transport metrics
	wsConnections   prometheus.Gauge
	kafkaMessages   *prometheus.CounterVec
	kafkaDuplicates prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "roadwatch",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.reportsReceived = m.counterVec("reports_received_total",
		"Total number of position reports accepted by transport", "transport")
	m.reportsRejected = m.counterVec("reports_rejected_total",
		"Total number of position reports rejected by reason", "reason")
	m.alertsEmitted = m.counter("alerts_emitted_total",
		"Total number of proximity alerts handed to the dispatcher")
	m.pairsMatched = m.counter("pairs_matched_total",
		"Total number of opposite-role pairs that entered cooldown")
	m.deliveryErrors = m.counterVec("delivery_errors_total",
		"Total number of failed outbound deliveries by transport", "transport")
	m.activeActors = m.gauge("active_actors",
		"Number of actors currently in the registry")
	m.activeCooldowns = m.gauge("active_cooldown_pairs",
		"Number of pairs currently in cooldown")
	m.actorsEvicted = m.counter("actors_evicted_total",
		"Total number of actors evicted after going silent")
	m.sweepLatency = m.histogram("sweep_latency_milliseconds",
		"Latency of one proximity sweep in milliseconds", m.histogramBuckets)
	m.sweepPanics = m.counter("sweep_panics_total",
		"Total number of sweeps abandoned after a recovered panic")

	m.intersectionTransitions = m.counterVec("intersection_transitions_total",
		"Total number of intersection near/far transitions", "direction")
	m.indexPoints = m.gauge("index_points",
		"Number of points in the active static index")
	m.indexLoadErrors = m.counter("index_load_errors_total",
		"Total number of failed static index loads")
	m.indexLoadDuration = m.histogram("index_load_duration_milliseconds",
		"Static index load and build duration in milliseconds", m.histogramBuckets)

	m.classifierRequests = m.counter("classifier_requests_total",
		"Total number of frames sent to the classifier")
	m.classifierPositives = m.counter("classifier_positives_total",
		"Total number of frames with a positive detection")
	m.classifierErrors = m.counter("classifier_errors_total",
		"Total number of classifier failures")
	m.classifierLatency = m.histogram("classifier_latency_milliseconds",
		"Classifier round trip latency in milliseconds", m.histogramBuckets)
	m.framesGated = m.counter("frames_gated_total",
		"Total number of frames dropped because the actor was not near an intersection")
	m.framesBusy = m.counter("frames_busy_total",
		"Total number of frames dropped while a classification for the actor was running")

	m.queueSize = m.gauge("queue_size", "Current size of the command queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum command queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of commands enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of commands dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total",
		"Total number of commands rejected by a full or closed queue")
	m.commandLatency = m.histogramVec("command_latency_milliseconds",
		"Event loop command processing latency in milliseconds", "command")

	m.wsConnections = m.gauge("websocket_connections", "Number of open websocket connections")
	m.kafkaMessages = m.counterVec("kafka_messages_total",
		"Total number of Kafka messages by direction", "direction")
	m.kafkaDuplicates = m.counter("kafka_duplicates_total",
		"Total number of redelivered Kafka reports dropped by id")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordReportReceived counts an accepted report for the given transport.
func RecordReportReceived(transport string) {
	globalManager.reportsReceived.WithLabelValues(transport).Inc()
}

// RecordReportRejected counts a rejected report.
func RecordReportRejected(reason string) {
	globalManager.reportsRejected.WithLabelValues(reason).Inc()
}

// RecordAlertEmitted increments the alerts counter.
func RecordAlertEmitted() {
	globalManager.alertsEmitted.Inc()
}

// RecordPairMatched increments the matched pairs counter.
func RecordPairMatched() {
	globalManager.pairsMatched.Inc()
}

// RecordDeliveryError counts a failed delivery on a transport.
func RecordDeliveryError(transport string) {
	globalManager.deliveryErrors.WithLabelValues(transport).Inc()
}

// UpdateActiveActors sets the registry size.
func UpdateActiveActors(count int) {
	globalManager.activeActors.Set(float64(count))
}

// UpdateActiveCooldowns sets the number of pairs in cooldown.
func UpdateActiveCooldowns(count int) {
	globalManager.activeCooldowns.Set(float64(count))
}

// RecordActorsEvicted adds n evicted actors.
func RecordActorsEvicted(n int) {
	globalManager.actorsEvicted.Add(float64(n))
}

// RecordSweepLatency records sweep latency in milliseconds.
func RecordSweepLatency(latencyMs float64) {
	globalManager.sweepLatency.Observe(latencyMs)
}

// RecordSweepPanic increments the recovered sweep panic counter.
func RecordSweepPanic() {
	globalManager.sweepPanics.Inc()
}

// RecordIntersectionTransition counts an entered or left transition.
func RecordIntersectionTransition(entered bool) {
	direction := "left"
	if entered {
		direction = "entered"
	}
	globalManager.intersectionTransitions.WithLabelValues(direction).Inc()
}

// UpdateIndexPoints sets the number of indexed points.
func UpdateIndexPoints(count int) {
	globalManager.indexPoints.Set(float64(count))
}

// RecordIndexLoadError increments the index load error counter.
func RecordIndexLoadError() {
	globalManager.indexLoadErrors.Inc()
}

// RecordIndexLoadDuration records index load duration in milliseconds.
func RecordIndexLoadDuration(latencyMs float64) {
	globalManager.indexLoadDuration.Observe(latencyMs)
}

// RecordClassifierRequest increments the classifier request counter.
func RecordClassifierRequest() {
	globalManager.classifierRequests.Inc()
}

// RecordClassifierPositive increments the positive detection counter.
func RecordClassifierPositive() {
	globalManager.classifierPositives.Inc()
}

// RecordClassifierError increments the classifier error counter.
func RecordClassifierError() {
	globalManager.classifierErrors.Inc()
}

// RecordClassifierLatency records classifier latency in milliseconds.
func RecordClassifierLatency(latencyMs float64) {
	globalManager.classifierLatency.Observe(latencyMs)
}

// RecordFrameGated increments the gated frames counter.
func RecordFrameGated() {
	globalManager.framesGated.Inc()
}

// RecordFrameBusy increments the counter of frames dropped behind a running
// classification.
func RecordFrameBusy() {
	globalManager.framesBusy.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordCommandLatency records how long the loop spent on one command.
func RecordCommandLatency(command string, latencyMs float64) {
	globalManager.commandLatency.WithLabelValues(command).Observe(latencyMs)
}

// UpdateWebsocketConnections sets the number of open websocket connections.
func UpdateWebsocketConnections(count int) {
	globalManager.wsConnections.Set(float64(count))
}

// RecordKafkaMessage counts a consumed or published Kafka message.
func RecordKafkaMessage(direction string) {
	globalManager.kafkaMessages.WithLabelValues(direction).Inc()
}

// RecordKafkaDuplicate increments the redelivered report counter.
func RecordKafkaDuplicate() {
	globalManager.kafkaDuplicates.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
