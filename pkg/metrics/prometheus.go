// Package metrics provides Prometheus metrics for the pick'em engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the engine exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pick lifecycle
	picksSubmitted *prometheus.CounterVec
	picksRejected  *prometheus.CounterVec
	storeRetries   prometheus.Counter
	storeLatency   *prometheus.HistogramVec

	// Settlement
	settlementsRun      prometheus.Counter
	settlementsDeferred prometheus.Counter
	picksSettled        *prometheus.CounterVec
	settlementLatency   prometheus.Histogram

	// Leaderboard
	leaderboardUsers     prometheus.Gauge
	leaderboardRecompute prometheus.Histogram
	standingsDrift       prometheus.Counter

	// Notifications
	notificationsPublished *prometheus.CounterVec
	notificationsDuplicate prometheus.Counter
	feedMessages           *prometheus.CounterVec

	// Queue and workers
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueDequeued prometheus.Counter
	queueRejected *prometheus.CounterVec
	workerCount   prometheus.Gauge
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors and system
	errorsByComponent    *prometheus.CounterVec
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pickem",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.picksSubmitted = m.counterVec("picks_submitted_total", "Accepted pick submissions by resulting action", "action")
	m.picksRejected = m.counterVec("picks_rejected_total", "Rejected pick submissions by reason", "reason")
	m.storeRetries = m.counter("store_conflict_retries_total", "Pick mutations retried after a uniqueness conflict")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Pick store operation latency in milliseconds", "op")

	m.settlementsRun = m.counter("settlements_total", "Contest settlements executed")
	m.settlementsDeferred = m.counter("settlements_deferred_total", "Settlements deferred because the result was incomplete")
	m.picksSettled = m.counterVec("picks_settled_total", "Pick scores written by settlement, by result", "result")
	m.settlementLatency = m.histogram("settlement_latency_milliseconds", "Contest settlement latency in milliseconds")

	m.leaderboardUsers = m.gauge("leaderboard_users", "Users currently on the leaderboard")
	m.leaderboardRecompute = m.histogram("leaderboard_recompute_milliseconds", "Full leaderboard recomputation latency in milliseconds")
	m.standingsDrift = m.counter("standings_drift_total", "Reconciliations that found the incremental standings out of date")

	m.notificationsPublished = m.counterVec("notifications_published_total", "Change notifications published by kind and status", "kind", "status")
	m.notificationsDuplicate = m.counter("notifications_duplicate_total", "Duplicate inbound notifications dropped")
	m.feedMessages = m.counterVec("result_feed_messages_total", "Result feed messages by outcome", "status")

	m.queueSize = m.gauge("queue_size", "Settlement jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Settlement queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Settlement jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Settlement jobs dequeued")
	m.queueRejected = m.counterVec("queue_rejected_total", "Settlement jobs rejected by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Settlement workers running")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Settlement job processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Settlement jobs that failed")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")
	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Goroutines running")
}

// Pick lifecycle.

// RecordPickSubmitted counts an accepted submission (created, replaced, deleted, noop).
func RecordPickSubmitted(action string) {
	globalManager.picksSubmitted.WithLabelValues(action).Inc()
}

// RecordPickRejected counts a rejected submission.
func RecordPickRejected(reason string) {
	globalManager.picksRejected.WithLabelValues(reason).Inc()
}

// RecordStoreRetry counts a uniqueness-conflict retry.
func RecordStoreRetry() {
	globalManager.storeRetries.Inc()
}

// RecordStoreLatency observes a store operation latency.
func RecordStoreLatency(op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(ms)
}

// Settlement.

// RecordSettlement counts a completed settlement and its latency.
func RecordSettlement(ms float64) {
	globalManager.settlementsRun.Inc()
	globalManager.settlementLatency.Observe(ms)
}

// RecordSettlementDeferred counts a deferred settlement.
func RecordSettlementDeferred() {
	globalManager.settlementsDeferred.Inc()
}

// RecordPickSettled counts a pick score written, labelled win/loss/push.
func RecordPickSettled(result string) {
	globalManager.picksSettled.WithLabelValues(result).Inc()
}

// Leaderboard.

// UpdateLeaderboardUsers sets the number of ranked users.
func UpdateLeaderboardUsers(n int) {
	globalManager.leaderboardUsers.Set(float64(n))
}

// RecordLeaderboardRecompute observes a full recomputation.
func RecordLeaderboardRecompute(ms float64) {
	globalManager.leaderboardRecompute.Observe(ms)
}

// RecordStandingsDrift counts a reconciliation that had to repair the cache.
func RecordStandingsDrift() {
	globalManager.standingsDrift.Inc()
}

// Notifications.

// RecordNotificationPublished counts an outbound notification.
func RecordNotificationPublished(kind, status string) {
	globalManager.notificationsPublished.WithLabelValues(kind, status).Inc()
}

// RecordNotificationDuplicate counts a dropped duplicate delivery.
func RecordNotificationDuplicate() {
	globalManager.notificationsDuplicate.Inc()
}

// RecordFeedMessage counts an inbound result feed message.
func RecordFeedMessage(status string) {
	globalManager.feedMessages.WithLabelValues(status).Inc()
}

// Queue and workers.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts a refused enqueue (closed, full, cancelled).
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes job latency.
func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerLatency.Observe(ms)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// Errors and system.

// RecordErrorByComponent counts an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the registry every collector is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
