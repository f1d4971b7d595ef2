package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	started time.Time

	// Submission metrics
	submissionsTotal        int64
	submissionDurationTotal time.Duration
	submissionFailures      map[string]int64 // reason -> count

	// Attachment metrics
	filesUploadedTotal int64
	fileBytesTotal     int64

	// Stream metrics
	streamClients      int64
	streamClientsTotal int64

	// Webhook metrics
	webhookDelivered int64
	webhookFailed    int64

	// System metrics
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		started:            time.Now(),
		submissionFailures: make(map[string]int64),
	}
}

// RecordSubmission records a stored submission
func (m *Metrics) RecordSubmission(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissionsTotal++
	m.submissionDurationTotal += duration
}

// RecordSubmissionFailure records a rejected or failed submission by the
// pipeline step or request check that stopped it.
func (m *Metrics) RecordSubmissionFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissionFailures[reason]++
}

// RecordFileUploaded matches the pipeline's upload callback.
func (m *Metrics) RecordFileUploaded(_ string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesUploadedTotal++
	m.fileBytesTotal += size
}

func (m *Metrics) StreamOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamClients++
	m.streamClientsTotal++
}

func (m *Metrics) StreamClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamClients--
}

func (m *Metrics) RecordWebhookDelivery(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.webhookDelivered++
	} else {
		m.webhookFailed++
	}
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordRequest(status)
	})
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failures := make(map[string]int64, len(m.submissionFailures))
	for k, v := range m.submissionFailures {
		failures[k] = v
	}

	return MetricsSnapshot{
		SubmissionsTotal:        m.submissionsTotal,
		SubmissionAvgDurationMs: avgDuration(m.submissionDurationTotal, m.submissionsTotal),
		SubmissionFailures:      failures,
		FilesUploadedTotal:      m.filesUploadedTotal,
		FileBytesTotal:          m.fileBytesTotal,
		StreamClients:           m.streamClients,
		StreamClientsTotal:      m.streamClientsTotal,
		WebhookDelivered:        m.webhookDelivered,
		WebhookFailed:           m.webhookFailed,
		RequestsTotal:           m.requestsTotal,
		RequestErrors5xx:        m.requestErrors5xx,
		RequestErrors4xx:        m.requestErrors4xx,
		Uptime:                  time.Since(m.started),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	SubmissionsTotal        int64
	SubmissionAvgDurationMs float64
	SubmissionFailures      map[string]int64

	FilesUploadedTotal int64
	FileBytesTotal     int64

	StreamClients      int64
	StreamClientsTotal int64

	WebhookDelivered int64
	WebhookFailed    int64

	RequestsTotal    int64
	RequestErrors5xx int64
	RequestErrors4xx int64

	Uptime time.Duration
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
