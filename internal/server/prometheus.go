// prometheus.go - Prometheus text exposition of the in-process metrics.
package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Handler returns the /metrics handler.
func (m *Metrics) Handler(build BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.Snapshot()

		var out strings.Builder

		writeMetric := func(name, typ, help string, value any) {
			fmt.Fprintf(&out, "# HELP %s %s\n", name, help)
			fmt.Fprintf(&out, "# TYPE %s %s\n", name, typ)
			fmt.Fprintf(&out, "%s %v\n\n", name, value)
		}

		out.WriteString("# HELP intake_info Application version info\n")
		out.WriteString("# TYPE intake_info gauge\n")
		fmt.Fprintf(&out, "intake_info{version=\"%s\",commit=\"%s\"} 1\n\n",
			prometheusLabel(build.Version), prometheusLabel(build.Commit))

		writeMetric("intake_requests_total", "counter", "Total number of HTTP requests", snapshot.RequestsTotal)

		out.WriteString("# HELP intake_request_errors_total HTTP error responses by class\n")
		out.WriteString("# TYPE intake_request_errors_total counter\n")
		fmt.Fprintf(&out, "intake_request_errors_total{class=\"4xx\"} %d\n", snapshot.RequestErrors4xx)
		fmt.Fprintf(&out, "intake_request_errors_total{class=\"5xx\"} %d\n\n", snapshot.RequestErrors5xx)

		writeMetric("intake_submissions_total", "counter", "Total number of stored submissions", snapshot.SubmissionsTotal)
		writeMetric("intake_submission_avg_duration_ms", "gauge", "Average duration of a successful submission", snapshot.SubmissionAvgDurationMs)

		out.WriteString("# HELP intake_submission_failures_total Failed submissions by reason\n")
		out.WriteString("# TYPE intake_submission_failures_total counter\n")
		reasons := make([]string, 0, len(snapshot.SubmissionFailures))
		for reason := range snapshot.SubmissionFailures {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(&out, "intake_submission_failures_total{reason=\"%s\"} %d\n",
				prometheusLabel(reason), snapshot.SubmissionFailures[reason])
		}
		out.WriteString("\n")

		writeMetric("intake_files_uploaded_total", "counter", "Total number of uploaded attachments", snapshot.FilesUploadedTotal)
		writeMetric("intake_file_bytes_total", "counter", "Total bytes of uploaded attachments", snapshot.FileBytesTotal)
		writeMetric("intake_stream_clients", "gauge", "Currently connected stream clients", snapshot.StreamClients)
		writeMetric("intake_stream_clients_total", "counter", "Total stream connections", snapshot.StreamClientsTotal)

		out.WriteString("# HELP intake_webhook_deliveries_total Webhook deliveries by result\n")
		out.WriteString("# TYPE intake_webhook_deliveries_total counter\n")
		fmt.Fprintf(&out, "intake_webhook_deliveries_total{result=\"delivered\"} %d\n", snapshot.WebhookDelivered)
		fmt.Fprintf(&out, "intake_webhook_deliveries_total{result=\"failed\"} %d\n\n", snapshot.WebhookFailed)

		writeMetric("intake_uptime_seconds", "counter", "Application uptime in seconds", fmt.Sprintf("%.0f", snapshot.Uptime.Seconds()))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out.String()))
	}
}

// prometheusLabel escapes a label value.
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
