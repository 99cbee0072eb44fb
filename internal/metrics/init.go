package metrics

// InitializeMetrics pre-populates the expected label combinations so
// that every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, cmd := range []string{"discover", "connect", "load", "keepalive", "stop"} {
		CastCommandsTotal.WithLabelValues(cmd, "success")
		CastCommandsTotal.WithLabelValues(cmd, "error")
	}

	for _, path := range []string{"/stream.mp4", "/health", "/stats"} {
		HTTPRequestsTotal.WithLabelValues("GET", path, "200")
	}
}
