package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"line\nforge", "line forge"},
		{"cr\rforge", "cr forge"},
		{"nul\x00byte", "nulbyte"},
		{"esc\x1b[31minject", "esc[31minject"},
		{"tab\tok", "tab\tok"},
		{"bell\x07gone", "bellgone"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	config := DefaultLoggingConfig()

	if !shouldSkip("/health", config) {
		t.Error("health check not skipped by default")
	}
	if shouldSkip("/stream.mp4", config) {
		t.Error("stream path skipped")
	}

	config.LogHealthChecks = true
	if shouldSkip("/health", config) {
		t.Error("health check skipped with logging enabled")
	}

	config.SkipPaths = []string{"/stream"}
	if !shouldSkip("/stream.mp4", config) {
		t.Error("configured skip prefix ignored")
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	if got := getClientIP(r); got != "10.0.0.1" {
		t.Errorf("remote addr ip = %q", got)
	}

	r.Header.Set("X-Real-IP", "10.0.0.2")
	if got := getClientIP(r); got != "10.0.0.2" {
		t.Errorf("x-real-ip = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.3")
	if got := getClientIP(r); got != "203.0.113.5" {
		t.Errorf("x-forwarded-for = %q", got)
	}
}

func TestResponseWriterCapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK) // second call ignored
	if _, err := rw.Write([]byte("not found")); err != nil {
		t.Fatal(err)
	}

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rw.statusCode)
	}
	if rw.bytesWritten != 9 {
		t.Errorf("bytes = %d, want 9", rw.bytesWritten)
	}
}

func TestLoggerMiddlewarePassesThrough(t *testing.T) {
	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if _, err := w.Write([]byte("short and stout")); err != nil {
			t.Fatal(err)
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/stream.mp4", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if rec.Body.String() != "short and stout" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/stream.mp4", "/stream.mp4"},
		{"/health", "/health"},
		{"/stats", "/stats"},
		// Unregistered paths collapse to one label so request probing
		// cannot grow metric cardinality.
		{"/favicon.ico", "other"},
		{"/stream.mp4/../etc/passwd", "other"},
		{"/admin", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestEscapeW3CField(t *testing.T) {
	if got := escapeW3CField("simple"); got != "simple" {
		t.Errorf("got %q", got)
	}
	if got := escapeW3CField(`Mozilla/5.0 (X11)`); got != `"Mozilla/5.0 (X11)"` {
		t.Errorf("got %q", got)
	}
	if got := escapeW3CField(`say "hi"`); got != `"say ""hi"""` {
		t.Errorf("got %q", got)
	}
}
