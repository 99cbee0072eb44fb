package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbarrett/tmux-cast/internal/logging"
	"github.com/louisbarrett/tmux-cast/internal/metrics"
	"github.com/louisbarrett/tmux-cast/internal/middleware"
)

// initWaitTimeout bounds how long a viewer request waits for the
// stream's initialization segment before getting a 503.
const initWaitTimeout = 10 * time.Second

// SessionStats is the pipeline-side state exposed on /stats.
type SessionStats struct {
	Target        string `json:"target"`
	State         string `json:"state"`
	FramesWritten int64  `json:"framesWritten"`
}

// Server serves the live stream buffer over HTTP to any number of
// concurrent viewers.
type Server struct {
	buf      *Buffer
	port     int
	writeCfg ViewerWriterConfig

	listener net.Listener
	httpSrv  *http.Server
	url      string
	started  time.Time

	viewers   atomic.Int64
	bytesSent atomic.Int64

	sessionStats func() SessionStats
}

// NewServer creates a Server for the given buffer. Port 0 requests an
// ephemeral port.
func NewServer(buf *Buffer, port int) *Server {
	return &Server{
		buf:      buf,
		port:     port,
		writeCfg: DefaultViewerWriterConfig(),
	}
}

// SetSessionStats installs a callback supplying pipeline state for the
// /stats endpoint. Must be called before Start.
func (s *Server) SetSessionStats(fn func() SessionStats) {
	s.sessionStats = fn
}

// Start binds the listener and begins serving. It returns the stream
// URL using a LAN-reachable address so a playback device on the same
// network can connect.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return "", fmt.Errorf("bind port %d: %w", s.port, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.started = time.Now()
	s.url = fmt.Sprintf("http://%s:%d/stream.mp4", localIP(), s.port)

	router := mux.NewRouter()
	router.HandleFunc("/stream.mp4", s.handleStream).Methods("GET", "HEAD")
	router.HandleFunc("/", s.handleStream).Methods("GET", "HEAD")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/livez", s.handleLiveness).Methods("GET", "HEAD")
	router.HandleFunc("/readyz", s.handleReadiness).Methods("GET")
	router.HandleFunc("/stats", s.handleStats).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	handler := middleware.Logger(middleware.DefaultLoggingConfig())(
		middleware.Metrics(middleware.DefaultMetricsConfig())(router),
	)

	s.httpSrv = &http.Server{
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays zero: the stream response never ends.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Stream server error: %v", err)
		}
	}()

	logging.Info("Stream server listening on port %d", s.port)
	return s.url, nil
}

// URL returns the stream URL. Valid after Start.
func (s *Server) URL() string {
	return s.url
}

// Port returns the bound port. Valid after Start.
func (s *Server) Port() int {
	return s.port
}

// Viewers returns the number of currently connected viewers.
func (s *Server) Viewers() int64 {
	return s.viewers.Load()
}

// Close shuts the server down, dropping all viewer connections
// immediately. Live viewers never drain, so a graceful shutdown would
// wait forever. The buffer is closed first so handlers blocked waiting
// for stream data wake up and exit.
func (s *Server) Close() error {
	s.buf.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

// handleStream serves the live fragmented MP4 broadcast.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	setStreamHeaders(w)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !s.waitInit(r) {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	s.viewers.Add(1)
	metrics.StreamViewers.Inc()
	metrics.StreamViewersTotal.Inc()
	defer func() {
		s.viewers.Add(-1)
		metrics.StreamViewers.Dec()
	}()

	logging.Info("Viewer connected: %s", r.RemoteAddr)

	reader := s.buf.NewReader()
	vw := NewViewerWriter(r.Context(), w, s.writeCfg)
	defer func() {
		if err := vw.Close(); err != nil {
			logging.Warn("Failed to close viewer writer: %v", err)
		}
	}()

	w.WriteHeader(http.StatusOK)
	_, err := io.Copy(vw, reader)

	sent := vw.BytesWritten()
	s.bytesSent.Add(sent)
	metrics.StreamBytesSent.Add(float64(sent))

	switch {
	case err == nil, errors.Is(err, ErrViewerGone):
		logging.Info("Viewer disconnected: %s (%d bytes)", r.RemoteAddr, sent)
	case errors.Is(err, ErrWriteTimeout):
		logging.Warn("Viewer dropped (too slow): %s (%d bytes)", r.RemoteAddr, sent)
	case errors.Is(err, ErrReaderLagged):
		logging.Warn("Viewer dropped (fell behind retention): %s (%d bytes)", r.RemoteAddr, sent)
	case errors.Is(err, ErrStreamCanceled):
		logging.Debug("Viewer closed by shutdown: %s", r.RemoteAddr)
	default:
		logging.Debug("Viewer stream ended: %s: %v", r.RemoteAddr, err)
	}
}

// waitInit blocks until the init segment exists, the viewer gives up,
// or the wait times out.
func (s *Server) waitInit(r *http.Request) bool {
	deadline := time.Now().Add(initWaitTimeout)
	for !s.buf.InitReady() {
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-r.Context().Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return true
}

func setStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "video/mp4")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	// Chromecast probes with Range requests; advertising bytes while
	// ignoring ranges keeps its player happy on a live stream.
	h.Set("Accept-Ranges", "bytes")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("X-Content-Type-Options", "nosniff")
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status       string `json:"status"`
	Ready        bool   `json:"ready"`
	Uptime       string `json:"uptime"`
	Viewers      int64  `json:"viewers"`
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.buf.InitReady()
	response := healthResponse{
		Ready:        ready,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Viewers:      s.viewers.Load(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ready {
		response.Status = "healthy"
	} else {
		response.Status = "starting"
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.buf.InitReady() {
		writeJSON(w, map[string]string{"status": "ready"})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_ready"})
	}
}

// statsResponse is the /stats payload.
type statsResponse struct {
	SessionStats
	Viewers   int64  `json:"viewers"`
	BytesSent int64  `json:"bytesSent"`
	Uptime    string `json:"uptime"`
	StreamURL string `json:"streamUrl"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	response := statsResponse{
		Viewers:   s.viewers.Load(),
		BytesSent: s.bytesSent.Load(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		StreamURL: s.url,
	}
	if s.sessionStats != nil {
		response.SessionStats = s.sessionStats()
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, response)
}

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are logged since there is no way to recover mid
// response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// localIP finds the local address reachable from the LAN by opening a
// throwaway UDP socket. No packets are sent.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
