package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_ticks_total",
			Help: "Total number of capture/render/encode ticks",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tmux_cast_tick_duration_seconds",
			Help:    "Duration of one capture/render/encode tick",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	FramesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_frames_written_total",
			Help: "Total number of frames written to the encoder",
		},
	)

	FramesResent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_frames_resent_total",
			Help: "Frames resent unchanged because capture failed or content was stale",
		},
	)

	CaptureErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_capture_errors_total",
			Help: "Total number of failed terminal captures",
		},
	)

	TickOverruns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_tick_overruns_total",
			Help: "Ticks that exceeded twice the configured frame interval",
		},
	)
)

// Encoder metrics
var (
	EncoderBytesIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_encoder_bytes_in_total",
			Help: "Raw frame bytes written to the encoder process",
		},
	)

	EncoderBytesOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_encoder_bytes_out_total",
			Help: "Encoded container bytes read from the encoder process",
		},
	)
)

// Stream server metrics
var (
	StreamViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmux_cast_stream_viewers",
			Help: "Number of currently connected stream viewers",
		},
	)

	StreamViewersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_stream_viewers_total",
			Help: "Total number of viewer connections accepted",
		},
	)

	StreamBytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmux_cast_stream_bytes_sent_total",
			Help: "Total container bytes sent to all viewers",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmux_cast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmux_cast_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmux_cast_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Cast metrics
var (
	CastCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmux_cast_cast_commands_total",
			Help: "Chromecast control commands by command and outcome",
		},
		[]string{"command", "status"},
	)
)
