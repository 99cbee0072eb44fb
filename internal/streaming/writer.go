package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Sentinel errors for viewer writes.
var (
	// ErrWriteTimeout indicates a viewer accepted data too slowly and
	// was dropped. Viewer backpressure is never propagated upstream.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrViewerGone indicates the viewer disconnected, detected via the
	// request context being canceled.
	ErrViewerGone = errors.New("viewer disconnected")

	// ErrStreamCanceled indicates the stream was shut down while the
	// viewer was still connected.
	ErrStreamCanceled = errors.New("stream canceled")
)

// ViewerWriterConfig configures the timeout-protected viewer writer.
type ViewerWriterConfig struct {
	// WriteTimeout is the maximum time to wait for a single write to
	// the viewer before dropping it.
	WriteTimeout time.Duration
	// ChunkSize splits large writes so data flows continuously rather
	// than in bursts (0 = write as received).
	ChunkSize int
}

// DefaultViewerWriterConfig returns sensible defaults for live video.
func DefaultViewerWriterConfig() ViewerWriterConfig {
	return ViewerWriterConfig{
		WriteTimeout: 10 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// ViewerWriter wraps a viewer's http.ResponseWriter with timeout
// protection so one stalled client cannot hold resources indefinitely.
type ViewerWriter struct {
	w       http.ResponseWriter
	ctx     context.Context
	cancel  context.CancelFunc
	config  ViewerWriterConfig
	flusher http.Flusher

	mu           sync.Mutex
	bytesWritten int64
	closed       bool
}

// NewViewerWriter creates a timeout-protected writer bound to the
// viewer's request context.
func NewViewerWriter(ctx context.Context, w http.ResponseWriter, config ViewerWriterConfig) *ViewerWriter {
	writerCtx, cancel := context.WithCancel(ctx)
	vw := &ViewerWriter{
		w:      w,
		ctx:    writerCtx,
		cancel: cancel,
		config: config,
	}
	if flusher, ok := w.(http.Flusher); ok {
		vw.flusher = flusher
	}
	return vw
}

// Write implements io.Writer with timeout protection.
func (vw *ViewerWriter) Write(p []byte) (int, error) {
	vw.mu.Lock()
	if vw.closed {
		vw.mu.Unlock()
		return 0, ErrStreamCanceled
	}
	vw.mu.Unlock()

	select {
	case <-vw.ctx.Done():
		return 0, vw.contextError()
	default:
	}

	if vw.config.ChunkSize > 0 && len(p) > vw.config.ChunkSize {
		return vw.writeChunked(p)
	}
	return vw.writeWithTimeout(p)
}

// writeChunked writes data in smaller chunks, flushing between them.
func (vw *ViewerWriter) writeChunked(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		select {
		case <-vw.ctx.Done():
			return total, vw.contextError()
		default:
		}

		chunk := min(vw.config.ChunkSize, len(p))
		n, err := vw.writeWithTimeout(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[chunk:]

		if vw.flusher != nil {
			vw.flusher.Flush()
		}
	}
	return total, nil
}

// writeWithTimeout performs a single write with timeout.
func (vw *ViewerWriter) writeWithTimeout(p []byte) (int, error) {
	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		n, err := vw.w.Write(p)
		resultCh <- writeResult{n, err}
	}()

	select {
	case result := <-resultCh:
		if result.err == nil {
			vw.mu.Lock()
			vw.bytesWritten += int64(result.n)
			vw.mu.Unlock()
		}
		return result.n, result.err

	case <-time.After(vw.config.WriteTimeout):
		vw.cancel()
		return 0, ErrWriteTimeout

	case <-vw.ctx.Done():
		return 0, vw.contextError()
	}
}

// contextError distinguishes a viewer hangup from a programmatic stop.
func (vw *ViewerWriter) contextError() error {
	if errors.Is(vw.ctx.Err(), context.Canceled) {
		return ErrViewerGone
	}
	return ErrStreamCanceled
}

// Close marks the writer as closed and cancels any in-flight write.
func (vw *ViewerWriter) Close() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.closed {
		return nil
	}
	vw.closed = true
	vw.cancel()
	return nil
}

// BytesWritten returns how many bytes reached the viewer.
func (vw *ViewerWriter) BytesWritten() int64 {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	return vw.bytesWritten
}
