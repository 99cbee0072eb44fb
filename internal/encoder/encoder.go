package encoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/louisbarrett/tmux-cast/internal/logging"
	"github.com/louisbarrett/tmux-cast/internal/metrics"
)

// Sentinel errors for encoder operations.
var (
	// ErrNotRunning indicates a frame write before Start or after Stop.
	ErrNotRunning = errors.New("encoder not running")

	// ErrAlreadyRunning indicates a second Start on a live encoder.
	ErrAlreadyRunning = errors.New("encoder already running")

	// ErrEncoderExited indicates the ffmpeg process died. Fatal for the
	// current session: a restarted encoder cannot continue an in-flight
	// fragmented stream.
	ErrEncoderExited = errors.New("encoder process exited")
)

// outputReadSize is the chunk size for draining ffmpeg's stdout.
const outputReadSize = 32 * 1024

// initScanLimit caps how many bytes are accumulated while looking for
// the first moof box before giving up and treating everything seen as
// the init segment.
const initScanLimit = 64 * 1024

// Config holds the encoding parameters for one stream session.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Bitrate string
}

// Output receives the encoder's container output. SetInit is called
// once with the stream's initialization segment (ftyp+moov) as soon as
// it has been identified; Write receives every output byte in order,
// including the init segment itself.
type Output interface {
	SetInit([]byte)
	io.Writer
}

// Encoder feeds raw RGB frames to a continuously running ffmpeg process
// and relays its fragmented MP4 output. The process handle is owned
// exclusively by the Encoder; callers interact only through Start,
// WriteFrame and Stop.
type Encoder struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool

	exited  chan struct{}
	waitErr error
	stderr  bytes.Buffer

	pumpDone chan struct{}
}

// New returns an Encoder for the given configuration.
func New(cfg Config) *Encoder {
	return &Encoder{cfg: cfg}
}

// Start spawns ffmpeg and begins relaying its output to out. The
// context bounds process startup only; the process itself runs until
// Stop or its own death.
func (e *Encoder) Start(ctx context.Context, out Output) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", e.args()...)
	cmd.Stderr = &e.stderr
	// Killing ffmpeg must not wait for it to flush.
	cmd.Cancel = func() error { return cmd.Process.Kill() }

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("encoder stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoder stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.running = true
	e.exited = make(chan struct{})
	e.pumpDone = make(chan struct{})

	go e.pump(stdout, out)
	go func() {
		err := cmd.Wait()
		e.mu.Lock()
		e.waitErr = err
		e.mu.Unlock()
		close(e.exited)
	}()

	logging.Info("Encoder started: %dx%d @ %d fps, bitrate %s",
		e.cfg.Width, e.cfg.Height, e.cfg.FPS, e.cfg.Bitrate)
	return nil
}

// args builds the ffmpeg invocation: raw RGB frames on stdin,
// fragmented MP4 on stdout. Fragments are cut at keyframes roughly
// once per second so a late-joining viewer becomes playable quickly.
func (e *Encoder) args() []string {
	fps := strconv.Itoa(e.cfg.FPS)
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", e.cfg.Width, e.cfg.Height),
		"-r", fps,
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-b:v", e.cfg.Bitrate,
		"-maxrate", e.cfg.Bitrate,
		"-bufsize", "500k",
		"-pix_fmt", "yuv420p",
		"-g", strconv.Itoa(e.cfg.FPS * 2),
		"-keyint_min", fps,
		"-f", "mp4",
		"-movflags", "frag_keyframe+default_base_moof",
		"-frag_duration", "1000000",
		"-",
	}
}

// WriteFrame writes one packed RGB frame to the encoder. It may block
// briefly while ffmpeg drains its input buffer; this is the pipeline's
// backpressure signal. Returns ErrEncoderExited once the process has
// died.
func (e *Encoder) WriteFrame(rgb []byte) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	stdin, exited := e.stdin, e.exited
	e.mu.Unlock()

	select {
	case <-exited:
		return e.exitError()
	default:
	}

	if want := e.cfg.Width * e.cfg.Height * 3; len(rgb) != want {
		return fmt.Errorf("frame size %d, want %d (%dx%d rgb24)", len(rgb), want, e.cfg.Width, e.cfg.Height)
	}

	if _, err := stdin.Write(rgb); err != nil {
		// A write against a dead process surfaces as a broken pipe.
		select {
		case <-exited:
			return e.exitError()
		default:
		}
		return fmt.Errorf("%w: %v", ErrEncoderExited, err)
	}
	metrics.EncoderBytesIn.Add(float64(len(rgb)))
	return nil
}

// exitError wraps ErrEncoderExited with ffmpeg's exit status and the
// tail of its stderr, which carries the actual failure reason.
func (e *Encoder) exitError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	detail := strings.TrimSpace(e.stderr.String())
	if len(detail) > 512 {
		detail = detail[len(detail)-512:]
	}
	if detail == "" {
		return fmt.Errorf("%w: %v", ErrEncoderExited, e.waitErr)
	}
	return fmt.Errorf("%w: %v: %s", ErrEncoderExited, e.waitErr, detail)
}

// pump relays encoder output to the sink and detects the MP4 init
// segment: everything before the first moof box, verified to sit on an
// atom boundary.
func (e *Encoder) pump(stdout io.Reader, out Output) {
	defer close(e.pumpDone)

	var header []byte
	headerDone := false
	buf := make([]byte, outputReadSize)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if !headerDone {
				header = append(header, chunk...)
				if init, ok := splitInit(header); ok {
					out.SetInit(init)
					headerDone = true
					logging.Debug("Captured MP4 init segment: %d bytes", len(init))
				} else if len(header) > initScanLimit {
					// No moof within a sane window; ship what we have
					// so viewers are not blocked forever.
					out.SetInit(header)
					headerDone = true
					logging.Warn("No moof box within %d bytes, using %d-byte init segment", initScanLimit, len(header))
				}
			}
			if _, werr := out.Write(chunk); werr != nil {
				logging.Warn("Stream buffer write failed: %v", werr)
				return
			}
			metrics.EncoderBytesOut.Add(float64(n))
		}
		if err != nil {
			if err != io.EOF {
				logging.Debug("Encoder output read ended: %v", err)
			}
			return
		}
	}
}

// splitInit returns the bytes preceding the first moof box if one is
// present on a verified atom boundary.
func splitInit(header []byte) ([]byte, bool) {
	idx := bytes.Index(header, []byte("moof"))
	if idx < 4 {
		return nil, false
	}
	atomStart := idx - 4
	size := binary.BigEndian.Uint32(header[atomStart:idx])
	if size < 8 || int(size) > len(header)-atomStart {
		return nil, false
	}
	return header[:atomStart], true
}

// Stop closes the encoder's input and terminates the process. It is
// idempotent; the first call closes stdin so ffmpeg can flush, then
// kills the process if it does not exit within a short grace period.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	stdin, cmd, exited, pumpDone := e.stdin, e.cmd, e.exited, e.pumpDone
	e.mu.Unlock()

	if err := stdin.Close(); err != nil {
		logging.Debug("Encoder stdin close: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		logging.Warn("Encoder did not exit after stdin close, killing")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("Failed to kill encoder process: %v", err)
			}
		}
		<-exited
	}
	<-pumpDone

	logging.Info("Encoder stopped")
	return nil
}
