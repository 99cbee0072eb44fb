package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbarrett/tmux-cast/internal/encoder"
	"github.com/louisbarrett/tmux-cast/internal/logging"
	"github.com/louisbarrett/tmux-cast/internal/metrics"
	"github.com/louisbarrett/tmux-cast/internal/render"
	"github.com/louisbarrett/tmux-cast/internal/terminal"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// consecutiveFailureWarn is how many capture failures in a row trigger
// a warning instead of a debug line.
const consecutiveFailureWarn = 5

// Source supplies terminal content and dimensions for one target.
type Source interface {
	Content(ctx context.Context) ([]byte, error)
	Size(ctx context.Context) (cols, rows int, err error)
}

// Encoder is the frame consumer. Satisfied by *encoder.Encoder.
type Encoder interface {
	Start(ctx context.Context, out encoder.Output) error
	WriteFrame(rgb []byte) error
	Stop() error
}

// Server is the stream distribution side. Satisfied by
// *streaming.Server.
type Server interface {
	Start() (string, error)
	Close() error
}

// Config holds the tunable pipeline parameters.
type Config struct {
	Target string
	FPS    int
	Width  int
	Height int
	Style  render.Style
}

// Pipeline drives the capture, render, encode loop and owns the
// lifecycles of the encoder process and the stream server.
type Pipeline struct {
	cfg    Config
	source Source
	enc    Encoder
	out    encoder.Output
	srv    Server

	screen   *terminal.Screen
	renderer *render.Renderer

	lastFrame []byte
	rgbBuf    []byte
	failures  int

	state  atomic.Int32
	frames atomic.Int64
	url    string

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New assembles a pipeline. The encoder's output sink is typically the
// same stream buffer the server serves from.
func New(cfg Config, source Source, enc Encoder, out encoder.Output, srv Server) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		enc:      enc,
		out:      out,
		srv:      srv,
		renderer: render.New(cfg.Style, cfg.Width, cfg.Height),
		screen:   terminal.NewScreen(0, 0),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// URL returns the stream URL. Valid after Start succeeds.
func (p *Pipeline) URL() string {
	return p.url
}

// Frames returns the number of frames written so far.
func (p *Pipeline) Frames() int64 {
	return p.frames.Load()
}

// Done is closed once the pipeline has fully stopped, whether by Stop
// or by a fatal encoder failure.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Start binds the stream server, spawns the encoder process, and
// launches the tick loop. It returns the stream URL.
func (p *Pipeline) Start(ctx context.Context) (string, error) {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return "", fmt.Errorf("pipeline already started (state %s)", p.State())
	}

	url, err := p.srv.Start()
	if err != nil {
		p.state.Store(int32(StateStopped))
		close(p.done)
		return "", fmt.Errorf("start stream server: %w", err)
	}
	p.url = url

	if err := p.enc.Start(ctx, p.out); err != nil {
		if closeErr := p.srv.Close(); closeErr != nil {
			logging.Warn("Failed to close stream server: %v", closeErr)
		}
		p.state.Store(int32(StateStopped))
		close(p.done)
		return "", fmt.Errorf("start encoder: %w", err)
	}

	if cols, rows, err := p.source.Size(ctx); err == nil {
		p.screen.Resize(cols, rows)
	} else {
		logging.Warn("Initial size query failed, starting blank: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(runCtx)

	logging.Info("Pipeline started for target %q at %dx%d @%dfps",
		p.cfg.Target, p.cfg.Width, p.cfg.Height, p.cfg.FPS)
	return url, nil
}

// Stop shuts the pipeline down. Idempotent from any state; it returns
// once everything has stopped.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
			close(p.done)
			return
		}
		p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		p.state.CompareAndSwap(int32(StateStarting), int32(StateStopping))
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

// run is the fixed-cadence tick loop. It owns the screen model; no
// other goroutine touches it.
func (p *Pipeline) run(ctx context.Context) {
	defer p.finalize()

	interval := time.Second / time.Duration(p.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One screen-size probe roughly per second.
	sizeCheckEvery := p.cfg.FPS
	if sizeCheckEvery < 1 {
		sizeCheckEvery = 1
	}

	tickCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if tickCount%sizeCheckEvery == 0 {
			p.checkResize(ctx)
		}
		tickCount++

		start := time.Now()
		if fatal := p.tick(ctx); fatal {
			return
		}

		elapsed := time.Since(start)
		metrics.TicksTotal.Inc()
		metrics.TickDuration.Observe(elapsed.Seconds())
		if elapsed > 2*interval {
			metrics.TickOverruns.Inc()
			logging.Warn("Tick stalled: %v (interval %v)", elapsed, interval)
		}
	}
}

// tick performs one capture/render/encode pass. It reports true when
// the failure is fatal and the loop must stop.
func (p *Pipeline) tick(ctx context.Context) bool {
	content, err := p.source.Content(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		metrics.CaptureErrors.Inc()
		p.failures++
		if p.failures%consecutiveFailureWarn == 0 {
			logging.Warn("Capture failed %d times in a row: %v", p.failures, err)
		} else {
			logging.Debug("Capture failed, resending previous frame: %v", err)
		}
		return p.resend()
	}
	p.failures = 0

	p.screen.Reset()
	p.screen.Apply(content)
	grid := p.screen.Snapshot()

	img := p.renderer.Render(grid)
	p.rgbBuf = render.PackRGB(img, p.rgbBuf)
	p.lastFrame = append(p.lastFrame[:0], p.rgbBuf...)

	return p.write(p.rgbBuf)
}

// resend writes the previous frame again to keep the encoder cadence
// steady. Before any frame exists it renders the blank screen.
func (p *Pipeline) resend() bool {
	if p.lastFrame == nil {
		img := p.renderer.Render(terminal.Grid{})
		p.rgbBuf = render.PackRGB(img, p.rgbBuf)
		p.lastFrame = append(p.lastFrame[:0], p.rgbBuf...)
	}
	metrics.FramesResent.Inc()
	return p.write(p.lastFrame)
}

func (p *Pipeline) write(frame []byte) bool {
	if err := p.enc.WriteFrame(frame); err != nil {
		if errors.Is(err, encoder.ErrEncoderExited) {
			logging.Error("Encoder died, stopping pipeline: %v", err)
		} else {
			logging.Error("Frame write failed, stopping pipeline: %v", err)
		}
		return true
	}
	p.frames.Add(1)
	metrics.FramesWritten.Inc()

	// First delivered frame moves the pipeline into steady state.
	p.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	return false
}

// checkResize follows the target when its pane dimensions change. The
// encoder keeps its fixed output resolution; the letterbox scaler
// absorbs the new grid size, so the stream never restarts.
func (p *Pipeline) checkResize(ctx context.Context) {
	cols, rows, err := p.source.Size(ctx)
	if err != nil {
		return
	}
	curCols, curRows := p.screen.Size()
	if cols != curCols || rows != curRows {
		logging.Info("Target resized %dx%d -> %dx%d", curCols, curRows, cols, rows)
		p.screen.Resize(cols, rows)
	}
}

// finalize tears everything down exactly once, from the run goroutine.
func (p *Pipeline) finalize() {
	p.state.Store(int32(StateStopping))

	if err := p.enc.Stop(); err != nil {
		logging.Warn("Encoder stop: %v", err)
	}
	if err := p.srv.Close(); err != nil {
		logging.Warn("Stream server close: %v", err)
	}

	p.state.Store(int32(StateStopped))
	close(p.done)
	logging.Info("Pipeline stopped after %d frames", p.frames.Load())
}
