package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/louisbarrett/tmux-cast/internal/cast"
	"github.com/louisbarrett/tmux-cast/internal/encoder"
	"github.com/louisbarrett/tmux-cast/internal/history"
	"github.com/louisbarrett/tmux-cast/internal/logging"
	"github.com/louisbarrett/tmux-cast/internal/memory"
	"github.com/louisbarrett/tmux-cast/internal/metrics"
	"github.com/louisbarrett/tmux-cast/internal/pipeline"
	"github.com/louisbarrett/tmux-cast/internal/startup"
	"github.com/louisbarrett/tmux-cast/internal/streaming"
	"github.com/louisbarrett/tmux-cast/internal/terminal"
)

// streamBufferSize bounds the in-memory broadcast buffer, a few
// seconds of video at the default bitrate.
const streamBufferSize = 8 << 20

func main() {
	config, err := startup.LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logging.Fatal("Configuration error: %v", err)
	}

	if err := run(config); err != nil {
		logging.Fatal("%v", err)
	}
}

func run(config *startup.Config) error {
	ctx := context.Background()

	if config.ShowVersion {
		info := startup.GetBuildInfo()
		fmt.Printf("tmux-cast %s (%s, built %s, %s %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		return nil
	}

	memory.ConfigureFromEnv()

	switch {
	case config.ListSessions:
		return listSessions(ctx)
	case config.ListDevices:
		return listDevices(ctx, config.DiscoverTimeout)
	case config.ShowHistory:
		return showHistory(ctx, config.HistoryPath)
	}

	if !config.URLOnly {
		startup.LogStartup(config)
	}

	if err := startup.CheckPrerequisites(ctx); err != nil {
		return err
	}

	target, err := resolveTarget(ctx, config)
	if err != nil {
		return err
	}

	return stream(ctx, config, target)
}

// stream runs one full casting session until interrupted.
func stream(ctx context.Context, config *startup.Config, target string) error {
	style, err := config.Style()
	if err != nil {
		return err
	}

	metrics.InitializeMetrics()

	buffer := streaming.NewBuffer(streamBufferSize)
	server := streaming.NewServer(buffer, config.Port)
	enc := encoder.New(encoder.Config{
		Width:   config.Width,
		Height:  config.Height,
		FPS:     config.FPS,
		Bitrate: config.Bitrate,
	})

	pipe := pipeline.New(pipeline.Config{
		Target: target,
		FPS:    config.FPS,
		Width:  config.Width,
		Height: config.Height,
		Style:  style,
	}, terminal.NewCapture(target), enc, buffer, server)

	server.SetSessionStats(func() streaming.SessionStats {
		return streaming.SessionStats{
			Target:        target,
			State:         pipe.State().String(),
			FramesWritten: pipe.Frames(),
		}
	})

	url, err := pipe.Start(ctx)
	if err != nil {
		return err
	}

	if config.URLOnly {
		fmt.Println(url)
	} else {
		startup.LogStreamStarted(url, server.Port())
	}

	var session *cast.Session
	deviceName := ""
	if !config.URLOnly {
		session = startCasting(ctx, config, url)
		if session != nil {
			deviceName = session.Device().Name
		}
	}

	store, recordID := beginHistory(ctx, config, target, deviceName, url)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case <-pipe.Done():
		logging.Error("Pipeline terminated unexpectedly")
	}

	if session != nil {
		if err := session.Stop(); err != nil {
			logging.Warn("Cast session stop: %v", err)
		} else {
			startup.LogShutdownStepComplete("Cast session stopped")
		}
	}

	pipe.Stop()
	startup.LogShutdownStepComplete("Pipeline stopped")

	if store != nil {
		finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Finish(finishCtx, recordID, pipe.Frames()); err != nil {
			logging.Warn("History update failed: %v", err)
		}
		cancel()
		if err := store.Close(); err != nil {
			logging.Warn("History close failed: %v", err)
		}
	}

	startup.LogShutdownComplete()
	return nil
}

// resolveTarget picks the tmux target. With no target configured and a
// terminal on stdin, the user chooses interactively; otherwise the
// empty target lets tmux use the current pane.
func resolveTarget(ctx context.Context, config *startup.Config) (string, error) {
	if config.Target != "" || config.NoInteractive || config.URLOnly {
		return config.Target, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}

	target, err := terminal.SelectTarget(ctx, os.Stdin, os.Stderr)
	if err != nil {
		if errors.Is(err, terminal.ErrSelectionAborted) {
			return "", err
		}
		logging.Warn("Interactive selection failed, using current pane: %v", err)
		return "", nil
	}
	return target, nil
}

// startCasting finds the configured device and starts playback. Cast
// failures are not fatal: the stream keeps serving over HTTP.
func startCasting(ctx context.Context, config *startup.Config, url string) *cast.Session {
	device, err := cast.FindDevice(ctx, config.Device, config.DiscoverTimeout)
	if err != nil {
		logging.Warn("Cast device unavailable, stream is still reachable at %s: %v", url, err)
		return nil
	}

	session := cast.NewSession(device)
	if err := session.Connect(); err != nil {
		logging.Warn("Cast connect failed, stream is still reachable at %s: %v", url, err)
		return nil
	}
	if err := session.Play(url); err != nil {
		logging.Warn("Cast playback failed, stream is still reachable at %s: %v", url, err)
		if stopErr := session.Stop(); stopErr != nil {
			logging.Debug("Cast session cleanup: %v", stopErr)
		}
		return nil
	}
	return session
}

// beginHistory opens the history store and records the session start.
// History is best-effort and never blocks streaming.
func beginHistory(ctx context.Context, config *startup.Config, target, device, url string) (*history.Store, int64) {
	store, err := history.Open(ctx, config.HistoryPath)
	if err != nil {
		logging.Warn("History disabled: %v", err)
		return nil, 0
	}

	id, err := store.Begin(ctx, history.Record{
		Target:    target,
		Device:    device,
		URL:       url,
		Width:     config.Width,
		Height:    config.Height,
		FPS:       config.FPS,
		StartedAt: time.Now(),
	})
	if err != nil {
		logging.Warn("History disabled: %v", err)
		if closeErr := store.Close(); closeErr != nil {
			logging.Debug("History close: %v", closeErr)
		}
		return nil, 0
	}
	return store, id
}

func listSessions(ctx context.Context) error {
	sessions, err := terminal.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list tmux sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No tmux sessions running.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s\t%s\n", s.ID, s.Name)
	}
	return nil
}

func listDevices(ctx context.Context, timeout time.Duration) error {
	fmt.Fprintf(os.Stderr, "Discovering cast devices (%v)...\n", timeout)
	devices, err := cast.Discover(ctx, timeout)
	if err != nil {
		return fmt.Errorf("discover cast devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Println("No cast devices found.")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%s\t%s:%d\n", d.Name, d.Addr, d.Port)
	}
	return nil
}

func showHistory(ctx context.Context, dbPath string) error {
	store, err := history.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn("History close failed: %v", err)
		}
	}()

	records, err := store.Recent(ctx, 20)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No casting sessions recorded yet.")
		return nil
	}

	for _, rec := range records {
		duration := "running"
		if !rec.EndedAt.IsZero() {
			duration = rec.EndedAt.Sub(rec.StartedAt).Round(time.Second).String()
		}
		target := rec.Target
		if target == "" {
			target = "(current pane)"
		}
		device := rec.Device
		if device == "" {
			device = "-"
		}
		fmt.Printf("%s  %-20s  %-20s  %dx%d@%d  %8s  %d frames\n",
			rec.StartedAt.Format("2006-01-02 15:04"),
			target, device, rec.Width, rec.Height, rec.FPS, duration, rec.Frames)
	}
	return nil
}
