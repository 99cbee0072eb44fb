package terminal

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Capture reads raw content and geometry for one tmux pane. An empty
// target addresses the currently active pane.
type Capture struct {
	target string
}

// NewCapture returns a Capture for the given tmux target
// (session:window.pane).
func NewCapture(target string) *Capture {
	return &Capture{target: target}
}

// Target returns the configured tmux target string.
func (c *Capture) Target() string {
	return c.target
}

// Content captures the pane's visible content including escape
// sequences (tmux capture-pane -e).
func (c *Capture) Content(ctx context.Context) ([]byte, error) {
	args := []string{"capture-pane", "-p", "-e"}
	if c.target != "" {
		args = append(args, "-t", c.target)
	}
	return tmux(ctx, args...)
}

// Size returns the pane dimensions in character cells.
func (c *Capture) Size(ctx context.Context) (cols, rows int, err error) {
	args := []string{"display-message", "-p", "#{pane_width} #{pane_height}"}
	if c.target != "" {
		args = append(args, "-t", c.target)
	}
	out, err := tmux(ctx, args...)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected tmux size output: %q", strings.TrimSpace(string(out)))
	}
	cols, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse pane width: %w", err)
	}
	rows, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse pane height: %w", err)
	}
	return cols, rows, nil
}

// tmux runs a tmux subcommand and returns its stdout. Failures include
// tmux's stderr, which carries the useful detail ("can't find session",
// "no server running", ...).
func tmux(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("tmux %s: %w", args[0], err)
		}
		return nil, fmt.Errorf("tmux %s: %w: %s", args[0], err, msg)
	}
	return stdout.Bytes(), nil
}
