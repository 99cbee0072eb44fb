// Package main provides the entry point for tmux-cast.
//
// tmux-cast mirrors a live tmux pane to a Chromecast (or any HTTP
// video player) by rendering the terminal contents to video in real
// time.
//
// # Application Lifecycle
//
// The program follows a structured startup sequence:
//
//  1. Configuration Loading: Parses flags with TMUX_CAST_* environment
//     fallback and validates values
//  2. Memory Configuration: Sets GOMEMLIMIT from container limits,
//     leaving headroom for the ffmpeg subprocess
//  3. Prerequisite Checks: Verifies tmux and ffmpeg are on PATH
//  4. Target Selection: Uses the given tmux target, or prompts
//     interactively when stdin is a terminal
//  5. Pipeline Start: Binds the stream server, spawns the encoder,
//     and begins the capture/render/encode loop
//  6. Casting: Discovers the Chromecast via mDNS and points it at the
//     stream URL; a keepalive watcher reloads playback if the device
//     goes idle
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM, stops casting, drains
//     the pipeline, and records the session in history
//
// # Data Flow
//
// Each tick at the configured frame rate:
//
//	tmux capture-pane -> escape-sequence interpretation -> character
//	grid -> rasterized frame -> ffmpeg (fragmented MP4) -> broadcast
//	buffer -> HTTP viewers
//
// Casting is decoupled from frame production: the Chromecast is just
// another HTTP viewer, and cast failures never stop the stream.
//
// # Operating Modes
//
//   - default: stream the target pane and cast it
//   - --url-only: serve the stream and print its URL without casting
//   - --list-sessions: list tmux sessions and exit
//   - --list-devices: list discovered cast devices and exit
//   - --history: show recent casting sessions and exit
//
// # External Dependencies
//
//   - tmux: terminal content capture
//   - FFmpeg: H.264 encoding into fragmented MP4
//
// # Related Packages
//
//   - [github.com/louisbarrett/tmux-cast/internal/terminal]: capture and escape-sequence grid model
//   - [github.com/louisbarrett/tmux-cast/internal/render]: grid rasterization
//   - [github.com/louisbarrett/tmux-cast/internal/encoder]: ffmpeg process management
//   - [github.com/louisbarrett/tmux-cast/internal/streaming]: broadcast buffer and HTTP server
//   - [github.com/louisbarrett/tmux-cast/internal/cast]: device discovery and playback control
//   - [github.com/louisbarrett/tmux-cast/internal/pipeline]: tick loop and lifecycle
package main
