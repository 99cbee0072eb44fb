// Package terminal captures tmux pane content and models it as a
// character grid.
//
// It provides:
//   - Capture: reads raw pane content (with escape sequences) and pane
//     geometry from tmux via the tmux CLI
//   - Screen: a grid state machine that interprets escape sequences and
//     maintains the current visible cells
//   - Session/window/pane listing and interactive target selection
//
// Capturing requires tmux to be installed and available in the system
// PATH.
package terminal
