package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Entry is one item from a tmux listing: a session, window, or pane.
type Entry struct {
	ID   string
	Name string
}

// ErrSelectionAborted is returned when the user quits interactive
// target selection.
var ErrSelectionAborted = errors.New("selection aborted")

// ListSessions returns all tmux sessions on the default server.
func ListSessions(ctx context.Context) ([]Entry, error) {
	out, err := tmux(ctx, "list-sessions", "-F", "#{session_id}\t#{session_name}")
	if err != nil {
		return nil, err
	}
	return parseEntries(out), nil
}

// ListWindows returns the windows of a session.
func ListWindows(ctx context.Context, session string) ([]Entry, error) {
	out, err := tmux(ctx, "list-windows", "-t", session, "-F", "#{window_index}\t#{window_name}")
	if err != nil {
		return nil, err
	}
	return parseEntries(out), nil
}

// ListPanes returns the panes of a window within a session.
func ListPanes(ctx context.Context, session, window string) ([]Entry, error) {
	out, err := tmux(ctx, "list-panes", "-t", session+":"+window, "-F", "#{pane_index}\t#{pane_title}")
	if err != nil {
		return nil, err
	}
	return parseEntries(out), nil
}

// parseEntries splits tab-delimited tmux -F output into entries.
// Titles may be empty; IDs never are.
func parseEntries(out []byte) []Entry {
	var entries []Entry
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		id, name, _ := strings.Cut(line, "\t")
		entries = append(entries, Entry{ID: id, Name: name})
	}
	return entries
}

// SelectTarget walks the user through choosing a session, window, and
// pane, returning a tmux target string (session:window.pane). A window
// with a single pane is selected automatically.
func SelectTarget(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	reader := bufio.NewReader(in)

	sessions, err := ListSessions(ctx)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no tmux sessions found (start one with: tmux new -s mysession)")
	}

	session, err := choose(reader, out, "session", sessions)
	if err != nil {
		return "", err
	}

	windows, err := ListWindows(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if len(windows) == 0 {
		return "", fmt.Errorf("no windows in session %q", session.Name)
	}
	window, err := choose(reader, out, "window", windows)
	if err != nil {
		return "", err
	}

	panes, err := ListPanes(ctx, session.ID, window.ID)
	if err != nil {
		return "", err
	}
	if len(panes) == 0 {
		return "", fmt.Errorf("no panes in window %q", window.Name)
	}
	var pane Entry
	if len(panes) == 1 {
		pane = panes[0]
		fmt.Fprintf(out, "Auto-selected pane %s (only pane in window)\n", pane.ID)
	} else {
		pane, err = choose(reader, out, "pane", panes)
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%s:%s.%s", session.ID, window.ID, pane.ID), nil
}

// choose prompts for one entry out of a numbered list.
func choose(reader *bufio.Reader, out io.Writer, kind string, entries []Entry) (Entry, error) {
	fmt.Fprintf(out, "\nAvailable %ss:\n", kind)
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = "(untitled)"
		}
		fmt.Fprintf(out, "  [%d] %s (id: %s)\n", i, name, e.ID)
	}

	for {
		fmt.Fprintf(out, "Select %s number (or 'q' to quit): ", kind)
		line, err := reader.ReadString('\n')
		if err != nil {
			return Entry{}, ErrSelectionAborted
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "q") {
			return Entry{}, ErrSelectionAborted
		}
		idx, err := strconv.Atoi(line)
		if err != nil || idx < 0 || idx >= len(entries) {
			fmt.Fprintf(out, "Invalid choice, enter 0-%d or 'q'\n", len(entries)-1)
			continue
		}
		return entries[idx], nil
	}
}
