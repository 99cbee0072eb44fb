package terminal

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Color is a resolved 24-bit cell color packed as 0xRRGGBB, or
// ColorDefault when the cell uses the renderer's default foreground or
// background.
type Color int32

// ColorDefault marks a cell color that falls back to the configured
// default foreground/background.
const ColorDefault Color = -1

// RGB packs the given channels into a Color.
func RGB(r, g, b uint8) Color {
	return Color(int32(r)<<16 | int32(g)<<8 | int32(b))
}

// Channels returns the red, green and blue channels of a non-default
// color.
func (c Color) Channels() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Attr is a bitmask of cell style attributes.
type Attr uint8

// Cell style attributes.
const (
	AttrBold Attr = 1 << iota
	AttrUnderline
	AttrReverse
)

// Cell is one character cell of the grid.
type Cell struct {
	Rune  rune
	FG    Color
	BG    Color
	Attrs Attr
}

// blank is the content of an erased cell.
var blank = Cell{Rune: ' ', FG: ColorDefault, BG: ColorDefault}

// Grid is an immutable snapshot of the visible screen. Cells are stored
// row-major.
type Grid struct {
	Cols, Rows       int
	CursorX, CursorY int
	Cells            []Cell
}

// At returns the cell at the given column and row. Out-of-range
// coordinates return a blank cell.
func (g Grid) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= g.Cols || y >= g.Rows {
		return blank
	}
	return g.Cells[y*g.Cols+x]
}

// String renders the grid's text content, one line per row, for
// debugging and tests. Style attributes are not included.
func (g Grid) String() string {
	var b strings.Builder
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			b.WriteRune(g.At(x, y).Rune)
		}
		if y < g.Rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Screen interprets escape-sequence-annotated text and maintains the
// current visible character grid. It is not safe for concurrent use;
// the pipeline tick loop is the single writer and callers of Snapshot
// must not interleave with Apply.
type Screen struct {
	cols, rows int
	cells      []Cell
	curX, curY int

	// Current SGR state applied to newly written cells.
	fg, bg Color
	attrs  Attr
}

// NewScreen returns a blank screen of the given dimensions.
func NewScreen(cols, rows int) *Screen {
	s := &Screen{cols: cols, rows: rows}
	s.cells = make([]Cell, cols*rows)
	s.Reset()
	return s
}

// Size returns the screen dimensions in character cells.
func (s *Screen) Size() (cols, rows int) {
	return s.cols, s.rows
}

// Reset clears all cells, homes the cursor and resets SGR state.
func (s *Screen) Reset() {
	for i := range s.cells {
		s.cells[i] = blank
	}
	s.curX, s.curY = 0, 0
	s.fg, s.bg = ColorDefault, ColorDefault
	s.attrs = 0
}

// Resize changes the grid dimensions and clears all content. tmux
// resends the full pane on the next capture, so carrying cells across
// a resize is pointless.
func (s *Screen) Resize(cols, rows int) {
	s.cols, s.rows = cols, rows
	s.cells = make([]Cell, cols*rows)
	s.Reset()
}

// Snapshot returns a copy of the current grid. The returned Grid does
// not alias Screen state and stays valid across subsequent Apply calls.
func (s *Screen) Snapshot() Grid {
	return Grid{
		Cols:    s.cols,
		Rows:    s.rows,
		CursorX: s.curX,
		CursorY: s.curY,
		Cells:   append([]Cell(nil), s.cells...),
	}
}

// Apply feeds a chunk of terminal output into the screen. Control
// sequences are interpreted in order; unknown or unsupported sequences
// are ignored without invalidating the rest of the grid.
func (s *Screen) Apply(chunk []byte) {
	if s.cols == 0 || s.rows == 0 {
		return
	}
	var state byte
	data := chunk
	for len(data) > 0 {
		seq, width, n, newState := ansi.DecodeSequence(data, state, nil)
		if n == 0 {
			// Truncated or undecodable input; drop the rest.
			return
		}
		if width > 0 {
			r, _ := utf8.DecodeRune(seq)
			s.put(r, width)
		} else {
			s.control(seq)
		}
		data = data[n:]
		state = newState
	}
}

// put writes a printable grapheme at the cursor and advances it,
// wrapping at the right margin.
func (s *Screen) put(r rune, width int) {
	if s.cols == 0 || s.rows == 0 {
		return
	}
	if s.curX >= s.cols {
		s.curX = 0
		s.lineFeed()
	}
	cell := Cell{Rune: r, FG: s.fg, BG: s.bg, Attrs: s.attrs}
	s.cells[s.curY*s.cols+s.curX] = cell
	// A wide rune occupies a second cell; keep its styling so reverse
	// video does not leave a gap.
	if width > 1 && s.curX+1 < s.cols {
		spacer := cell
		spacer.Rune = ' '
		s.cells[s.curY*s.cols+s.curX+1] = spacer
	}
	s.curX += width
}

// lineFeed moves the cursor down one row, scrolling the grid up when it
// passes the bottom margin.
func (s *Screen) lineFeed() {
	s.curY++
	if s.curY >= s.rows {
		copy(s.cells, s.cells[s.cols:])
		last := s.cells[(s.rows-1)*s.cols:]
		for i := range last {
			last[i] = blank
		}
		s.curY = s.rows - 1
	}
}

// control handles a zero-width sequence: C0 control bytes and escape
// sequences.
func (s *Screen) control(seq []byte) {
	if len(seq) == 1 {
		switch seq[0] {
		case '\n':
			// tmux capture output separates rows with bare newlines;
			// treat LF as CR+LF.
			s.curX = 0
			s.lineFeed()
		case '\r':
			s.curX = 0
		case '\b':
			if s.curX > 0 {
				s.curX--
			}
		case '\t':
			s.curX = min((s.curX/8+1)*8, s.cols-1)
		}
		return
	}
	if len(seq) >= 3 && seq[0] == 0x1b && seq[1] == '[' {
		s.csi(seq[2:len(seq)-1], seq[len(seq)-1])
	}
	// OSC, DCS and other escape sequences carry no grid content here.
}

// csi dispatches a CSI sequence given its parameter body and final
// byte.
func (s *Screen) csi(body []byte, final byte) {
	if len(body) > 0 && (body[0] == '?' || body[0] == '>' || body[0] == '<') {
		// Private modes (cursor visibility, mouse tracking, ...) do not
		// affect cell content.
		return
	}
	params := parseParams(body)
	n := func(i, def int) int {
		if i < len(params) && params[i] > 0 {
			return params[i]
		}
		return def
	}

	switch final {
	case 'A':
		s.curY = max(s.curY-n(0, 1), 0)
	case 'B':
		s.curY = min(s.curY+n(0, 1), s.rows-1)
	case 'C':
		s.curX = min(s.curX+n(0, 1), s.cols-1)
	case 'D':
		s.curX = max(s.curX-n(0, 1), 0)
	case 'G':
		s.curX = clamp(n(0, 1)-1, 0, s.cols-1)
	case 'd':
		s.curY = clamp(n(0, 1)-1, 0, s.rows-1)
	case 'H', 'f':
		s.curY = clamp(n(0, 1)-1, 0, s.rows-1)
		s.curX = clamp(n(1, 1)-1, 0, s.cols-1)
	case 'J':
		s.eraseDisplay(firstParam(params))
	case 'K':
		s.eraseLine(firstParam(params))
	case 'm':
		s.sgr(params)
	}
}

// eraseDisplay implements ED: 0 erases cursor to end, 1 start to
// cursor, 2 and 3 the whole display.
func (s *Screen) eraseDisplay(mode int) {
	cur := s.curY*s.cols + s.curX
	switch mode {
	case 0:
		s.clearRange(cur, len(s.cells))
	case 1:
		s.clearRange(0, cur+1)
	case 2, 3:
		s.clearRange(0, len(s.cells))
	}
}

// eraseLine implements EL within the cursor row.
func (s *Screen) eraseLine(mode int) {
	row := s.curY * s.cols
	switch mode {
	case 0:
		s.clearRange(row+s.curX, row+s.cols)
	case 1:
		s.clearRange(row, row+s.curX+1)
	case 2:
		s.clearRange(row, row+s.cols)
	}
}

func (s *Screen) clearRange(from, to int) {
	from = clamp(from, 0, len(s.cells))
	to = clamp(to, 0, len(s.cells))
	for i := from; i < to; i++ {
		s.cells[i] = blank
	}
}

// sgr applies a Select Graphic Rendition parameter list to the current
// pen state.
func (s *Screen) sgr(params []int) {
	if len(params) == 0 {
		params = []int{0}
	}
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			s.fg, s.bg = ColorDefault, ColorDefault
			s.attrs = 0
		case p == 1:
			s.attrs |= AttrBold
		case p == 4:
			s.attrs |= AttrUnderline
		case p == 7:
			s.attrs |= AttrReverse
		case p == 22:
			s.attrs &^= AttrBold
		case p == 24:
			s.attrs &^= AttrUnderline
		case p == 27:
			s.attrs &^= AttrReverse
		case p >= 30 && p <= 37:
			s.fg = ansi16[p-30]
		case p == 38:
			var c Color
			c, i = extendedColor(params, i)
			if c != ColorDefault {
				s.fg = c
			}
		case p == 39:
			s.fg = ColorDefault
		case p >= 40 && p <= 47:
			s.bg = ansi16[p-40]
		case p == 48:
			var c Color
			c, i = extendedColor(params, i)
			if c != ColorDefault {
				s.bg = c
			}
		case p == 49:
			s.bg = ColorDefault
		case p >= 90 && p <= 97:
			s.fg = ansi16[p-90+8]
		case p >= 100 && p <= 107:
			s.bg = ansi16[p-100+8]
		}
	}
}

// extendedColor parses a 38/48 extended color introducer starting at
// index i and returns the color plus the index of the last consumed
// parameter.
func extendedColor(params []int, i int) (Color, int) {
	if i+1 >= len(params) {
		return ColorDefault, i
	}
	switch params[i+1] {
	case 5:
		if i+2 < len(params) {
			return Palette256(params[i+2]), i + 2
		}
		return ColorDefault, i + 1
	case 2:
		if i+4 < len(params) {
			r, g, b := params[i+2], params[i+3], params[i+4]
			return RGB(uint8(clamp(r, 0, 255)), uint8(clamp(g, 0, 255)), uint8(clamp(b, 0, 255))), i + 4
		}
		return ColorDefault, len(params) - 1
	}
	return ColorDefault, i + 1
}

// parseParams splits a CSI parameter body on ';' and ':' into integers.
// Empty parameters parse as zero, matching their terminal defaults.
func parseParams(body []byte) []int {
	if len(body) == 0 {
		return nil
	}
	params := make([]int, 0, 4)
	value := 0
	for _, b := range body {
		switch {
		case b >= '0' && b <= '9':
			value = value*10 + int(b-'0')
		case b == ';' || b == ':':
			params = append(params, value)
			value = 0
		default:
			// Intermediate bytes; ignore.
		}
	}
	return append(params, value)
}

func firstParam(params []int) int {
	if len(params) == 0 {
		return 0
	}
	return params[0]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
