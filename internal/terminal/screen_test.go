package terminal

import (
	"strings"
	"testing"
)

func TestApplyPlainText(t *testing.T) {
	s := NewScreen(10, 3)
	s.Apply([]byte("hello\nworld"))

	got := s.Snapshot().String()
	want := "hello     \nworld     \n          "
	if got != want {
		t.Errorf("grid mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestApplyCursorMovement(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "absolute position",
			input: "\x1b[2;3Hab",
			want:  "     \n  ab \n     ",
		},
		{
			name:  "carriage return overwrites",
			input: "abcde\rXY",
			want:  "XYcde\n     \n     ",
		},
		{
			name:  "backspace",
			input: "ab\bc",
			want:  "ac   \n     \n     ",
		},
		{
			name:  "column select",
			input: "abc\x1b[2GZ",
			want:  "aZc  \n     \n     ",
		},
		{
			name:  "cursor up rewrites previous row",
			input: "one\ntwo\x1b[A\rX",
			want:  "Xne  \ntwo  \n     ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScreen(5, 3)
			s.Apply([]byte(tt.input))
			if got := s.Snapshot().String(); got != tt.want {
				t.Errorf("got:\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestApplyWrapAndScroll(t *testing.T) {
	s := NewScreen(3, 2)
	s.Apply([]byte("abcdef\nghi"))

	// "abc" wraps to "def", then LF scrolls "abc" off the top.
	got := s.Snapshot().String()
	want := "def\nghi"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyEraseDisplay(t *testing.T) {
	s := NewScreen(4, 2)
	s.Apply([]byte("aaaa\nbbbb\x1b[H\x1b[J"))

	if got := strings.TrimRight(s.Snapshot().String(), " \n"); got != "" {
		t.Errorf("display not erased, got %q", got)
	}
}

func TestApplyEraseLineModes(t *testing.T) {
	s := NewScreen(5, 1)
	s.Apply([]byte("abcde\x1b[3G\x1b[1K"))

	// Mode 1 erases start of line through the cursor inclusive.
	got := s.Snapshot().String()
	want := "   de"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplySGRColors(t *testing.T) {
	s := NewScreen(4, 1)
	s.Apply([]byte("\x1b[31mr\x1b[48;5;21mb\x1b[38;2;1;2;3mt\x1b[0mn"))

	grid := s.Snapshot()

	if got := grid.At(0, 0).FG; got != ansi16[1] {
		t.Errorf("cell 0 FG = %#x, want red %#x", got, ansi16[1])
	}
	if got := grid.At(1, 0).BG; got != Palette256(21) {
		t.Errorf("cell 1 BG = %#x, want palette 21 %#x", got, Palette256(21))
	}
	if got := grid.At(2, 0).FG; got != RGB(1, 2, 3) {
		t.Errorf("cell 2 FG = %#x, want truecolor %#x", got, RGB(1, 2, 3))
	}
	last := grid.At(3, 0)
	if last.FG != ColorDefault || last.BG != ColorDefault {
		t.Errorf("cell 3 after reset = %+v, want default colors", last)
	}
}

func TestApplySGRAttributes(t *testing.T) {
	s := NewScreen(3, 1)
	s.Apply([]byte("\x1b[1;4mx\x1b[22my\x1b[7mz"))

	grid := s.Snapshot()
	if got := grid.At(0, 0).Attrs; got != AttrBold|AttrUnderline {
		t.Errorf("cell 0 attrs = %b, want bold|underline", got)
	}
	if got := grid.At(1, 0).Attrs; got != AttrUnderline {
		t.Errorf("cell 1 attrs = %b, want underline only", got)
	}
	if got := grid.At(2, 0).Attrs; got != AttrUnderline|AttrReverse {
		t.Errorf("cell 2 attrs = %b, want underline|reverse", got)
	}
}

func TestApplyIgnoresUnknownSequences(t *testing.T) {
	s := NewScreen(5, 2)
	// Private mode set, OSC title, and an unsupported CSI final byte
	// must all be ignored without corrupting the grid.
	s.Apply([]byte("\x1b[?25lab\x1b]0;title\x07cd\x1b[5ne"))

	got := s.Snapshot().String()
	want := "abcde\n     "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyWideRune(t *testing.T) {
	s := NewScreen(5, 1)
	s.Apply([]byte("\x1b[7m世x"))

	grid := s.Snapshot()
	if got := grid.At(0, 0).Rune; got != '世' {
		t.Errorf("cell 0 rune = %q", got)
	}
	// The spacer cell keeps the wide rune's styling.
	if got := grid.At(1, 0); got.Rune != ' ' || got.Attrs&AttrReverse == 0 {
		t.Errorf("spacer cell = %+v, want styled blank", got)
	}
	if got := grid.At(2, 0).Rune; got != 'x' {
		t.Errorf("cell 2 rune = %q, want x", got)
	}
}

func TestApplyZeroSizeScreen(t *testing.T) {
	s := NewScreen(0, 0)
	// Must not panic.
	s.Apply([]byte("abc\x1b[2Jdef\tx"))

	if grid := s.Snapshot(); grid.Cols != 0 || grid.Rows != 0 {
		t.Errorf("zero screen grew to %dx%d", grid.Cols, grid.Rows)
	}
}

func TestResizeClears(t *testing.T) {
	s := NewScreen(4, 2)
	s.Apply([]byte("abcd"))
	s.Resize(6, 3)

	if cols, rows := s.Size(); cols != 6 || rows != 3 {
		t.Fatalf("size = %dx%d, want 6x3", cols, rows)
	}
	if got := strings.TrimSpace(s.Snapshot().String()); got != "" {
		t.Errorf("resize kept content %q", got)
	}
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	s := NewScreen(3, 1)
	s.Apply([]byte("abc"))
	grid := s.Snapshot()

	s.Reset()
	s.Apply([]byte("xyz"))

	if got := grid.String(); got != "abc" {
		t.Errorf("snapshot mutated by later Apply: %q", got)
	}
}

func TestGridAtOutOfRange(t *testing.T) {
	g := Grid{Cols: 2, Rows: 2, Cells: make([]Cell, 4)}
	if got := g.At(-1, 5); got.FG != ColorDefault || got.Rune != ' ' {
		t.Errorf("out of range cell = %+v, want blank", got)
	}
}

func TestPalette256(t *testing.T) {
	if got := Palette256(1); got != ansi16[1] {
		t.Errorf("palette 1 = %#x, want ansi red", got)
	}
	// Color cube entry 16 is black, 231 is white.
	if got := Palette256(16); got != RGB(0, 0, 0) {
		t.Errorf("palette 16 = %#x, want black", got)
	}
	if got := Palette256(231); got != RGB(255, 255, 255) {
		t.Errorf("palette 231 = %#x, want white", got)
	}
	// Grayscale ramp: entry 232 is 8,8,8.
	if got := Palette256(232); got != RGB(8, 8, 8) {
		t.Errorf("palette 232 = %#x, want 8,8,8", got)
	}
	if got := Palette256(999); got != ColorDefault {
		t.Errorf("out of range palette index = %#x, want default", got)
	}
}
