package terminal

// ansi16 is the classic xterm palette for SGR 30-37/90-97 and their
// background counterparts.
var ansi16 = [16]Color{
	RGB(0x00, 0x00, 0x00), // black
	RGB(0xcd, 0x00, 0x00), // red
	RGB(0x00, 0xcd, 0x00), // green
	RGB(0xcd, 0xcd, 0x00), // yellow
	RGB(0x00, 0x00, 0xee), // blue
	RGB(0xcd, 0x00, 0xcd), // magenta
	RGB(0x00, 0xcd, 0xcd), // cyan
	RGB(0xe5, 0xe5, 0xe5), // white
	RGB(0x7f, 0x7f, 0x7f), // bright black
	RGB(0xff, 0x00, 0x00), // bright red
	RGB(0x00, 0xff, 0x00), // bright green
	RGB(0xff, 0xff, 0x00), // bright yellow
	RGB(0x5c, 0x5c, 0xff), // bright blue
	RGB(0xff, 0x00, 0xff), // bright magenta
	RGB(0x00, 0xff, 0xff), // bright cyan
	RGB(0xff, 0xff, 0xff), // bright white
}

// cubeLevels are the channel values of the xterm 6x6x6 color cube.
var cubeLevels = [6]uint8{0x00, 0x5f, 0x87, 0xaf, 0xd7, 0xff}

// Palette256 resolves an xterm 256-color index to its RGB value.
// Out-of-range indexes resolve to the default color.
func Palette256(n int) Color {
	switch {
	case n < 0 || n > 255:
		return ColorDefault
	case n < 16:
		return ansi16[n]
	case n < 232:
		n -= 16
		r := cubeLevels[n/36]
		g := cubeLevels[(n/6)%6]
		b := cubeLevels[n%6]
		return RGB(r, g, b)
	default:
		v := uint8(8 + 10*(n-232))
		return RGB(v, v, v)
	}
}
