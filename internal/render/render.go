package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"github.com/louisbarrett/tmux-cast/internal/terminal"
)

// Style controls how a grid is rasterized.
type Style struct {
	// FontSize is the target glyph height in output pixels before
	// letterbox fitting.
	FontSize int
	// Padding is the margin around the grid in output pixels.
	Padding int
	// BG and FG are the default background and foreground colors for
	// cells that carry no explicit color.
	BG color.NRGBA
	FG color.NRGBA
}

// Renderer rasterizes grid snapshots into fixed-size RGBA frames.
// Render is a pure function of its inputs: the same grid and style
// always produce a byte-identical frame.
type Renderer struct {
	style        Style
	outW, outH   int
	regular      font.Face
	bold         font.Face
	cellW, cellH int
	ascent       int
}

// New returns a Renderer producing frames of the given output
// resolution.
func New(style Style, outW, outH int) *Renderer {
	regular := inconsolata.Regular8x16
	metrics := regular.Metrics()
	return &Renderer{
		style:   style,
		outW:    outW,
		outH:    outH,
		regular: regular,
		bold:    inconsolata.Bold8x16,
		cellW:   regular.Advance,
		cellH:   regular.Height,
		ascent:  metrics.Ascent.Ceil(),
	}
}

// Size returns the output frame dimensions.
func (r *Renderer) Size() (w, h int) {
	return r.outW, r.outH
}

// Render rasterizes a grid snapshot into an output-resolution frame.
// The grid is drawn at the bitmap font's native cell size, scaled to
// the configured font size, fit into the output resolution preserving
// aspect ratio, and centered over the background color. A zero-size
// grid yields a solid background frame so the pipeline never stalls
// waiting for first content.
func (r *Renderer) Render(g terminal.Grid) *image.NRGBA {
	if g.Cols == 0 || g.Rows == 0 {
		return imaging.New(r.outW, r.outH, r.style.BG)
	}

	native := r.drawGrid(g)

	// Scale from the native 8x16 cell to the configured font size,
	// then shrink further if the padded image overflows the output.
	scale := float64(r.style.FontSize) / float64(r.cellH)
	contentW := float64(native.Bounds().Dx()) * scale
	contentH := float64(native.Bounds().Dy()) * scale
	pad := float64(2 * r.style.Padding)
	fit := min(1.0, float64(r.outW)/(contentW+pad), float64(r.outH)/(contentH+pad))

	w := max(int(contentW*fit), 1)
	h := max(int(contentH*fit), 1)

	resized := imaging.Resize(native, w, h, imaging.Lanczos)
	canvas := imaging.New(r.outW, r.outH, r.style.BG)
	return imaging.PasteCenter(canvas, resized)
}

// drawGrid rasterizes the grid at the bitmap font's native cell size.
func (r *Renderer) drawGrid(g terminal.Grid) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Cols*r.cellW, g.Rows*r.cellH))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.style.BG), image.Point{}, draw.Src)

	drawer := font.Drawer{Dst: img}
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			cell := g.At(x, y)
			fg := r.resolve(cell.FG, r.style.FG)
			bg := r.resolve(cell.BG, r.style.BG)
			if cell.Attrs&terminal.AttrReverse != 0 {
				fg, bg = bg, fg
			}

			px, py := x*r.cellW, y*r.cellH
			cellRect := image.Rect(px, py, px+r.cellW, py+r.cellH)
			if bg != r.style.BG {
				draw.Draw(img, cellRect, image.NewUniform(bg), image.Point{}, draw.Src)
			}
			if cell.Rune != ' ' && cell.Rune != 0 {
				drawer.Src = image.NewUniform(fg)
				if cell.Attrs&terminal.AttrBold != 0 {
					drawer.Face = r.bold
				} else {
					drawer.Face = r.regular
				}
				drawer.Dot = fixed.P(px, py+r.ascent)
				drawer.DrawString(string(cell.Rune))
			}
			if cell.Attrs&terminal.AttrUnderline != 0 {
				line := image.Rect(px, py+r.cellH-2, px+r.cellW, py+r.cellH-1)
				draw.Draw(img, line, image.NewUniform(fg), image.Point{}, draw.Src)
			}
		}
	}

	// Cursor as an outline box, matching what tmux shows.
	if g.CursorX >= 0 && g.CursorX < g.Cols && g.CursorY >= 0 && g.CursorY < g.Rows {
		r.strokeRect(img, g.CursorX*r.cellW, g.CursorY*r.cellH, r.style.FG)
	}

	return img
}

// strokeRect draws a one-pixel cell outline at the given origin.
func (r *Renderer) strokeRect(img *image.NRGBA, px, py int, c color.NRGBA) {
	src := image.NewUniform(c)
	top := image.Rect(px, py, px+r.cellW, py+1)
	bottom := image.Rect(px, py+r.cellH-1, px+r.cellW, py+r.cellH)
	left := image.Rect(px, py, px+1, py+r.cellH)
	right := image.Rect(px+r.cellW-1, py, px+r.cellW, py+r.cellH)
	for _, rect := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(img, rect, src, image.Point{}, draw.Src)
	}
}

// resolve maps a cell color to a concrete NRGBA, substituting the
// default when the cell carries none.
func (r *Renderer) resolve(c terminal.Color, def color.NRGBA) color.NRGBA {
	if c == terminal.ColorDefault {
		return def
	}
	red, green, blue := c.Channels()
	return color.NRGBA{R: red, G: green, B: blue, A: 0xff}
}

// PackRGB flattens a frame into the packed 24-bit RGB layout ffmpeg's
// rawvideo demuxer expects. buf is reused when it has sufficient
// capacity.
func PackRGB(img *image.NRGBA, buf []byte) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	need := w * h * 3
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	buf = buf[:need]

	di := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			buf[di] = row[x*4]
			buf[di+1] = row[x*4+1]
			buf[di+2] = row[x*4+2]
			di += 3
		}
	}
	return buf
}

// ParseHexColor parses "#rrggbb" or "#rgb" into an opaque color.
func ParseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	hex := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}

	if len(s) == 0 || s[0] != '#' {
		return c, fmt.Errorf("invalid hex color %q", s)
	}
	switch len(s) {
	case 7:
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			hi, ok1 := hex(s[1+i*2])
			lo, ok2 := hex(s[2+i*2])
			if !ok1 || !ok2 {
				return c, fmt.Errorf("invalid hex color %q", s)
			}
			*dst = hi<<4 | lo
		}
	case 4:
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			v, ok := hex(s[1+i])
			if !ok {
				return c, fmt.Errorf("invalid hex color %q", s)
			}
			*dst = v<<4 | v
		}
	default:
		return c, fmt.Errorf("invalid hex color %q", s)
	}
	return c, nil
}
