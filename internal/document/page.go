package document

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const pointsPerInch = 72.0

// TextPage is a page whose content is known text laid out in lines.
type TextPage struct {
	Lines  []string
	Layout Layout
}

// NewTextPage creates a page from lines under layout l.
func NewTextPage(l Layout, lines ...string) *TextPage {
	return &TextPage{Lines: lines, Layout: l}
}

func (p *TextPage) Text(ctx context.Context) (string, error) {
	return strings.Join(p.Lines, "\n"), ctx.Err()
}

// Render draws the lines in black on a white page, one point per pixel,
// then scales the canvas to the requested resolution.
func (p *TextPage) Render(ctx context.Context, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := p.Layout
	base := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(l.Width)), int(math.Ceil(l.Height))))
	draw.Draw(base, base.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: base, Src: image.NewUniform(color.Black), Face: face}
	y := l.Margin + float64(face.Ascent)
	for _, line := range p.Lines {
		// Tabs and embedded newlines have no glyph in the face.
		line = strings.NewReplacer("\t", "    ", "\r", " ", "\n", " ").Replace(line)
		d.Dot = fixed.P(int(l.Margin), int(y))
		d.DrawString(line)
		y += l.LineHeight
	}

	return scale(base, dpi), nil
}

// ImagePage is a page that only exists as pixels.
type ImagePage struct {
	Image image.Image
}

// NewImagePage wraps an already-decoded image.
func NewImagePage(img image.Image) *ImagePage {
	return &ImagePage{Image: img}
}

func (p *ImagePage) Text(ctx context.Context) (string, error) {
	return "", ctx.Err()
}

// Render returns the image as is; its resolution is fixed by the source.
func (p *ImagePage) Render(ctx context.Context, _ float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Image, nil
}

func scale(src *image.RGBA, dpi float64) image.Image {
	if dpi <= 0 || dpi == pointsPerInch {
		return src
	}
	f := dpi / pointsPerInch
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, int(math.Round(float64(b.Dx())*f)), int(math.Round(float64(b.Dy())*f))))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
