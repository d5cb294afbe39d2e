// Package annotate draws detection boxes over an image.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const strokeWidth = 3

var (
	boxColor   = color.RGBA{R: 0xff, A: 0xff}
	labelColor = color.White
)

// Box is a rectangle in source image pixels.
type Box struct {
	Left, Top, Width, Height int
	// Label defaults to "#n", n counting from 1.
	Label string
}

// Draw decodes img, shrinks it to maxWidth when wider (0 keeps the size),
// outlines every box and returns the result as PNG.
func Draw(img []byte, boxes []Box, maxWidth int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	scale := 1.0
	if w := src.Bounds().Dx(); maxWidth > 0 && w > maxWidth {
		scale = float64(maxWidth) / float64(w)
		src = resize.Resize(uint(maxWidth), 0, src, resize.Lanczos3)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	for i, b := range boxes {
		rect := image.Rect(
			int(float64(b.Left)*scale),
			int(float64(b.Top)*scale),
			int(float64(b.Left+b.Width)*scale),
			int(float64(b.Top+b.Height)*scale),
		).Intersect(canvas.Bounds())
		if rect.Empty() {
			continue
		}
		outline(canvas, rect)
		label := b.Label
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		caption(canvas, rect, label)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func outline(dst *image.RGBA, r image.Rectangle) {
	fill := image.NewUniform(boxColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), fill, image.Point{}, draw.Src)
	}
}

// caption writes label on a filled strip above r, or inside it when r
// touches the top edge.
func caption(dst *image.RGBA, r image.Rectangle, label string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, label).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := r.Min.Y - height
	if top < 0 {
		top = r.Min.Y
	}
	strip := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, strip, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(strip.Min.X+2, strip.Min.Y+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(label)
}
