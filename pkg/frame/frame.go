// Package frame paints the animated visual for one video frame.
package frame

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	arcCount     = 60
	arcSpan      = 0.06 // radians per arc
	arcWidth     = 3
	arcAlpha     = 0.85
	ringScale    = 0.35
	ringSpin     = 0.6
	ribbonPoints = 200
	ribbonWidth  = 2
	ribbonAlpha  = 0.9

	// TextWidthRatio is the wrap width as a fraction of the surface width.
	TextWidthRatio = 0.8
	// MaxTextLines caps the wrapped prompt.
	MaxTextLines = 4
)

var (
	gradientTop    = color.RGBA{R: 0x05, G: 0x06, B: 0x0a, A: 0xff}
	gradientBottom = color.RGBA{R: 0x0a, G: 0x17, B: 0x33, A: 0xff}
	textColor      = color.RGBA{R: 0xc8, G: 0xf4, B: 0xff, A: 0xff}
)

var (
	fontOnce sync.Once
	fontTTF  *truetype.Font
	fontErr  error
)

func regularFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = truetype.Parse(goregular.TTF)
	})
	return fontTTF, fontErr
}

// Painter draws frames for one capture session. It owns a font face and is
// not safe for concurrent use.
type Painter struct {
	width  int
	height int
	face   font.Face
}

// NewPainter creates a painter for width x height surfaces.
func NewPainter(width, height int) (*Painter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	f, err := regularFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	size := math.Max(12, float64(height)*0.045)
	return &Painter{
		width:  width,
		height: height,
		face:   truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingNone}),
	}, nil
}

// NewSurface allocates a blank surface of the painter's size.
func (p *Painter) NewSurface() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, p.width, p.height))
}

// Paint draws one frame. The output depends only on its arguments.
func (p *Painter) Paint(surface *image.RGBA, prompt string, palette color.Color, elapsed float64) {
	dc := gg.NewContextForRGBA(surface)
	w := float64(dc.Width())
	h := float64(dc.Height())
	r, g, b := unitRGB(palette)

	// Background.
	grad := gg.NewLinearGradient(0, 0, 0, h)
	grad.AddColorStop(0, gradientTop)
	grad.AddColorStop(1, gradientBottom)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	// Ring.
	cx, cy := w/2, h/2
	base := ringScale * math.Min(w, h)
	rotation := elapsed * ringSpin
	dc.SetRGBA(r, g, b, arcAlpha)
	dc.SetLineWidth(arcWidth)
	for i := 0; i < arcCount; i++ {
		angle := float64(i)/arcCount*2*math.Pi + rotation
		radius := base * (0.7 + 0.25*math.Sin(elapsed*2+float64(i)))
		dc.NewSubPath()
		dc.DrawArc(cx, cy, radius, angle, angle+arcSpan)
	}
	dc.Stroke()

	// Ribbon.
	dc.SetRGBA(r, g, b, ribbonAlpha)
	dc.SetLineWidth(ribbonWidth)
	for i := 0; i < ribbonPoints; i++ {
		x := float64(i) / (ribbonPoints - 1) * w
		y := h/2 +
			math.Sin(float64(i)*0.05+elapsed*1.5)*h*0.08 +
			math.Cos(float64(i)*0.02-elapsed)*h*0.05
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	// Prompt.
	dc.SetFontFace(p.face)
	dc.SetColor(textColor)
	measure := func(s string) float64 {
		width, _ := dc.MeasureString(s)
		return width
	}
	lines := Wrap(measure, prompt, w*TextWidthRatio, MaxTextLines)
	lineHeight := dc.FontHeight() * 1.3
	top := cy - lineHeight*float64(len(lines)-1)/2
	for i, line := range lines {
		dc.DrawStringAnchored(line, cx, top+float64(i)*lineHeight, 0.5, 0.5)
	}
}

func unitRGB(c color.Color) (r, g, b float64) {
	if c == nil {
		return 1, 1, 1
	}
	cr, cg, cb, ca := c.RGBA()
	if ca == 0 {
		return 0, 0, 0
	}
	// Undo premultiplication.
	return float64(cr) / float64(ca), float64(cg) / float64(ca), float64(cb) / float64(ca)
}
