package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"glance/recognizer"
	"glance/region"
)

// Overlay palette, matching the reference UI.
var (
	borderColor    = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff} // blue
	labelBoxColor  = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}
	labelTextColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	// result box: ~70% black fill, green text
	resultBoxColor = color.RGBA{A: 0xb3}
	resultTxtColor = color.RGBA{R: 0x10, G: 0xb9, B: 0x81, A: 0xff}

	draftColor = color.RGBA{R: 0xfa, G: 0xcc, B: 0x15, A: 0xff} // yellow
)

const (
	borderWidth     = 4
	labelWidth      = 80
	labelHeight     = 24
	resultBoxH      = 30
	resultBoxMaxW   = 300
	resultTailRunes = 30
	draftLineWidth  = 2
	draftDashOn     = 6
	draftDashOff    = 6
)

func fillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, width int) {
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// dashedRect strokes r with an on/off dash pattern to mark a rectangle
// that is not committed yet.
func dashedRect(dst *image.RGBA, r image.Rectangle, c color.Color, width, on, off int) {
	period := on + off
	for x := r.Min.X; x < r.Max.X; x++ {
		if (x-r.Min.X)%period < on {
			fillRect(dst, image.Rect(x, r.Min.Y, x+1, r.Min.Y+width), c)
			fillRect(dst, image.Rect(x, r.Max.Y-width, x+1, r.Max.Y), c)
		}
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		if (y-r.Min.Y)%period < on {
			fillRect(dst, image.Rect(r.Min.X, y, r.Min.X+width, y+1), c)
			fillRect(dst, image.Rect(r.Max.X-width, y, r.Max.X, y+1), c)
		}
	}
}

func drawString(dst *image.RGBA, x, y int, s string, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// tail returns at most n trailing runes of s; older content scrolls out of
// view as the text grows.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func drawRegion(dst *image.RGBA, r region.Region, res recognizer.Result, hasResult bool) {
	rect := r.Rect()
	strokeRect(dst, rect, borderColor, borderWidth)

	// Index label anchored at the top-left corner, clamped inside the
	// frame when the region touches the top edge.
	labelY := rect.Min.Y - labelHeight
	if labelY < dst.Bounds().Min.Y {
		labelY = rect.Min.Y
	}
	labelRect := image.Rect(rect.Min.X, labelY, rect.Min.X+labelWidth, labelY+labelHeight)
	fillRect(dst, labelRect, labelBoxColor)
	drawString(dst, rect.Min.X+8, labelY+labelHeight-7, fmt.Sprintf("Region %d", r.Index), labelTextColor)

	if !hasResult || res.Text == "" {
		return
	}
	boxW := min(r.Width, resultBoxMaxW)
	boxRect := image.Rect(rect.Min.X, rect.Max.Y, rect.Min.X+boxW, rect.Max.Y+resultBoxH)
	fillRect(dst, boxRect, resultBoxColor)
	drawString(dst, rect.Min.X+5, rect.Max.Y+20, tail(res.Text, resultTailRunes), resultTxtColor)
}

func drawDraft(dst *image.RGBA, d region.Draft) {
	rect := image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
	dashedRect(dst, rect, draftColor, draftLineWidth, draftDashOn, draftDashOff)
}
