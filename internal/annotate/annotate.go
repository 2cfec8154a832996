// Package annotate burns detection boxes and labels into frames for the
// upload flow.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/spacevision/internal/detection"
)

// Style controls how detections are drawn.
type Style struct {
	NormalColor       color.RGBA
	CriticalColor     color.RGBA
	TextColor         color.RGBA
	Thickness         int
	CriticalThickness int
	FontScale         float64
}

// DefaultStyle draws ordinary detections in green and critical ones in a
// thicker red, matching the webcam overlay.
func DefaultStyle() Style {
	return Style{
		NormalColor:       color.RGBA{R: 0, G: 200, B: 0, A: 255},
		CriticalColor:     color.RGBA{R: 230, G: 0, B: 0, A: 255},
		TextColor:         color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Thickness:         2,
		CriticalThickness: 3,
		FontScale:         0.5,
	}
}

// Annotator draws detections onto frames.
type Annotator struct {
	style Style
}

// New creates an Annotator with the given style.
func New(style Style) *Annotator {
	if style.Thickness <= 0 {
		style.Thickness = 1
	}
	if style.CriticalThickness <= 0 {
		style.CriticalThickness = style.Thickness
	}
	if style.FontScale <= 0 {
		style.FontScale = 0.5
	}
	return &Annotator{style: style}
}

// Annotate returns a copy of frame with one rectangle and one text label per
// detection. The input frame is not modified; the caller must Close the
// returned Mat.
func (a *Annotator) Annotate(frame gocv.Mat, detections []detection.Detection) gocv.Mat {
	out := frame.Clone()
	bounds := image.Rect(0, 0, out.Cols(), out.Rows())

	for _, d := range detections {
		c, thickness := a.style.NormalColor, a.style.Thickness
		if d.IsCritical {
			c, thickness = a.style.CriticalColor, a.style.CriticalThickness
		}

		box := image.Rect(d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
		gocv.Rectangle(&out, box, c, thickness)

		a.drawLabel(&out, bounds, box, Label(d), c)
	}

	return out
}

// drawLabel places a filled caption above the box, or just inside its top
// edge when there is no room above.
func (a *Annotator) drawLabel(img *gocv.Mat, bounds, box image.Rectangle, text string, bg color.RGBA) {
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, a.style.FontScale, 1)
	const pad = 3

	top := box.Min.Y - size.Y - 2*pad
	if top < 0 {
		top = box.Min.Y
	}
	caption := image.Rect(box.Min.X, top, box.Min.X+size.X+2*pad, top+size.Y+2*pad).Intersect(bounds)
	if caption.Empty() {
		return
	}

	gocv.Rectangle(img, caption, bg, -1)
	gocv.PutText(img, text, image.Pt(caption.Min.X+pad, caption.Max.Y-pad),
		gocv.FontHersheySimplex, a.style.FontScale, a.style.TextColor, 1)
}

// Label formats the caption drawn for a detection.
func Label(d detection.Detection) string {
	return fmt.Sprintf("%s %.2f", d.ClassLabel, d.Confidence)
}
