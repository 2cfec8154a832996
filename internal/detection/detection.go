// Package detection defines the detection records and results shared by the
// SpaceVision inference pipeline.
package detection

import (
	"time"
)

// Mode identifies which pipeline produced a Result.
type Mode string

const (
	// ModeBatch is the upload-and-annotate flow.
	ModeBatch Mode = "batch"
	// ModeStream is the ephemeral webcam flow.
	ModeStream Mode = "stream"
)

// Box is an axis-aligned bounding box in pixel coordinates.
// A valid box has XMin < XMax and YMin < YMax.
type Box struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Valid reports whether the box has positive width and height.
func (b Box) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int { return b.XMax - b.XMin }

// Height returns the vertical extent of the box.
func (b Box) Height() int { return b.YMax - b.YMin }

// Detection is one normalized object found in a frame.
type Detection struct {
	ClassLabel string  `json:"class_label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	IsCritical bool    `json:"is_critical"`
}

// Result is the outcome of one inference call. It is built once by the
// pipeline and must not be modified afterwards.
type Result struct {
	ID                string      `json:"id"`
	SourceFilename    string      `json:"source_filename,omitempty"`
	OriginalImageRef  string      `json:"original_image_ref,omitempty"`
	AnnotatedImageRef string      `json:"annotated_image_ref,omitempty"`
	Width             int         `json:"width"`
	Height            int         `json:"height"`
	Detections        []Detection `json:"detections"`
	Mode              Mode        `json:"mode"`
	CreatedAt         time.Time   `json:"created_at"`
}

// CriticalCount returns how many detections are flagged critical.
func (r Result) CriticalCount() int {
	n := 0
	for _, d := range r.Detections {
		if d.IsCritical {
			n++
		}
	}
	return n
}
