// Package detector wraps external object-detection models and normalizes
// their raw output into detection records.
package detector

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/ayusman/spacevision/internal/detection"
)

// Model is the external black-box detector.
type Model interface {
	// Predict runs the model once on a BGR frame and returns its raw output
	// in model order. Returns an empty slice if nothing was found.
	Predict(ctx context.Context, frame *gocv.Mat) ([]RawDetection, error)

	// Close releases any resources held by the model.
	Close() error
}

// RawDetection is one unfiltered model output entry. Coordinates are in the
// pixel space of the frame passed to Predict.
type RawDetection struct {
	ClassID int
	// Label is set by models that name classes themselves; it takes
	// precedence over the label table.
	Label  string
	Score  float64
	X1, Y1 float64
	X2, Y2 float64
}

// Config holds options for the Adapter.
type Config struct {
	// Threshold is the minimum confidence (0.0-1.0) a raw detection needs to
	// become a record.
	Threshold float64

	// Labels maps class ids to human-readable labels.
	Labels []string

	// Critical is the set of labels flagged for distinct treatment.
	Critical detection.CriticalSet
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		Labels:    COCOLabels(),
		Critical:  detection.NewCriticalSet(detection.DefaultCriticalObjects...),
	}
}
