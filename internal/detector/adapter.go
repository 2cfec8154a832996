package detector

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/spacevision/internal/detection"
)

// Adapter invokes a Model and turns its raw output into detection records.
// It holds no mutable state of its own and is safe for concurrent use as long
// as the Model is.
type Adapter struct {
	model     Model
	threshold float64
	labels    []string
	critical  detection.CriticalSet
	logger    *zap.Logger
}

// NewAdapter creates an Adapter around model.
func NewAdapter(model Model, config Config, logger *zap.Logger) (*Adapter, error) {
	if model == nil {
		return nil, fmt.Errorf("detector model is nil")
	}
	if config.Threshold < 0 || config.Threshold > 1 || math.IsNaN(config.Threshold) {
		return nil, fmt.Errorf("confidence threshold %v outside [0,1]", config.Threshold)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		model:     model,
		threshold: config.Threshold,
		labels:    config.Labels,
		critical:  config.Critical,
		logger:    logger,
	}, nil
}

// Threshold returns the configured confidence threshold.
func (a *Adapter) Threshold() float64 {
	return a.threshold
}

// Critical returns the critical-object set used to flag records.
func (a *Adapter) Critical() detection.CriticalSet {
	return a.critical
}

// Close closes the underlying model.
func (a *Adapter) Close() error {
	return a.model.Close()
}

// Infer runs the model once on frame and returns the normalized records in
// model order.
//
// Raw entries below the threshold are discarded. Boxes are clamped to the
// frame so small numerical overshoot from the model is tolerated; a box that
// has no area left after clamping is dropped. Non-finite values, scores
// outside [0,1] and unknown class ids make the whole call fail with
// detection.ErrInference.
func (a *Adapter) Infer(ctx context.Context, frame *gocv.Mat) ([]detection.Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", detection.ErrInference)
	}

	raw, err := a.model.Predict(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrInference, err)
	}

	width, height := frame.Cols(), frame.Rows()
	records := make([]detection.Detection, 0, len(raw))

	for i, r := range raw {
		if err := validateRaw(r); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", detection.ErrInference, i, err)
		}
		if r.Score < a.threshold {
			continue
		}

		label, err := a.label(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", detection.ErrInference, i, err)
		}

		box, ok := clampBox(r, width, height)
		if !ok {
			a.logger.Debug("dropping detection with empty box after clamping",
				zap.String("label", label),
				zap.Float64("score", r.Score),
				zap.Float64s("raw_box", []float64{r.X1, r.Y1, r.X2, r.Y2}),
			)
			continue
		}

		records = append(records, detection.Detection{
			ClassLabel: label,
			Confidence: r.Score,
			Box:        box,
			IsCritical: a.critical.Contains(label),
		})
	}

	return records, nil
}

// label resolves the human-readable label for r.
func (a *Adapter) label(r RawDetection) (string, error) {
	if r.Label != "" {
		return r.Label, nil
	}
	if r.ClassID < 0 || r.ClassID >= len(a.labels) {
		return "", fmt.Errorf("class id %d not in label table of %d entries", r.ClassID, len(a.labels))
	}
	return a.labels[r.ClassID], nil
}

func validateRaw(r RawDetection) error {
	for _, v := range []float64{r.Score, r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value in model output")
		}
	}
	if r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("score %v outside [0,1]", r.Score)
	}
	return nil
}

// clampBox orders the corners, clamps them to the frame and rounds to whole
// pixels. It reports false when the result has no area.
func clampBox(r RawDetection, width, height int) (detection.Box, bool) {
	x1, x2 := math.Min(r.X1, r.X2), math.Max(r.X1, r.X2)
	y1, y2 := math.Min(r.Y1, r.Y2), math.Max(r.Y1, r.Y2)

	box := detection.Box{
		XMin: clamp(x1, width),
		YMin: clamp(y1, height),
		XMax: clamp(x2, width),
		YMax: clamp(y2, height),
	}
	return box, box.Valid()
}

func clamp(v float64, limit int) int {
	return int(math.Round(math.Max(0, math.Min(v, float64(limit)))))
}
