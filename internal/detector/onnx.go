package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXConfig holds options for ONNXModel.
type ONNXConfig struct {
	// ModelPath is a YOLOv8-style ONNX export with output [1, 4+classes, anchors].
	ModelPath string
	// InputSize is the square network input size (default 640).
	InputSize int
	// ScoreThreshold pre-filters candidates before NMS. It should not exceed
	// the Adapter threshold.
	ScoreThreshold float32
	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float32
}

// ONNXModel implements Model with OpenCV's DNN module. The network handle is
// not safe for concurrent use, so predictions are serialised.
type ONNXModel struct {
	config ONNXConfig
	net    gocv.Net
	mu     sync.Mutex
}

// NewONNXModel loads the network from config.ModelPath.
func NewONNXModel(config ONNXConfig) (*ONNXModel, error) {
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}
	if config.InputSize <= 0 {
		config.InputSize = 640
	}
	if config.NMSThreshold <= 0 {
		config.NMSThreshold = 0.45
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("onnx model %s could not be loaded", config.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ONNXModel{config: config, net: net}, nil
}

// Predict runs one forward pass and decodes the YOLOv8 output tensor.
func (m *ONNXModel) Predict(ctx context.Context, frame *gocv.Mat) ([]RawDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := m.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	attrs, anchors := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}
	if len(data) < attrs*anchors {
		return nil, fmt.Errorf("output tensor has %d values, want %d", len(data), attrs*anchors)
	}

	xScale := float64(frame.Cols()) / float64(size)
	yScale := float64(frame.Rows()) / float64(size)

	var (
		candidates []RawDetection
		rects      []image.Rectangle
		scores     []float32
	)

	// Layout is attribute-major: data[attr*anchors + anchor].
	for i := 0; i < anchors; i++ {
		classID, best := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				classID, best = c-4, s
			}
		}
		if classID < 0 || best < m.config.ScoreThreshold {
			continue
		}

		cx := float64(data[0*anchors+i])
		cy := float64(data[1*anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		raw := RawDetection{
			ClassID: classID,
			Score:   float64(best),
			X1:      (cx - w/2) * xScale,
			Y1:      (cy - h/2) * yScale,
			X2:      (cx + w/2) * xScale,
			Y2:      (cy + h/2) * yScale,
		}
		candidates = append(candidates, raw)
		rects = append(rects, image.Rect(int(raw.X1), int(raw.Y1), int(raw.X2), int(raw.Y2)))
		scores = append(scores, best)
	}

	if len(candidates) == 0 {
		return []RawDetection{}, nil
	}

	keep := gocv.NMSBoxes(rects, scores, m.config.ScoreThreshold, m.config.NMSThreshold)
	out := make([]RawDetection, 0, len(keep))
	for _, idx := range keep {
		if idx >= 0 && idx < len(candidates) {
			out = append(out, candidates[idx])
		}
	}
	return out, nil
}

// Close releases the network.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
