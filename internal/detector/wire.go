package detector

import (
	"bytes"
	"fmt"

	"gocv.io/x/gocv"
)

// wireDetection is the JSON shape produced by the Python inference workers,
// both the subprocess and the HTTP service.
type wireDetection struct {
	ClassID int       `json:"class_id"`
	Label   string    `json:"label"`
	Score   float64   `json:"score"`
	Box     []float64 `json:"box"` // x1, y1, x2, y2 in pixels
}

type wireResponse struct {
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error,omitempty"`
}

func (w wireDetection) toRaw() (RawDetection, error) {
	if len(w.Box) != 4 {
		return RawDetection{}, fmt.Errorf("box has %d coordinates, want 4", len(w.Box))
	}
	return RawDetection{
		ClassID: w.ClassID,
		Label:   w.Label,
		Score:   w.Score,
		X1:      w.Box[0],
		Y1:      w.Box[1],
		X2:      w.Box[2],
		Y2:      w.Box[3],
	}, nil
}

// toRaw converts a worker response, failing on the first malformed entry.
func (r wireResponse) toRaw() ([]RawDetection, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("worker error: %s", r.Error)
	}
	out := make([]RawDetection, 0, len(r.Detections))
	for i, d := range r.Detections {
		raw, err := d.toRaw()
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// encodeJPEG encodes a frame for transfer to an out-of-process worker.
func encodeJPEG(frame *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
