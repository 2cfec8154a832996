package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/spacevision/internal/detection"
)

// maxFrameBytes bounds a single webcam frame request body.
const maxFrameBytes = 8 << 20

// DetectRequest is one webcam frame.
type DetectRequest struct {
	Image string `json:"image"`
}

// DetectResponse echoes the frame back with its detections, or carries an
// error message.
type DetectResponse struct {
	ResultImg  string                `json:"result_img"`
	Detections []detection.Detection `json:"detections"`
	Error      string                `json:"error"`
}

// Detect runs the stream pipeline on req and shapes the response envelope.
// It returns the HTTP status matching the outcome.
func Detect(ctx context.Context, p Pipeline, req DetectRequest) (DetectResponse, int) {
	dets, err := p.RunStream(ctx, req.Image, SessionID(ctx))
	if err != nil {
		return DetectResponse{Error: err.Error()}, StatusFor(err)
	}
	if dets == nil {
		dets = []detection.Detection{}
	}
	return DetectResponse{ResultImg: req.Image, Detections: dets}, http.StatusOK
}

// MarshalJSON emits only {"error"} on failure and always includes the
// detections array on success.
func (r DetectResponse) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(errorResponse{Error: r.Error})
	}
	dets := r.Detections
	if dets == nil {
		dets = []detection.Detection{}
	}
	return json.Marshal(struct {
		ResultImg  string                `json:"result_img"`
		Detections []detection.Detection `json:"detections"`
	}{r.ResultImg, dets})
}

// DetectHandler handles POST requests carrying a single webcam frame.
type DetectHandler struct {
	pipeline Pipeline
	logger   *zap.Logger
}

// NewDetectHandler creates a new DetectHandler.
func NewDetectHandler(p Pipeline, logger *zap.Logger) *DetectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectHandler{pipeline: p, logger: logger}
}

// ServeHTTP implements the http.Handler interface.
func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "No image data")
		return
	}

	resp, status := Detect(r.Context(), h.pipeline, req)
	if status >= http.StatusInternalServerError {
		h.logger.Error("frame detection failed", zap.String("error", resp.Error))
	}
	writeJSON(w, status, resp)
}
