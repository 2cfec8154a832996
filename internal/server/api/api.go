// Package api provides HTTP API handlers for the SpaceVision object detection service.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ayusman/spacevision/internal/app"
	"github.com/ayusman/spacevision/internal/detection"
)

// Pipeline is the part of the inference orchestrator the handlers use.
type Pipeline interface {
	RunBatch(ctx context.Context, req app.BatchRequest) (detection.Result, error)
	RunStream(ctx context.Context, dataURI, sessionID string) ([]detection.Detection, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps a pipeline error to an HTTP status: request problems are
// 400, everything else is 500.
func StatusFor(err error) int {
	if detection.IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
