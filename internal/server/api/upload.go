package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/spacevision/internal/app"
	"github.com/ayusman/spacevision/internal/detection"
)

// UploadFormPath is where browsers are sent back when they submit the upload
// form without a file.
const UploadFormPath = "/upload.html"

// UploadHandler handles multipart image uploads for the batch pipeline.
type UploadHandler struct {
	pipeline Pipeline
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadHandler creates a new UploadHandler. Request bodies larger than
// maxBytes are rejected.
func NewUploadHandler(p Pipeline, maxBytes int64, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &UploadHandler{pipeline: p, maxBytes: maxBytes, logger: logger}
}

// ServeHTTP implements the http.Handler interface.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
			return
		}
		// A plain form post carries no file either.
		if errors.Is(err, http.ErrNotMultipart) {
			http.Redirect(w, r, UploadFormPath, http.StatusSeeOther)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			http.Redirect(w, r, UploadFormPath, http.StatusSeeOther)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid image field")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		http.Redirect(w, r, UploadFormPath, http.StatusSeeOther)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	res, err := h.pipeline.RunBatch(r.Context(), app.BatchRequest{
		Data:      data,
		Filename:  header.Filename,
		SessionID: SessionID(r.Context()),
	})
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusBadRequest {
			writeError(w, status, err.Error())
			return
		}
		h.logger.Error("upload detection failed",
			zap.String("filename", header.Filename),
			zap.String("kind", detection.KindOf(err)),
			zap.Error(err))
		writeError(w, status, "Detection failed")
		return
	}

	writeJSON(w, http.StatusCreated, toResultResponse(res))
}
