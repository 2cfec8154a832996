package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/spacevision/internal/detection"
	"github.com/ayusman/spacevision/internal/results"
	"github.com/ayusman/spacevision/internal/store"
)

// UploadsPrefix is the URL prefix under which artifacts are served.
const UploadsPrefix = "/uploads/"

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
)

// Request and response types

type resultResponse struct {
	detection.Result
	OriginalImageURL  string `json:"original_image_url,omitempty"`
	AnnotatedImageURL string `json:"annotated_image_url,omitempty"`
	CriticalCount     int    `json:"critical_count"`
}

type listResultsResponse struct {
	Results []resultResponse `json:"results"`
}

type statsResponse struct {
	Total  int            `json:"total"`
	Labels map[string]int `json:"labels"`
}

type criticalResponse struct {
	CriticalObjects []string `json:"critical_objects"`
}

// toResultResponse adds artifact URLs to a result.
func toResultResponse(r detection.Result) resultResponse {
	resp := resultResponse{Result: r, CriticalCount: r.CriticalCount()}
	if resp.Detections == nil {
		resp.Detections = []detection.Detection{}
	}
	if r.OriginalImageRef != "" {
		resp.OriginalImageURL = UploadsPrefix + r.OriginalImageRef
	}
	if r.AnnotatedImageRef != "" {
		resp.AnnotatedImageURL = UploadsPrefix + r.AnnotatedImageRef
	}
	return resp
}

// ResultsHandler serves the in-memory results and the archive.
type ResultsHandler struct {
	results *results.Store
	archive *store.ResultRepository
	logger  *zap.Logger
}

// NewResultsHandler creates a new ResultsHandler. archive may be nil, in which
// case the archive endpoints answer 404.
func NewResultsHandler(rs *results.Store, archive *store.ResultRepository, logger *zap.Logger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsHandler{results: rs, archive: archive, logger: logger}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Expected paths: /api/results/{last,history,stats,archive,archive/{id}}
	path := strings.TrimPrefix(r.URL.Path, "/api/results")
	path = strings.Trim(path, "/")

	switch {
	case path == "last":
		h.last(w, r)
	case path == "history":
		h.history(w, r)
	case path == "stats":
		h.stats(w, r)
	case path == "archive":
		h.archiveList(w, r)
	case strings.HasPrefix(path, "archive/"):
		h.archiveGet(w, r, strings.TrimPrefix(path, "archive/"))
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// last handles GET /api/results/last and returns the session's most recent
// batch result.
func (h *ResultsHandler) last(w http.ResponseWriter, r *http.Request) {
	res, ok := h.results.Last(SessionID(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "No result for this session")
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

// history handles GET /api/results/history, most recent first.
func (h *ResultsHandler) history(w http.ResponseWriter, r *http.Request) {
	history := h.results.History()
	response := listResultsResponse{Results: make([]resultResponse, 0, len(history))}
	for _, res := range history {
		response.Results = append(response.Results, toResultResponse(res))
	}
	writeJSON(w, http.StatusOK, response)
}

// archiveList handles GET /api/results/archive?limit=N.
func (h *ResultsHandler) archiveList(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "Archive not configured")
		return
	}

	limit := defaultArchiveLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxArchiveLimit)
	}

	archived, err := h.archive.List(limit)
	if err != nil {
		h.logger.Error("failed to list archive", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}

	response := listResultsResponse{Results: make([]resultResponse, 0, len(archived))}
	for _, res := range archived {
		response.Results = append(response.Results, toResultResponse(*res))
	}
	writeJSON(w, http.StatusOK, response)
}

// archiveGet handles GET /api/results/archive/{id}.
func (h *ResultsHandler) archiveGet(w http.ResponseWriter, r *http.Request, id string) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "Archive not configured")
		return
	}

	res, err := h.archive.GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Result not found")
			return
		}
		h.logger.Error("failed to get archived result", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get result")
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(*res))
}

// stats handles GET /api/results/stats and reports archived detection
// counts per label.
func (h *ResultsHandler) stats(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "Archive not configured")
		return
	}

	total, err := h.archive.Count()
	if err != nil {
		h.logger.Error("failed to count archive", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read stats")
		return
	}
	labels, err := h.archive.LabelCounts()
	if err != nil {
		h.logger.Error("failed to count labels", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Total: total, Labels: labels})
}

// CriticalHandler serves the configured critical-object labels.
type CriticalHandler struct {
	critical detection.CriticalSet
}

// NewCriticalHandler creates a new CriticalHandler.
func NewCriticalHandler(critical detection.CriticalSet) *CriticalHandler {
	return &CriticalHandler{critical: critical}
}

// ServeHTTP implements the http.Handler interface.
func (h *CriticalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, criticalResponse{CriticalObjects: h.critical.List()})
}
