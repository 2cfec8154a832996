package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/spacevision/internal/server/api"
)

const (
	// maxFrameMessage bounds one inbound frame message.
	maxFrameMessage = 8 << 20
	writeWait       = 10 * time.Second
)


// StreamHandler runs webcam frames received over a WebSocket through the
// stream pipeline. Each text message is a {"image": "<data uri>"} object and
// gets exactly one reply in the /api/detect envelope. Errors are replied as
// envelopes and the connection stays open.
type StreamHandler struct {
	pipeline api.Pipeline
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler with the given pipeline.
// A non-empty origins list restricts which browser pages may connect, the
// same list the HTTP routes use for CORS.
func NewStreamHandler(p api.Pipeline, origins []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		pipeline: p,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(origins)},
		logger:   logger,
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool {
			return true // Allow local connections
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Not a browser
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameMessage)

	ctx := r.Context()
	session := api.SessionID(ctx)
	logger := h.logger.With(zap.String("session_id", session))
	logger.Debug("stream connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("stream closed unexpectedly", zap.Error(err))
			}
			break
		}

		var resp api.DetectResponse
		var req api.DetectRequest
		switch {
		case msgType != websocket.TextMessage:
			resp = api.DetectResponse{Error: "expected a text message"}
		case json.Unmarshal(data, &req) != nil:
			resp = api.DetectResponse{Error: "Invalid JSON body"}
		case req.Image == "":
			resp = api.DetectResponse{Error: "No image data"}
		default:
			var status int
			resp, status = api.Detect(ctx, h.pipeline, req)
			if status >= http.StatusInternalServerError {
				logger.Error("frame detection failed", zap.String("error", resp.Error))
			}
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("failed to send detections", zap.Error(err))
			break
		}
	}

	logger.Debug("stream disconnected")
}
