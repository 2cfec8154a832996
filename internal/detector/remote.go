package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// RemoteModel implements Model by posting frames to an HTTP inference
// service. The service receives a multipart "file" field holding a JPEG and
// answers with {"detections": [...]}.
type RemoteModel struct {
	inferenceURL string
	client       *http.Client
}

// NewRemoteModel creates a RemoteModel for the given predict URL.
func NewRemoteModel(inferenceURL string, timeout time.Duration) (*RemoteModel, error) {
	if inferenceURL == "" {
		return nil, fmt.Errorf("inference URL is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteModel{
		inferenceURL: inferenceURL,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

// Predict sends frame to the inference service.
func (m *RemoteModel) Predict(ctx context.Context, frame *gocv.Mat) ([]RawDetection, error) {
	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return result.toRaw()
}

// CheckHealth probes the service's /health endpoint, resolved relative to the
// predict URL.
func (m *RemoteModel) CheckHealth(ctx context.Context) error {
	healthURL := strings.TrimSuffix(m.inferenceURL, "/predict") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (m *RemoteModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
