package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockModel is a test implementation of the Model interface.
// It allows tests to control the detection results.
type MockModel struct {
	mu         sync.Mutex
	detections []RawDetection
	err        error
	calls      int
}

// NewMockModel creates a new MockModel instance.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// SetDetections sets the raw detections that will be returned by Predict.
func (m *MockModel) SetDetections(detections []RawDetection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

// SetError sets the error that will be returned by Predict.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Predict has been invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Predict returns the pre-configured detections or error.
func (m *MockModel) Predict(ctx context.Context, frame *gocv.Mat) ([]RawDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]RawDetection, len(m.detections))
	copy(out, m.detections)
	return out, nil
}

// Close is a no-op for the mock model.
func (m *MockModel) Close() error {
	return nil
}

// PersonDetection returns a preset raw detection of a person at
// (10,10)-(50,90) with score 0.91.
func PersonDetection() RawDetection {
	return RawDetection{ClassID: 0, Score: 0.91, X1: 10, Y1: 10, X2: 50, Y2: 90}
}

// CupDetection returns a preset raw detection of a cup at (60,20)-(90,45)
// with score 0.77.
func CupDetection() RawDetection {
	return RawDetection{ClassID: 41, Score: 0.77, X1: 60, Y1: 20, X2: 90, Y2: 45}
}
