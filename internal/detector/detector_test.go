package detector

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/spacevision/internal/detection"
	"github.com/ayusman/spacevision/testdata"
)

// newTestFrame loads a 100x100 fixture frame and closes it when the test ends.
func newTestFrame(t *testing.T) *gocv.Mat {
	t.Helper()

	frame, err := testdata.LoadFrame(100, 100)
	if err != nil {
		t.Fatalf("failed to load frame: %v", err)
	}
	t.Cleanup(func() {
		frame.Close()
	})
	return frame
}

func newTestAdapter(t *testing.T, model Model) *Adapter {
	t.Helper()

	a, err := NewAdapter(model, DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	return a
}

func TestAdapter_Infer(t *testing.T) {
	frame := newTestFrame(t)

	t.Run("person scenario", func(t *testing.T) {
		mock := NewMockModel()
		mock.SetDetections([]RawDetection{PersonDetection()})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := detection.Detection{
			ClassLabel: "person",
			Confidence: 0.91,
			Box:        detection.Box{XMin: 10, YMin: 10, XMax: 50, YMax: 90},
			IsCritical: true,
		}
		if len(records) != 1 || records[0] != want {
			t.Errorf("expected [%+v], got %+v", want, records)
		}
		if mock.Calls() != 1 {
			t.Errorf("expected exactly 1 model call, got %d", mock.Calls())
		}
	})

	t.Run("zero detections yield empty slice", func(t *testing.T) {
		adapter := newTestAdapter(t, NewMockModel())

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", records)
		}
	})

	t.Run("below threshold is never materialized", func(t *testing.T) {
		mock := NewMockModel()
		low := CupDetection()
		low.Score = 0.49
		edge := CupDetection()
		edge.Score = 0.5
		mock.SetDetections([]RawDetection{low, edge})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || records[0].Confidence != 0.5 {
			t.Errorf("expected only the 0.5 record, got %+v", records)
		}
	})

	t.Run("keeps model order", func(t *testing.T) {
		mock := NewMockModel()
		mock.SetDetections([]RawDetection{CupDetection(), PersonDetection()})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 2 || records[0].ClassLabel != "cup" || records[1].ClassLabel != "person" {
			t.Errorf("expected [cup person], got %+v", records)
		}
		if records[0].IsCritical {
			t.Error("cup should not be critical")
		}
	})

	t.Run("boxes are clamped to the frame", func(t *testing.T) {
		mock := NewMockModel()
		mock.SetDetections([]RawDetection{
			{ClassID: 0, Score: 0.8, X1: -3.2, Y1: -0.4, X2: 100.7, Y2: 130},
		})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := detection.Box{XMin: 0, YMin: 0, XMax: 100, YMax: 100}
		if len(records) != 1 || records[0].Box != want {
			t.Errorf("expected clamped box %+v, got %+v", want, records)
		}
	})

	t.Run("inverted corners are reordered", func(t *testing.T) {
		mock := NewMockModel()
		mock.SetDetections([]RawDetection{
			{ClassID: 0, Score: 0.8, X1: 50, Y1: 90, X2: 10, Y2: 10},
		})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || !records[0].Box.Valid() {
			t.Errorf("expected one valid box, got %+v", records)
		}
	})

	t.Run("boxes entirely outside the frame are dropped", func(t *testing.T) {
		mock := NewMockModel()
		mock.SetDetections([]RawDetection{
			{ClassID: 0, Score: 0.8, X1: 150, Y1: 150, X2: 200, Y2: 200},
			PersonDetection(),
		})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("expected 1 record, got %+v", records)
		}
	})

	t.Run("model label overrides the table", func(t *testing.T) {
		mock := NewMockModel()
		mock.SetDetections([]RawDetection{
			{ClassID: 999, Label: "Knife", Score: 0.7, X1: 1, Y1: 1, X2: 20, Y2: 20},
		})
		adapter := newTestAdapter(t, mock)

		records, err := adapter.Infer(context.Background(), frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || records[0].ClassLabel != "Knife" || !records[0].IsCritical {
			t.Errorf("expected critical Knife record, got %+v", records)
		}
	})

	malformed := map[string]RawDetection{
		"unknown class id": {ClassID: 500, Score: 0.9, X1: 1, Y1: 1, X2: 5, Y2: 5},
		"negative class":   {ClassID: -1, Score: 0.9, X1: 1, Y1: 1, X2: 5, Y2: 5},
		"NaN coordinate":   {ClassID: 0, Score: 0.9, X1: math.NaN(), Y1: 1, X2: 5, Y2: 5},
		"infinite score":   {ClassID: 0, Score: math.Inf(1), X1: 1, Y1: 1, X2: 5, Y2: 5},
		"score above one":  {ClassID: 0, Score: 1.5, X1: 1, Y1: 1, X2: 5, Y2: 5},
	}
	for name, raw := range malformed {
		t.Run(name+" is an inference error", func(t *testing.T) {
			mock := NewMockModel()
			mock.SetDetections([]RawDetection{raw})
			adapter := newTestAdapter(t, mock)

			_, err := adapter.Infer(context.Background(), frame)
			if !errors.Is(err, detection.ErrInference) {
				t.Errorf("expected ErrInference, got %v", err)
			}
		})
	}

	t.Run("model failure is an inference error", func(t *testing.T) {
		mock := NewMockModel()
		modelErr := errors.New("cuda out of memory")
		mock.SetError(modelErr)
		adapter := newTestAdapter(t, mock)

		_, err := adapter.Infer(context.Background(), frame)
		if !errors.Is(err, detection.ErrInference) {
			t.Errorf("expected ErrInference, got %v", err)
		}
		if !errors.Is(err, modelErr) {
			t.Errorf("expected the model error to stay in the chain, got %v", err)
		}
	})

	t.Run("empty frame is an inference error", func(t *testing.T) {
		adapter := newTestAdapter(t, NewMockModel())
		empty := gocv.NewMat()
		defer empty.Close()

		_, err := adapter.Infer(context.Background(), &empty)
		if !errors.Is(err, detection.ErrInference) {
			t.Errorf("expected ErrInference, got %v", err)
		}
	})
}

func TestAdapter_InvariantsHoldForEveryRecord(t *testing.T) {
	frame := newTestFrame(t)

	mock := NewMockModel()
	var raws []RawDetection
	for i := 0; i < 40; i++ {
		f := float64(i)
		raws = append(raws, RawDetection{
			ClassID: i % 80,
			Score:   f / 40,
			X1:      f*3 - 20,
			Y1:      f*2 - 10,
			X2:      f*3 + 15,
			Y2:      f*2 + 25,
		})
	}
	mock.SetDetections(raws)

	config := DefaultConfig()
	config.Threshold = 0.3
	adapter, err := NewAdapter(mock, config, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	records, err := adapter.Infer(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected some records")
	}

	for _, r := range records {
		if r.Confidence < config.Threshold {
			t.Errorf("record %+v below threshold", r)
		}
		if !r.Box.Valid() {
			t.Errorf("record %+v has invalid box", r)
		}
		if r.IsCritical != config.Critical.Contains(r.ClassLabel) {
			t.Errorf("record %+v criticality disagrees with set", r)
		}
	}
}

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(nil, DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil model")
	}

	for _, threshold := range []float64{-0.1, 1.1, math.NaN()} {
		config := DefaultConfig()
		config.Threshold = threshold
		if _, err := NewAdapter(NewMockModel(), config, nil); err == nil {
			t.Errorf("expected error for threshold %v", threshold)
		}
	}

	a, err := NewAdapter(NewMockModel(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Threshold() != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", a.Threshold())
	}
	if !a.Critical().Contains("person") {
		t.Error("expected person in default critical set")
	}
}

func TestMockModel(t *testing.T) {
	t.Run("returns empty detections by default", func(t *testing.T) {
		mock := NewMockModel()

		raws, err := mock.Predict(context.Background(), nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(raws) != 0 {
			t.Errorf("expected no detections, got %v", raws)
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockModel()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		raws, err := mock.Predict(context.Background(), nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if raws != nil {
			t.Errorf("expected nil detections when error is set, got %v", raws)
		}
	})

	t.Run("implements Model interface", func(t *testing.T) {
		var _ Model = (*MockModel)(nil)
		var _ Model = (*ONNXModel)(nil)
		var _ Model = (*SubprocessModel)(nil)
		var _ Model = (*RemoteModel)(nil)
	})
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()

	t.Run("skips blanks and comments", func(t *testing.T) {
		path := filepath.Join(dir, "labels.txt")
		content := "# space station classes\nFireExtinguisher\n\n ToolBox \nOxygenTank\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write labels: %v", err)
		}

		labels, err := LoadLabels(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"FireExtinguisher", "ToolBox", "OxygenTank"}
		if len(labels) != len(want) {
			t.Fatalf("expected %v, got %v", want, labels)
		}
		for i := range want {
			if labels[i] != want[i] {
				t.Errorf("label %d: expected %q, got %q", i, want[i], labels[i])
			}
		}
	})

	t.Run("empty file is an error", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatalf("failed to write labels: %v", err)
		}
		if _, err := LoadLabels(path); err == nil {
			t.Error("expected error for empty labels file")
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := LoadLabels(filepath.Join(dir, "nope.txt")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestCOCOLabels(t *testing.T) {
	labels := COCOLabels()
	if len(labels) != 80 {
		t.Fatalf("expected 80 labels, got %d", len(labels))
	}
	if labels[0] != "person" || labels[41] != "cup" || labels[79] != "toothbrush" {
		t.Errorf("unexpected label order: %q %q %q", labels[0], labels[41], labels[79])
	}

	labels[0] = "mutated"
	if COCOLabels()[0] != "person" {
		t.Error("COCOLabels should return a copy")
	}
}

func TestNewONNXModel_MissingFile(t *testing.T) {
	_, err := NewONNXModel(ONNXConfig{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	if err == nil {
		t.Error("expected error for missing model file")
	}
}
