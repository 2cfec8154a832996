package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("SPACEVISION_DATA_DIR", dataDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Addr)
	}
	if cfg.Backend != BackendONNX {
		t.Errorf("expected onnx backend, got %q", cfg.Backend)
	}
	if cfg.ConfidenceThreshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.InferenceTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.InferenceTimeout)
	}
	want := []string{"person", "knife", "scissors", "fire hydrant"}
	if !reflect.DeepEqual(cfg.CriticalObjects, want) {
		t.Errorf("expected %v, got %v", want, cfg.CriticalObjects)
	}
	if cfg.UploadDir != filepath.Join(dataDir, "uploads") {
		t.Errorf("unexpected upload dir %q", cfg.UploadDir)
	}
	if cfg.DBPath != filepath.Join(dataDir, "spacevision.db") {
		t.Errorf("unexpected db path %q", cfg.DBPath)
	}
	if cfg.MaxUploadBytes() != 16<<20 {
		t.Errorf("unexpected upload limit %d", cfg.MaxUploadBytes())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SPACEVISION_DATA_DIR", t.TempDir())
	t.Setenv("SPACEVISION_DETECTOR_BACKEND", " Mock ")
	t.Setenv("SPACEVISION_CONFIDENCE_THRESHOLD", "0.35")
	t.Setenv("SPACEVISION_CRITICAL_OBJECTS", "dog,cat")
	t.Setenv("SPACEVISION_INFERENCE_TIMEOUT", "2s")
	t.Setenv("SPACEVISION_LOG_DEVELOPMENT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend != BackendMock {
		t.Errorf("expected mock backend, got %q", cfg.Backend)
	}
	if cfg.ConfidenceThreshold != 0.35 {
		t.Errorf("expected 0.35, got %v", cfg.ConfidenceThreshold)
	}
	if !reflect.DeepEqual(cfg.CriticalObjects, []string{"dog", "cat"}) {
		t.Errorf("unexpected critical objects %v", cfg.CriticalObjects)
	}
	if cfg.InferenceTimeout != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.InferenceTimeout)
	}
	if !cfg.LogDevelopment {
		t.Error("expected development logging")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SPACEVISION_LABELS_PATH=/opt/labels.txt\n"), 0644); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("SPACEVISION_DATA_DIR", dir)
	t.Cleanup(func() { os.Unsetenv("SPACEVISION_LABELS_PATH") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LabelsPath != "/opt/labels.txt" {
		t.Errorf("expected labels path from dotenv, got %q", cfg.LabelsPath)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"unknown backend", "SPACEVISION_DETECTOR_BACKEND", "tflite", "unknown detector backend"},
		{"threshold too high", "SPACEVISION_CONFIDENCE_THRESHOLD", "1.5", "confidence threshold"},
		{"negative nms", "SPACEVISION_NMS_THRESHOLD", "-0.1", "nms threshold"},
		{"zero timeout", "SPACEVISION_INFERENCE_TIMEOUT", "0s", "inference timeout"},
		{"not a number", "SPACEVISION_CONFIDENCE_THRESHOLD", "high", "parse environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SPACEVISION_DATA_DIR", t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := &Config{
		Backend:          BackendRemote,
		InputSize:        640,
		InferenceTimeout: time.Second,
		MaxUploadMB:      1,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected remote backend without url to fail")
	}

	cfg.InferenceURL = "http://localhost:8000/predict"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
