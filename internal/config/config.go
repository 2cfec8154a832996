// Package config loads SpaceVision settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "SPACEVISION_"

// Detector backends.
const (
	BackendONNX       = "onnx"
	BackendSubprocess = "subprocess"
	BackendRemote     = "remote"
	BackendMock       = "mock"
)

// Config holds the process configuration.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	DataDir   string `env:"DATA_DIR"`
	StaticDir string `env:"STATIC_DIR"`
	UploadDir string `env:"UPLOAD_DIR"`
	DBPath    string `env:"DB_PATH"`

	Backend      string        `env:"DETECTOR_BACKEND" envDefault:"onnx"`
	ModelPath    string        `env:"MODEL_PATH" envDefault:"yolov8n.onnx"`
	WorkerScript string        `env:"WORKER_SCRIPT"`
	InferenceURL string        `env:"INFERENCE_URL" envDefault:"http://localhost:8000/predict"`
	LabelsPath   string        `env:"LABELS_PATH"`
	InputSize    int           `env:"INPUT_SIZE" envDefault:"640"`
	IdleTimeout  time.Duration `env:"WORKER_IDLE_TIMEOUT" envDefault:"30s"`

	ConfidenceThreshold float64  `env:"CONFIDENCE_THRESHOLD" envDefault:"0.5"`
	NMSThreshold        float64  `env:"NMS_THRESHOLD" envDefault:"0.45"`
	CriticalObjects     []string `env:"CRITICAL_OBJECTS" envSeparator:"," envDefault:"person,knife,scissors,fire hydrant"`

	InferenceTimeout time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"10s"`
	MaxUploadMB      int64         `env:"MAX_UPLOAD_MB" envDefault:"16"`
	CORSOrigins      []string      `env:"CORS_ORIGINS" envSeparator:","`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`
}

// Load reads an optional .env file (or the files named in dotenv) and parses
// the environment into a Config. Derived paths are filled in under DataDir.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".spacevision")
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "spacevision.db")
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendONNX, BackendSubprocess, BackendRemote, BackendMock:
	default:
		return fmt.Errorf("unknown detector backend %q", c.Backend)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold %v outside [0,1]", c.NMSThreshold)
	}
	if c.Backend == BackendONNX && c.ModelPath == "" {
		return fmt.Errorf("onnx backend needs a model path")
	}
	if c.Backend == BackendRemote && c.InferenceURL == "" {
		return fmt.Errorf("remote backend needs an inference url")
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
