// Package app provides the main application logic for the SpaceVision object detection service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ayusman/spacevision/internal/annotate"
	"github.com/ayusman/spacevision/internal/artifacts"
	"github.com/ayusman/spacevision/internal/config"
	"github.com/ayusman/spacevision/internal/detection"
	"github.com/ayusman/spacevision/internal/detector"
	"github.com/ayusman/spacevision/internal/metrics"
	"github.com/ayusman/spacevision/internal/results"
	"github.com/ayusman/spacevision/internal/store"
)

// Config holds configuration options for the application.
type Config struct {
	Settings *config.Config
	Logger   *zap.Logger
	// Registerer receives the pipeline metrics. Nil disables registration.
	Registerer prometheus.Registerer
	// Model overrides the backend selected by Settings.
	Model detector.Model
}

// App owns the long-lived components of the service.
type App struct {
	settings  *config.Config
	logger    *zap.Logger
	store     *store.Store
	artifacts *artifacts.Storage
	results   *results.Store
	metrics   *metrics.Metrics
	adapter   *detector.Adapter
	pipeline  *Pipeline
	// backend is the detector backend actually in use.
	backend string
}

// New creates a new App instance with the given configuration.
func New(cfg Config) (*App, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("app settings are nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := cfg.Settings

	labels := detector.COCOLabels()
	if s.LabelsPath != "" {
		loaded, err := detector.LoadLabels(s.LabelsPath)
		if err != nil {
			return nil, err
		}
		labels = loaded
	}
	critical := detection.NewCriticalSet(s.CriticalObjects...)

	model, backend := cfg.Model, s.Backend
	if model == nil {
		model, backend = newModel(s, logger)
	}

	adapter, err := detector.NewAdapter(model, detector.Config{
		Threshold: s.ConfidenceThreshold,
		Labels:    labels,
		Critical:  critical,
	}, logger.Named("detector"))
	if err != nil {
		model.Close()
		return nil, err
	}

	storage, err := artifacts.New(s.UploadDir)
	if err != nil {
		adapter.Close()
		return nil, err
	}

	archive, err := store.New(s.DBPath)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("failed to open result archive: %w", err)
	}

	a := &App{
		settings:  s,
		logger:    logger,
		store:     archive,
		artifacts: storage,
		results:   results.New(),
		metrics:   metrics.New(cfg.Registerer),
		adapter:   adapter,
		backend:   backend,
	}

	a.pipeline, err = NewPipeline(PipelineConfig{
		Adapter:          adapter,
		Annotator:        annotate.New(annotate.DefaultStyle()),
		Artifacts:        storage,
		Results:          a.results,
		Archive:          archive.Results(),
		Metrics:          a.metrics,
		Logger:           logger,
		InferenceTimeout: s.InferenceTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application ready",
		zap.String("backend", backend),
		zap.Float64("threshold", adapter.Threshold()),
		zap.Strings("critical_objects", critical.List()),
		zap.String("upload_dir", storage.Dir()),
		zap.String("db_path", archive.Path()))

	return a, nil
}

// newModel builds the configured detector backend and reports which backend
// it returned. When the backend cannot be created the mock model is used so
// the service still starts.
func newModel(s *config.Config, logger *zap.Logger) (detector.Model, string) {
	var (
		model detector.Model
		err   error
	)

	switch s.Backend {
	case config.BackendONNX:
		model, err = detector.NewONNXModel(detector.ONNXConfig{
			ModelPath:      s.ModelPath,
			InputSize:      s.InputSize,
			ScoreThreshold: float32(s.ConfidenceThreshold),
			NMSThreshold:   float32(s.NMSThreshold),
		})
	case config.BackendSubprocess:
		model, err = detector.NewSubprocessModel(detector.SubprocessConfig{
			Script:      s.WorkerScript,
			ModelPath:   s.ModelPath,
			IdleTimeout: s.IdleTimeout,
		}, logger.Named("worker"))
	case config.BackendRemote:
		var remote *detector.RemoteModel
		remote, err = detector.NewRemoteModel(s.InferenceURL, s.InferenceTimeout)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.InferenceTimeout)
			if herr := remote.CheckHealth(ctx); herr != nil {
				logger.Warn("inference service not reachable yet", zap.String("url", s.InferenceURL), zap.Error(herr))
			}
			cancel()
			model = remote
		}
	case config.BackendMock:
		logger.Info("using mock detector")
		return detector.NewMockModel(), config.BackendMock
	default:
		err = errors.New("unknown backend")
	}

	if err != nil {
		logger.Warn("detector backend not available, using mock detector",
			zap.String("backend", s.Backend), zap.Error(err))
		return detector.NewMockModel(), config.BackendMock
	}

	logger.Info("detector backend loaded", zap.String("backend", s.Backend))
	return model, s.Backend
}

// Pipeline returns the inference pipeline.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// Backend returns the name of the detector backend in use. It differs from
// the configured backend when that one could not be loaded.
func (a *App) Backend() string {
	return a.backend
}

// Results returns the in-memory result store.
func (a *App) Results() *results.Store {
	return a.results
}

// Archive returns the SQLite result archive.
func (a *App) Archive() *store.Store {
	return a.store
}

// Artifacts returns the artifact storage.
func (a *App) Artifacts() *artifacts.Storage {
	return a.artifacts
}

// Critical returns the critical-object set.
func (a *App) Critical() detection.CriticalSet {
	return a.adapter.Critical()
}

// Metrics returns the pipeline metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Close releases the detector and the archive.
func (a *App) Close() error {
	var errs []error
	if err := a.adapter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close archive: %w", err))
	}
	return errors.Join(errs...)
}
