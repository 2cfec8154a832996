package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/spacevision/internal/annotate"
	"github.com/ayusman/spacevision/internal/artifacts"
	"github.com/ayusman/spacevision/internal/codec"
	"github.com/ayusman/spacevision/internal/detection"
	"github.com/ayusman/spacevision/internal/detector"
	"github.com/ayusman/spacevision/internal/metrics"
	"github.com/ayusman/spacevision/internal/results"
)

// DefaultInferenceTimeout bounds a single model call when none is configured.
const DefaultInferenceTimeout = 10 * time.Second

// ArtifactStore persists image files for batch results.
type ArtifactStore interface {
	Save(name string, data []byte) (string, error)
	Remove(name string) error
}

// Archive durably records batch results.
type Archive interface {
	Create(sessionID string, r detection.Result) error
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	Adapter   *detector.Adapter
	Annotator *annotate.Annotator
	Artifacts ArtifactStore
	Results   *results.Store

	// Optional.
	Archive          Archive
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
	InferenceTimeout time.Duration
}

// BatchRequest is one uploaded image.
type BatchRequest struct {
	Data      []byte
	Filename  string
	SessionID string
}

// Pipeline runs decode, inference and result shaping for both modes.
// It is safe for concurrent use; each call works on its own frame.
type Pipeline struct {
	adapter   *detector.Adapter
	annotator *annotate.Annotator
	artifacts ArtifactStore
	results   *results.Store
	archive   Archive
	metrics   *metrics.Metrics
	logger    *zap.Logger
	timeout   time.Duration
}

// NewPipeline creates a Pipeline from its collaborators.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Adapter == nil {
		return nil, fmt.Errorf("pipeline needs a detector adapter")
	}
	if config.Annotator == nil {
		return nil, fmt.Errorf("pipeline needs an annotator")
	}
	if config.Artifacts == nil {
		return nil, fmt.Errorf("pipeline needs artifact storage")
	}
	if config.Results == nil {
		return nil, fmt.Errorf("pipeline needs a result store")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.InferenceTimeout
	if timeout <= 0 {
		timeout = DefaultInferenceTimeout
	}

	return &Pipeline{
		adapter:   config.Adapter,
		annotator: config.Annotator,
		artifacts: config.Artifacts,
		results:   config.Results,
		archive:   config.Archive,
		metrics:   config.Metrics,
		logger:    logger.Named("pipeline"),
		timeout:   timeout,
	}, nil
}

// Critical returns the critical-object set shared with the detector.
func (p *Pipeline) Critical() detection.CriticalSet {
	return p.adapter.Critical()
}

// RunBatch processes an uploaded image:
//
//  1. Decode the bytes
//  2. Run the detector once
//  3. Draw the detections onto a copy of the frame
//  4. Encode the copy in the upload's format
//  5. Save original and annotated artifacts
//  6. Archive the result
//  7. Append to history and set the session's last result
//
// Any failing step aborts the run with its error kind and nothing is
// recorded. A context cancelled before step 5 also aborts the run.
func (p *Pipeline) RunBatch(ctx context.Context, req BatchRequest) (detection.Result, error) {
	start := time.Now()

	res, err := p.runBatch(ctx, req)
	if err != nil {
		p.metrics.ObserveError(detection.ModeBatch, err)
		p.logger.Warn("batch inference failed",
			zap.String("session_id", req.SessionID),
			zap.String("filename", req.Filename),
			zap.String("kind", detection.KindOf(err)),
			zap.Error(err))
		return detection.Result{}, err
	}

	elapsed := time.Since(start)
	p.metrics.ObserveRun(detection.ModeBatch, elapsed, res.Detections)
	p.metrics.SetHistorySize(p.results.Len())
	p.logger.Info("batch inference complete",
		zap.String("session_id", req.SessionID),
		zap.String("result_id", res.ID),
		zap.Int("detections", len(res.Detections)),
		zap.Int("critical", res.CriticalCount()),
		zap.Duration("elapsed", elapsed))

	return res, nil
}

func (p *Pipeline) runBatch(ctx context.Context, req BatchRequest) (detection.Result, error) {
	frame, err := codec.DecodeUpload(req.Data)
	if err != nil {
		return detection.Result{}, err
	}
	defer frame.Close()

	dets, err := p.infer(ctx, &frame)
	if err != nil {
		return detection.Result{}, err
	}

	annotated := p.annotator.Annotate(frame, dets)
	defer annotated.Close()

	format := codec.FormatFromFilename(req.Filename)
	encoded, err := codec.Encode(annotated, format)
	if err != nil {
		return detection.Result{}, fmt.Errorf("encode annotated image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return detection.Result{}, err
	}

	id := uuid.NewString()
	name := artifactName(req.Filename, format)
	width, height := codec.Dimensions(frame)

	originalRef, err := p.artifacts.Save(id+"_"+name, req.Data)
	if err != nil {
		return detection.Result{}, fmt.Errorf("%w: save original: %w", detection.ErrStorage, err)
	}
	annotatedRef, err := p.artifacts.Save("result_"+id+"_"+annotatedName(name, format), encoded)
	if err != nil {
		p.discard(originalRef)
		return detection.Result{}, fmt.Errorf("%w: save annotated: %w", detection.ErrStorage, err)
	}

	res := detection.Result{
		ID:                id,
		SourceFilename:    req.Filename,
		OriginalImageRef:  originalRef,
		AnnotatedImageRef: annotatedRef,
		Width:             width,
		Height:            height,
		Detections:        dets,
		Mode:              detection.ModeBatch,
		CreatedAt:         time.Now().UTC(),
	}

	if p.archive != nil {
		if err := p.archive.Create(req.SessionID, res); err != nil {
			p.discard(originalRef, annotatedRef)
			return detection.Result{}, fmt.Errorf("%w: archive result: %w", detection.ErrStorage, err)
		}
	}

	p.results.RecordBatch(req.SessionID, res)
	return res, nil
}

// RunStream processes one webcam frame encoded as a data URI and returns its
// detections. Nothing is drawn, saved or recorded.
func (p *Pipeline) RunStream(ctx context.Context, dataURI, sessionID string) ([]detection.Detection, error) {
	start := time.Now()

	dets, err := p.runStream(ctx, dataURI)
	if err != nil {
		p.metrics.ObserveError(detection.ModeStream, err)
		p.logger.Debug("stream inference failed",
			zap.String("session_id", sessionID),
			zap.String("kind", detection.KindOf(err)),
			zap.Error(err))
		return nil, err
	}

	p.metrics.ObserveRun(detection.ModeStream, time.Since(start), dets)
	return dets, nil
}

func (p *Pipeline) runStream(ctx context.Context, dataURI string) ([]detection.Detection, error) {
	frame, err := codec.DecodeDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	return p.infer(ctx, &frame)
}

// infer runs the adapter under the per-call inference timeout.
func (p *Pipeline) infer(ctx context.Context, frame *gocv.Mat) ([]detection.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.adapter.Infer(ctx, frame)
}

// discard removes artifacts written by a run that failed later on.
func (p *Pipeline) discard(refs ...string) {
	for _, ref := range refs {
		if err := p.artifacts.Remove(ref); err != nil && !errors.Is(err, artifacts.ErrNotFound) {
			p.logger.Warn("failed to remove artifact", zap.String("ref", ref), zap.Error(err))
		}
	}
}

// artifactName derives the stored base name from the uploaded file name.
func artifactName(filename string, format codec.Format) string {
	name := artifacts.SanitizeFilename(filename)
	if name == "" {
		name = "upload"
	}
	if filepath.Ext(name) == "" {
		name += format.Extension()
	}
	return name
}

// annotatedName renames name so its extension matches the encoded format.
func annotatedName(name string, format codec.Format) string {
	if format.Matches(name) {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + format.Extension()
}
