package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"speech-emotion/audio"
	"speech-emotion/classifier"
	"speech-emotion/features"
	"speech-emotion/models"
	"speech-emotion/utils"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
)

// DefaultMaxUploadBytes caps a single upload.
const DefaultMaxUploadBytes = 25 << 20

// ErrNarrationDisabled is returned by Explain when no narrator is configured.
var ErrNarrationDisabled = errors.New("narration is not configured")

// Narrator turns a prediction into a short human-readable explanation.
type Narrator interface {
	Narrate(ctx context.Context, prediction classifier.PredictionResult, diag audio.Diagnostics) (string, error)
}

// RunRecorder persists the technical outline of each run.
type RunRecorder interface {
	RecordRun(run models.InferenceRun) (int64, error)
}

// Observer receives timing and outcome measurements.
type Observer interface {
	ObserveRun(outcome string, latency time.Duration)
	ObserveStage(stage string, d time.Duration)
	ObservePrediction(label string, confidence float64)
}

// TechnicalDetails echoes the fixed feature geometry alongside what the model declared.
type TechnicalDetails struct {
	Duration     float64 `json:"duration"`
	SampleRate   int     `json:"sampleRate"`
	Samples      int     `json:"samples"`
	MFCCCount    int     `json:"mfccCount"`
	FeatureShape [3]int  `json:"featureShape"`
	Model        string  `json:"model"`
	ModelInput   string  `json:"modelInput"`
}

// Result is everything the presentation layer shows for one clip.
type Result struct {
	ID          string                      `json:"id"`
	FileName    string                      `json:"fileName"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Prediction  classifier.PredictionResult `json:"prediction"`
	Technical   TechnicalDetails            `json:"technical"`
	Source      audio.SourceInfo            `json:"source"`
	Diagnostics audio.Diagnostics           `json:"diagnostics"`
	Narration   string                      `json:"narration,omitempty"`
	LatencyMs   float64                     `json:"latencyMs"`
}

// Analyzer runs an upload through normalization, feature extraction and the
// shared classifier. It is safe for concurrent use.
type Analyzer struct {
	normalizer *audio.Normalizer
	extractor  *features.Extractor
	loader     *classifier.Loader

	tmpDir   string
	maxBytes int64
	narrator Narrator
	recorder RunRecorder
	observer Observer
	logger   *slog.Logger
}

type Option func(*Analyzer)

// WithTempDir sets where uploads are staged.
func WithTempDir(dir string) Option {
	return func(a *Analyzer) { a.tmpDir = dir }
}

func WithMaxUploadBytes(n int64) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxBytes = n
		}
	}
}

func WithNarrator(n Narrator) Option {
	return func(a *Analyzer) { a.narrator = n }
}

func WithRunRecorder(r RunRecorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

func WithObserver(o Observer) Option {
	return func(a *Analyzer) { a.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func New(normalizer *audio.Normalizer, extractor *features.Extractor, loader *classifier.Loader, opts ...Option) *Analyzer {
	a := &Analyzer{
		normalizer: normalizer,
		extractor:  extractor,
		loader:     loader,
		tmpDir:     os.TempDir(),
		maxBytes:   DefaultMaxUploadBytes,
		logger:     utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies the clip read from r. name supplies the container type
// through its extension. The staged copy is removed before returning.
func (a *Analyzer) Analyze(ctx context.Context, name string, r io.Reader) (result *Result, err error) {
	start := time.Now()
	var src audio.SourceInfo
	defer func() {
		a.record(ctx, src, start, err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, ok := audio.FormatFromName(name)
	if !ok {
		return nil, &audio.DecodeError{Source: name, Err: audio.ErrUnsupportedFormat}
	}
	src.Format = format

	stageStart := time.Now()
	path, err := a.stage(name, format, r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	waveform, info, err := a.normalize(ctx, name, path)
	if err != nil {
		return nil, err
	}
	src = info
	a.observeStage("normalize", stageStart)

	stageStart = time.Now()
	tensor, err := a.extractor.ExtractTensor(waveform)
	if err != nil {
		return nil, err
	}
	a.observeStage("extract", stageStart)

	model, err := a.loader.Get()
	if err != nil {
		return nil, fmt.Errorf("model unavailable: %w", err)
	}

	stageStart = time.Now()
	prediction, err := classifier.Classify(ctx, model, tensor)
	if err != nil {
		return nil, err
	}
	a.observeStage("classify", stageStart)
	if a.observer != nil {
		a.observer.ObservePrediction(prediction.Label, prediction.Confidence)
	}

	return &Result{
		ID:         uuid.NewString(),
		FileName:   name,
		CreatedAt:  start,
		Prediction: prediction,
		Technical: TechnicalDetails{
			Duration:     audio.DurationSeconds,
			SampleRate:   waveform.SampleRate(),
			Samples:      waveform.Len(),
			MFCCCount:    features.NumCoefficients,
			FeatureShape: tensor.Shape,
			Model:        model.Name(),
			ModelInput:   model.InputShape().String(),
		},
		Source:      src,
		Diagnostics: audio.Diagnose(waveform),
		LatencyMs:   float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// stage copies the upload into a uniquely named file that keeps the container extension.
func (a *Analyzer) stage(name string, format audio.Format, r io.Reader) (string, error) {
	if a.tmpDir != "" {
		if err := utils.CreateFolder(a.tmpDir); err != nil {
			return "", fmt.Errorf("failed to create temp dir: %w", err)
		}
	}

	path := filepath.Join(a.tmpDir, "upload-"+uuid.NewString()+"."+string(format))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	n, copyErr := io.Copy(f, io.LimitReader(r, a.maxBytes+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(path)
		return "", &audio.DecodeError{Source: name, Reason: "cannot read upload", Err: copyErr}
	case closeErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp file: %w", closeErr)
	case n == 0:
		os.Remove(path)
		return "", &audio.DecodeError{Source: name, Err: audio.ErrEmptyInput}
	case n > a.maxBytes:
		os.Remove(path)
		return "", &audio.DecodeError{Source: name, Reason: fmt.Sprintf("upload exceeds %d bytes", a.maxBytes)}
	}
	return path, nil
}

func (a *Analyzer) normalize(ctx context.Context, name, path string) (audio.Waveform, audio.SourceInfo, error) {
	waveform, src, err := a.normalizer.NormalizeFile(ctx, path)
	if err != nil {
		var de *audio.DecodeError
		if errors.As(err, &de) {
			de.Source = name
		}
		return audio.Waveform{}, audio.SourceInfo{}, err
	}
	src.Name = name
	return waveform, src, nil
}

func (a *Analyzer) observeStage(stage string, since time.Time) {
	if a.observer != nil {
		a.observer.ObserveStage(stage, time.Since(since))
	}
}

func (a *Analyzer) record(ctx context.Context, src audio.SourceInfo, start time.Time, err error) {
	latency := time.Since(start)
	outcome := OutcomeOf(err)

	if a.observer != nil {
		a.observer.ObserveRun(string(outcome), latency)
	}
	if a.recorder == nil {
		return
	}

	_, recErr := a.recorder.RecordRun(models.InferenceRun{
		CreatedAt:     start,
		SourceFormat:  string(src.Format),
		SourceSeconds: src.Duration,
		SourceRate:    src.SampleRate,
		Channels:      src.Channels,
		Outcome:       outcome,
		LatencyMs:     float64(latency.Microseconds()) / 1000,
	})
	if recErr != nil {
		a.logger.ErrorContext(ctx, "failed to record inference run", slog.Any("error", xerrors.New(recErr)))
	}
}

// OutcomeOf maps an Analyze error to its run-log outcome.
func OutcomeOf(err error) models.Outcome {
	var extractionErr *features.ExtractionError
	switch {
	case err == nil:
		return models.OutcomeOK
	case audio.IsDecodeError(err):
		return models.OutcomeDecodeError
	case errors.As(err, &extractionErr):
		return models.OutcomeExtractionError
	case classifier.IsContractMismatch(err):
		return models.OutcomeContractMismatch
	default:
		return models.OutcomeInferenceError
	}
}

// CanExplain reports whether a narrator is configured.
func (a *Analyzer) CanExplain() bool {
	return a.narrator != nil
}

// Explain fills res.Narration.
func (a *Analyzer) Explain(ctx context.Context, res *Result) error {
	if a.narrator == nil {
		return ErrNarrationDisabled
	}
	text, err := a.narrator.Narrate(ctx, res.Prediction, res.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to narrate result: %w", err)
	}
	res.Narration = text
	return nil
}

// ModelInfo describes the shared classifier.
func (a *Analyzer) ModelInfo() (classifier.ModelInfo, error) {
	return a.loader.Info()
}

// Health loads the classifier and, for remote backends, pings the model server.
func (a *Analyzer) Health(ctx context.Context) error {
	model, err := a.loader.Get()
	if err != nil {
		return err
	}
	if hc, ok := model.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
