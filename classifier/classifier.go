package classifier

import (
	"context"
	"errors"
	"fmt"

	"speech-emotion/features"
)

// Shape is a classifier's declared input shape after the batch dimension.
// Frames == 0 accepts any number of frames.
type Shape struct {
	Frames       int `yaml:"frames" json:"frames"`
	Coefficients int `yaml:"coefficients" json:"coefficients"`
}

// PipelineShape is what the feature pipeline always produces.
var PipelineShape = Shape{Frames: features.TimeFrames, Coefficients: features.NumCoefficients}

// Accepts reports whether a (batch, frames, coefficients) tensor fits.
func (s Shape) Accepts(shape [3]int) bool {
	if shape[0] != 1 || shape[2] != s.Coefficients {
		return false
	}
	return s.Frames == 0 || shape[1] == s.Frames
}

func (s Shape) String() string {
	if s.Frames == 0 {
		return fmt.Sprintf("(None, None, %d)", s.Coefficients)
	}
	return fmt.Sprintf("(None, %d, %d)", s.Frames, s.Coefficients)
}

// Classifier is an opaque trained model: tensor in, one probability per label out.
type Classifier interface {
	Name() string
	InputShape() Shape
	Predict(ctx context.Context, input features.Tensor) ([]float64, error)
}

// ContractMismatchError reports a tensor or output that does not match what
// the classifier declares. Nothing is reshaped or guessed.
type ContractMismatchError struct {
	Model  string
	Reason string
}

func (e *ContractMismatchError) Error() string {
	if e.Model == "" {
		return "classifier contract mismatch: " + e.Reason
	}
	return fmt.Sprintf("classifier %q contract mismatch: %s", e.Model, e.Reason)
}

// IsContractMismatch reports whether err carries a ContractMismatchError.
func IsContractMismatch(err error) bool {
	var cm *ContractMismatchError
	return errors.As(err, &cm)
}

// Classify checks input against the model's declared shape, runs it and
// turns the output into a PredictionResult.
func Classify(ctx context.Context, model Classifier, input features.Tensor) (PredictionResult, error) {
	if len(input.Data) != input.Shape[0]*input.Shape[1]*input.Shape[2] {
		return PredictionResult{}, &ContractMismatchError{
			Model:  model.Name(),
			Reason: fmt.Sprintf("tensor holds %d values, shape %v needs %d", len(input.Data), input.Shape, input.Shape[0]*input.Shape[1]*input.Shape[2]),
		}
	}
	if !model.InputShape().Accepts(input.Shape) {
		return PredictionResult{}, &ContractMismatchError{
			Model:  model.Name(),
			Reason: fmt.Sprintf("input tensor shape (%d, %d, %d) does not match model input %s", input.Shape[0], input.Shape[1], input.Shape[2], model.InputShape()),
		}
	}

	probs, err := model.Predict(ctx, input)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("inference failed: %w", err)
	}

	result, err := NewPredictionResult(probs)
	if err != nil {
		var cm *ContractMismatchError
		if errors.As(err, &cm) && cm.Model == "" {
			cm.Model = model.Name()
		}
		return PredictionResult{}, err
	}
	return result, nil
}
