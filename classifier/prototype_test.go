package classifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"speech-emotion/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticTensor builds a (1, frames, 60) tensor holding base(c) in every frame.
func syntheticTensor(frames int, base func(c int) float64) features.Tensor {
	data := make([]float32, frames*features.NumCoefficients)
	for t := 0; t < frames; t++ {
		for c := 0; c < features.NumCoefficients; c++ {
			data[t*features.NumCoefficients+c] = float32(base(c))
		}
	}
	return features.Tensor{Shape: [3]int{1, frames, features.NumCoefficients}, Data: data}
}

func rising(c int) float64  { return float64(c) / 10 }
func falling(c int) float64 { return float64(features.NumCoefficients-c) / 10 }

func newSyntheticPrototype(id, label string, base func(c int) float64, offset float64) Prototype {
	tensor := syntheticTensor(features.TimeFrames, func(c int) float64 { return base(c) + offset })
	return Prototype{ID: id, Label: label, Features: Pool(tensor)}
}

func TestPoolComputesMeanAndStd(t *testing.T) {
	t.Parallel()

	frames := 4
	data := make([]float32, frames*features.NumCoefficients)
	values := []float32{1, 3, 1, 3}
	for i, v := range values {
		data[i*features.NumCoefficients] = v
	}
	tensor := features.Tensor{Shape: [3]int{1, frames, features.NumCoefficients}, Data: data}

	pooled := Pool(tensor)
	require.Len(t, pooled, PooledDimension)
	assert.InDelta(t, 2.0, pooled[0], 1e-9)
	assert.InDelta(t, 1.0, pooled[features.NumCoefficients], 1e-9)
	assert.InDelta(t, 0.0, pooled[1], 1e-9)
	assert.InDelta(t, 0.0, pooled[features.NumCoefficients+1], 1e-9)
}

func TestPrototypeModelPrefersNearestLabel(t *testing.T) {
	t.Parallel()

	protos := []Prototype{
		newSyntheticPrototype("happy_1", "happy", rising, 0),
		newSyntheticPrototype("happy_2", "happy", rising, 0.3),
		newSyntheticPrototype("sad_1", "sad", falling, 0),
		newSyntheticPrototype("sad_2", "sad", falling, 0.3),
	}
	model, err := NewPrototypeModel(protos, 3)
	require.NoError(t, err)

	query := syntheticTensor(features.TimeFrames, func(c int) float64 { return rising(c) + 0.1 })
	result, err := Classify(context.Background(), model, query)
	require.NoError(t, err)

	assert.Equal(t, "happy", result.Label)
	assert.Greater(t, result.Probabilities["happy"], result.Probabilities["sad"])
	assert.Zero(t, result.Probabilities["angry"])

	var sum float64
	for _, p := range result.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPrototypeModelClampsK(t *testing.T) {
	t.Parallel()

	model, err := NewPrototypeModel([]Prototype{
		newSyntheticPrototype("fear_1", "fearful", rising, 0),
	}, 10)
	require.NoError(t, err)

	probs, err := model.Predict(context.Background(), syntheticTensor(features.TimeFrames, falling))
	require.NoError(t, err)
	require.Len(t, probs, NumLabels)
	assert.InDelta(t, 1.0, probs[LabelIndex("fearful")], 1e-9)
}

func TestPrototypeModelRejectsInvalidPrototypes(t *testing.T) {
	t.Parallel()

	_, err := NewPrototypeModel([]Prototype{{ID: "x", Label: "bored", Features: make([]float64, PooledDimension)}}, 3)
	require.Error(t, err)
	assert.True(t, IsContractMismatch(err))

	_, err = NewPrototypeModel([]Prototype{{ID: "y", Label: "sad", Features: make([]float64, 13)}}, 3)
	require.Error(t, err)
	assert.True(t, IsContractMismatch(err))

	_, err = NewPrototypeModel(nil, 0)
	require.Error(t, err)
}

func TestPrototypeModelEmpty(t *testing.T) {
	t.Parallel()

	model, err := NewPrototypeModel(nil, 3)
	require.NoError(t, err)

	_, err = model.Predict(context.Background(), syntheticTensor(features.TimeFrames, rising))
	require.Error(t, err)

	require.NoError(t, model.AddPrototype(newSyntheticPrototype("n1", "neutral", rising, 0)))
	probs, err := model.Predict(context.Background(), syntheticTensor(features.TimeFrames, rising))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[LabelIndex("neutral")], 1e-9)
}

func TestPrototypeModelStats(t *testing.T) {
	t.Parallel()

	model, err := NewPrototypeModel([]Prototype{
		newSyntheticPrototype("a1", "angry", rising, 0),
		newSyntheticPrototype("a2", "angry", rising, 1),
		newSyntheticPrototype("d1", "disgust", falling, 0),
	}, 5)
	require.NoError(t, err)

	stats := model.Stats()
	assert.Equal(t, 3, stats.PrototypeCount)
	assert.Equal(t, 5, stats.K)
	require.Len(t, stats.Labels, NumLabels)
	assert.Equal(t, "neutral", stats.Labels[0].Label)
	assert.Equal(t, 2, stats.Labels[LabelIndex("angry")].Prototypes)
	assert.Equal(t, 1, stats.Labels[LabelIndex("disgust")].Prototypes)
}

func TestPrototypeModelSaveAndLoad(t *testing.T) {
	t.Parallel()

	model, err := NewPrototypeModel([]Prototype{
		newSyntheticPrototype("h1", "happy", rising, 0),
		newSyntheticPrototype("s1", "sad", falling, 0),
	}, 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "prototypes.json")
	require.NoError(t, model.Save(path))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := LoadPrototypeModel(path, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Stats().PrototypeCount)

	query := syntheticTensor(features.TimeFrames, falling)
	want, err := model.Predict(context.Background(), query)
	require.NoError(t, err)
	got, err := loaded.Predict(context.Background(), query)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestBuildPrototypeID(t *testing.T) {
	t.Parallel()

	id := buildPrototypeID("Very Angry!")
	assert.Regexp(t, `^proto_very_angry_[0-9a-f]{8}$`, id)
	assert.Regexp(t, `^proto_prototype_[0-9a-f]{8}$`, buildPrototypeID("!!!"))
}
