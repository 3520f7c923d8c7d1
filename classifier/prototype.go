package classifier

// Nearest-Prototype Emotion Classifier
//
// An offline backend that needs no model server. Each prototype is a labelled
// clip reduced to pooled MFCC statistics.
//
// How It Works:
//
// 1. Pooling: the (frames, 60) tensor is collapsed to the per-coefficient mean
//    and standard deviation over time (120 values)
// 2. Scaling: every dimension is z-scored with statistics fitted on the
//    prototype set, then the vector is L2-normalised
// 3. Neighbours: cosine distance to every prototype, k nearest kept
// 4. Distribution: each neighbour votes for its label with weight
//    1 / (distance + epsilon); votes are divided by the total so the six
//    outputs sum to one. Labels without a neighbour get zero.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"speech-emotion/features"
)

// PooledDimension is the length of a pooled feature vector.
const PooledDimension = 2 * features.NumCoefficients

// Prototype is one labelled reference clip.
type Prototype struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Source   string    `json:"source,omitempty"`
	Features []float64 `json:"features"`
}

// LabelStat summarises prototype density per label.
type LabelStat struct {
	Label      string `json:"label"`
	Emoji      string `json:"emoji"`
	Prototypes int    `json:"prototypes"`
}

// ModelStats exposes metadata about the loaded prototype collection.
type ModelStats struct {
	PrototypeCount int         `json:"prototypeCount"`
	K              int         `json:"k"`
	Labels         []LabelStat `json:"labels"`
}

// PrototypeModel performs k-nearest prototype lookups over pooled MFCC statistics.
type PrototypeModel struct {
	mu         sync.RWMutex
	prototypes []Prototype
	scaled     [][]float64
	scaler     *FeatureScaler
	k          int
}

type distancePair struct {
	index    int
	distance float64
}

// Pool reduces a tensor to per-coefficient mean and standard deviation over frames.
func Pool(input features.Tensor) []float64 {
	frames, coeffs := input.Shape[1], input.Shape[2]
	pooled := make([]float64, 2*coeffs)
	if frames == 0 {
		return pooled
	}

	for c := 0; c < coeffs; c++ {
		var sum float64
		for t := 0; t < frames; t++ {
			sum += float64(input.Data[t*coeffs+c])
		}
		mean := sum / float64(frames)

		var variance float64
		for t := 0; t < frames; t++ {
			d := float64(input.Data[t*coeffs+c]) - mean
			variance += d * d
		}
		pooled[c] = mean
		pooled[coeffs+c] = math.Sqrt(variance / float64(frames))
	}
	return pooled
}

// NewPrototypeModel validates prototypes and fits the scaler.
func NewPrototypeModel(prototypes []Prototype, k int) (*PrototypeModel, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbour count: %d", k)
	}
	for _, proto := range prototypes {
		if err := validatePrototype(proto); err != nil {
			return nil, err
		}
	}

	pm := &PrototypeModel{k: k}
	pm.prototypes = append([]Prototype(nil), prototypes...)
	if err := pm.refit(); err != nil {
		return nil, err
	}
	return pm, nil
}

// LoadPrototypeModel reads a JSON prototype array from path.
func LoadPrototypeModel(path string, k int) (*PrototypeModel, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load prototypes (%s): %w", path, err)
	}

	var prototypes []Prototype
	if err := json.Unmarshal(data, &prototypes); err != nil {
		return nil, fmt.Errorf("unable to parse prototypes: %w", err)
	}
	return NewPrototypeModel(prototypes, k)
}

func validatePrototype(proto Prototype) error {
	if LabelIndex(proto.Label) < 0 {
		return &ContractMismatchError{
			Model:  "prototypes",
			Reason: fmt.Sprintf("prototype %s has label %q outside the label set", proto.ID, proto.Label),
		}
	}
	if len(proto.Features) != PooledDimension {
		return &ContractMismatchError{
			Model:  "prototypes",
			Reason: fmt.Sprintf("prototype %s has %d features, expected %d", proto.ID, len(proto.Features), PooledDimension),
		}
	}
	return nil
}

// refit recomputes the scaler and scaled vectors. Callers hold mu or own pm exclusively.
func (pm *PrototypeModel) refit() error {
	pm.scaled = nil
	pm.scaler = nil
	if len(pm.prototypes) == 0 {
		return nil
	}

	raw := make([][]float64, len(pm.prototypes))
	for i, proto := range pm.prototypes {
		raw[i] = proto.Features
	}
	scaler, err := NewFeatureScaler(raw)
	if err != nil {
		return fmt.Errorf("failed to fit feature scaler: %w", err)
	}

	scaled := make([][]float64, len(raw))
	for i, v := range raw {
		s := scaler.Transform(v)
		NormaliseVectorInPlace(s)
		scaled[i] = s
	}
	pm.scaler = scaler
	pm.scaled = scaled
	return nil
}

func (pm *PrototypeModel) Name() string      { return "prototypes" }
func (pm *PrototypeModel) InputShape() Shape { return PipelineShape }

// AddPrototype registers proto and refits the scaler over the whole set.
func (pm *PrototypeModel) AddPrototype(proto Prototype) error {
	if err := validatePrototype(proto); err != nil {
		return err
	}
	proto.Features = append([]float64(nil), proto.Features...)

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.prototypes = append(pm.prototypes, proto)
	return pm.refit()
}

// Predict returns a distribution over Labels() for input.
func (pm *PrototypeModel) Predict(ctx context.Context, input features.Tensor) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := Pool(input)

	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if len(pm.prototypes) == 0 {
		return nil, errors.New("prototype model has no prototypes")
	}

	query = pm.scaler.Transform(query)
	NormaliseVectorInPlace(query)

	distances := make([]distancePair, len(pm.scaled))
	for i, proto := range pm.scaled {
		distances[i] = distancePair{index: i, distance: 1 - cosineSimilarity(query, proto)}
	}
	sort.SliceStable(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	k := min(pm.k, len(distances))
	probs := make([]float64, NumLabels)
	var total float64
	for _, neighbour := range distances[:k] {
		weight := 1.0 / (math.Max(neighbour.distance, 0) + 1e-9)
		probs[LabelIndex(pm.prototypes[neighbour.index].Label)] += weight
		total += weight
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, nil
}

// Stats returns per-label prototype counts in label order.
func (pm *PrototypeModel) Stats() ModelStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	counts := make([]int, NumLabels)
	for _, proto := range pm.prototypes {
		counts[LabelIndex(proto.Label)]++
	}

	stats := ModelStats{PrototypeCount: len(pm.prototypes), K: pm.k}
	for i, label := range labels {
		stats.Labels = append(stats.Labels, LabelStat{Label: label, Emoji: Emoji(label), Prototypes: counts[i]})
	}
	return stats
}

// Save writes the raw prototypes to path atomically.
func (pm *PrototypeModel) Save(path string) error {
	pm.mu.RLock()
	data, err := json.MarshalIndent(pm.prototypes, "", "  ")
	pm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal prototypes: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write prototypes: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
