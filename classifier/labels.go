package classifier

import (
	"fmt"
	"math"
	"sort"
)

// NumLabels is the width of every probability vector.
const NumLabels = 6

var labels = [NumLabels]string{"neutral", "happy", "sad", "angry", "fearful", "disgust"}

var labelEmoji = map[string]string{
	"happy":   "😊",
	"sad":     "😢",
	"angry":   "😠",
	"fearful": "😨",
	"disgust": "😒",
	"neutral": "😐",
}

const (
	defaultEmoji     = "🎤"
	probabilityDrift = 1e-3
)

// Labels returns the emotion labels in model output order.
func Labels() []string {
	return append([]string(nil), labels[:]...)
}

// LabelIndex returns the output position of label, or -1.
func LabelIndex(label string) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Emoji returns the display glyph for label.
func Emoji(label string) string {
	if e, ok := labelEmoji[label]; ok {
		return e
	}
	return defaultEmoji
}

// LabelProbability pairs a label with its probability for display.
type LabelProbability struct {
	Label       string  `json:"label"`
	Emoji       string  `json:"emoji"`
	Probability float64 `json:"probability"`
}

// PredictionResult is the classifier outcome handed to presentation.
type PredictionResult struct {
	Label         string             `json:"label"`
	Emoji         string             `json:"emoji"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	// Ranked is sorted by descending probability; ties keep label order.
	Ranked []LabelProbability `json:"ranked"`
}

// NewPredictionResult validates a probability vector against the label set
// and picks the most likely label. The first maximum wins ties.
func NewPredictionResult(probs []float64) (PredictionResult, error) {
	if len(probs) != NumLabels {
		return PredictionResult{}, &ContractMismatchError{
			Reason: fmt.Sprintf("probability vector has %d entries, want %d", len(probs), NumLabels),
		}
	}

	var sum float64
	best := 0
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < -probabilityDrift || p > 1+probabilityDrift {
			return PredictionResult{}, &ContractMismatchError{
				Reason: fmt.Sprintf("probability for %q is %v, outside [0, 1]", labels[i], p),
			}
		}
		sum += p
		if p > probs[best] {
			best = i
		}
	}
	if math.Abs(sum-1) > probabilityDrift {
		return PredictionResult{}, &ContractMismatchError{
			Reason: fmt.Sprintf("probabilities sum to %.6f, want 1", sum),
		}
	}

	result := PredictionResult{
		Label:         labels[best],
		Emoji:         Emoji(labels[best]),
		Confidence:    probs[best],
		Probabilities: make(map[string]float64, NumLabels),
		Ranked:        make([]LabelProbability, NumLabels),
	}
	for i, p := range probs {
		result.Probabilities[labels[i]] = p
		result.Ranked[i] = LabelProbability{Label: labels[i], Emoji: Emoji(labels[i]), Probability: p}
	}
	sort.SliceStable(result.Ranked, func(i, j int) bool {
		return result.Ranked[i].Probability > result.Ranked[j].Probability
	})

	return result, nil
}
