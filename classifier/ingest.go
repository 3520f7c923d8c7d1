package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"speech-emotion/audio"
	"speech-emotion/features"
	"speech-emotion/utils"
)

// BuildPrototypeFromPath runs a labelled clip through the same normalisation
// and extraction used at inference time and pools the result.
func BuildPrototypeFromPath(ctx context.Context, normalizer *audio.Normalizer, extractor *features.Extractor, path, label string) (Prototype, error) {
	if label == "" {
		return Prototype{}, errors.New("label is required")
	}
	if LabelIndex(label) < 0 {
		return Prototype{}, fmt.Errorf("unknown emotion label %q", label)
	}

	waveform, _, err := normalizer.NormalizeFile(ctx, path)
	if err != nil {
		return Prototype{}, fmt.Errorf("failed to normalize audio: %w", err)
	}

	tensor, err := extractor.ExtractTensor(waveform)
	if err != nil {
		return Prototype{}, fmt.Errorf("failed to extract features: %w", err)
	}

	return Prototype{
		ID:       buildPrototypeID(label),
		Label:    label,
		Source:   path,
		Features: Pool(tensor),
	}, nil
}

func buildPrototypeID(label string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r + 32
		case r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, label)

	if safe == "" {
		safe = "prototype"
	}

	return fmt.Sprintf("proto_%s_%08x", safe, utils.GenerateUniqueID())
}
