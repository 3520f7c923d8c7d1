package features

import "fmt"

// ExtractionError marks a waveform that violates the fixed input contract.
// It indicates a caller defect, not bad user input.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("feature extraction contract violated: %s", e.Reason)
}
