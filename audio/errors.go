package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is the cause of a DecodeError raised for zero-byte or zero-sample input.
	ErrEmptyInput = errors.New("audio stream is empty")
	// ErrUnsupportedFormat is the cause of a DecodeError for containers outside the accepted set.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DecodeError reports input that cannot be parsed as audio. It is never retried;
// Error() is suitable for showing to the uploader.
type DecodeError struct {
	Source string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "cannot decode audio"
	if e.Source != "" {
		msg += fmt.Sprintf(" %q", e.Source)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(source, reason string, err error) error {
	return &DecodeError{Source: source, Reason: reason, Err: err}
}

// IsDecodeError reports whether err carries a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
