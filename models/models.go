package models

import "time"

// RecordData is the socket payload for a browser recording or file pick.
type RecordData struct {
	Audio    string `json:"audio"`
	FileName string `json:"fileName"`
	Explain  bool   `json:"explain,omitempty"`
}

// Outcome classifies how an inference run ended.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeDecodeError      Outcome = "decode_error"
	OutcomeExtractionError  Outcome = "extraction_error"
	OutcomeContractMismatch Outcome = "contract_mismatch"
	OutcomeInferenceError   Outcome = "inference_error"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeOK,
	OutcomeDecodeError,
	OutcomeExtractionError,
	OutcomeContractMismatch,
	OutcomeInferenceError,
}

// InferenceRun is one row of the run log. It deliberately carries no audio,
// label or probability.
type InferenceRun struct {
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	SourceFormat  string    `json:"sourceFormat"`
	SourceSeconds float64   `json:"sourceSeconds"`
	SourceRate    int       `json:"sourceRate"`
	Channels      int       `json:"channels"`
	Outcome       Outcome   `json:"outcome"`
	LatencyMs     float64   `json:"latencyMs"`
}
