package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"speech-emotion/features"
)

// RemoteModel calls an exported model hosted by a TensorFlow Serving
// compatible REST endpoint.
type RemoteModel struct {
	serviceURL string
	model      string
	signature  string
	shape      Shape
	client     *http.Client
}

type predictRequest struct {
	SignatureName string        `json:"signature_name,omitempty"`
	Instances     [][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// NewRemoteModel creates a client for model served at serviceURL.
func NewRemoteModel(serviceURL, model, signature string, shape Shape, timeout time.Duration) *RemoteModel {
	if serviceURL == "" {
		serviceURL = "http://localhost:8501"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteModel{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		model:      model,
		signature:  signature,
		shape:      shape,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (rm *RemoteModel) Name() string      { return rm.model }
func (rm *RemoteModel) InputShape() Shape { return rm.shape }

func (rm *RemoteModel) modelURL() string {
	return rm.serviceURL + "/v1/models/" + url.PathEscape(rm.model)
}

// HealthCheck verifies that at least one model version is AVAILABLE.
func (rm *RemoteModel) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rm.modelURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := rm.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server unhealthy: status %d", resp.StatusCode)
	}

	var status modelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode model status: %w", err)
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("model %q has no available version", rm.model)
}

// Predict sends one tensor and returns the single probability row.
func (rm *RemoteModel) Predict(ctx context.Context, input features.Tensor) ([]float64, error) {
	body, err := json.Marshal(predictRequest{
		SignatureName: rm.signature,
		Instances:     input.Nested(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rm.modelURL()+":predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var predResp predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if predResp.Error != "" {
		return nil, fmt.Errorf("model server error: %s", predResp.Error)
	}

	if len(predResp.Predictions) != input.Shape[0] {
		return nil, &ContractMismatchError{
			Model:  rm.model,
			Reason: fmt.Sprintf("model returned %d prediction rows for a batch of %d", len(predResp.Predictions), input.Shape[0]),
		}
	}

	return predResp.Predictions[0], nil
}
