package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPrimaryModel calls an externally hosted transformer classifier over
// HTTP, treating it strictly as an opaque scoring function: no training or
// fine-tuning logic lives in this repo. Mirrors the teacher's inference
// service client shape (request/response envelopes, bounded timeout) without
// the model-cache or ONNX-loading machinery the teacher's generic-risk
// classifier carried, which has no sentiment-domain equivalent here.
type HTTPPrimaryModel struct {
	endpoint string
	client   *http.Client
}

// NewHTTPPrimaryModel constructs a client for the primary model service. An
// empty endpoint means no primary is configured; callers should pass nil to
// scoring.New in that case instead of constructing this type.
func NewHTTPPrimaryModel(endpoint string) *HTTPPrimaryModel {
	return &HTTPPrimaryModel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type primaryRequest struct {
	Text string `json:"text"`
}

type primaryResponse struct {
	Polarity   float64 `json:"polarity"`
	Confidence float64 `json:"confidence"`
}

// Predict implements PrimaryModel.
func (m *HTTPPrimaryModel) Predict(ctx context.Context, text string) (Prediction, error) {
	body, err := json.Marshal(primaryRequest{Text: text})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("primary model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("primary model returned status %d", resp.StatusCode)
	}

	var out primaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Prediction{}, fmt.Errorf("decode primary model response: %w", err)
	}

	return Prediction{Polarity: out.Polarity, Confidence: out.Confidence}, nil
}
