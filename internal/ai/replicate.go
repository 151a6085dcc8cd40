package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"magnifiq/internal/config"

	"github.com/rs/zerolog/log"
)

func init() {
	Register("replicate", newReplicateProvider)
}

const (
	replicateDefaultTimeout  = 90 * time.Second
	replicateDefaultInterval = 2 * time.Second
)

// replicateProvider adapts Replicate's async prediction API. Image
// generation blocks through an internal poll loop, so callers get a
// normalized synchronous response.
type replicateProvider struct {
	baseURL         string
	apiToken        string
	httpClient      *http.Client
	pollingTimeout  time.Duration
	pollingInterval time.Duration
}

func newReplicateProvider(cfg config.ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Key: "replicate", Reason: "missing API token"}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	return &replicateProvider{
		baseURL:         baseURL,
		apiToken:        cfg.APIKey,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		pollingTimeout:  replicateDefaultTimeout,
		pollingInterval: replicateDefaultInterval,
	}, nil
}

func (p *replicateProvider) Name() string                  { return "replicate" }
func (p *replicateProvider) SupportsChatCompletion() bool  { return false }
func (p *replicateProvider) SupportsImageGeneration() bool { return true }

func (p *replicateProvider) PollingTimeout() time.Duration  { return p.pollingTimeout }
func (p *replicateProvider) PollingInterval() time.Duration { return p.pollingInterval }

// Chat is unsupported; feature routing should never target this driver for chat
func (p *replicateProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return nil, &ConfigError{Key: "replicate", Reason: "driver does not support chat completion"}
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  *string         `json:"error"`
}

// GenerateImage creates a prediction and polls until it succeeds, fails or
// the polling budget is exhausted.
func (p *replicateProvider) GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*ImageGenerationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"prompt": req.Prompt,
	}
	if len(req.InputImages) == 1 {
		input["image"] = req.InputImages[0]
	} else if len(req.InputImages) > 1 {
		input["image_input"] = req.InputImages
	}
	if req.Config != nil {
		if req.Config.AspectRatio != "" {
			input["aspect_ratio"] = req.Config.AspectRatio
		}
		if req.Config.Width > 0 {
			input["width"] = req.Config.Width
		}
		if req.Config.Height > 0 {
			input["height"] = req.Config.Height
		}
	}
	for k, v := range req.Extras {
		input[k] = v
	}

	created, err := p.createPrediction(ctx, req.Model, input)
	if err != nil {
		return nil, err
	}

	status, err := p.waitForPrediction(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	if status.Status != "succeeded" {
		return nil, &ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("prediction %s ended as %s: %s", status.ID, status.Status, status.Error),
		}
	}
	if len(status.Output) == 0 {
		return nil, &ValidationError{Reason: "replicate prediction succeeded with no output"}
	}

	payload, err := p.downloadImage(ctx, status.Output[0])
	if err != nil {
		return nil, err
	}
	return &ImageGenerationResponse{
		Images: []*ImagePayload{payload},
		Model:  req.Model,
	}, nil
}

// PredictionStatus fetches the normalized state of one prediction
func (p *replicateProvider) PredictionStatus(ctx context.Context, id string) (*PredictionStatus, error) {
	var prediction replicatePrediction
	if err := p.doJSON(ctx, http.MethodGet, "/predictions/"+id, nil, &prediction); err != nil {
		return nil, err
	}
	return normalizePrediction(&prediction), nil
}

// waitForPrediction polls until the prediction reaches a terminal state or
// the polling timeout elapses.
func (p *replicateProvider) waitForPrediction(ctx context.Context, id string) (*PredictionStatus, error) {
	deadline := time.Now().Add(p.pollingTimeout)
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		status, err := p.PredictionStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "succeeded", "failed", "canceled":
			return status, nil
		}
		if time.Now().After(deadline) {
			return nil, &ProviderError{
				Provider: p.Name(),
				Message:  fmt.Sprintf("prediction %s timed out after %s", id, p.pollingTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return nil, &ProviderError{Provider: p.Name(), Message: "polling canceled", Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (p *replicateProvider) createPrediction(ctx context.Context, model string, input map[string]interface{}) (*replicatePrediction, error) {
	body := map[string]interface{}{"input": input}
	path := "/predictions"
	if model != "" {
		// model predictions endpoint runs the latest version
		path = "/models/" + model + "/predictions"
	}

	var prediction replicatePrediction
	if err := p.doJSON(ctx, http.MethodPost, path, body, &prediction); err != nil {
		return nil, err
	}
	log.Debug().Str("prediction_id", prediction.ID).Str("model", model).Msg("Replicate prediction created")
	return &prediction, nil
}

func (p *replicateProvider) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: p.Name(), Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &ProviderError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Message:    string(data),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("failed to decode replicate response: %v", err)}
	}
	return nil
}

func (p *replicateProvider) downloadImage(ctx context.Context, url string) (*ImagePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: "failed to download prediction output"}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	return NewImagePayload(data), nil
}

// normalizePrediction flattens Replicate's polymorphic output field, which
// may be a single URL or a list of URLs.
func normalizePrediction(prediction *replicatePrediction) *PredictionStatus {
	status := &PredictionStatus{
		ID:     prediction.ID,
		Status: prediction.Status,
	}
	if prediction.Error != nil {
		status.Error = *prediction.Error
	}
	if len(prediction.Output) > 0 {
		var single string
		if err := json.Unmarshal(prediction.Output, &single); err == nil {
			status.Output = []string{single}
		} else {
			var many []string
			if err := json.Unmarshal(prediction.Output, &many); err == nil {
				status.Output = many
			}
		}
	}
	return status
}
