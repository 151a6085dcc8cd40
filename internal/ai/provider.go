package ai

import (
	"context"
	"time"
)

// Provider is the normalized contract every AI vendor adapter implements.
// Adapters translate normalized requests into vendor calls and vendor
// responses back into normalized DTOs; callers never see vendor protocols.
type Provider interface {
	// Name returns the stable driver name used in logs and provenance metadata
	Name() string

	SupportsChatCompletion() bool
	SupportsImageGeneration() bool

	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*ImageGenerationResponse, error)
}

// PredictionStatus is the normalized state of one async image generation job
type PredictionStatus struct {
	ID     string   `json:"id"`
	Status string   `json:"status"` // starting, processing, succeeded, failed, canceled
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// AsyncImageProvider is implemented by vendors whose image generation is
// poll-based. GenerateImage on such adapters blocks through an internal poll
// loop until completion or timeout, so callers never see the async protocol.
type AsyncImageProvider interface {
	Provider

	PredictionStatus(ctx context.Context, id string) (*PredictionStatus, error)
	PollingTimeout() time.Duration
	PollingInterval() time.Duration
}
