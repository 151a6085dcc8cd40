package services

import (
	"context"
	"fmt"
	"strings"

	"magnifiq/internal/ai"
	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AIResolver resolves feature-bound AI adapters
type AIResolver interface {
	ForFeature(feature string) (ai.Provider, string, error)
	DriverForFeature(feature string) (string, error)
}

// GenerationStore is the persistence for generations and their jobs
type GenerationStore interface {
	GetGeneration(id uuid.UUID) (*models.ProductAiGeneration, error)
	UpdateGeneration(gen *models.ProductAiGeneration) error
	MarkJobProcessing(id uuid.UUID) error
	UpdateJobProgress(id uuid.UUID, progress int) error
	MarkJobCompleted(id uuid.UUID) error
	MarkJobFailed(id uuid.UUID, message string) error
}

// ProductStore loads mirrored feed products
type ProductStore interface {
	GetProduct(id uuid.UUID) (*models.FeedProduct, error)
}

// ImageUploader stores generated image bytes and returns their URL
type ImageUploader interface {
	UploadGeneratedImage(connectionID, productID uuid.UUID, payload *ai.ImagePayload) (string, error)
}

// GenerationService executes AI content generation jobs: it resolves the
// feature-bound adapter, runs the normalized request and persists the
// normalized result with provider/model provenance.
type GenerationService struct {
	manager     AIResolver
	generations GenerationStore
	products    ProductStore
	uploader    ImageUploader
}

// NewGenerationService creates a generation service
func NewGenerationService(manager AIResolver, generations GenerationStore, products ProductStore, uploader ImageUploader) *GenerationService {
	return &GenerationService{
		manager:     manager,
		generations: generations,
		products:    products,
		uploader:    uploader,
	}
}

// Run executes one generation job end to end. Failures are persisted on
// the job row and returned so the queue's retry policy can reschedule.
func (s *GenerationService) Run(ctx context.Context, generationID, jobID uuid.UUID) error {
	gen, err := s.generations.GetGeneration(generationID)
	if err != nil {
		return fmt.Errorf("failed to load generation: %w", err)
	}
	if err := s.generations.MarkJobProcessing(jobID); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if err := s.generations.UpdateJobProgress(jobID, 25); err != nil {
		log.Warn().Err(err).Str("job_id", jobID.String()).Msg("failed to update job progress")
	}

	if err := s.execute(ctx, gen); err != nil {
		log.Error().
			Err(err).
			Str("generation_id", generationID.String()).
			Str("feature", gen.Feature).
			Msg("AI generation failed")
		if persistErr := s.generations.MarkJobFailed(jobID, err.Error()); persistErr != nil {
			log.Error().Err(persistErr).Str("job_id", jobID.String()).Msg("failed to persist job error")
		}
		return err
	}

	if err := s.generations.UpdateJobProgress(jobID, 90); err != nil {
		log.Warn().Err(err).Str("job_id", jobID.String()).Msg("failed to update job progress")
	}
	if err := s.generations.UpdateGeneration(gen); err != nil {
		return fmt.Errorf("failed to persist generation result: %w", err)
	}
	return s.generations.MarkJobCompleted(jobID)
}

// RecordTerminalFailure is the queue's terminal failure hook for
// generation jobs. MarkJobFailed is idempotent.
func (s *GenerationService) RecordTerminalFailure(jobID uuid.UUID, cause error) {
	if err := s.generations.MarkJobFailed(jobID, cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to persist terminal job failure")
	}
}

func (s *GenerationService) execute(ctx context.Context, gen *models.ProductAiGeneration) error {
	product, err := s.products.GetProduct(gen.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	provider, model, err := s.manager.ForFeature(gen.Feature)
	if err != nil {
		return err
	}
	gen.Provider = provider.Name()
	gen.Model = model

	switch gen.Type {
	case models.GenerationTypeText:
		return s.generateText(ctx, gen, product, provider, model)
	case models.GenerationTypeImage:
		return s.generateImage(ctx, gen, product, provider, model)
	default:
		return &ai.ValidationError{Reason: fmt.Sprintf("unknown generation type %q", gen.Type)}
	}
}

func (s *GenerationService) generateText(ctx context.Context, gen *models.ProductAiGeneration, product *models.FeedProduct, provider ai.Provider, model string) error {
	if !provider.SupportsChatCompletion() {
		return &ai.ConfigError{Key: gen.Feature, Reason: "configured driver does not support chat completion"}
	}

	prompt := gen.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultTextPrompt(product, gen.Language)
	}

	var userMessage ai.ChatMessage
	if gen.Feature == "vision" && product.ImageURL != "" {
		userMessage = ai.UserMessageParts(
			ai.TextPart(prompt),
			ai.ImageURLPart(product.ImageURL),
		)
	} else {
		userMessage = ai.UserMessage(prompt)
	}

	resp, err := provider.Chat(ctx, &ai.ChatRequest{
		Messages: []ai.ChatMessage{
			ai.SystemMessage(textSystemPrompt(gen.Language)),
			userMessage,
		},
		Model: model,
	})
	if err != nil {
		return err
	}
	if resp.WasTruncated() {
		log.Warn().
			Str("generation_id", gen.ID.String()).
			Str("finish_reason", resp.FinishReason).
			Msg("generated content was truncated by token limit")
	}

	gen.Content = resp.Content
	if resp.Model != "" {
		gen.Model = resp.Model
	}
	return nil
}

func (s *GenerationService) generateImage(ctx context.Context, gen *models.ProductAiGeneration, product *models.FeedProduct, provider ai.Provider, model string) error {
	if !provider.SupportsImageGeneration() {
		return &ai.ConfigError{Key: gen.Feature, Reason: "configured driver does not support image generation"}
	}

	prompt := gen.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = fmt.Sprintf("Professional product photo of %s on a clean studio background", product.Title)
	}

	req := &ai.ImageGenerationRequest{
		Prompt: prompt,
		Model:  model,
	}
	if product.ImageURL != "" {
		req.InputImages = []string{product.ImageURL}
	}

	resp, err := provider.GenerateImage(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Images) == 0 {
		return &ai.ValidationError{Reason: "provider returned no images"}
	}
	if s.uploader == nil {
		return &ai.ConfigError{Key: "storage", Reason: "image storage is not configured"}
	}

	url, err := s.uploader.UploadGeneratedImage(gen.ConnectionID, gen.ProductID, resp.Images[0])
	if err != nil {
		return err
	}
	gen.ImageURL = url
	return nil
}

func textSystemPrompt(language string) string {
	return fmt.Sprintf(
		"You are an e-commerce copywriter. Write compelling, factual product content in the language with code %q. Return only the content itself, no preamble.",
		language,
	)
}

func defaultTextPrompt(product *models.FeedProduct, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a product description for %q", product.Title)
	if product.Brand != "" {
		fmt.Fprintf(&b, " by %s", product.Brand)
	}
	if product.Description != "" {
		fmt.Fprintf(&b, ".\n\nExisting description:\n%s", product.Description)
	}
	fmt.Fprintf(&b, "\n\nTarget language: %s", language)
	return b.String()
}
