package ai

import (
	"context"
	"encoding/base64"
	"strings"

	"magnifiq/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

func init() {
	Register("gemini", newGeminiProvider)
}

// geminiProvider adapts the Google Gemini generative API for chat and vision
type geminiProvider struct {
	client *genai.Client
}

func newGeminiProvider(cfg config.ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Key: "gemini", Reason: "missing API key"}
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: err.Error(), Err: err}
	}
	return &geminiProvider{client: client}, nil
}

func (p *geminiProvider) Name() string                  { return "gemini" }
func (p *geminiProvider) SupportsChatCompletion() bool  { return true }
func (p *geminiProvider) SupportsImageGeneration() bool { return false }

// Chat executes a normalized chat request as a Gemini chat session. System
// messages become the system instruction; earlier turns become history and
// the final user message is sent as the prompt.
func (p *geminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := p.client.GenerativeModel(req.Model)

	var systemParts []genai.Part
	var history []*genai.Content
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, genai.Text(m.TextContent()))
			continue
		}
		parts, err := toGeminiParts(m)
		if err != nil {
			return nil, err
		}
		history = append(history, &genai.Content{
			Role:  toGeminiRole(m.Role),
			Parts: parts,
		})
	}
	if len(systemParts) > 0 {
		model.SystemInstruction = &genai.Content{Parts: systemParts}
	}

	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		model.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		model.GenerationConfig.Temperature = &temp
	}

	if len(history) == 0 {
		return nil, &ValidationError{Reason: "chat request has no non-system messages"}
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return nil, &ValidationError{Reason: "last chat message must be from the user"}
	}

	session := model.StartChat()
	session.History = history[:len(history)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: err.Error(), Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ValidationError{Reason: "gemini returned no candidates"}
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}
	if content.Len() == 0 {
		return nil, &ValidationError{Reason: "gemini returned no text content"}
	}

	out := &ChatResponse{
		Content:      content.String(),
		FinishReason: toFinishReason(candidate.FinishReason),
		Model:        req.Model,
	}
	if resp.UsageMetadata != nil {
		prompt := int(resp.UsageMetadata.PromptTokenCount)
		completion := int(resp.UsageMetadata.CandidatesTokenCount)
		total := int(resp.UsageMetadata.TotalTokenCount)
		out.PromptTokens = &prompt
		out.CompletionTokens = &completion
		out.TotalTokens = &total
	}
	return out, nil
}

// GenerateImage is unsupported; feature routing should never target this
// driver for image generation.
func (p *geminiProvider) GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*ImageGenerationResponse, error) {
	return nil, &ConfigError{Key: "gemini", Reason: "driver does not support image generation"}
}

func toGeminiRole(role Role) string {
	if role == RoleAssistant {
		return "model"
	}
	return "user"
}

// toGeminiParts maps normalized content parts, preserving order. Image URLs
// are not supported by the inline API; callers must inline base64 data.
func toGeminiParts(m ChatMessage) ([]genai.Part, error) {
	if !m.IsMultimodal() {
		return []genai.Part{genai.Text(m.Content)}, nil
	}

	var parts []genai.Part
	for _, part := range m.Parts {
		switch part.Type {
		case ContentPartTypeText:
			parts = append(parts, genai.Text(part.Text))
		case ContentPartTypeImageBase64:
			data, err := base64.StdEncoding.DecodeString(part.ImageBase64)
			if err != nil {
				return nil, &ValidationError{Reason: "invalid base64 image part"}
			}
			format := strings.TrimPrefix(part.MimeType, "image/")
			if format == "" {
				format = "png"
			}
			parts = append(parts, genai.ImageData(format, data))
		case ContentPartTypeImageURL:
			return nil, &ValidationError{Reason: "gemini driver requires inline base64 image parts"}
		}
	}
	return parts, nil
}

func toFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "max_output_tokens"
	case genai.FinishReasonSafety:
		return "safety"
	default:
		return strings.ToLower(reason.String())
	}
}
