package ai

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"magnifiq/internal/config"

	"github.com/sashabaranov/go-openai"
)

func init() {
	Register("openai", newOpenAIProvider)
}

// openAIProvider adapts the OpenAI chat-completion and image APIs
type openAIProvider struct {
	client *openai.Client
}

func newOpenAIProvider(cfg config.ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Key: "openai", Reason: "missing API key"}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false, // keep security but use system certs
			},
		},
	}

	return &openAIProvider{client: openai.NewClientWithConfig(clientConfig)}, nil
}

func (p *openAIProvider) Name() string                  { return "openai" }
func (p *openAIProvider) SupportsChatCompletion() bool  { return true }
func (p *openAIProvider) SupportsImageGeneration() bool { return true }

// Chat executes a normalized chat request against the chat completions API
func (p *openAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	vendorReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		vendorReq.Messages = append(vendorReq.Messages, toOpenAIMessage(m))
	}

	resp, err := p.client.CreateChatCompletion(ctx, vendorReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ValidationError{Reason: "openai returned no choices"}
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Raw: map[string]interface{}{
			"id":      resp.ID,
			"object":  resp.Object,
			"created": resp.Created,
		},
	}

	prompt := resp.Usage.PromptTokens
	completion := resp.Usage.CompletionTokens
	out.PromptTokens = &prompt
	out.CompletionTokens = &completion
	if resp.Usage.TotalTokens > 0 {
		total := resp.Usage.TotalTokens
		out.TotalTokens = &total
	}

	return out, nil
}

// toOpenAIMessage maps a normalized message, preserving multimodal part order
func toOpenAIMessage(m ChatMessage) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: string(m.Role)}
	if !m.IsMultimodal() {
		msg.Content = m.Content
		return msg
	}

	for _, part := range m.Parts {
		switch part.Type {
		case ContentPartTypeText:
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case ContentPartTypeImageURL:
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: part.ImageURL,
				},
			})
		case ContentPartTypeImageBase64:
			mimeType := part.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mimeType, part.ImageBase64),
				},
			})
		}
	}
	return msg
}

// GenerateImage executes a text-to-image request against the images API
func (p *openAIProvider) GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*ImageGenerationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.InputImages) > 0 {
		return nil, &ValidationError{Reason: "openai driver does not support image-to-image input"}
	}

	vendorReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		Size:           imageSizeFor(req.Config),
	}

	resp, err := p.client.CreateImage(ctx, vendorReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &ValidationError{Reason: "openai returned no image data"}
	}

	out := &ImageGenerationResponse{Model: req.Model}
	for _, item := range resp.Data {
		payload, err := ImagePayloadFromBase64(item.B64JSON)
		if err != nil {
			return nil, err
		}
		out.Images = append(out.Images, payload)
	}
	return out, nil
}

// imageSizeFor maps the normalized geometry config onto OpenAI's fixed sizes
func imageSizeFor(cfg *ImageConfig) string {
	if cfg == nil {
		return openai.CreateImageSize1024x1024
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		return fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	}
	switch cfg.AspectRatio {
	case "16:9":
		return openai.CreateImageSize1792x1024
	case "9:16":
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

func (p *openAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   p.Name(),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			Provider:   p.Name(),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			Err:        err,
		}
	}
	return &ProviderError{Provider: p.Name(), Message: err.Error(), Err: err}
}
