package ai

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// Role identifies who authored a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentPartType identifies the kind of one multimodal content part
type ContentPartType string

const (
	ContentPartTypeText        ContentPartType = "text"
	ContentPartTypeImageURL    ContentPartType = "image_url"
	ContentPartTypeImageBase64 ContentPartType = "image_base64"
)

// ContentPart is one element of a multimodal message. Part order is
// significant and preserved through every adapter.
type ContentPart struct {
	Type        ContentPartType `json:"type"`
	Text        string          `json:"text,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	MimeType    string          `json:"mime_type,omitempty"`
}

// TextPart builds a text content part
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeText, Text: text}
}

// ImageURLPart builds an image-by-URL content part
func ImageURLPart(url string) ContentPart {
	return ContentPart{Type: ContentPartTypeImageURL, ImageURL: url}
}

// ImageBase64Part builds an inline base64 image content part
func ImageBase64Part(data, mimeType string) ContentPart {
	return ContentPart{Type: ContentPartTypeImageBase64, ImageBase64: data, MimeType: mimeType}
}

// ChatMessage is one normalized chat message. Content holds plain text;
// a non-empty Parts slice makes the message multimodal and takes
// precedence over Content.
type ChatMessage struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// SystemMessage builds a plain text system message
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a plain text user message
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// UserMessageParts builds a multimodal user message
func UserMessageParts(parts ...ContentPart) ChatMessage {
	return ChatMessage{Role: RoleUser, Parts: parts}
}

// IsMultimodal reports whether the message carries content parts
func (m ChatMessage) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// TextContent returns the textual content of the message. For multimodal
// messages only text parts contribute, joined by newlines in original order.
func (m ChatMessage) TextContent() string {
	if !m.IsMultimodal() {
		return m.Content
	}
	var texts []string
	for _, part := range m.Parts {
		if part.Type == ContentPartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ChatRequest is the normalized request executed by any chat-capable adapter
type ChatRequest struct {
	Messages    []ChatMessage          `json:"messages"`
	Model       string                 `json:"model,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float32                `json:"temperature,omitempty"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// Validate enforces the request invariant: at least one user message
func (r *ChatRequest) Validate() error {
	for _, m := range r.Messages {
		if m.Role == RoleUser {
			return nil
		}
	}
	return &ValidationError{Reason: "chat request needs at least one user message"}
}

// Finish reasons that mean the provider stopped on a token limit
var truncationFinishReasons = map[string]bool{
	"length":            true,
	"max_tokens":        true,
	"max_output_tokens": true,
}

// ChatResponse is the normalized result of a chat completion. Usage counts
// are pointers because providers may omit any of them independently.
type ChatResponse struct {
	Content          string                 `json:"content"`
	FinishReason     string                 `json:"finish_reason,omitempty"`
	PromptTokens     *int                   `json:"prompt_tokens,omitempty"`
	CompletionTokens *int                   `json:"completion_tokens,omitempty"`
	TotalTokens      *int                   `json:"total_tokens,omitempty"`
	Model            string                 `json:"model,omitempty"`
	Raw              map[string]interface{} `json:"-"` // provider payload kept for diagnostics
}

// WasTruncated reports whether the provider stopped generating because of a
// token limit. Truncation is not an error; callers branch on this flag.
func (r *ChatResponse) WasTruncated() bool {
	return truncationFinishReasons[r.FinishReason]
}

// GetPromptTokens returns the prompt token count, zero when absent
func (r *ChatResponse) GetPromptTokens() int {
	if r.PromptTokens == nil {
		return 0
	}
	return *r.PromptTokens
}

// GetCompletionTokens returns the completion token count, zero when absent
func (r *ChatResponse) GetCompletionTokens() int {
	if r.CompletionTokens == nil {
		return 0
	}
	return *r.CompletionTokens
}

// ImageConfig constrains generated image geometry. AspectRatio and explicit
// Width/Height are mutually exclusive.
type ImageConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Validate enforces the aspect-ratio XOR dimensions rule. Explicit
// dimensions only make sense as a pair.
func (c *ImageConfig) Validate() error {
	if c.AspectRatio != "" && (c.Width > 0 || c.Height > 0) {
		return &ValidationError{Reason: "image config cannot combine aspect ratio with explicit dimensions"}
	}
	if (c.Width > 0) != (c.Height > 0) {
		return &ValidationError{Reason: "image config needs both width and height, not just one"}
	}
	return nil
}

// ImageGenerationRequest is the normalized image generation request.
// Multiple input images mean img2img against the whole set.
type ImageGenerationRequest struct {
	Prompt      string                 `json:"prompt"`
	Model       string                 `json:"model,omitempty"`
	InputImages []string               `json:"input_images,omitempty"`
	Config      *ImageConfig           `json:"config,omitempty"`
	Temperature float32                `json:"temperature,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// Validate enforces a non-empty prompt and a coherent image config
func (r *ImageGenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Reason: "image generation prompt is required"}
	}
	if r.Config != nil {
		return r.Config.Validate()
	}
	return nil
}

// ImageGenerationResponse is the normalized result of an image generation
type ImageGenerationResponse struct {
	Images []*ImagePayload        `json:"images"`
	Model  string                 `json:"model,omitempty"`
	Raw    map[string]interface{} `json:"-"`
}

// ImagePayload holds raw generated image bytes plus metadata detected from
// the content itself. MIME is sniffed, never trusted from provider headers.
type ImagePayload struct {
	Data      []byte `json:"-"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// NewImagePayload builds a payload from raw bytes, sniffing MIME and
// best-effort pixel dimensions.
func NewImagePayload(data []byte) *ImagePayload {
	mimeType := http.DetectContentType(data)
	payload := &ImagePayload{
		Data:      data,
		MimeType:  mimeType,
		Extension: MimeToExtension(mimeType),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		payload.Width = cfg.Width
		payload.Height = cfg.Height
	}
	return payload
}

// ImagePayloadFromBase64 decodes a base64 image into a payload. Invalid
// base64 is a validation error.
func ImagePayloadFromBase64(encoded string) (*ImagePayload, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid base64 image data: %v", err)}
	}
	return NewImagePayload(data), nil
}

// ToBase64 returns the payload bytes base64-encoded
func (p *ImagePayload) ToBase64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

var mimeExtensions = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
	"image/bmp":     "bmp",
	"image/tiff":    "tiff",
}

// MimeToExtension maps a MIME type to a file extension, defaulting to a
// generic binary extension for anything unrecognized.
func MimeToExtension(mimeType string) string {
	// DetectContentType may append charset parameters
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	if ext, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return "bin"
}
