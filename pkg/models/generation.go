package models

import (
	"time"

	"github.com/google/uuid"
)

// AiJobStatus represents the state of an asynchronous AI task
type AiJobStatus string

const (
	AiJobStatusPending    AiJobStatus = "pending"
	AiJobStatusProcessing AiJobStatus = "processing"
	AiJobStatusCompleted  AiJobStatus = "completed"
	AiJobStatusFailed     AiJobStatus = "failed"
)

// GenerationType distinguishes what kind of content a generation produces
type GenerationType string

const (
	GenerationTypeText  GenerationType = "text"
	GenerationTypeImage GenerationType = "image"
)

// ProductAiGeneration holds one piece of AI-generated content for a feed
// product: marketing copy, a translation, or a generated image.
type ProductAiGeneration struct {
	BaseModel
	ConnectionID uuid.UUID      `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"connection_id"`
	ProductID    uuid.UUID      `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"product_id"`
	Type         GenerationType `gorm:"not null;default:'text'" json:"type"`
	Feature      string         `gorm:"not null" json:"feature"` // chat, vision, image_generation
	Language     string         `gorm:"not null;default:'en'" json:"language"`
	Prompt       string         `gorm:"type:text" json:"prompt"`
	Content      string         `gorm:"type:text" json:"content"`
	ImageURL     string         `json:"image_url"`
	Provider     string         `json:"provider"` // provenance: driver actually used
	Model        string         `json:"model"`    // provenance: model actually used
	PublishedAt  *time.Time     `json:"published_at"`

	Product    *FeedProduct     `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Connection *StoreConnection `gorm:"foreignKey:ConnectionID" json:"connection,omitempty"`
}

// ProductAiJob tracks the async execution of a generation request
type ProductAiJob struct {
	BaseModel
	GenerationID uuid.UUID   `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"generation_id"`
	Status       AiJobStatus `gorm:"not null;default:'pending'" json:"status"`
	Progress     int         `gorm:"default:0" json:"progress"` // 0-100
	ErrorMessage *string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time  `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at"`

	Generation *ProductAiGeneration `gorm:"foreignKey:GenerationID" json:"generation,omitempty"`
}
