package models

import (
	"time"

	"github.com/google/uuid"
)

// StoreConnectionStatus represents the lifecycle state of a store connection
type StoreConnectionStatus string

const (
	StoreConnectionStatusPending      StoreConnectionStatus = "pending"
	StoreConnectionStatusConnected    StoreConnectionStatus = "connected"
	StoreConnectionStatusSyncing      StoreConnectionStatus = "syncing"
	StoreConnectionStatusError        StoreConnectionStatus = "error"
	StoreConnectionStatusDisconnected StoreConnectionStatus = "disconnected"
)

// StoreConnection represents an OAuth-established link to an external store
// platform. Tokens are encrypted at rest.
type StoreConnection struct {
	BaseModel
	Platform        string                `gorm:"not null;index" json:"platform" validate:"required"`
	StoreIdentifier string                `gorm:"not null;uniqueIndex:uni_connections_platform_store,composite:platform" json:"store_identifier" validate:"required"`
	AccessToken     EncryptedString       `gorm:"type:text" json:"-"`
	RefreshToken    EncryptedString       `gorm:"type:text" json:"-"`
	Scopes          string                `json:"scopes"`
	Status          StoreConnectionStatus `gorm:"not null;default:'pending'" json:"status"`
	LastSyncedAt    *time.Time            `json:"last_synced_at"`
	LastError       *string               `gorm:"type:text" json:"last_error,omitempty"`
	SyncInterval    int                   `gorm:"default:3600" json:"sync_interval"` // seconds
}

// StoreSyncJobStatus represents the state of a single sync attempt
type StoreSyncJobStatus string

const (
	StoreSyncJobStatusPending    StoreSyncJobStatus = "pending"
	StoreSyncJobStatusProcessing StoreSyncJobStatus = "processing"
	StoreSyncJobStatusCompleted  StoreSyncJobStatus = "completed"
	StoreSyncJobStatusFailed     StoreSyncJobStatus = "failed"
)

// StoreSyncJob records one product sync attempt against a connection
type StoreSyncJob struct {
	BaseModel
	ConnectionID    uuid.UUID          `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"connection_id"`
	Status          StoreSyncJobStatus `gorm:"not null;default:'pending'" json:"status"`
	ProductsSynced  int                `gorm:"default:0" json:"products_synced"`
	ProductsCreated int                `gorm:"default:0" json:"products_created"`
	ProductsUpdated int                `gorm:"default:0" json:"products_updated"`
	ProductsDeleted int                `gorm:"default:0" json:"products_deleted"`
	ErrorMessage    *string            `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt       *time.Time         `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at"`

	Connection *StoreConnection `gorm:"foreignKey:ConnectionID" json:"connection,omitempty"`
}

// ProductFeed is the local mirror container for one connection's catalog
type ProductFeed struct {
	BaseModel
	ConnectionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;constraint:OnDelete:RESTRICT" json:"connection_id"`
	Name          string    `gorm:"not null" json:"name"`
	FieldMappings string    `gorm:"type:jsonb;default:'{}'" json:"field_mappings"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
}

// FeedProduct is a locally mirrored product row, keyed by SKU within a feed
type FeedProduct struct {
	BaseModel
	FeedID           uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uni_feed_products_feed_sku,composite:feed" json:"feed_id"`
	ExternalID       string    `gorm:"not null;index" json:"external_id"`
	SKU              string    `gorm:"not null;uniqueIndex:uni_feed_products_feed_sku,composite:feed" json:"sku"`
	Title            string    `gorm:"not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Brand            string    `json:"brand"`
	URL              string    `json:"url"`
	ImageURL         string    `json:"image_url"`
	AdditionalImages string    `gorm:"type:jsonb;default:'[]'" json:"additional_images"`
	Price            string    `json:"price"`
	Currency         string    `json:"currency"`
	Inventory        *int      `json:"inventory"`
	GTIN             string    `json:"gtin"`
	Metadata         string    `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	EmbeddingHash    string    `gorm:"type:varchar(64)" json:"-"`
}

// SearchText returns the combined text used for semantic indexing
func (p *FeedProduct) SearchText() string {
	text := p.Title
	if p.Brand != "" {
		text += " " + p.Brand
	}
	if p.Description != "" {
		text += " " + p.Description
	}
	return text
}
