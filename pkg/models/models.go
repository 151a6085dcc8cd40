package models

// PaginationResult represents paginated results
type PaginationResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// GetAllModels returns all models for GORM AutoMigrate
func GetAllModels() []interface{} {
	return []interface{}{
		// Store sync models
		&StoreConnection{},
		&StoreSyncJob{},
		&ProductFeed{},
		&FeedProduct{},

		// AI content models
		&ProductAiGeneration{},
		&ProductAiJob{},

		// Accounts
		&User{},
	}
}
