package repo

import (
	"time"

	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GenerationRepository handles AI generation and job data access
type GenerationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation repository
func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// CreateGeneration creates a generation record
func (r *GenerationRepository) CreateGeneration(gen *models.ProductAiGeneration) error {
	return r.db.Create(gen).Error
}

// GetGeneration gets a generation by ID
func (r *GenerationRepository) GetGeneration(id uuid.UUID) (*models.ProductAiGeneration, error) {
	var gen models.ProductAiGeneration
	if err := r.db.Where("id = ?", id).First(&gen).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

// UpdateGeneration updates a generation record
func (r *GenerationRepository) UpdateGeneration(gen *models.ProductAiGeneration) error {
	return r.db.Save(gen).Error
}

// MarkPublished stamps a generation as pushed to the store
func (r *GenerationRepository) MarkPublished(id uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&models.ProductAiGeneration{}).
		Where("id = ?", id).
		Update("published_at", now).Error
}

// ListByProduct lists generations for a feed product, newest first
func (r *GenerationRepository) ListByProduct(productID uuid.UUID, limit, offset int) ([]models.ProductAiGeneration, int64, error) {
	var gens []models.ProductAiGeneration
	var total int64

	query := r.db.Model(&models.ProductAiGeneration{}).Where("product_id = ?", productID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&gens).Error
	if err != nil {
		return nil, 0, err
	}
	return gens, total, nil
}

// CreateJob creates a job row for a generation
func (r *GenerationRepository) CreateJob(job *models.ProductAiJob) error {
	return r.db.Create(job).Error
}

// GetJob gets a job by ID
func (r *GenerationRepository) GetJob(id uuid.UUID) (*models.ProductAiJob, error) {
	var job models.ProductAiJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkJobProcessing moves a job to processing and stamps its start
func (r *GenerationRepository) MarkJobProcessing(id uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&models.ProductAiJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.AiJobStatusProcessing,
			"started_at": now,
		}).Error
}

// UpdateJobProgress records task progress between 0 and 100
func (r *GenerationRepository) UpdateJobProgress(id uuid.UUID, progress int) error {
	return r.db.Model(&models.ProductAiJob{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

// MarkJobCompleted moves a job to its successful terminal state
func (r *GenerationRepository) MarkJobCompleted(id uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&models.ProductAiJob{}).
		Where("id = ? AND status = ?", id, models.AiJobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.AiJobStatusCompleted,
			"progress":     100,
			"completed_at": now,
		}).Error
}

// MarkJobFailed persists a terminal failure. Idempotent: re-recording the
// same failure after retry exhaustion is a no-op update.
func (r *GenerationRepository) MarkJobFailed(id uuid.UUID, message string) error {
	now := time.Now()
	return r.db.Model(&models.ProductAiJob{}).
		Where("id = ? AND status <> ?", id, models.AiJobStatusCompleted).
		Updates(map[string]interface{}{
			"status":        models.AiJobStatusFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
}
