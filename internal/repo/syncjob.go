package repo

import (
	"time"

	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncJobRepository handles sync job data access
type SyncJobRepository struct {
	db *gorm.DB
}

// NewSyncJobRepository creates a new sync job repository
func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create creates a new sync job row
func (r *SyncJobRepository) Create(job *models.StoreSyncJob) error {
	return r.db.Create(job).Error
}

// GetByID gets a sync job by ID
func (r *SyncJobRepository) GetByID(id uuid.UUID) (*models.StoreSyncJob, error) {
	var job models.StoreSyncJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// SyncCounts carries the per-run bookkeeping written on completion
type SyncCounts struct {
	Synced  int
	Created int
	Updated int
	Deleted int
}

// MarkCompleted moves a processing job to completed with its counts. The
// guard on the current status keeps the terminal transition single-shot.
func (r *SyncJobRepository) MarkCompleted(id uuid.UUID, counts SyncCounts) error {
	now := time.Now()
	return r.db.Model(&models.StoreSyncJob{}).
		Where("id = ? AND status = ?", id, models.StoreSyncJobStatusProcessing).
		Updates(map[string]interface{}{
			"status":           models.StoreSyncJobStatusCompleted,
			"products_synced":  counts.Synced,
			"products_created": counts.Created,
			"products_updated": counts.Updated,
			"products_deleted": counts.Deleted,
			"completed_at":     now,
		}).Error
}

// MarkFailed moves a job to failed with an error message. Idempotent:
// re-persisting the same terminal failure is a no-op update.
func (r *SyncJobRepository) MarkFailed(id uuid.UUID, message string) error {
	now := time.Now()
	return r.db.Model(&models.StoreSyncJob{}).
		Where("id = ? AND status <> ?", id, models.StoreSyncJobStatusCompleted).
		Updates(map[string]interface{}{
			"status":        models.StoreSyncJobStatusFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
}

// ListByConnection lists sync attempts for a connection, newest first
func (r *SyncJobRepository) ListByConnection(connectionID uuid.UUID, limit, offset int) ([]models.StoreSyncJob, int64, error) {
	var jobs []models.StoreSyncJob
	var total int64

	query := r.db.Model(&models.StoreSyncJob{}).Where("connection_id = ?", connectionID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}
