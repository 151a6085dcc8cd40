package repo

import (
	"errors"

	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedRepository handles product feed and mirrored product data access
type FeedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// defaultFieldMappings is the schema a feed starts with on first sync
const defaultFieldMappings = `{"title":"title","description":"description","brand":"brand","price":"price","image":"image_url"}`

// EnsureFeed returns the feed backing a connection, creating it on the
// first sync.
func (r *FeedRepository) EnsureFeed(connectionID uuid.UUID, name string) (*models.ProductFeed, error) {
	var feed models.ProductFeed
	err := r.db.Where("connection_id = ?", connectionID).First(&feed).Error
	if err == nil {
		return &feed, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	feed = models.ProductFeed{
		ConnectionID:  connectionID,
		Name:          name,
		FieldMappings: defaultFieldMappings,
		IsActive:      true,
	}
	if err := r.db.Create(&feed).Error; err != nil {
		return nil, err
	}
	return &feed, nil
}

// GetFeed loads a feed by ID
func (r *FeedRepository) GetFeed(id uuid.UUID) (*models.ProductFeed, error) {
	var feed models.ProductFeed
	if err := r.db.First(&feed, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &feed, nil
}

// SKUIndex snapshots the feed's existing SKUs into a map of sku to row
// ID. This is the diff baseline for a sync run.
func (r *FeedRepository) SKUIndex(feedID uuid.UUID) (map[string]uuid.UUID, error) {
	var rows []struct {
		ID  uuid.UUID
		SKU string
	}
	err := r.db.Model(&models.FeedProduct{}).
		Select("id", "sku").
		Where("feed_id = ?", feedID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	index := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		index[row.SKU] = row.ID
	}
	return index, nil
}

// UpsertBatch writes one batch of mirrored products in a single
// transaction. Rows with a non-zero ID update in place, the rest are
// inserted. A crash mid-batch loses at most this batch.
func (r *FeedRepository) UpsertBatch(rows []*models.FeedProduct) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if row.ID != uuid.Nil {
				if err := tx.Omit("embedding_hash").Save(row).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteStale removes mirrored rows by ID and returns how many went away.
// The delete is unscoped: the feed/SKU unique index has no deleted_at
// predicate, so a soft-deleted row would block the same SKU from being
// recreated when the store brings the product back.
func (r *FeedRepository) DeleteStale(feedID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Unscoped().Where("feed_id = ? AND id IN ?", feedID, ids).Delete(&models.FeedProduct{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// GetProduct gets one mirrored product by ID
func (r *FeedRepository) GetProduct(id uuid.UUID) (*models.FeedProduct, error) {
	var product models.FeedProduct
	if err := r.db.Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySKU gets one mirrored product by feed and SKU
func (r *FeedRepository) GetProductBySKU(feedID uuid.UUID, sku string) (*models.FeedProduct, error) {
	var product models.FeedProduct
	err := r.db.Where("feed_id = ? AND sku = ?", feedID, sku).First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts lists mirrored products for a feed with pagination
func (r *FeedRepository) ListProducts(feedID uuid.UUID, limit, offset int) ([]models.FeedProduct, int64, error) {
	var products []models.FeedProduct
	var total int64

	query := r.db.Model(&models.FeedProduct{}).Where("feed_id = ?", feedID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateEmbeddingHash records the hash of the last indexed search text
func (r *FeedRepository) UpdateEmbeddingHash(id uuid.UUID, hash string) error {
	return r.db.Model(&models.FeedProduct{}).
		Where("id = ?", id).
		Update("embedding_hash", hash).Error
}
