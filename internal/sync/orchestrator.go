package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"magnifiq/internal/repo"
	"magnifiq/internal/store"
	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrSyncInProgress means another sync run holds the connection's
// advisory lock. The run is skipped, not failed.
var ErrSyncInProgress = errors.New("sync already in progress for this connection")

// ConnectionStore is the persistence the orchestrator needs for
// connection rows
type ConnectionStore interface {
	GetByID(id uuid.UUID) (*models.StoreConnection, error)
	UpdateStatus(id uuid.UUID, status models.StoreConnectionStatus, lastError *string) error
	MarkSynced(id uuid.UUID) error
	TryLock(id uuid.UUID) (bool, error)
	Unlock(id uuid.UUID) error
}

// SyncJobStore is the persistence for per-attempt job rows
type SyncJobStore interface {
	Create(job *models.StoreSyncJob) error
	MarkCompleted(id uuid.UUID, counts repo.SyncCounts) error
	MarkFailed(id uuid.UUID, message string) error
}

// FeedStore is the persistence for the local product mirror
type FeedStore interface {
	EnsureFeed(connectionID uuid.UUID, name string) (*models.ProductFeed, error)
	SKUIndex(feedID uuid.UUID) (map[string]uuid.UUID, error)
	UpsertBatch(rows []*models.FeedProduct) error
	DeleteStale(feedID uuid.UUID, ids []uuid.UUID) (int, error)
}

// AdapterResolver resolves a platform adapter by name
type AdapterResolver interface {
	Platform(name string) (store.Adapter, error)
}

// Orchestrator drives one full product sync for a connection: connection
// test, paginated fetch, batched upserts, stale-row deletion and status
// bookkeeping.
type Orchestrator struct {
	connections ConnectionStore
	jobs        SyncJobStore
	feeds       FeedStore
	stores      AdapterResolver
	batchSize   int
}

// NewOrchestrator creates a sync orchestrator
func NewOrchestrator(connections ConnectionStore, jobs SyncJobStore, feeds FeedStore, stores AdapterResolver, batchSize int) *Orchestrator {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Orchestrator{
		connections: connections,
		jobs:        jobs,
		feeds:       feeds,
		stores:      stores,
		batchSize:   batchSize,
	}
}

// Run executes one sync attempt for a connection. Failures are persisted
// on the connection and the job row, then returned so the queue's retry
// policy can reschedule.
func (o *Orchestrator) Run(ctx context.Context, connectionID uuid.UUID) (repo.SyncCounts, error) {
	conn, err := o.connections.GetByID(connectionID)
	if err != nil {
		return repo.SyncCounts{}, fmt.Errorf("failed to load connection: %w", err)
	}

	acquired, err := o.connections.TryLock(connectionID)
	if err != nil {
		return repo.SyncCounts{}, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		log.Info().
			Str("connection_id", connectionID.String()).
			Msg("sync skipped, another run holds the lock")
		return repo.SyncCounts{}, ErrSyncInProgress
	}
	defer func() {
		if unlockErr := o.connections.Unlock(connectionID); unlockErr != nil {
			log.Error().Err(unlockErr).Str("connection_id", connectionID.String()).Msg("failed to release sync lock")
		}
	}()

	now := time.Now()
	job := &models.StoreSyncJob{
		ConnectionID: connectionID,
		Status:       models.StoreSyncJobStatusProcessing,
		StartedAt:    &now,
	}
	if err := o.jobs.Create(job); err != nil {
		return repo.SyncCounts{}, fmt.Errorf("failed to create sync job: %w", err)
	}
	if err := o.connections.UpdateStatus(connectionID, models.StoreConnectionStatusSyncing, nil); err != nil {
		return repo.SyncCounts{}, fmt.Errorf("failed to mark connection syncing: %w", err)
	}

	counts, err := o.runSync(ctx, conn)
	if err != nil {
		o.persistFailure(connectionID, job.ID, err)
		return counts, err
	}

	if err := o.jobs.MarkCompleted(job.ID, counts); err != nil {
		return counts, fmt.Errorf("failed to complete sync job: %w", err)
	}
	if err := o.connections.MarkSynced(connectionID); err != nil {
		return counts, fmt.Errorf("failed to mark connection synced: %w", err)
	}

	log.Info().
		Str("connection_id", connectionID.String()).
		Int("synced", counts.Synced).
		Int("created", counts.Created).
		Int("updated", counts.Updated).
		Int("deleted", counts.Deleted).
		Msg("store sync completed")
	return counts, nil
}

func (o *Orchestrator) runSync(ctx context.Context, conn *models.StoreConnection) (repo.SyncCounts, error) {
	var counts repo.SyncCounts

	adapter, err := o.stores.Platform(conn.Platform)
	if err != nil {
		return counts, err
	}

	if !adapter.TestConnection(ctx, conn) {
		return counts, &store.AuthError{
			Platform: conn.Platform,
			Message:  "connection test failed, access token invalid or store unreachable",
		}
	}

	feed, err := o.feeds.EnsureFeed(conn.ID, conn.StoreIdentifier)
	if err != nil {
		return counts, fmt.Errorf("failed to ensure product feed: %w", err)
	}

	baseline, err := o.feeds.SKUIndex(feed.ID)
	if err != nil {
		return counts, fmt.Errorf("failed to snapshot existing SKUs: %w", err)
	}

	seen := make(map[string]bool)
	batch := make([]*models.FeedProduct, 0, o.batchSize)
	iterator := adapter.FetchProducts(conn)

	for {
		product, err := iterator.Next(ctx)
		if errors.Is(err, store.ErrIteratorDone) {
			break
		}
		if err != nil {
			return counts, fmt.Errorf("product fetch failed: %w", err)
		}
		if seen[product.SKU] {
			continue
		}
		seen[product.SKU] = true

		row, err := mapFeedProduct(feed.ID, product)
		if err != nil {
			return counts, err
		}
		if existingID, ok := baseline[product.SKU]; ok {
			row.ID = existingID
			counts.Updated++
		} else {
			counts.Created++
		}
		batch = append(batch, row)

		if len(batch) >= o.batchSize {
			if err := o.feeds.UpsertBatch(batch); err != nil {
				return counts, fmt.Errorf("failed to upsert product batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := o.feeds.UpsertBatch(batch); err != nil {
			return counts, fmt.Errorf("failed to upsert product batch: %w", err)
		}
	}

	var staleIDs []uuid.UUID
	for sku, id := range baseline {
		if !seen[sku] {
			staleIDs = append(staleIDs, id)
		}
	}
	if len(seen) == 0 && len(staleIDs) > 0 {
		// an empty successful fetch is taken to mean the store genuinely
		// has no products, so the whole local mirror goes away
		log.Warn().
			Str("connection_id", conn.ID.String()).
			Int("stale", len(staleIDs)).
			Msg("remote catalog is empty, deleting entire local mirror")
	}
	deleted, err := o.feeds.DeleteStale(feed.ID, staleIDs)
	if err != nil {
		return counts, fmt.Errorf("failed to delete stale products: %w", err)
	}

	counts.Synced = len(seen)
	counts.Deleted = deleted
	return counts, nil
}

// persistFailure records a failed attempt on both the connection and the
// job row
func (o *Orchestrator) persistFailure(connectionID, jobID uuid.UUID, cause error) {
	friendly := FriendlyMessage(cause)
	if err := o.connections.UpdateStatus(connectionID, models.StoreConnectionStatusError, &friendly); err != nil {
		log.Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to persist connection error")
	}
	message := cause.Error()
	if err := o.jobs.MarkFailed(jobID, message); err != nil {
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to persist sync job error")
	}
}

// RecordTerminalFailure is the queue's terminal failure hook: after the
// retry schedule is exhausted the last error is persisted once more.
// MarkFailed and UpdateStatus are both idempotent, so re-recording the
// same failure is harmless.
func (o *Orchestrator) RecordTerminalFailure(connectionID uuid.UUID, cause error) {
	if errors.Is(cause, ErrSyncInProgress) {
		return
	}
	friendly := FriendlyMessage(cause)
	if err := o.connections.UpdateStatus(connectionID, models.StoreConnectionStatusError, &friendly); err != nil {
		log.Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to persist terminal sync failure")
	}
}

// mapFeedProduct converts a normalized remote product into its mirrored
// row shape
func mapFeedProduct(feedID uuid.UUID, product *store.StoreProduct) (*models.FeedProduct, error) {
	additional := "[]"
	if len(product.AdditionalImages) > 0 {
		encoded, err := json.Marshal(product.AdditionalImages)
		if err != nil {
			return nil, fmt.Errorf("failed to encode additional images: %w", err)
		}
		additional = string(encoded)
	}

	metadata := "{}"
	if len(product.Metadata) > 0 {
		encoded, err := json.Marshal(product.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode product metadata: %w", err)
		}
		metadata = string(encoded)
	}

	return &models.FeedProduct{
		FeedID:           feedID,
		ExternalID:       product.ExternalID,
		SKU:              product.SKU,
		Title:            product.Title,
		Description:      product.Description,
		Brand:            product.Brand,
		URL:              product.URL,
		ImageURL:         product.ImageURL,
		AdditionalImages: additional,
		Price:            product.Price,
		Currency:         product.Currency,
		Inventory:        product.Inventory,
		GTIN:             product.GTIN,
		Metadata:         metadata,
	}, nil
}
