package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"magnifiq/internal/ai"
	"magnifiq/internal/auth"
	"magnifiq/internal/config"
	"magnifiq/internal/locale"
	"magnifiq/internal/queue"
	"magnifiq/internal/repo"
	"magnifiq/internal/services"
	"magnifiq/internal/store"
	syncengine "magnifiq/internal/sync"
	"magnifiq/pkg/models"
)

// Queue names. Sync work is isolated from AI work so a slow provider
// cannot starve store synchronization, and vice versa.
const (
	QueueDefault = "default"
	QueueAI      = "ai"
	QueueSync    = "sync"
)

// ProgressNotifier pushes job lifecycle events to connected dashboard
// clients. Wired in by the HTTP layer; nil until then.
type ProgressNotifier interface {
	BroadcastToConnection(connectionID string, messageType string, data interface{})
}

// Services holds all application services
type Services struct {
	Notifier ProgressNotifier

	Config *config.Config
	DB     *gorm.DB

	UserRepo       *repo.UserRepository
	ConnectionRepo *repo.ConnectionRepository
	SyncJobRepo    *repo.SyncJobRepository
	FeedRepo       *repo.FeedRepository
	GenerationRepo *repo.GenerationRepository

	AuthService       *auth.Service
	AIManager         *ai.Manager
	StoreManager      *store.Manager
	LocaleService     *locale.Service
	Queues            *queue.Manager
	Orchestrator      *syncengine.Orchestrator
	GenerationService *services.GenerationService
	PublishService    *services.PublishService
	StorageService    *services.StorageService
	EmbeddingService  *services.EmbeddingService
}

// NewServices creates a new services container
func NewServices(db *gorm.DB, cfg *config.Config) *Services {
	userRepo := repo.NewUserRepository(db)
	connectionRepo := repo.NewConnectionRepository(db)
	syncJobRepo := repo.NewSyncJobRepository(db)
	feedRepo := repo.NewFeedRepository(db)
	generationRepo := repo.NewGenerationRepository(db)

	authService := auth.NewService(userRepo)
	aiManager := ai.NewManager(cfg.AI)
	storeManager := store.NewManager(cfg.Store)
	localeService := locale.NewService(storeManager)

	orchestrator := syncengine.NewOrchestrator(connectionRepo, syncJobRepo, feedRepo, storeManager, cfg.Sync.BatchSize)

	// Generated-image storage is optional: without S3 credentials image
	// generations fail with a config error instead of panicking.
	var uploader services.ImageUploader
	storageService, err := services.NewStorageService(cfg.S3)
	if err != nil {
		log.Warn().Err(err).Msg("image storage disabled")
		storageService = nil
	} else {
		uploader = storageService
	}

	generationService := services.NewGenerationService(aiManager, generationRepo, feedRepo, uploader)
	publishService := services.NewPublishService(storeManager, localeService, generationRepo, feedRepo, connectionRepo)

	// The embedding index is optional too. It needs both an OpenAI key
	// and a reachable Qdrant instance.
	var embeddingService *services.EmbeddingService
	if apiKey := cfg.AI.Providers["openai"].APIKey; apiKey != "" && cfg.Qdrant.URL != "" {
		embeddingService, err = services.NewEmbeddingService(apiKey, cfg.Qdrant.URL, cfg.Qdrant.Password)
		if err != nil {
			log.Warn().Err(err).Msg("embedding index disabled")
			embeddingService = nil
		} else {
			log.Info().Str("qdrant_url", cfg.Qdrant.URL).Msg("embedding index enabled")
		}
	}

	queues := queue.NewManager()
	queues.AddQueue(QueueDefault, 4, 64)
	queues.AddQueue(QueueAI, 2, 64)
	queues.AddQueue(QueueSync, 2, 32)

	return &Services{
		Config:            cfg,
		DB:                db,
		UserRepo:          userRepo,
		ConnectionRepo:    connectionRepo,
		SyncJobRepo:       syncJobRepo,
		FeedRepo:          feedRepo,
		GenerationRepo:    generationRepo,
		AuthService:       authService,
		AIManager:         aiManager,
		StoreManager:      storeManager,
		LocaleService:     localeService,
		Queues:            queues,
		Orchestrator:      orchestrator,
		GenerationService: generationService,
		PublishService:    publishService,
		StorageService:    storageService,
		EmbeddingService:  embeddingService,
	}
}

// Start begins background queue processing.
func (s *Services) Start() {
	s.Queues.Start()
}

// Stop drains background processing and releases held resources.
func (s *Services) Stop() {
	s.Queues.Stop()
	if s.EmbeddingService != nil {
		s.EmbeddingService.Close()
	}
}

// DispatchSync enqueues a full product sync for a connection. Failed
// attempts retry on the configured schedule; a held sync lock skips
// silently rather than queueing a duplicate run.
func (s *Services) DispatchSync(connectionID uuid.UUID) error {
	task := &queue.Task{
		Name:          fmt.Sprintf("sync:%s", connectionID),
		Timeout:       s.Config.Sync.Timeout,
		RetrySchedule: s.Config.Sync.RetrySchedule,
		Run: func(ctx context.Context) error {
			counts, err := s.Orchestrator.Run(ctx, connectionID)
			if errors.Is(err, syncengine.ErrSyncInProgress) {
				// another run already holds the lock; retrying or
				// reporting failure would just double the work
				return nil
			}
			if err != nil {
				return err
			}
			s.notify(connectionID, "sync_completed", counts)
			s.indexFeedProducts(ctx, connectionID, counts)
			return nil
		},
		OnFailure: func(cause error) {
			s.Orchestrator.RecordTerminalFailure(connectionID, cause)
			s.notify(connectionID, "sync_failed", map[string]string{"error": cause.Error()})
		},
	}
	return s.Queues.Dispatch(QueueSync, task)
}

// DispatchGeneration enqueues an AI generation job.
func (s *Services) DispatchGeneration(generationID, jobID uuid.UUID) error {
	task := &queue.Task{
		Name:    fmt.Sprintf("generation:%s", generationID),
		Timeout: s.Config.Sync.Timeout,
		Run: func(ctx context.Context) error {
			if err := s.GenerationService.Run(ctx, generationID, jobID); err != nil {
				return err
			}
			s.notifyGeneration(generationID, jobID, "completed")
			return nil
		},
		OnFailure: func(cause error) {
			s.GenerationService.RecordTerminalFailure(jobID, cause)
			s.notifyGeneration(generationID, jobID, "failed")
		},
	}
	return s.Queues.Dispatch(QueueAI, task)
}

// DispatchPublish enqueues a metafield publish for a finished generation.
// Translations wait a short grace period so the primary description lands
// on the product first.
func (s *Services) DispatchPublish(ctx context.Context, generationID uuid.UUID) error {
	task := &queue.Task{
		Name: fmt.Sprintf("publish:%s", generationID),
		Run: func(ctx context.Context) error {
			return s.PublishService.Publish(ctx, generationID)
		},
	}

	if gen, err := s.GenerationRepo.GetGeneration(generationID); err == nil {
		if s.PublishService.IsTranslation(ctx, gen) {
			task.Delay = services.TranslationPublishDelay
		}
	}

	return s.Queues.Dispatch(QueueAI, task)
}

func (s *Services) notify(connectionID uuid.UUID, messageType string, data interface{}) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.BroadcastToConnection(connectionID.String(), messageType, data)
}

func (s *Services) notifyGeneration(generationID, jobID uuid.UUID, status string) {
	if s.Notifier == nil {
		return
	}
	gen, err := s.GenerationRepo.GetGeneration(generationID)
	if err != nil {
		return
	}
	s.notify(gen.ConnectionID, "job_progress", map[string]string{
		"job_id":        jobID.String(),
		"generation_id": generationID.String(),
		"status":        status,
	})
}

// indexFeedProducts refreshes the semantic index after a successful sync.
// Best effort: search lags behind the mirror rather than failing the sync.
func (s *Services) indexFeedProducts(ctx context.Context, connectionID uuid.UUID, counts repo.SyncCounts) {
	if s.EmbeddingService == nil || counts.Synced == 0 {
		return
	}

	conn, err := s.ConnectionRepo.GetByID(connectionID)
	if err != nil {
		return
	}
	feed, err := s.FeedRepo.EnsureFeed(conn.ID, conn.StoreIdentifier)
	if err != nil {
		return
	}

	products, _, err := s.FeedRepo.ListProducts(feed.ID, -1, 0)
	if err != nil {
		log.Warn().Err(err).Str("feed_id", feed.ID.String()).Msg("failed to list products for indexing")
		return
	}

	indexed := 0
	for i := range products {
		p := &products[i]
		hash, err := s.EmbeddingService.IndexProduct(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("sku", p.SKU).Msg("failed to index product")
			continue
		}
		if hash != "" {
			if err := s.FeedRepo.UpdateEmbeddingHash(p.ID, hash); err != nil {
				log.Warn().Err(err).Str("sku", p.SKU).Msg("failed to persist embedding hash")
			}
			indexed++
		}
	}

	log.Info().
		Str("connection_id", connectionID.String()).
		Int("indexed", indexed).
		Msg("semantic index refreshed")
}

var _ services.ImageUploader = (*services.StorageService)(nil)
var _ syncengine.AdapterResolver = (*store.Manager)(nil)
var _ locale.AdapterResolver = (*store.Manager)(nil)

// CreateGenerationWithJob persists a generation request plus its tracking
// job in one step so handlers can enqueue the pair atomically.
func (s *Services) CreateGenerationWithJob(gen *models.ProductAiGeneration) (*models.ProductAiJob, error) {
	if err := s.GenerationRepo.CreateGeneration(gen); err != nil {
		return nil, err
	}

	job := &models.ProductAiJob{
		GenerationID: gen.ID,
		Status:       models.AiJobStatusPending,
	}
	if err := s.GenerationRepo.CreateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}
