package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"magnifiq/internal/ai"
	"magnifiq/internal/store"
	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TranslationPublishDelay is how long translation publishes wait behind
// the primary-language publish for the same product, so the store tends
// to show primary content first. Best effort, not a guarantee.
const TranslationPublishDelay = 10 * time.Second

// ConnectionStore loads store connections
type ConnectionStore interface {
	GetByID(id uuid.UUID) (*models.StoreConnection, error)
}

// AdapterResolver resolves a platform adapter by name
type AdapterResolver interface {
	Platform(name string) (store.Adapter, error)
}

// LocaleChecker answers whether a language is the store's primary one
type LocaleChecker interface {
	IsPrimaryLanguage(ctx context.Context, conn *models.StoreConnection, language string) bool
}

// PublishStore is the generation persistence the publisher needs
type PublishStore interface {
	GetGeneration(id uuid.UUID) (*models.ProductAiGeneration, error)
	MarkPublished(id uuid.UUID) error
}

// PublishService pushes generated content into the remote store as
// product metafields. Primary-language content lands on the description
// field; other languages go into the translations field.
type PublishService struct {
	stores      AdapterResolver
	locales     LocaleChecker
	generations PublishStore
	products    ProductStore
	connections ConnectionStore
}

// NewPublishService creates a publish service
func NewPublishService(stores AdapterResolver, locales LocaleChecker, generations PublishStore, products ProductStore, connections ConnectionStore) *PublishService {
	return &PublishService{
		stores:      stores,
		locales:     locales,
		generations: generations,
		products:    products,
		connections: connections,
	}
}

// IsTranslation reports whether a generation targets a non-primary
// language, which tells the dispatcher to delay its publish.
func (s *PublishService) IsTranslation(ctx context.Context, gen *models.ProductAiGeneration) bool {
	conn, err := s.connections.GetByID(gen.ConnectionID)
	if err != nil {
		return false
	}
	return !s.locales.IsPrimaryLanguage(ctx, conn, gen.Language)
}

// Publish writes one generation's content to the remote product. Empty
// content unpublishes the field instead of deleting it.
func (s *PublishService) Publish(ctx context.Context, generationID uuid.UUID) error {
	gen, err := s.generations.GetGeneration(generationID)
	if err != nil {
		return fmt.Errorf("failed to load generation: %w", err)
	}
	if gen.Type != models.GenerationTypeText {
		return &ai.ValidationError{Reason: "only text generations publish as metafields"}
	}

	conn, err := s.connections.GetByID(gen.ConnectionID)
	if err != nil {
		return fmt.Errorf("failed to load connection: %w", err)
	}
	product, err := s.products.GetProduct(gen.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	adapter, err := s.stores.Platform(conn.Platform)
	if err != nil {
		return err
	}
	if err := adapter.EnsureMetafieldDefinitions(ctx, conn); err != nil {
		return err
	}

	key, valueType, value, err := s.metafieldFor(ctx, adapter, conn, product.ExternalID, gen.Language, gen.Content)
	if err != nil {
		return err
	}

	if err := adapter.WriteProductMetafield(ctx, conn, product.ExternalID, store.MetafieldNamespace, key, value, valueType); err != nil {
		return err
	}

	if err := s.generations.MarkPublished(gen.ID); err != nil {
		return fmt.Errorf("failed to mark generation published: %w", err)
	}

	log.Info().
		Str("generation_id", gen.ID.String()).
		Str("product", product.SKU).
		Str("language", gen.Language).
		Str("metafield", key).
		Msg("generated content published to store")
	return nil
}

// Unpublish clears the remote field a generation was published to. The
// field keeps its definition; only its value is emptied.
func (s *PublishService) Unpublish(ctx context.Context, generationID uuid.UUID) error {
	gen, err := s.generations.GetGeneration(generationID)
	if err != nil {
		return fmt.Errorf("failed to load generation: %w", err)
	}
	if gen.Type != models.GenerationTypeText {
		return &ai.ValidationError{Reason: "only text generations publish as metafields"}
	}

	conn, err := s.connections.GetByID(gen.ConnectionID)
	if err != nil {
		return fmt.Errorf("failed to load connection: %w", err)
	}
	product, err := s.products.GetProduct(gen.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	adapter, err := s.stores.Platform(conn.Platform)
	if err != nil {
		return err
	}

	key, valueType, value, err := s.metafieldFor(ctx, adapter, conn, product.ExternalID, gen.Language, "")
	if err != nil {
		return err
	}

	if err := adapter.WriteProductMetafield(ctx, conn, product.ExternalID, store.MetafieldNamespace, key, value, valueType); err != nil {
		return err
	}

	log.Info().
		Str("generation_id", gen.ID.String()).
		Str("product", product.SKU).
		Str("metafield", key).
		Msg("generated content unpublished from store")
	return nil
}

// metafieldFor picks the remote field and encodes the value. Primary
// content maps straight onto the description field. Translations merge
// into the existing translations map on the store, so languages published
// at different times accumulate instead of replacing each other. An empty
// content string produces the unpublish value for the field's type.
func (s *PublishService) metafieldFor(ctx context.Context, adapter store.Adapter, conn *models.StoreConnection, productID, language, content string) (key, valueType, value string, err error) {
	if s.locales.IsPrimaryLanguage(ctx, conn, language) {
		return "description", "multi_line_text_field", content, nil
	}

	existing, err := adapter.ReadProductMetafield(ctx, conn, productID, store.MetafieldNamespace, "translations")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read existing translations: %w", err)
	}
	merged, err := mergeTranslations(existing, language, content)
	if err != nil {
		return "", "", "", err
	}
	return "translations", "json", merged, nil
}

// mergeTranslations folds one language into the stored translations map.
// Empty content removes the language; an empty result encodes as "[]",
// the unpublish value for the json field.
func mergeTranslations(existing, language, content string) (string, error) {
	translations := map[string]string{}
	if existing != "" && existing != "[]" {
		if err := json.Unmarshal([]byte(existing), &translations); err != nil {
			log.Warn().
				Err(err).
				Msg("stored translations metafield is not a JSON object, rebuilding it")
			translations = map[string]string{}
		}
	}

	if content == "" {
		delete(translations, language)
	} else {
		translations[language] = content
	}

	if len(translations) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(translations)
	if err != nil {
		return "", fmt.Errorf("failed to encode translations: %w", err)
	}
	return string(encoded), nil
}
