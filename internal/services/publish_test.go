package services

import (
	"context"
	"encoding/json"
	"testing"

	"magnifiq/internal/store"
	"magnifiq/pkg/models"

	"github.com/google/uuid"
)

// writeCall records one metafield write on the fake adapter
type writeCall struct {
	productID string
	namespace string
	key       string
	value     string
	valueType string
}

type fakeStoreAdapter struct {
	store.Adapter

	writes      []writeCall
	fields      map[string]string
	definitions int
}

func (f *fakeStoreAdapter) Platform() string { return "faketest" }

func (f *fakeStoreAdapter) EnsureMetafieldDefinitions(ctx context.Context, conn *models.StoreConnection) error {
	f.definitions++
	return nil
}

func (f *fakeStoreAdapter) WriteProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key, value, valueType string) error {
	f.writes = append(f.writes, writeCall{productID, namespace, key, value, valueType})
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	f.fields[namespace+"/"+key] = value
	return nil
}

func (f *fakeStoreAdapter) ReadProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key string) (string, error) {
	return f.fields[namespace+"/"+key], nil
}

type fakeStoreResolver struct {
	adapter store.Adapter
}

func (f *fakeStoreResolver) Platform(name string) (store.Adapter, error) {
	return f.adapter, nil
}

type fakeLocales struct {
	primary bool
}

func (f *fakeLocales) IsPrimaryLanguage(ctx context.Context, conn *models.StoreConnection, language string) bool {
	return f.primary
}

type fakeConnections struct {
	conn *models.StoreConnection
}

func (f *fakeConnections) GetByID(id uuid.UUID) (*models.StoreConnection, error) {
	return f.conn, nil
}

type publishFixture struct {
	service *PublishService
	adapter *fakeStoreAdapter
	gens    *fakeGenStore
	gen     *models.ProductAiGeneration
}

func newPublishFixture(t *testing.T, primary bool, content string) *publishFixture {
	t.Helper()
	conn := &models.StoreConnection{Platform: "faketest", StoreIdentifier: "myshop"}
	conn.ID = uuid.New()

	product := feedProduct("Desk Lamp", "")
	product.ExternalID = "gid://faketest/Product/9"

	gens := newFakeGenStore()
	gen := seedGeneration(gens, models.GenerationTypeText, "chat")
	gen.ConnectionID = conn.ID
	gen.ProductID = product.ID
	gen.Content = content

	adapter := &fakeStoreAdapter{}
	service := NewPublishService(
		&fakeStoreResolver{adapter: adapter},
		&fakeLocales{primary: primary},
		gens,
		&fakeProducts{product: product},
		&fakeConnections{conn: conn},
	)
	return &publishFixture{service: service, adapter: adapter, gens: gens, gen: gen}
}

func TestPublishPrimaryLanguage(t *testing.T) {
	fx := newPublishFixture(t, true, "A great lamp.")

	if err := fx.service.Publish(context.Background(), fx.gen.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if fx.adapter.definitions != 1 {
		t.Error("metafield definitions not ensured")
	}
	if len(fx.adapter.writes) != 1 {
		t.Fatalf("writes = %d", len(fx.adapter.writes))
	}
	write := fx.adapter.writes[0]
	if write.key != "description" || write.valueType != "multi_line_text_field" {
		t.Errorf("write = %+v", write)
	}
	if write.value != "A great lamp." {
		t.Errorf("value = %q", write.value)
	}
	if write.namespace != store.MetafieldNamespace {
		t.Errorf("namespace = %q", write.namespace)
	}
	if write.productID != "gid://faketest/Product/9" {
		t.Errorf("productID = %q", write.productID)
	}
	if len(fx.gens.published) != 1 {
		t.Error("generation not marked published")
	}
}

func TestPublishTranslation(t *testing.T) {
	fx := newPublishFixture(t, false, "Eine tolle Lampe.")

	if err := fx.service.Publish(context.Background(), fx.gen.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	write := fx.adapter.writes[0]
	if write.key != "translations" || write.valueType != "json" {
		t.Errorf("write = %+v", write)
	}

	var decoded map[string]string
	if err := json.Unmarshal([]byte(write.value), &decoded); err != nil {
		t.Fatalf("translation value is not valid JSON: %v", err)
	}
	if decoded["de"] != "Eine tolle Lampe." {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestPublishTranslationsAccumulate(t *testing.T) {
	fx := newPublishFixture(t, false, "Eine tolle Lampe.")

	second := seedGeneration(fx.gens, models.GenerationTypeText, "chat")
	second.ConnectionID = fx.gen.ConnectionID
	second.ProductID = fx.gen.ProductID
	second.Language = "fr"
	second.Content = "Une belle lampe."

	if err := fx.service.Publish(context.Background(), fx.gen.ID); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	if err := fx.service.Publish(context.Background(), second.ID); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	var decoded map[string]string
	last := fx.adapter.writes[len(fx.adapter.writes)-1]
	if err := json.Unmarshal([]byte(last.value), &decoded); err != nil {
		t.Fatalf("translations value is not valid JSON: %v", err)
	}
	if decoded["de"] != "Eine tolle Lampe." {
		t.Errorf("earlier language lost: %v", decoded)
	}
	if decoded["fr"] != "Une belle lampe." {
		t.Errorf("latest language missing: %v", decoded)
	}
}

func TestUnpublishTranslationKeepsOtherLanguages(t *testing.T) {
	fx := newPublishFixture(t, false, "Eine tolle Lampe.")
	fx.adapter.fields = map[string]string{
		store.MetafieldNamespace + "/translations": `{"de":"Eine tolle Lampe.","fr":"Une belle lampe."}`,
	}

	if err := fx.service.Unpublish(context.Background(), fx.gen.ID); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}

	var decoded map[string]string
	last := fx.adapter.writes[len(fx.adapter.writes)-1]
	if err := json.Unmarshal([]byte(last.value), &decoded); err != nil {
		t.Fatalf("translations value is not valid JSON: %v", err)
	}
	if _, ok := decoded["de"]; ok {
		t.Errorf("unpublished language still present: %v", decoded)
	}
	if decoded["fr"] != "Une belle lampe." {
		t.Errorf("other language lost: %v", decoded)
	}
}

func TestPublishEmptyContentUnpublishes(t *testing.T) {
	primary := newPublishFixture(t, true, "")
	if err := primary.service.Publish(context.Background(), primary.gen.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if primary.adapter.writes[0].value != "" {
		t.Errorf("primary unpublish value = %q", primary.adapter.writes[0].value)
	}

	translation := newPublishFixture(t, false, "")
	if err := translation.service.Publish(context.Background(), translation.gen.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if translation.adapter.writes[0].value != "[]" {
		t.Errorf("translation unpublish value = %q", translation.adapter.writes[0].value)
	}
}

func TestUnpublishClearsField(t *testing.T) {
	primary := newPublishFixture(t, true, "a fine lamp")
	if err := primary.service.Unpublish(context.Background(), primary.gen.ID); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}
	if got := primary.adapter.writes[0]; got.key != "description" || got.value != "" {
		t.Errorf("primary unpublish wrote %q=%q", got.key, got.value)
	}

	translation := newPublishFixture(t, false, "eine feine Lampe")
	if err := translation.service.Unpublish(context.Background(), translation.gen.ID); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}
	if got := translation.adapter.writes[0]; got.key != "translations" || got.value != "[]" {
		t.Errorf("translation unpublish wrote %q=%q", got.key, got.value)
	}
}

func TestPublishRejectsImageGenerations(t *testing.T) {
	fx := newPublishFixture(t, true, "content")
	fx.gen.Type = models.GenerationTypeImage

	if err := fx.service.Publish(context.Background(), fx.gen.ID); err == nil {
		t.Fatal("image generation published as metafield")
	}
	if len(fx.adapter.writes) != 0 {
		t.Error("image generation reached the store")
	}
}

func TestIsTranslation(t *testing.T) {
	primary := newPublishFixture(t, true, "x")
	if primary.service.IsTranslation(context.Background(), primary.gen) {
		t.Error("primary-language generation reported as translation")
	}

	translation := newPublishFixture(t, false, "x")
	if !translation.service.IsTranslation(context.Background(), translation.gen) {
		t.Error("non-primary generation not reported as translation")
	}
}
