package store

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"magnifiq/internal/config"
	"magnifiq/pkg/models"
)

type stubAdapter struct {
	platform string
}

func (s *stubAdapter) Platform() string { return s.platform }
func (s *stubAdapter) AuthorizationURL(storeIdentifier, state, redirectURI string) (string, error) {
	return "https://example.com/auth", nil
}
func (s *stubAdapter) ExchangeCodeForToken(ctx context.Context, storeIdentifier, code, redirectURI string) (*OAuthCredentials, error) {
	return &OAuthCredentials{AccessToken: "token"}, nil
}
func (s *stubAdapter) VerifyCallback(params url.Values) bool             { return true }
func (s *stubAdapter) VerifyWebhook(body []byte, signature string) bool  { return true }
func (s *stubAdapter) FetchProducts(conn *models.StoreConnection) ProductIterator {
	return sliceIterator{}
}
func (s *stubAdapter) FetchProduct(ctx context.Context, conn *models.StoreConnection, externalID string) (*StoreProduct, error) {
	return nil, nil
}
func (s *stubAdapter) TestConnection(ctx context.Context, conn *models.StoreConnection) bool {
	return true
}
func (s *stubAdapter) WriteProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key, value, valueType string) error {
	return nil
}
func (s *stubAdapter) ReadProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key string) (string, error) {
	return "", nil
}
func (s *stubAdapter) EnsureMetafieldDefinitions(ctx context.Context, conn *models.StoreConnection) error {
	return nil
}
func (s *stubAdapter) PrimaryLocale(ctx context.Context, conn *models.StoreConnection) (string, error) {
	return "en", nil
}
func (s *stubAdapter) ShopLocales(ctx context.Context, conn *models.StoreConnection) ([]ShopLocale, error) {
	return nil, nil
}

type sliceIterator struct{}

func (sliceIterator) Next(ctx context.Context) (*StoreProduct, error) { return nil, ErrIteratorDone }

func testManager(t *testing.T) *Manager {
	t.Helper()
	Register("stubstore", func(cfg config.PlatformConfig) (Adapter, error) {
		return &stubAdapter{platform: "stubstore"}, nil
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, "stubstore")
		registryMu.Unlock()
	})

	return NewManager(config.StoreConfig{
		DefaultPlatform: "stubstore",
		Platforms:       map[string]config.PlatformConfig{"stubstore": {}},
	})
}

func TestManagerResolvesAndMemoizes(t *testing.T) {
	manager := testManager(t)

	first, err := manager.Platform("stubstore")
	if err != nil {
		t.Fatalf("Platform failed: %v", err)
	}
	second, err := manager.Platform("stubstore")
	if err != nil {
		t.Fatalf("Platform failed on second call: %v", err)
	}
	if first != second {
		t.Error("adapter instance not memoized")
	}
}

func TestManagerDefaultPlatform(t *testing.T) {
	manager := testManager(t)

	adapter, err := manager.Platform("")
	if err != nil {
		t.Fatalf("default platform resolution failed: %v", err)
	}
	if adapter.Platform() != "stubstore" {
		t.Errorf("platform = %q", adapter.Platform())
	}
}

func TestManagerUnknownPlatform(t *testing.T) {
	manager := testManager(t)

	_, err := manager.Platform("woocommerce")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
