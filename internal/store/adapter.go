package store

import (
	"context"
	"errors"
	"net/url"

	"magnifiq/pkg/models"
)

// ErrIteratorDone is returned by ProductIterator.Next after the last
// product of the catalog has been yielded.
var ErrIteratorDone = errors.New("store: product iterator exhausted")

// ProductIterator streams a remote catalog one product at a time without
// materializing the full result set. It is finite and restartable only by
// asking the adapter for a new iterator.
type ProductIterator interface {
	// Next yields the next product, or ErrIteratorDone when the catalog
	// is exhausted. Any other error aborts the stream.
	Next(ctx context.Context) (*StoreProduct, error)
}

// Adapter is the platform-specific implementation of the store contract.
// One adapter instance serves every connection of its platform.
type Adapter interface {
	// Platform returns the stable platform name used in logs and metadata
	Platform() string

	// AuthorizationURL builds the platform OAuth authorize URL for a
	// store. The store identifier is normalized before use.
	AuthorizationURL(storeIdentifier, state, redirectURI string) (string, error)

	// ExchangeCodeForToken swaps an OAuth authorization code for
	// credentials. Fails with a PlatformError on a non-2xx response.
	ExchangeCodeForToken(ctx context.Context, storeIdentifier, code, redirectURI string) (*OAuthCredentials, error)

	// VerifyCallback validates the HMAC signature of OAuth callback
	// parameters. It returns false, never an error, when the signature
	// is missing or wrong.
	VerifyCallback(params url.Values) bool

	// VerifyWebhook validates the platform signature of a webhook
	// delivery, computed over the raw request body.
	VerifyWebhook(body []byte, signature string) bool

	// FetchProducts returns a lazy stream over the store's catalog
	FetchProducts(conn *models.StoreConnection) ProductIterator

	// FetchProduct fetches a single product by its external ID. A
	// missing remote product returns (nil, nil), not an error.
	FetchProduct(ctx context.Context, conn *models.StoreConnection, externalID string) (*StoreProduct, error)

	// TestConnection probes the store with the connection's token. Any
	// failure resolves to false, never an error.
	TestConnection(ctx context.Context, conn *models.StoreConnection) bool

	// WriteProductMetafield upserts one structured field on a remote
	// product. A json-typed value must already be JSON-encoded; writing
	// an empty value unpublishes the field rather than deleting it.
	WriteProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key, value, valueType string) error

	// ReadProductMetafield returns the current value of one structured
	// field on a remote product, or "" when the field is not set.
	ReadProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key string) (string, error)

	// EnsureMetafieldDefinitions creates the metafield schema the
	// storefront reads from. Safe to call repeatedly.
	EnsureMetafieldDefinitions(ctx context.Context, conn *models.StoreConnection) error

	// PrimaryLocale returns the store's default locale, or "" when the
	// platform exposes none.
	PrimaryLocale(ctx context.Context, conn *models.StoreConnection) (string, error)

	// ShopLocales lists every locale enabled on the store
	ShopLocales(ctx context.Context, conn *models.StoreConnection) ([]ShopLocale, error)
}
