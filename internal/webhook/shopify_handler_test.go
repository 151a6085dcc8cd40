package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"magnifiq/pkg/models"
)

type fakeConnections struct {
	conn         *models.StoreConnection
	disconnected []uuid.UUID
}

func (f *fakeConnections) GetByStore(platform, storeIdentifier string) (*models.StoreConnection, error) {
	if f.conn != nil && f.conn.StoreIdentifier == storeIdentifier {
		return f.conn, nil
	}
	return nil, echo.ErrNotFound
}

func (f *fakeConnections) Disconnect(id uuid.UUID) error {
	f.disconnected = append(f.disconnected, id)
	return nil
}

type fakeVerifier struct {
	valid bool
	body  []byte
}

func (f *fakeVerifier) VerifyWebhook(body []byte, signature string) bool {
	f.body = body
	return f.valid
}

type fakeLocaleCache struct {
	cleared int
}

func (f *fakeLocaleCache) ClearCache(conn *models.StoreConnection) {
	f.cleared++
}

func newWebhookRequest(topic, shop, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(body))
	req.Header.Set("X-Shopify-Topic", topic)
	req.Header.Set("X-Shopify-Shop-Domain", shop)
	req.Header.Set("X-Shopify-Hmac-Sha256", "sig")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	connections := &fakeConnections{}
	handler := NewShopifyWebhookHandler(connections, &fakeVerifier{valid: false}, &fakeLocaleCache{})

	c, rec := newWebhookRequest("app/uninstalled", "acme.myshopify.com", `{}`)
	if err := handler.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(connections.disconnected) != 0 {
		t.Fatal("invalid signature must not disconnect anything")
	}
}

func TestHandleVerifiesRawBody(t *testing.T) {
	verifier := &fakeVerifier{valid: true}
	handler := NewShopifyWebhookHandler(&fakeConnections{}, verifier, &fakeLocaleCache{})

	body := `{"id":123}`
	c, _ := newWebhookRequest("products/update", "acme.myshopify.com", body)
	if err := handler.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(verifier.body) != body {
		t.Fatalf("signature must be checked over the raw body, got %q", verifier.body)
	}
}

func TestHandleUninstallDisconnects(t *testing.T) {
	conn := &models.StoreConnection{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		Platform:        "shopify",
		StoreIdentifier: "acme.myshopify.com",
		Status:          models.StoreConnectionStatusConnected,
	}
	connections := &fakeConnections{conn: conn}
	locales := &fakeLocaleCache{}
	handler := NewShopifyWebhookHandler(connections, &fakeVerifier{valid: true}, locales)

	c, rec := newWebhookRequest("app/uninstalled", "acme.myshopify.com", `{}`)
	if err := handler.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(connections.disconnected) != 1 || connections.disconnected[0] != conn.ID {
		t.Fatalf("expected connection %s disconnected, got %v", conn.ID, connections.disconnected)
	}
	if locales.cleared != 1 {
		t.Fatal("expected locale cache cleared on uninstall")
	}
}

func TestHandleUninstallUnknownStoreIsAcknowledged(t *testing.T) {
	connections := &fakeConnections{}
	handler := NewShopifyWebhookHandler(connections, &fakeVerifier{valid: true}, &fakeLocaleCache{})

	c, rec := newWebhookRequest("app/uninstalled", "ghost.myshopify.com", `{}`)
	if err := handler.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown store, got %d", rec.Code)
	}
}
