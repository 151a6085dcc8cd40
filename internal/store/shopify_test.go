package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"magnifiq/internal/config"
	"magnifiq/pkg/models"
)

func newTestShopify(t *testing.T, serverURL string) *shopifyAdapter {
	t.Helper()
	adapter, err := newShopifyAdapter(config.PlatformConfig{
		ClientID:     "client-id",
		ClientSecret: "s",
		APIVersion:   "2024-07",
		Scopes:       "read_products,write_products",
		RedirectURI:  "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("newShopifyAdapter failed: %v", err)
	}
	adapter.endpointOverride = serverURL
	return adapter
}

func testConnection(store string) *models.StoreConnection {
	return &models.StoreConnection{
		Platform:        "shopify",
		StoreIdentifier: store,
		AccessToken:     models.EncryptedString("shpat_test"),
	}
}

func TestNormalizeStoreDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"myshop", "myshop.myshopify.com"},
		{"MyShop", "myshop.myshopify.com"},
		{"myshop.myshopify.com", "myshop.myshopify.com"},
		{"https://myshop.myshopify.com", "myshop.myshopify.com"},
		{"http://myshop.myshopify.com/", "myshop.myshopify.com"},
		{"https://myshop.myshopify.com/admin", "myshop.myshopify.com"},
		{"  myshop  ", "myshop.myshopify.com"},
		{"shop.example.com", "shop.example.com"},
	}
	for _, tc := range tests {
		if got := NormalizeStoreDomain(tc.in); got != tc.want {
			t.Errorf("NormalizeStoreDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAuthorizationURL(t *testing.T) {
	adapter := newTestShopify(t, "")

	rawURL, err := adapter.AuthorizationURL("https://myshop.myshopify.com/", "state-123", "")
	if err != nil {
		t.Fatalf("AuthorizationURL failed: %v", err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("produced invalid URL %q: %v", rawURL, err)
	}
	if parsed.Host != "myshop.myshopify.com" {
		t.Errorf("host = %q", parsed.Host)
	}
	if parsed.Path != "/admin/oauth/authorize" {
		t.Errorf("path = %q", parsed.Path)
	}
	query := parsed.Query()
	if query.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", query.Get("client_id"))
	}
	if query.Get("state") != "state-123" {
		t.Errorf("state = %q", query.Get("state"))
	}
	if query.Get("redirect_uri") != "https://app.example.com/callback" {
		t.Errorf("redirect_uri = %q", query.Get("redirect_uri"))
	}

	if _, err := adapter.AuthorizationURL("", "state", ""); err == nil {
		t.Error("empty store identifier accepted")
	}
}

func TestVerifyCallback(t *testing.T) {
	adapter := newTestShopify(t, "")

	params := url.Values{}
	params.Set("a", "1")
	params.Set("shop", "myshop.myshopify.com")

	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte(params.Encode()))
	params.Set("hmac", hex.EncodeToString(mac.Sum(nil)))

	if !adapter.VerifyCallback(params) {
		t.Error("valid signature rejected")
	}

	tampered := url.Values{}
	for k, v := range params {
		tampered[k] = append([]string(nil), v...)
	}
	tampered.Set("a", "2")
	if adapter.VerifyCallback(tampered) {
		t.Error("tampered params accepted")
	}

	unsigned := url.Values{}
	unsigned.Set("a", "1")
	if adapter.VerifyCallback(unsigned) {
		t.Error("missing signature accepted")
	}
}

func TestVerifyWebhook(t *testing.T) {
	adapter := newTestShopify(t, "")
	body := []byte(`{"domain":"myshop.myshopify.com"}`)

	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !adapter.VerifyWebhook(body, signature) {
		t.Error("valid webhook signature rejected")
	}
	if adapter.VerifyWebhook([]byte(`{"domain":"other"}`), signature) {
		t.Error("signature accepted for a different body")
	}
	if adapter.VerifyWebhook(body, "") {
		t.Error("missing webhook signature accepted")
	}
}

func TestMapShopifyProductSyntheticSKU(t *testing.T) {
	node := &shopifyProductNode{
		ID:    "gid://shopify/Product/987654",
		Title: "No-SKU Product",
	}

	first := mapShopifyProduct(node)
	second := mapShopifyProduct(node)
	if first.SKU != "SHOPIFY-987654" {
		t.Errorf("synthetic SKU = %q", first.SKU)
	}
	if first.SKU != second.SKU {
		t.Errorf("synthetic SKU not deterministic: %q vs %q", first.SKU, second.SKU)
	}
}

func TestMapShopifyProductImages(t *testing.T) {
	node := &shopifyProductNode{
		ID:    "gid://shopify/Product/1",
		Title: "Imaged",
	}
	node.Images.Nodes = []struct {
		URL string `json:"url"`
	}{{URL: "https://cdn/one.png"}, {URL: "https://cdn/two.png"}, {URL: "https://cdn/three.png"}}

	// featured image wins and is excluded from the additional list
	node.FeaturedImage = &struct {
		URL string `json:"url"`
	}{URL: "https://cdn/two.png"}

	product := mapShopifyProduct(node)
	if product.ImageURL != "https://cdn/two.png" {
		t.Errorf("primary image = %q", product.ImageURL)
	}
	if len(product.AdditionalImages) != 2 {
		t.Fatalf("additional images = %v", product.AdditionalImages)
	}
	for _, img := range product.AdditionalImages {
		if img == product.ImageURL {
			t.Errorf("primary image repeated in additional list")
		}
	}

	// without a featured image the first listed image becomes primary
	node.FeaturedImage = nil
	product = mapShopifyProduct(node)
	if product.ImageURL != "https://cdn/one.png" {
		t.Errorf("fallback primary image = %q", product.ImageURL)
	}
}

func graphqlHandler(t *testing.T, handle func(query string, variables map[string]interface{}) interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") == "" {
			t.Error("missing access token header")
		}
		var payload struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("bad graphql payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": handle(payload.Query, payload.Variables),
		})
	}
}

func productNode(id, title, sku string) map[string]interface{} {
	return map[string]interface{}{
		"id":    id,
		"title": title,
		"variants": map[string]interface{}{
			"nodes": []map[string]interface{}{{"sku": sku, "price": "9.99"}},
		},
	}
}

func TestFetchProductsPaginates(t *testing.T) {
	var pages int
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		pages++
		switch pages {
		case 1:
			if _, ok := variables["after"]; ok {
				t.Error("first page carried a cursor")
			}
			return map[string]interface{}{
				"products": map[string]interface{}{
					"pageInfo": map[string]interface{}{"hasNextPage": true, "endCursor": "cursor-1"},
					"nodes": []interface{}{
						productNode("gid://shopify/Product/1", "One", "SKU-1"),
						productNode("gid://shopify/Product/2", "Two", "SKU-2"),
					},
				},
			}
		default:
			if after, _ := variables["after"].(string); after != "cursor-1" {
				t.Errorf("second page cursor = %v", variables["after"])
			}
			return map[string]interface{}{
				"products": map[string]interface{}{
					"pageInfo": map[string]interface{}{"hasNextPage": false, "endCursor": ""},
					"nodes": []interface{}{
						productNode("gid://shopify/Product/3", "Three", "SKU-3"),
					},
				},
			}
		}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	iterator := adapter.FetchProducts(testConnection("myshop"))

	var skus []string
	for {
		product, err := iterator.Next(context.Background())
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("iterator failed: %v", err)
		}
		skus = append(skus, product.SKU)
	}

	if strings.Join(skus, ",") != "SKU-1,SKU-2,SKU-3" {
		t.Errorf("streamed SKUs = %v", skus)
	}
	if pages != 2 {
		t.Errorf("fetched %d pages, want 2", pages)
	}
}

func TestFetchProductAbsent(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		if id, _ := variables["id"].(string); id != "gid://shopify/Product/42" {
			t.Errorf("queried id = %v", variables["id"])
		}
		return map[string]interface{}{"product": nil}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	product, err := adapter.FetchProduct(context.Background(), testConnection("myshop"), "42")
	if err != nil {
		t.Fatalf("FetchProduct failed: %v", err)
	}
	if product != nil {
		t.Errorf("expected nil for absent product, got %+v", product)
	}
}

func TestTestConnection(t *testing.T) {
	ok := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		return map[string]interface{}{"shop": map[string]interface{}{"name": "My Shop"}}
	}))
	defer ok.Close()

	adapter := newTestShopify(t, ok.URL)
	if !adapter.TestConnection(context.Background(), testConnection("myshop")) {
		t.Error("healthy shop probe returned false")
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	adapter = newTestShopify(t, failing.URL)
	if adapter.TestConnection(context.Background(), testConnection("myshop")) {
		t.Error("5xx probe returned true")
	}

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer unauthorized.Close()

	adapter = newTestShopify(t, unauthorized.URL)
	if adapter.TestConnection(context.Background(), testConnection("myshop")) {
		t.Error("rejected token probe returned true")
	}
}

func TestExchangeCodeForToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/oauth/access_token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["code"] != "auth-code" || payload["client_secret"] != "s" {
			t.Errorf("token payload = %v", payload)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "shpat_new",
			"scope":        "read_products,write_products",
		})
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	creds, err := adapter.ExchangeCodeForToken(context.Background(), "myshop", "auth-code", "")
	if err != nil {
		t.Fatalf("ExchangeCodeForToken failed: %v", err)
	}
	if creds.AccessToken != "shpat_new" {
		t.Errorf("access token = %q", creds.AccessToken)
	}
	if creds.ExpiresAt != nil {
		t.Error("offline token should have no expiry")
	}

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad code", http.StatusBadRequest)
	}))
	defer rejecting.Close()

	adapter = newTestShopify(t, rejecting.URL)
	_, err = adapter.ExchangeCodeForToken(context.Background(), "myshop", "bad", "")
	var pe *PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlatformError, got %v", err)
	}
	if pe.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", pe.StatusCode)
	}
}

func TestReadProductMetafield(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		if ns, _ := variables["namespace"].(string); ns != MetafieldNamespace {
			t.Errorf("queried namespace = %v", variables["namespace"])
		}
		return map[string]interface{}{
			"product": map[string]interface{}{
				"metafield": map[string]interface{}{"value": `{"de":"Hallo"}`},
			},
		}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	value, err := adapter.ReadProductMetafield(context.Background(), testConnection("myshop"), "1", MetafieldNamespace, "translations")
	if err != nil {
		t.Fatalf("ReadProductMetafield failed: %v", err)
	}
	if value != `{"de":"Hallo"}` {
		t.Errorf("value = %q", value)
	}
}

func TestReadProductMetafieldUnset(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		return map[string]interface{}{
			"product": map[string]interface{}{"metafield": nil},
		}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	value, err := adapter.ReadProductMetafield(context.Background(), testConnection("myshop"), "1", MetafieldNamespace, "translations")
	if err != nil {
		t.Fatalf("ReadProductMetafield failed: %v", err)
	}
	if value != "" {
		t.Errorf("value = %q, want empty for unset field", value)
	}
}

func TestWriteProductMetafieldUserError(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		return map[string]interface{}{
			"metafieldsSet": map[string]interface{}{
				"userErrors": []map[string]interface{}{{"message": "value is invalid JSON", "code": "INVALID_VALUE"}},
			},
		}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	err := adapter.WriteProductMetafield(context.Background(), testConnection("myshop"), "1", MetafieldNamespace, "translations", "{", "json")
	if err == nil {
		t.Fatal("user error not surfaced")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("error = %v", err)
	}
}

func TestEnsureMetafieldDefinitionsIdempotent(t *testing.T) {
	var calls int
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		calls++
		// every definition already exists
		return map[string]interface{}{
			"metafieldDefinitionCreate": map[string]interface{}{
				"userErrors": []map[string]interface{}{{"message": "key is in use", "code": "TAKEN"}},
			},
		}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	if err := adapter.EnsureMetafieldDefinitions(context.Background(), testConnection("myshop")); err != nil {
		t.Fatalf("existing definitions treated as failure: %v", err)
	}
	if calls != len(metafieldDefinitions) {
		t.Errorf("created %d definitions, want %d", calls, len(metafieldDefinitions))
	}
}

func TestShopLocales(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, func(query string, variables map[string]interface{}) interface{} {
		return map[string]interface{}{
			"shopLocales": []map[string]interface{}{
				{"locale": "en", "primary": true, "published": true},
				{"locale": "de", "primary": false, "published": true},
				{"locale": "fr", "primary": false, "published": false},
			},
		}
	}))
	defer server.Close()

	adapter := newTestShopify(t, server.URL)
	conn := testConnection("myshop")

	locales, err := adapter.ShopLocales(context.Background(), conn)
	if err != nil {
		t.Fatalf("ShopLocales failed: %v", err)
	}
	if len(locales) != 3 {
		t.Fatalf("locales = %v", locales)
	}

	primary, err := adapter.PrimaryLocale(context.Background(), conn)
	if err != nil {
		t.Fatalf("PrimaryLocale failed: %v", err)
	}
	if primary != "en" {
		t.Errorf("primary locale = %q", primary)
	}
}
