package store

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"magnifiq/internal/config"
	"magnifiq/pkg/models"

	"github.com/rs/zerolog/log"
)

const (
	shopifyDomainSuffix = ".myshopify.com"
	shopifyPageSize     = 50

	// MetafieldNamespace is where generated content lands on the remote
	// product so storefront themes can read it.
	MetafieldNamespace = "magnifiq"
)

func init() {
	Register("shopify", func(cfg config.PlatformConfig) (Adapter, error) {
		return newShopifyAdapter(cfg)
	})
}

type shopifyAdapter struct {
	cfg        config.PlatformConfig
	httpClient *http.Client

	// endpointOverride replaces the per-shop admin base URL, used by tests
	endpointOverride string
}

func newShopifyAdapter(cfg config.PlatformConfig) (*shopifyAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &ConfigError{Key: "shopify", Reason: "client id and secret are required"}
	}
	return &shopifyAdapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}, nil
}

func (a *shopifyAdapter) Platform() string { return "shopify" }

// NormalizeStoreDomain canonicalizes a user-supplied shop handle or URL
// into a bare myshopify domain.
func NormalizeStoreDomain(identifier string) string {
	domain := strings.ToLower(strings.TrimSpace(identifier))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if idx := strings.Index(domain, "/"); idx >= 0 {
		domain = domain[:idx]
	}
	domain = strings.TrimSuffix(domain, ".")
	if domain != "" && !strings.Contains(domain, ".") {
		domain += shopifyDomainSuffix
	}
	return domain
}

func (a *shopifyAdapter) shopURL(storeIdentifier string) string {
	if a.endpointOverride != "" {
		return a.endpointOverride
	}
	return "https://" + NormalizeStoreDomain(storeIdentifier)
}

func (a *shopifyAdapter) graphqlURL(storeIdentifier string) string {
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", a.shopURL(storeIdentifier), a.cfg.APIVersion)
}

func (a *shopifyAdapter) AuthorizationURL(storeIdentifier, state, redirectURI string) (string, error) {
	domain := NormalizeStoreDomain(storeIdentifier)
	if domain == "" {
		return "", &ConfigError{Key: "shopify", Reason: "store identifier is empty"}
	}
	if redirectURI == "" {
		redirectURI = a.cfg.RedirectURI
	}

	query := url.Values{}
	query.Set("client_id", a.cfg.ClientID)
	query.Set("scope", a.cfg.Scopes)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)
	return fmt.Sprintf("https://%s/admin/oauth/authorize?%s", domain, query.Encode()), nil
}

func (a *shopifyAdapter) ExchangeCodeForToken(ctx context.Context, storeIdentifier, code, redirectURI string) (*OAuthCredentials, error) {
	payload := map[string]string{
		"client_id":     a.cfg.ClientID,
		"client_secret": a.cfg.ClientSecret,
		"code":          code,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	endpoint := a.shopURL(storeIdentifier) + "/admin/oauth/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &PlatformError{Platform: "shopify", Message: "token exchange request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PlatformError{
			Platform:   "shopify",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("token exchange rejected: %s", strings.TrimSpace(string(respBody))),
		}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, &PlatformError{Platform: "shopify", StatusCode: resp.StatusCode, Message: "token exchange returned no access token"}
	}

	// Shopify offline tokens never expire
	return &OAuthCredentials{
		AccessToken: token.AccessToken,
		Scopes:      token.Scope,
	}, nil
}

// VerifyCallback validates the hmac parameter Shopify appends to OAuth
// callbacks: remaining params are canonicalized in sorted key order and
// signed with the client secret.
func (a *shopifyAdapter) VerifyCallback(params url.Values) bool {
	signature := params.Get("hmac")
	if signature == "" {
		return false
	}

	canonical := url.Values{}
	for key, values := range params {
		if key == "hmac" {
			continue
		}
		for _, v := range values {
			canonical.Add(key, v)
		}
	}

	// Encode sorts keys, giving the canonical form Shopify signs
	mac := hmac.New(sha256.New, []byte(a.cfg.ClientSecret))
	mac.Write([]byte(canonical.Encode()))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhook validates the X-Shopify-Hmac-Sha256 header, a base64
// signature over the raw request body.
func (a *shopifyAdapter) VerifyWebhook(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.ClientSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// graphqlResponse is the generic GraphQL envelope
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *shopifyAdapter) doGraphQL(ctx context.Context, conn *models.StoreConnection, query string, variables map[string]interface{}, out interface{}) error {
	payload := map[string]interface{}{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.graphqlURL(conn.StoreIdentifier), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", string(conn.AccessToken))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &PlatformError{Platform: "shopify", Message: "graphql request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &PlatformError{Platform: "shopify", Message: "failed to read graphql response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{Platform: "shopify", Message: fmt.Sprintf("access token rejected (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PlatformError{
			Platform:   "shopify",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return &PlatformError{
			Platform:   "shopify",
			StatusCode: resp.StatusCode,
			Message:    "graphql errors: " + strings.Join(messages, "; "),
		}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}

// shopifyProductNode is the product shape returned by the catalog queries
type shopifyProductNode struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Vendor         string `json:"vendor"`
	OnlineStoreURL string `json:"onlineStoreUrl"`
	FeaturedImage  *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	Images struct {
		Nodes []struct {
			URL string `json:"url"`
		} `json:"nodes"`
	} `json:"images"`
	Variants struct {
		Nodes []struct {
			SKU               string `json:"sku"`
			Title             string `json:"title"`
			Price             string `json:"price"`
			Barcode           string `json:"barcode"`
			InventoryQuantity *int   `json:"inventoryQuantity"`
		} `json:"nodes"`
	} `json:"variants"`
	PriceRangeV2 struct {
		MinVariantPrice struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRangeV2"`
}

const shopifyProductFields = `
	id
	title
	description
	vendor
	onlineStoreUrl
	featuredImage { url }
	images(first: 20) { nodes { url } }
	variants(first: 20) { nodes { sku title price barcode inventoryQuantity } }
	priceRangeV2 { minVariantPrice { amount currencyCode } }`

var shopifyProductsQuery = fmt.Sprintf(`
query Products($first: Int!, $after: String) {
	products(first: $first, after: $after) {
		pageInfo { hasNextPage endCursor }
		nodes {%s
		}
	}
}`, shopifyProductFields)

var shopifyProductQuery = fmt.Sprintf(`
query Product($id: ID!) {
	product(id: $id) {%s
	}
}`, shopifyProductFields)

// externalIDDigits extracts the numeric part of a Shopify GID such as
// gid://shopify/Product/12345.
func externalIDDigits(externalID string) string {
	if idx := strings.LastIndex(externalID, "/"); idx >= 0 {
		return externalID[idx+1:]
	}
	return externalID
}

func shopifyProductGID(externalID string) string {
	if strings.HasPrefix(externalID, "gid://") {
		return externalID
	}
	return "gid://shopify/Product/" + externalID
}

// mapShopifyProduct normalizes one remote product. The SKU is the first
// variant's SKU, falling back to a deterministic synthetic key so the same
// remote product always maps to the same business key.
func mapShopifyProduct(node *shopifyProductNode) *StoreProduct {
	product := &StoreProduct{
		ExternalID:  node.ID,
		Title:       node.Title,
		Description: node.Description,
		Brand:       node.Vendor,
		URL:         node.OnlineStoreURL,
		Price:       node.PriceRangeV2.MinVariantPrice.Amount,
		Currency:    node.PriceRangeV2.MinVariantPrice.CurrencyCode,
	}

	for _, v := range node.Variants.Nodes {
		product.Variants = append(product.Variants, ProductVariant{
			SKU:       v.SKU,
			Title:     v.Title,
			Price:     v.Price,
			GTIN:      v.Barcode,
			Inventory: v.InventoryQuantity,
		})
	}
	if len(node.Variants.Nodes) > 0 {
		first := node.Variants.Nodes[0]
		product.SKU = first.SKU
		product.GTIN = first.Barcode
		product.Inventory = first.InventoryQuantity
	}
	if product.SKU == "" {
		product.SKU = "SHOPIFY-" + externalIDDigits(node.ID)
	}

	// primary image is the featured one, falling back to the first of the
	// image list; additional images exclude whichever was chosen
	if node.FeaturedImage != nil && node.FeaturedImage.URL != "" {
		product.ImageURL = node.FeaturedImage.URL
	} else if len(node.Images.Nodes) > 0 {
		product.ImageURL = node.Images.Nodes[0].URL
	}
	for _, img := range node.Images.Nodes {
		if img.URL == product.ImageURL {
			continue
		}
		product.AdditionalImages = append(product.AdditionalImages, img.URL)
	}

	return product
}

type shopifyProductIterator struct {
	adapter *shopifyAdapter
	conn    *models.StoreConnection

	buffer []*StoreProduct
	cursor *string
	done   bool
}

// FetchProducts streams the catalog via cursor pagination, one page of 50
// held in memory at a time.
func (a *shopifyAdapter) FetchProducts(conn *models.StoreConnection) ProductIterator {
	return &shopifyProductIterator{adapter: a, conn: conn}
}

func (it *shopifyProductIterator) Next(ctx context.Context) (*StoreProduct, error) {
	if len(it.buffer) == 0 && !it.done {
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	if len(it.buffer) == 0 {
		return nil, ErrIteratorDone
	}
	product := it.buffer[0]
	it.buffer = it.buffer[1:]
	return product, nil
}

func (it *shopifyProductIterator) fetchPage(ctx context.Context) error {
	variables := map[string]interface{}{"first": shopifyPageSize}
	if it.cursor != nil {
		variables["after"] = *it.cursor
	}

	var data struct {
		Products struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []shopifyProductNode `json:"nodes"`
		} `json:"products"`
	}
	if err := it.adapter.doGraphQL(ctx, it.conn, shopifyProductsQuery, variables, &data); err != nil {
		return err
	}

	for i := range data.Products.Nodes {
		it.buffer = append(it.buffer, mapShopifyProduct(&data.Products.Nodes[i]))
	}
	if data.Products.PageInfo.HasNextPage {
		cursor := data.Products.PageInfo.EndCursor
		it.cursor = &cursor
	} else {
		it.done = true
	}
	return nil
}

func (a *shopifyAdapter) FetchProduct(ctx context.Context, conn *models.StoreConnection, externalID string) (*StoreProduct, error) {
	var data struct {
		Product *shopifyProductNode `json:"product"`
	}
	variables := map[string]interface{}{"id": shopifyProductGID(externalID)}
	if err := a.doGraphQL(ctx, conn, shopifyProductQuery, variables, &data); err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, nil
	}
	return mapShopifyProduct(data.Product), nil
}

func (a *shopifyAdapter) TestConnection(ctx context.Context, conn *models.StoreConnection) bool {
	var data struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	err := a.doGraphQL(ctx, conn, `query { shop { name } }`, nil, &data)
	if err != nil {
		log.Warn().
			Err(err).
			Str("store", conn.StoreIdentifier).
			Msg("Shopify connection test failed")
		return false
	}
	return data.Shop.Name != ""
}

const shopifyMetafieldsSetMutation = `
mutation SetMetafield($metafields: [MetafieldsSetInput!]!) {
	metafieldsSet(metafields: $metafields) {
		metafields { id }
		userErrors { field message code }
	}
}`

func (a *shopifyAdapter) WriteProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key, value, valueType string) error {
	var data struct {
		MetafieldsSet struct {
			UserErrors []struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	variables := map[string]interface{}{
		"metafields": []map[string]interface{}{{
			"ownerId":   shopifyProductGID(productID),
			"namespace": namespace,
			"key":       key,
			"value":     value,
			"type":      valueType,
		}},
	}
	if err := a.doGraphQL(ctx, conn, shopifyMetafieldsSetMutation, variables, &data); err != nil {
		return err
	}
	if errs := data.MetafieldsSet.UserErrors; len(errs) > 0 {
		return &PlatformError{
			Platform: "shopify",
			Message:  fmt.Sprintf("metafield write rejected: %s", errs[0].Message),
		}
	}
	return nil
}

const shopifyMetafieldQuery = `
query ProductMetafield($id: ID!, $namespace: String!, $key: String!) {
	product(id: $id) {
		metafield(namespace: $namespace, key: $key) { value }
	}
}`

func (a *shopifyAdapter) ReadProductMetafield(ctx context.Context, conn *models.StoreConnection, productID, namespace, key string) (string, error) {
	var data struct {
		Product *struct {
			Metafield *struct {
				Value string `json:"value"`
			} `json:"metafield"`
		} `json:"product"`
	}
	variables := map[string]interface{}{
		"id":        shopifyProductGID(productID),
		"namespace": namespace,
		"key":       key,
	}
	if err := a.doGraphQL(ctx, conn, shopifyMetafieldQuery, variables, &data); err != nil {
		return "", err
	}
	if data.Product == nil || data.Product.Metafield == nil {
		return "", nil
	}
	return data.Product.Metafield.Value, nil
}

const shopifyMetafieldDefinitionMutation = `
mutation CreateMetafieldDefinition($definition: MetafieldDefinitionInput!) {
	metafieldDefinitionCreate(definition: $definition) {
		createdDefinition { id }
		userErrors { field message code }
	}
}`

// metafieldDefinitions is the content schema published to every connected
// store so themes can render generated content.
var metafieldDefinitions = []map[string]interface{}{
	{
		"name":      "Generated description",
		"namespace": MetafieldNamespace,
		"key":       "description",
		"type":      "multi_line_text_field",
		"ownerType": "PRODUCT",
	},
	{
		"name":      "Generated translations",
		"namespace": MetafieldNamespace,
		"key":       "translations",
		"type":      "json",
		"ownerType": "PRODUCT",
	},
}

func (a *shopifyAdapter) EnsureMetafieldDefinitions(ctx context.Context, conn *models.StoreConnection) error {
	for _, definition := range metafieldDefinitions {
		var data struct {
			MetafieldDefinitionCreate struct {
				UserErrors []struct {
					Message string `json:"message"`
					Code    string `json:"code"`
				} `json:"userErrors"`
			} `json:"metafieldDefinitionCreate"`
		}
		variables := map[string]interface{}{"definition": definition}
		if err := a.doGraphQL(ctx, conn, shopifyMetafieldDefinitionMutation, variables, &data); err != nil {
			return err
		}
		for _, userErr := range data.MetafieldDefinitionCreate.UserErrors {
			// an already-existing definition keeps this idempotent
			if userErr.Code == "TAKEN" {
				continue
			}
			return &PlatformError{
				Platform: "shopify",
				Message:  fmt.Sprintf("metafield definition rejected: %s", userErr.Message),
			}
		}
	}
	return nil
}

const shopifyLocalesQuery = `
query { shopLocales { locale primary published } }`

func (a *shopifyAdapter) ShopLocales(ctx context.Context, conn *models.StoreConnection) ([]ShopLocale, error) {
	var data struct {
		ShopLocales []ShopLocale `json:"shopLocales"`
	}
	if err := a.doGraphQL(ctx, conn, shopifyLocalesQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.ShopLocales, nil
}

func (a *shopifyAdapter) PrimaryLocale(ctx context.Context, conn *models.StoreConnection) (string, error) {
	locales, err := a.ShopLocales(ctx, conn)
	if err != nil {
		return "", err
	}
	for _, l := range locales {
		if l.Primary {
			return l.Locale, nil
		}
	}
	return "", nil
}
