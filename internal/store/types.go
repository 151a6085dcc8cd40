package store

import "time"

// StoreProduct is the normalized product shape every platform adapter maps
// into. ExternalID is the platform's permanent identifier; SKU is the
// business key and is always present, synthesized deterministically when
// the platform has no variant SKU.
type StoreProduct struct {
	ExternalID       string                 `json:"external_id"`
	SKU              string                 `json:"sku"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description,omitempty"`
	Brand            string                 `json:"brand,omitempty"`
	URL              string                 `json:"url,omitempty"`
	ImageURL         string                 `json:"image_url,omitempty"`
	AdditionalImages []string               `json:"additional_images,omitempty"`
	Variants         []ProductVariant       `json:"variants,omitempty"`
	Price            string                 `json:"price,omitempty"`
	Currency         string                 `json:"currency,omitempty"`
	Inventory        *int                   `json:"inventory,omitempty"`
	GTIN             string                 `json:"gtin,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ProductVariant is one sellable variation of a product
type ProductVariant struct {
	SKU       string `json:"sku,omitempty"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price,omitempty"`
	GTIN      string `json:"gtin,omitempty"`
	Inventory *int   `json:"inventory,omitempty"`
}

// OAuthCredentials is the normalized result of an OAuth token exchange.
// ExpiresAt is nil for platforms whose tokens never expire, e.g. Shopify
// offline tokens.
type OAuthCredentials struct {
	AccessToken  string                 `json:"access_token"`
	Scopes       string                 `json:"scopes,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ShopLocale describes one language enabled on a remote store
type ShopLocale struct {
	Locale    string `json:"locale"`
	Primary   bool   `json:"primary"`
	Published bool   `json:"published"`
}
