package locale

import (
	"context"
	"strings"
	"sync"
	"time"

	"magnifiq/internal/store"
	"magnifiq/pkg/models"

	"github.com/rs/zerolog/log"
)

// cacheTTL bounds how long platform-fetched locale metadata is reused
const cacheTTL = time.Hour

// vendorLocaleByLanguage maps the system's internal language codes to the
// locale codes store platforms expect. Identity covers most languages; the
// entries here encode the known irregularities, including legacy 2-letter
// country codes that stand in for regional variants.
var vendorLocaleByLanguage = map[string]string{
	"br": "pt-BR",
	"pt": "pt-PT",
	"no": "nb",
	"zh": "zh-CN",
	"tw": "zh-TW",
}

// systemLanguageByVendor is the inverse table, built once at init
var systemLanguageByVendor = func() map[string]string {
	reverse := make(map[string]string, len(vendorLocaleByLanguage))
	for language, vendor := range vendorLocaleByLanguage {
		reverse[strings.ToLower(vendor)] = language
	}
	return reverse
}()

// ToVendorLocale resolves a system language code to the platform locale
// code, with identity fallback for unmapped codes.
func ToVendorLocale(language string) string {
	code := strings.ToLower(strings.TrimSpace(language))
	if vendor, ok := vendorLocaleByLanguage[code]; ok {
		return vendor
	}
	return code
}

// ToSystemLanguage resolves a platform locale back to a system language
// code. An unmapped regional variant is retried with its region stripped
// before falling back to the bare base code.
func ToSystemLanguage(vendorLocale string) string {
	code := strings.ToLower(strings.TrimSpace(vendorLocale))
	if language, ok := systemLanguageByVendor[code]; ok {
		return language
	}

	base := baseComponent(code)
	if base != code {
		if language, ok := systemLanguageByVendor[base]; ok {
			return language
		}
	}
	return base
}

func baseComponent(locale string) string {
	if idx := strings.Index(locale, "-"); idx >= 0 {
		return locale[:idx]
	}
	return locale
}

// LocalesMatch compares only the base language component, so en-US and
// en-GB are the same language. This is the single comparison primitive
// used by every locale check.
func LocalesMatch(a, b string) bool {
	return strings.EqualFold(baseComponent(strings.TrimSpace(a)), baseComponent(strings.TrimSpace(b)))
}

// AdapterResolver resolves a platform adapter by name
type AdapterResolver interface {
	Platform(name string) (store.Adapter, error)
}

type cacheEntry struct {
	primary   string
	published []store.ShopLocale
	fetchedAt time.Time
}

// Service answers locale questions about connected stores, caching
// platform-fetched metadata per connection.
type Service struct {
	stores AdapterResolver

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewService creates a locale service
func NewService(stores AdapterResolver) *Service {
	return &Service{
		stores: stores,
		cache:  make(map[string]cacheEntry),
	}
}

func (s *Service) entry(ctx context.Context, conn *models.StoreConnection) (cacheEntry, error) {
	key := conn.ID.String()

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < cacheTTL {
		return cached, nil
	}

	adapter, err := s.stores.Platform(conn.Platform)
	if err != nil {
		return cacheEntry{}, err
	}
	locales, err := adapter.ShopLocales(ctx, conn)
	if err != nil {
		return cacheEntry{}, err
	}

	entry := cacheEntry{fetchedAt: time.Now()}
	for _, l := range locales {
		if l.Primary {
			entry.primary = l.Locale
		}
		if l.Published {
			entry.published = append(entry.published, l)
		}
	}

	s.mu.Lock()
	s.cache[key] = entry
	s.mu.Unlock()
	return entry, nil
}

// PrimaryLocale returns the store's default locale, "" when the platform
// exposes none. Cached for an hour per connection.
func (s *Service) PrimaryLocale(ctx context.Context, conn *models.StoreConnection) (string, error) {
	entry, err := s.entry(ctx, conn)
	if err != nil {
		return "", err
	}
	return entry.primary, nil
}

// PublishedLocales returns the locales visible on the storefront. Cached
// for an hour per connection.
func (s *Service) PublishedLocales(ctx context.Context, conn *models.StoreConnection) ([]store.ShopLocale, error) {
	entry, err := s.entry(ctx, conn)
	if err != nil {
		return nil, err
	}
	return entry.published, nil
}

// IsPrimaryLanguage reports whether a system language is the store's
// primary one. When the primary locale cannot be discovered the policy is
// to treat every language as primary, biasing toward availability so a
// locale lookup failure never blocks publishing.
func (s *Service) IsPrimaryLanguage(ctx context.Context, conn *models.StoreConnection, language string) bool {
	primary, err := s.PrimaryLocale(ctx, conn)
	if err != nil {
		log.Warn().
			Err(err).
			Str("store", conn.StoreIdentifier).
			Msg("primary locale lookup failed, treating language as primary")
		return true
	}
	if primary == "" {
		return true
	}
	return LocalesMatch(ToVendorLocale(language), primary)
}

// IsPublishedLocale reports whether a system language is visible on the
// storefront. Fails open like IsPrimaryLanguage.
func (s *Service) IsPublishedLocale(ctx context.Context, conn *models.StoreConnection, language string) bool {
	published, err := s.PublishedLocales(ctx, conn)
	if err != nil || len(published) == 0 {
		return true
	}
	vendor := ToVendorLocale(language)
	for _, l := range published {
		if LocalesMatch(vendor, l.Locale) {
			return true
		}
	}
	return false
}

// ClearCache drops the cached locale metadata for a connection, e.g.
// after a locale-affecting webhook.
func (s *Service) ClearCache(conn *models.StoreConnection) {
	s.mu.Lock()
	delete(s.cache, conn.ID.String())
	s.mu.Unlock()
}
