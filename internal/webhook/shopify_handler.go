package webhook

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"magnifiq/pkg/models"
)

// ConnectionStore is the connection persistence the webhook handler needs
type ConnectionStore interface {
	GetByStore(platform, storeIdentifier string) (*models.StoreConnection, error)
	Disconnect(id uuid.UUID) error
}

// WebhookVerifier validates a platform webhook signature over the raw body
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

// LocaleCache invalidates cached locale data for a connection
type LocaleCache interface {
	ClearCache(conn *models.StoreConnection)
}

// ShopifyWebhookHandler receives Shopify webhook deliveries. The HMAC is
// computed over the raw request body, so the body must be read before any
// JSON binding touches it.
type ShopifyWebhookHandler struct {
	connections ConnectionStore
	verifier    WebhookVerifier
	locales     LocaleCache
}

// NewShopifyWebhookHandler creates a new Shopify webhook handler
func NewShopifyWebhookHandler(connections ConnectionStore, verifier WebhookVerifier, locales LocaleCache) *ShopifyWebhookHandler {
	return &ShopifyWebhookHandler{
		connections: connections,
		verifier:    verifier,
		locales:     locales,
	}
}

// Handle godoc
// @Summary Shopify webhook receiver
// @Description Verifies the delivery signature and processes the topic
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /webhooks/shopify [post]
func (h *ShopifyWebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
	}

	signature := c.Request().Header.Get("X-Shopify-Hmac-Sha256")
	if !h.verifier.VerifyWebhook(body, signature) {
		log.Warn().
			Str("topic", c.Request().Header.Get("X-Shopify-Topic")).
			Msg("rejected webhook with invalid signature")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
	}

	topic := c.Request().Header.Get("X-Shopify-Topic")
	shopDomain := c.Request().Header.Get("X-Shopify-Shop-Domain")

	switch topic {
	case "app/uninstalled":
		if err := h.handleUninstall(shopDomain); err != nil {
			log.Error().Err(err).Str("shop", shopDomain).Msg("failed to process uninstall webhook")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process webhook"})
		}
	default:
		// Acknowledge unhandled topics so Shopify stops retrying them
		log.Debug().Str("topic", topic).Str("shop", shopDomain).Msg("ignoring webhook topic")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ShopifyWebhookHandler) handleUninstall(shopDomain string) error {
	conn, err := h.connections.GetByStore("shopify", shopDomain)
	if err != nil {
		// The shop may never have completed OAuth; nothing to clean up
		log.Warn().Str("shop", shopDomain).Msg("uninstall webhook for unknown store")
		return nil
	}

	if err := h.connections.Disconnect(conn.ID); err != nil {
		return err
	}
	h.locales.ClearCache(conn)

	log.Info().
		Str("connection_id", conn.ID.String()).
		Str("shop", shopDomain).
		Msg("store uninstalled, connection disconnected")
	return nil
}
