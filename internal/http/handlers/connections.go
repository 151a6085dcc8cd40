package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"magnifiq/internal/app"
	"magnifiq/internal/store"
	"magnifiq/pkg/models"
)

// ConnectionHandler manages store connections and their sync lifecycle
type ConnectionHandler struct {
	services *app.Services
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(services *app.Services) *ConnectionHandler {
	return &ConnectionHandler{services: services}
}

// ConnectRequest starts the OAuth flow for a store
type ConnectRequest struct {
	Platform        string `json:"platform"`
	StoreIdentifier string `json:"store_identifier" validate:"required"`
}

// List godoc
// @Summary List store connections
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /connections [get]
func (h *ConnectionHandler) List(c echo.Context) error {
	limit, offset := parsePagination(c)

	connections, total, err := h.services.ConnectionRepo.List(limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list connections"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  connections,
		"total": total,
	})
}

// GetByID godoc
// @Summary Get a store connection
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} models.StoreConnection
// @Failure 404 {object} map[string]string
// @Router /connections/{id} [get]
func (h *ConnectionHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	conn, err := h.services.ConnectionRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	return c.JSON(http.StatusOK, conn)
}

// Connect godoc
// @Summary Start the OAuth flow for a store
// @Description Creates a pending connection and returns the platform authorize URL
// @Tags connections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ConnectRequest true "Store to connect"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /connections [post]
func (h *ConnectionHandler) Connect(c echo.Context) error {
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	adapter, err := h.services.StoreManager.Platform(req.Platform)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	// Store the canonical shop domain so webhook deliveries, which carry
	// the full myshopify domain, resolve to the same connection row.
	if adapter.Platform() == "shopify" {
		req.StoreIdentifier = store.NormalizeStoreDomain(req.StoreIdentifier)
	}

	// Reuse an existing connection for the store so a re-connect after
	// disconnect keeps its feed and generation history.
	conn, err := h.services.ConnectionRepo.GetByStore(adapter.Platform(), req.StoreIdentifier)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conn = &models.StoreConnection{
			Platform:        adapter.Platform(),
			StoreIdentifier: req.StoreIdentifier,
			Status:          models.StoreConnectionStatusPending,
		}
		if err := h.services.ConnectionRepo.Create(conn); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create connection"})
		}
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load connection"})
	}

	// The connection ID doubles as the OAuth state parameter; the HMAC
	// check on the callback proves the platform echoed it untouched.
	redirectURI := h.services.Config.Store.Platforms[adapter.Platform()].RedirectURI
	authURL, err := adapter.AuthorizationURL(req.StoreIdentifier, conn.ID.String(), redirectURI)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"connection_id":     conn.ID.String(),
		"authorization_url": authURL,
	})
}

// OAuthCallback godoc
// @Summary OAuth callback endpoint
// @Description Validates the signed callback, exchanges the code and starts the first sync
// @Tags connections
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "Connection ID issued at connect time"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /connections/callback [get]
func (h *ConnectionHandler) OAuthCallback(c echo.Context) error {
	connID, err := uuid.Parse(c.QueryParam("state"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid state"})
	}

	conn, err := h.services.ConnectionRepo.GetByID(connID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	adapter, err := h.services.StoreManager.Platform(conn.Platform)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if !adapter.VerifyCallback(c.QueryParams()) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid callback signature"})
	}

	redirectURI := h.services.Config.Store.Platforms[conn.Platform].RedirectURI
	creds, err := adapter.ExchangeCodeForToken(c.Request().Context(), conn.StoreIdentifier, c.QueryParam("code"), redirectURI)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Token exchange failed"})
	}

	conn.AccessToken = models.EncryptedString(creds.AccessToken)
	conn.RefreshToken = models.EncryptedString(creds.RefreshToken)
	conn.Scopes = creds.Scopes
	conn.Status = models.StoreConnectionStatusConnected
	conn.LastError = nil
	if err := h.services.ConnectionRepo.Update(conn); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store credentials"})
	}

	if err := adapter.EnsureMetafieldDefinitions(c.Request().Context(), conn); err != nil {
		log.Warn().Err(err).
			Str("connection_id", conn.ID.String()).
			Msg("failed to ensure metafield definitions")
	}

	if err := h.services.DispatchSync(conn.ID); err != nil {
		log.Warn().Err(err).
			Str("connection_id", conn.ID.String()).
			Msg("failed to enqueue initial sync")
	}

	log.Info().
		Str("connection_id", conn.ID.String()).
		Str("store", conn.StoreIdentifier).
		Msg("store connected")

	return c.JSON(http.StatusOK, map[string]string{
		"status":        "connected",
		"connection_id": conn.ID.String(),
	})
}

// Disconnect godoc
// @Summary Disconnect a store
// @Description Drops the stored tokens and marks the connection disconnected
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]string
// @Router /connections/{id} [delete]
func (h *ConnectionHandler) Disconnect(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	conn, err := h.services.ConnectionRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	if err := h.services.ConnectionRepo.Disconnect(id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to disconnect"})
	}
	h.services.LocaleService.ClearCache(conn)

	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

// TriggerSync godoc
// @Summary Trigger a product sync
// @Description Enqueues a full catalog sync for the connection
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 202 {object} map[string]string
// @Router /connections/{id}/sync [post]
func (h *ConnectionHandler) TriggerSync(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	if _, err := h.services.ConnectionRepo.GetByID(id); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	if err := h.services.DispatchSync(id); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Sync queue is full"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// ListSyncJobs godoc
// @Summary List sync jobs for a connection
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]interface{}
// @Router /connections/{id}/sync-jobs [get]
func (h *ConnectionHandler) ListSyncJobs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	limit, offset := parsePagination(c)
	jobs, total, err := h.services.SyncJobRepo.ListByConnection(id, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list sync jobs"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  jobs,
		"total": total,
	})
}

// Locales godoc
// @Summary List store locales
// @Description Returns the primary and published locales of the remote store
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]interface{}
// @Router /connections/{id}/locales [get]
func (h *ConnectionHandler) Locales(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	conn, err := h.services.ConnectionRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	ctx := c.Request().Context()
	primary, err := h.services.LocaleService.PrimaryLocale(ctx, conn)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch store locales"})
	}
	published, err := h.services.LocaleService.PublishedLocales(ctx, conn)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch store locales"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"primary":   primary,
		"published": published,
	})
}

func parsePagination(c echo.Context) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
