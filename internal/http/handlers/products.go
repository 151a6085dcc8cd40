package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"magnifiq/internal/app"
)

// ProductHandler exposes the locally mirrored product catalog
type ProductHandler struct {
	services *app.Services
}

// NewProductHandler creates a new product handler
func NewProductHandler(services *app.Services) *ProductHandler {
	return &ProductHandler{services: services}
}

// ListByConnection godoc
// @Summary List mirrored products for a connection
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]interface{}
// @Router /connections/{id}/products [get]
func (h *ProductHandler) ListByConnection(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	conn, err := h.services.ConnectionRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	feed, err := h.services.FeedRepo.EnsureFeed(conn.ID, conn.StoreIdentifier)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load feed"})
	}

	limit, offset := parsePagination(c)
	products, total, err := h.services.FeedRepo.ListProducts(feed.ID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list products"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  products,
		"total": total,
	})
}

// Search godoc
// @Summary Semantic product search
// @Description Searches the feed's embedding index for products close to the query
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Param q query string true "Search query"
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]string
// @Router /connections/{id}/products/search [get]
func (h *ProductHandler) Search(c echo.Context) error {
	if h.services.EmbeddingService == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Semantic search is not configured"})
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connection ID"})
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing query"})
	}

	conn, err := h.services.ConnectionRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Connection not found"})
	}

	feed, err := h.services.FeedRepo.EnsureFeed(conn.ID, conn.StoreIdentifier)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load feed"})
	}

	limit, _ := parsePagination(c)
	matches, err := h.services.EmbeddingService.SearchProducts(c.Request().Context(), feed.ID, query, limit)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Search failed"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"data": matches})
}

// GetByID godoc
// @Summary Get a mirrored product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 200 {object} models.FeedProduct
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (h *ProductHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product ID"})
	}

	product, err := h.services.FeedRepo.GetProduct(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
	}

	return c.JSON(http.StatusOK, product)
}
