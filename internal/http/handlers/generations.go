package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"magnifiq/internal/app"
	"magnifiq/pkg/models"
)

// GenerationHandler manages AI content generation requests
type GenerationHandler struct {
	services *app.Services
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(services *app.Services) *GenerationHandler {
	return &GenerationHandler{services: services}
}

// CreateGenerationRequest asks for AI content for one product
type CreateGenerationRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Type      string `json:"type" validate:"omitempty,oneof=text image"`
	Feature   string `json:"feature" validate:"required,oneof=chat vision image_generation"`
	Language  string `json:"language"`
	Prompt    string `json:"prompt"`
}

// Create godoc
// @Summary Request AI content for a product
// @Description Creates a generation plus its tracking job and enqueues it
// @Tags generations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateGenerationRequest true "Generation request"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /generations [post]
func (h *GenerationHandler) Create(c echo.Context) error {
	var req CreateGenerationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product ID"})
	}

	product, err := h.services.FeedRepo.GetProduct(productID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
	}

	feed, err := h.services.FeedRepo.GetFeed(product.FeedID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load feed"})
	}

	genType := models.GenerationTypeText
	if req.Type == "image" {
		genType = models.GenerationTypeImage
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	gen := &models.ProductAiGeneration{
		ConnectionID: feed.ConnectionID,
		ProductID:    product.ID,
		Type:         genType,
		Feature:      req.Feature,
		Language:     language,
		Prompt:       req.Prompt,
	}

	job, err := h.services.CreateGenerationWithJob(gen)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create generation"})
	}

	if err := h.services.DispatchGeneration(gen.ID, job.ID); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Generation queue is full"})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"generation": gen,
		"job":        job,
	})
}

// GetByID godoc
// @Summary Get a generation
// @Tags generations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Generation ID"
// @Success 200 {object} models.ProductAiGeneration
// @Failure 404 {object} map[string]string
// @Router /generations/{id} [get]
func (h *GenerationHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid generation ID"})
	}

	gen, err := h.services.GenerationRepo.GetGeneration(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Generation not found"})
	}

	return c.JSON(http.StatusOK, gen)
}

// ListByProduct godoc
// @Summary List generations for a product
// @Tags generations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 200 {object} map[string]interface{}
// @Router /products/{id}/generations [get]
func (h *GenerationHandler) ListByProduct(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product ID"})
	}

	limit, offset := parsePagination(c)
	generations, total, err := h.services.GenerationRepo.ListByProduct(id, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list generations"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  generations,
		"total": total,
	})
}

// GetJob godoc
// @Summary Get a generation job
// @Description Returns the async status and progress of a generation job
// @Tags generations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} models.ProductAiJob
// @Failure 404 {object} map[string]string
// @Router /generation-jobs/{id} [get]
func (h *GenerationHandler) GetJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid job ID"})
	}

	job, err := h.services.GenerationRepo.GetJob(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Job not found"})
	}

	return c.JSON(http.StatusOK, job)
}

// Publish godoc
// @Summary Publish a generation to the store
// @Description Enqueues the metafield write-back for a completed text generation
// @Tags generations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Generation ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /generations/{id}/publish [post]
func (h *GenerationHandler) Publish(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid generation ID"})
	}

	if _, err := h.services.GenerationRepo.GetGeneration(id); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Generation not found"})
	}

	if err := h.services.DispatchPublish(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Publish queue is full"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// Unpublish godoc
// @Summary Remove published content from the store
// @Description Clears the metafield a generation was published to
// @Tags generations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Generation ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /generations/{id}/unpublish [post]
func (h *GenerationHandler) Unpublish(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid generation ID"})
	}

	if err := h.services.PublishService.Unpublish(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "unpublished"})
}
