package business

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fideliqr/fideliqr/internal/idgen"
	"github.com/fideliqr/fideliqr/internal/validation"
)

var validSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Handler provides HTTP endpoints for business management.
type Handler struct {
	store    Store
	defaults Settings
}

// NewHandler creates a new business handler. defaults supply the reward
// threshold and cooldown applied to newly registered businesses.
func NewHandler(store Store, defaults Settings) *Handler {
	return &Handler{store: store, defaults: defaults}
}

// RegisterRoutes sets up business routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/businesses", h.CreateBusiness)
	r.GET("/businesses/:id", h.GetBusiness)
	r.PATCH("/businesses/:id", h.UpdateBusiness)
}

// CreateBusiness handles POST /v1/businesses
func (h *Handler) CreateBusiness(c *gin.Context) {
	var req struct {
		Name       string `json:"name" binding:"required"`
		Slug       string `json:"slug" binding:"required"`
		OwnerEmail string `json:"ownerEmail" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name, slug and ownerEmail required"})
		return
	}

	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if !validSlug.MatchString(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": "slug must be 3-64 lowercase alphanumeric/hyphens, start/end with alphanumeric",
		})
		return
	}

	if !validation.IsValidEmail(req.OwnerEmail) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "ownerEmail is not a valid email address"})
		return
	}

	now := time.Now()
	b := &Business{
		ID:         idgen.WithPrefix("biz_"),
		Name:       validation.SanitizeString(req.Name, validation.MaxNameLength),
		Slug:       req.Slug,
		OwnerEmail: validation.NormalizeEmail(req.OwnerEmail),
		Settings:   h.defaults,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.Create(c.Request.Context(), b); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create business"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"business": b})
}

// GetBusiness handles GET /v1/businesses/:id
func (h *Handler) GetBusiness(c *gin.Context) {
	id := c.Param("id")

	b, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBusinessNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"business": b})
}

// UpdateBusiness handles PATCH /v1/businesses/:id
//
// Accepts partial updates to name, notification channels and loyalty settings.
// Businesses are deactivated, never deleted, so their purchase history survives.
func (h *Handler) UpdateBusiness(c *gin.Context) {
	id := c.Param("id")

	b, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBusinessNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	var req struct {
		Name            *string `json:"name"`
		RewardThreshold *int    `json:"rewardThreshold"`
		CooldownMinutes *int    `json:"cooldownMinutes"`
		EmailEnabled    *bool   `json:"emailEnabled"`
		NotifyEmail     *string `json:"notifyEmail"`
		TelegramEnabled *bool   `json:"telegramEnabled"`
		TelegramToken   *string `json:"telegramToken"`
		TelegramChatID  *string `json:"telegramChatId"`
		Active          *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.Name != nil {
		b.Name = validation.SanitizeString(*req.Name, validation.MaxNameLength)
	}
	if req.RewardThreshold != nil {
		b.Settings.RewardThreshold = *req.RewardThreshold
	}
	if req.CooldownMinutes != nil {
		b.Settings.CooldownMinutes = *req.CooldownMinutes
	}
	if req.EmailEnabled != nil {
		b.Settings.EmailEnabled = *req.EmailEnabled
	}
	if req.NotifyEmail != nil {
		if *req.NotifyEmail != "" && !validation.IsValidEmail(*req.NotifyEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "notifyEmail is not a valid email address"})
			return
		}
		b.Settings.NotifyEmail = validation.NormalizeEmail(*req.NotifyEmail)
	}
	if req.TelegramEnabled != nil {
		b.Settings.TelegramEnabled = *req.TelegramEnabled
	}
	if req.TelegramToken != nil {
		b.Settings.TelegramToken = strings.TrimSpace(*req.TelegramToken)
	}
	if req.TelegramChatID != nil {
		b.Settings.TelegramChatID = strings.TrimSpace(*req.TelegramChatID)
	}
	if req.Active != nil {
		b.Active = *req.Active
	}

	if err := b.Settings.Validate(); err != nil {
		switch {
		case errors.Is(err, ErrInvalidThreshold):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_threshold", "message": "rewardThreshold must be at least 1"})
		case errors.Is(err, ErrInvalidCooldown):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cooldown", "message": "cooldownMinutes must not be negative"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings", "message": err.Error()})
		}
		return
	}

	b.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update business"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"business": b})
}
