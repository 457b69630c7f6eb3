package webhooks

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fideliqr/fideliqr/internal/idgen"
)

// Handler provides HTTP endpoints for webhook subscription management.
type Handler struct {
	store Store
}

// NewHandler creates a new webhooks handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up webhook routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/businesses/:id/webhooks", h.CreateSubscription)
	r.GET("/businesses/:id/webhooks", h.ListSubscriptions)
	r.DELETE("/businesses/:id/webhooks/:webhookId", h.DeleteSubscription)
}

// CreateSubscription handles POST /v1/businesses/:id/webhooks
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req struct {
		URL    string      `json:"url" binding:"required"`
		Events []EventType `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "url and events required"})
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "message": "url must be a valid http(s) URL"})
		return
	}
	for _, e := range req.Events {
		if !ValidEventType(e) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event", "message": "unknown event type: " + string(e)})
			return
		}
	}

	sub := &Subscription{
		ID:         idgen.WithPrefix("wh_"),
		BusinessID: c.Param("id"),
		URL:        req.URL,
		Secret:     idgen.Hex(32),
		Events:     req.Events,
		Active:     true,
		CreatedAt:  time.Now(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  sub.Secret,
		"warning": "Store this secret securely. It will not be shown again.",
	})
}

// ListSubscriptions handles GET /v1/businesses/:id/webhooks
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.store.GetByBusiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": subs, "count": len(subs)})
}

// DeleteSubscription handles DELETE /v1/businesses/:id/webhooks/:webhookId
func (h *Handler) DeleteSubscription(c *gin.Context) {
	sub, err := h.store.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil || sub.BusinessID != c.Param("id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook_not_found", "message": "webhook not found"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "webhook_not_found", "message": "webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to delete subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "webhook deleted", "webhookId": sub.ID})
}
