package fraud

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fideliqr/fideliqr/internal/accrual"
	"github.com/fideliqr/fideliqr/internal/customer"
	"github.com/fideliqr/fideliqr/internal/validation"
)

// Handler provides HTTP endpoints for the fraud monitor.
type Handler struct {
	monitor *Monitor
}

// NewHandler creates a new fraud handler.
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// RegisterRoutes sets up security routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/businesses/:id/security", h.GetSecurity)
	r.POST("/businesses/:id/security/block", h.BlockCustomer)
	r.POST("/businesses/:id/security/unblock", h.UnblockCustomer)
	r.POST("/businesses/:id/security/alerts/:alertId/review", h.ReviewAlert)
	r.POST("/businesses/:id/security/purchases/:purchaseId/suspicious", h.MarkSuspicious)
}

// GetSecurity handles GET /v1/businesses/:id/security
func (h *Handler) GetSecurity(c *gin.Context) {
	view, err := h.monitor.Security(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}

// BlockCustomer handles POST /v1/businesses/:id/security/block
func (h *Handler) BlockCustomer(c *gin.Context) {
	var req struct {
		CustomerID string `json:"customerId" binding:"required"`
		Reason     string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "customerId and reason required"})
		return
	}

	cust, err := h.monitor.Block(c.Request.Context(), c.Param("id"), req.CustomerID,
		validation.SanitizeString(req.Reason, 500))
	if err != nil {
		if errors.Is(err, customer.ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer_not_found", "message": "customer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to block customer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// UnblockCustomer handles POST /v1/businesses/:id/security/unblock
func (h *Handler) UnblockCustomer(c *gin.Context) {
	var req struct {
		CustomerID string `json:"customerId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "customerId required"})
		return
	}

	cust, err := h.monitor.Unblock(c.Request.Context(), c.Param("id"), req.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer_not_found", "message": "customer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to unblock customer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// ReviewAlert handles POST /v1/businesses/:id/security/alerts/:alertId/review
func (h *Handler) ReviewAlert(c *gin.Context) {
	alert, err := h.monitor.ReviewAlert(c.Request.Context(), c.Param("id"), c.Param("alertId"))
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert_not_found", "message": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to review alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// MarkSuspicious handles POST /v1/businesses/:id/security/purchases/:purchaseId/suspicious
func (h *Handler) MarkSuspicious(c *gin.Context) {
	purchase, err := h.monitor.MarkPurchaseSuspicious(c.Request.Context(), c.Param("id"), c.Param("purchaseId"))
	if err != nil {
		if errors.Is(err, accrual.ErrPurchaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase_not_found", "message": "purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to mark purchase"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchase": purchase})
}
