package accrual

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fideliqr/fideliqr/internal/business"
	"github.com/fideliqr/fideliqr/internal/customer"
)

// Handler provides HTTP endpoints for the accrual engine.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new accrual handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up accrual routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/purchases", h.RegisterPurchase)
	r.GET("/businesses/:id/purchases", h.ListPurchases)
	r.POST("/businesses/:id/customers/:customerId/redeem", h.RedeemReward)
}

// RegisterPurchase handles POST /v1/purchases
//
// The scan event from the counter. Identifies the customer by scan code or,
// as a fallback for lost codes, by email.
func (h *Handler) RegisterPurchase(c *gin.Context) {
	var req struct {
		BusinessID string `json:"businessId" binding:"required"`
		ScanCode   string `json:"scanCode"`
		Email      string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "businessId required"})
		return
	}
	if req.ScanCode == "" && req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "scanCode or email required"})
		return
	}

	outcome, err := h.engine.RegisterPurchase(c.Request.Context(), req.BusinessID,
		Lookup{ScanCode: req.ScanCode, Email: req.Email})
	if err != nil {
		h.writeAccrualError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"purchase":       outcome.Purchase,
		"customer":       outcome.Customer,
		"rewardUnlocked": outcome.RewardUnlocked,
	})
}

// RedeemReward handles POST /v1/businesses/:id/customers/:customerId/redeem
func (h *Handler) RedeemReward(c *gin.Context) {
	cust, err := h.engine.RedeemReward(c.Request.Context(), c.Param("id"), c.Param("customerId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNoPendingReward):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no_pending_reward", "message": "customer has no pending reward"})
		case errors.Is(err, customer.ErrCustomerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "customer_not_found", "message": "customer not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to redeem reward"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// ListPurchases handles GET /v1/businesses/:id/purchases
func (h *Handler) ListPurchases(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	purchases, err := h.engine.History(c.Request.Context(),
		c.Param("id"), c.Query("customerId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": purchases, "count": len(purchases)})
}

func (h *Handler) writeAccrualError(c *gin.Context, err error) {
	var blocked *BlockedError
	var cooldown *CooldownError
	switch {
	case errors.As(err, &blocked):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "blocked",
			"message": "customer is blocked",
			"reason":  blocked.Reason,
		})
	case errors.As(err, &cooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":            "cooldown_active",
			"message":          "purchase arrived before the cooldown expired",
			"remainingMinutes": cooldown.RemainingMinutes(),
		})
	case errors.Is(err, business.ErrBusinessNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "business_not_found", "message": "business not found"})
	case errors.Is(err, customer.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "customer_not_found", "message": "customer not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to record purchase"})
	}
}
