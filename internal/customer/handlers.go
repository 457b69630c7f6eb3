package customer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fideliqr/fideliqr/internal/business"
	"github.com/fideliqr/fideliqr/internal/idgen"
	"github.com/fideliqr/fideliqr/internal/validation"
)

// Events receives enrollment notifications. Implementations must not block;
// dispatch happens after the customer is persisted and failures are the
// implementation's problem, not the caller's.
type Events interface {
	CustomerEnrolled(b *business.Business, c *Customer)
}

// Handler provides HTTP endpoints for customer management.
type Handler struct {
	store      Store
	businesses business.Store
	events     Events
}

// NewHandler creates a new customer handler. events may be nil.
func NewHandler(store Store, businesses business.Store, events Events) *Handler {
	return &Handler{store: store, businesses: businesses, events: events}
}

// RegisterRoutes sets up customer routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/businesses/:id/customers", h.EnrollCustomer)
	r.GET("/businesses/:id/customers", h.ListCustomers)
	r.GET("/businesses/:id/customers/:customerId", h.GetCustomer)
	r.POST("/businesses/:id/customers/:customerId/scan-code", h.RegenerateScanCode)
}

// EnrollCustomer handles POST /v1/businesses/:id/customers
//
// An optional initialPurchases count backfills history for customers migrating
// from a paper punch card; pending rewards are granted for every full
// threshold already reached.
func (h *Handler) EnrollCustomer(c *gin.Context) {
	businessID := c.Param("id")

	b, err := h.businesses.Get(c.Request.Context(), businessID)
	if err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	var req struct {
		Name             string `json:"name" binding:"required"`
		Email            string `json:"email" binding:"required"`
		InitialPurchases int    `json:"initialPurchases"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name and email required"})
		return
	}

	if !validation.IsValidEmail(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "email is not a valid email address"})
		return
	}
	if req.InitialPurchases < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "initialPurchases must not be negative"})
		return
	}

	cust := &Customer{
		ID:             idgen.WithPrefix("cus_"),
		BusinessID:     b.ID,
		Name:           validation.SanitizeString(req.Name, validation.MaxNameLength),
		Email:          validation.NormalizeEmail(req.Email),
		ScanCode:       uuid.NewString(),
		TotalPurchases: req.InitialPurchases,
		PendingRewards: req.InitialPurchases / b.Settings.RewardThreshold,
		Active:         true,
		CreatedAt:      time.Now(),
	}

	if err := h.store.Create(c.Request.Context(), cust); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already enrolled for this business"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to enroll customer"})
		return
	}

	if h.events != nil {
		h.events.CustomerEnrolled(b, cust)
	}

	c.JSON(http.StatusCreated, gin.H{"customer": cust})
}

// ListCustomers handles GET /v1/businesses/:id/customers
func (h *Handler) ListCustomers(c *gin.Context) {
	businessID := c.Param("id")

	if _, err := h.businesses.Get(c.Request.Context(), businessID); err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	customers, err := h.store.List(c.Request.Context(), businessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customers": customers, "count": len(customers)})
}

// GetCustomer handles GET /v1/businesses/:id/customers/:customerId
func (h *Handler) GetCustomer(c *gin.Context) {
	cust, err := h.store.Get(c.Request.Context(), c.Param("id"), c.Param("customerId"))
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer_not_found", "message": "customer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// RegenerateScanCode handles POST /v1/businesses/:id/customers/:customerId/scan-code
//
// Issues a fresh scan code and invalidates the old one, for customers whose
// code leaked or whose printout was lost. Counters are untouched.
func (h *Handler) RegenerateScanCode(c *gin.Context) {
	cust, err := h.store.Get(c.Request.Context(), c.Param("id"), c.Param("customerId"))
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer_not_found", "message": "customer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	cust.ScanCode = uuid.NewString()

	if err := h.store.Update(c.Request.Context(), cust); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to regenerate scan code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customer": cust})
}
