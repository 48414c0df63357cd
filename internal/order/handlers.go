package order

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/payments"
	"github.com/novamarkt/platform/internal/user"
)

// Handler provides HTTP endpoints for the order lifecycle.
type Handler struct {
	svc *Service
}

// NewHandler creates an order HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers order endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.create)
	r.GET("/orders", h.list)
	r.GET("/orders/:id", h.get)
	r.POST("/orders/:id/pay", h.pay)
	r.POST("/orders/:id/ship", h.markShipped)
	r.POST("/orders/:id/confirm-delivery", h.confirmDelivery)
	r.POST("/orders/:id/dispute", h.openDispute)
	r.POST("/orders/:id/cancel", h.cancel)
}

// RegisterWebhook registers the payment provider callback. It lives
// outside the authenticated group: the provider signs requests instead.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup, provider payments.Provider) {
	r.POST("/webhooks/payments", func(c *gin.Context) {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "unreadable body"})
			return
		}
		ev, err := provider.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			logging.L(c.Request.Context()).Warn("webhook rejected", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid webhook"})
			return
		}
		if err := h.svc.HandleWebhook(c.Request.Context(), ev); err != nil {
			logging.L(c.Request.Context()).Error("webhook processing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	})
}

func (h *Handler) create(c *gin.Context) {
	actorID := c.GetString("actorID")
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	var req struct {
		ListingID string `json:"listingId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ListingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "listingId is required"})
		return
	}

	o, created, err := h.svc.Create(c.Request.Context(), actorID, req.ListingID, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"order": o})
}

func (h *Handler) list(c *gin.Context) {
	actorID := c.GetString("actorID")
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	orders, err := h.svc.ListMine(c.Request.Context(), actorID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) get(c *gin.Context) {
	o, err := h.svc.Get(c.Request.Context(), c.Param("id"), c.GetString("actorID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (h *Handler) pay(c *gin.Context) {
	res, err := h.svc.Pay(c.Request.Context(), c.Param("id"), c.GetString("actorID"), c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) markShipped(c *gin.Context) {
	var req struct {
		Tracking string `json:"tracking"`
		Carrier  string `json:"carrier"`
	}
	// Body is optional; tracking details may be added later.
	_ = c.ShouldBindJSON(&req)

	o, err := h.svc.MarkShipped(c.Request.Context(), c.Param("id"), c.GetString("actorID"), req.Tracking, req.Carrier, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (h *Handler) confirmDelivery(c *gin.Context) {
	o, err := h.svc.ConfirmDelivery(c.Request.Context(), c.Param("id"), c.GetString("actorID"), c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (h *Handler) openDispute(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	d, err := h.svc.OpenDispute(c.Request.Context(), c.Param("id"), c.GetString("actorID"), req.Reason, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

func (h *Handler) cancel(c *gin.Context) {
	o, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), c.GetString("actorID"), c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":    "conflict",
			"message":  conflict.Error(),
			"actual":   string(conflict.Actual),
			"expected": conflict.Expected,
		})
	case errors.Is(err, ErrDisputeExists), errors.Is(err, listing.ErrListingUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, ErrSelfPurchase), errors.Is(err, ErrReasonRequired), errors.Is(err, ErrInvalidOutcome):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrDisputeNotFound),
		errors.Is(err, ErrPaymentNotFound), errors.Is(err, listing.ErrListingNotFound),
		errors.Is(err, user.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, payments.ErrProvider):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_failure", "message": "payment provider unavailable"})
	default:
		logging.L(c.Request.Context()).Error("order request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}
