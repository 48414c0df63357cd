package listing

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/user"
)

// Handler provides HTTP endpoints for listings.
type Handler struct {
	svc *Service
}

// NewHandler creates a listing HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers listing endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/listings", h.create)
	r.GET("/listings/:id", h.get)
}

func (h *Handler) create(c *gin.Context) {
	actorID := c.GetString("actorID")
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}

	l, err := h.svc.Create(c.Request.Context(), actorID, c.ClientIP(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h *Handler) get(c *gin.Context) {
	l, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrSellerBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, ErrDailyLimitReached):
		resp := gin.H{"error": "rate_limited", "message": err.Error()}
		var limitErr *DailyLimitError
		if errors.As(err, &limitErr) {
			seconds := int(math.Ceil(time.Until(limitErr.ResetAt).Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			resp["retry_after"] = seconds
		}
		c.JSON(http.StatusTooManyRequests, resp)
	case errors.Is(err, ErrListingNotFound), errors.Is(err, user.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("listing request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}
