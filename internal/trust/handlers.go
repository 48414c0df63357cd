package trust

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/logging"
)

// Handler provides HTTP endpoints for trust scores.
type Handler struct {
	svc *Service
}

// NewHandler creates a trust HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers trust endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/trust", h.get)
}

func (h *Handler) get(c *gin.Context) {
	snap, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.L(c.Request.Context()).Error("trust lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trust": snap,
		"limits": gin.H{
			"listingsPerDay":       ListingDayLimitFor(snap.Level),
			"uploadPresignsPerDay": PresignDayLimitFor(snap.Level),
		},
	})
}
