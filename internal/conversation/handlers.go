package conversation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/moderation"
)

// Handler provides HTTP endpoints for conversations and messages.
type Handler struct {
	svc *Service
}

// NewHandler creates a conversation HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers conversation endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/conversations", h.start)
	r.GET("/conversations/:id", h.get)
	r.GET("/conversations/:id/messages", h.listMessages)
	r.POST("/conversations/:id/messages", h.sendMessage)
}

func (h *Handler) start(c *gin.Context) {
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

	conv, err := h.svc.Start(c.Request.Context(), actorID, req.ListingID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) get(c *gin.Context) {
	actorID := c.GetString("actorID")
	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) listMessages(c *gin.Context) {
	actorID := c.GetString("actorID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	msgs, err := h.svc.ListMessages(c.Request.Context(), c.Param("id"), actorID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) sendMessage(c *gin.Context) {
	actorID := c.GetString("actorID")
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}

	m, err := h.svc.SendMessage(c.Request.Context(), c.Param("id"), actorID, c.ClientIP(), req.Body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var blocked *moderation.BlockedError
	switch {
	case errors.As(err, &blocked):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "message_blocked", "message": blocked.Reason})
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, listing.ErrListingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("conversation request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}
