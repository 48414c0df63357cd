package user

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/idgen"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/validation"
)

// TrustRefresher recomputes a user's trust snapshot after verification
// changes. Failures are logged, never propagated.
type TrustRefresher interface {
	Refresh(ctx context.Context, userID string) error
}

// Handler provides HTTP endpoints for accounts. Account provisioning is
// called by the identity layer after signup; authentication itself
// happens upstream.
type Handler struct {
	store  Store
	trust  TrustRefresher
	audits audit.Store
}

// NewHandler creates a user HTTP handler.
func NewHandler(store Store, trustSvc TrustRefresher, audits audit.Store) *Handler {
	return &Handler{store: store, trust: trustSvc, audits: audits}
}

// RegisterRoutes registers user endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users", h.register)
	r.GET("/users/:id", h.get)
	r.POST("/users/:id/verify", h.verify)
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if errs := validation.Validate(
		validation.NonEmpty("email", email),
		validation.MaxLen("email", email, 254),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": errs.Error()})
		return
	}
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "email: is invalid"})
		return
	}

	now := time.Now()
	u := &User{
		ID:        idgen.WithPrefix("usr_"),
		Email:     email,
		Role:      RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Create(c.Request.Context(), u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
			return
		}
		h.internal(c, err)
		return
	}

	_ = audit.Record(c.Request.Context(), h.audits, u.ID, audit.ActionUserRegister, c.ClientIP(), map[string]any{
		"email": email,
	})
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
			return
		}
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// verify marks the email or phone channel as verified for the caller's
// own account. ID verification is an admin action and not accepted here.
func (h *Handler) verify(c *gin.Context) {
	ctx := c.Request.Context()
	targetID := c.Param("id")

	if c.GetString("actorID") != targetID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "can only verify your own account"})
		return
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}

	u, err := h.store.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
			return
		}
		h.internal(c, err)
		return
	}

	switch req.Channel {
	case "email":
		u.EmailVerified = true
	case "phone":
		u.PhoneVerified = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "channel must be email or phone"})
		return
	}

	u.UpdatedAt = time.Now()
	if err := h.store.Update(ctx, u); err != nil {
		h.internal(c, err)
		return
	}

	_ = audit.Record(ctx, h.audits, targetID, audit.ActionUserVerified, c.ClientIP(), map[string]any{
		"channel": req.Channel,
	})

	// Verification feeds the trust score; recompute before answering.
	if err := h.trust.Refresh(ctx, targetID); err != nil {
		logging.L(ctx).Warn("trust refresh after verification failed", "user_id", targetID, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *Handler) internal(c *gin.Context, err error) {
	logging.L(c.Request.Context()).Error("user request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
}
