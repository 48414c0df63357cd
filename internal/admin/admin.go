// Package admin provides the moderation and review endpoints.
//
// Admin routes sit behind a shared-secret header check; the operator
// dashboard supplies the secret. Every action lands in the audit log
// and triggers a synchronous trust refresh of the target, so a ban or a
// resolved signal is reflected in the score immediately.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/fraud"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/order"
	"github.com/novamarkt/platform/internal/trust"
	"github.com/novamarkt/platform/internal/user"
)

// RequireSecret returns a middleware that rejects requests missing the
// admin secret header.
func RequireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Admin-Secret") != secret {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// FraudChecker runs the failed-login fraud rules.
type FraudChecker interface {
	CheckFailedLogin(ctx context.Context, userID, ip string)
}

// Handler provides admin HTTP endpoints.
type Handler struct {
	users   user.Store
	signals fraud.Store
	engine  FraudChecker
	trust   *trust.Service
	orders  *order.Service
	audits  audit.Store
}

// NewHandler creates an admin HTTP handler.
func NewHandler(users user.Store, signals fraud.Store, engine FraudChecker, trustSvc *trust.Service, orders *order.Service, audits audit.Store) *Handler {
	return &Handler{users: users, signals: signals, engine: engine, trust: trustSvc, orders: orders, audits: audits}
}

// RegisterRoutes registers admin endpoints on the (secret-guarded) group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/action", h.userAction)
	r.GET("/review-queue", h.reviewQueue)
	r.GET("/audit-log", h.auditLog)
	r.POST("/disputes/:id/resolve", h.resolveDispute)
	r.POST("/login-failures", h.reportLoginFailure)
}

type actionRequest struct {
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	SignalID string `json:"signalId"`
}

func (h *Handler) userAction(c *gin.Context) {
	ctx := c.Request.Context()
	targetID := c.Param("id")

	target, err := h.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
			return
		}
		h.internal(c, err)
		return
	}

	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}

	now := time.Now()
	meta := map[string]any{"targetUserId": targetID, "action": req.Action}
	updateUser := true

	switch req.Action {
	case "ban":
		if req.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "reason is required"})
			return
		}
		target.BannedAt = &now
		target.BanReason = req.Reason
		meta["reason"] = req.Reason
	case "unban":
		target.BannedAt = nil
		target.BanReason = ""
	case "shadowban":
		target.ShadowBanned = true
		if req.Reason != "" {
			meta["reason"] = req.Reason
		}
	case "unshadowban":
		target.ShadowBanned = false
	case "verifyId":
		target.IDVerified = true
	case "removeVerifyId":
		target.IDVerified = false
	case "resolveSignal":
		if req.SignalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "signalId is required"})
			return
		}
		if err := h.signals.Resolve(ctx, req.SignalID, now); err != nil {
			if errors.Is(err, fraud.ErrSignalNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "fraud signal not found"})
				return
			}
			h.internal(c, err)
			return
		}
		meta["signalId"] = req.SignalID
		updateUser = false
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "unknown action"})
		return
	}

	if updateUser {
		target.UpdatedAt = now
		if err := h.users.Update(ctx, target); err != nil {
			h.internal(c, err)
			return
		}
	}

	_ = audit.Record(ctx, h.audits, "", "admin_"+req.Action, c.ClientIP(), meta)

	// Moderation state feeds the score; refresh before answering so the
	// dashboard sees the effect.
	if _, err := h.trust.Refresh(ctx, targetID); err != nil {
		logging.L(ctx).Warn("trust refresh after admin action failed", "user_id", targetID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "action": req.Action})
}

func (h *Handler) reviewQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	signals, err := h.signals.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (h *Handler) auditLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, err := h.audits.ListRecent(c.Request.Context(), c.Query("action"), limit)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) resolveDispute(c *gin.Context) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}

	d, err := h.orders.ResolveDispute(c.Request.Context(), c.Param("id"), order.DisputeStatus(req.Outcome))
	if err != nil {
		switch {
		case errors.Is(err, order.ErrDisputeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, order.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		case errors.Is(err, order.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			h.internal(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// reportLoginFailure is called by the identity layer after a failed
// login attempt. The entry lands in the audit log first so the fraud
// rules count it, then the rules run.
func (h *Handler) reportLoginFailure(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
		IP     string `json:"ip"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid request body"})
		return
	}
	if req.IP == "" {
		req.IP = c.ClientIP()
	}

	ctx := c.Request.Context()
	if err := audit.Record(ctx, h.audits, req.UserID, audit.ActionFailedLogin, req.IP, nil); err != nil {
		h.internal(c, err)
		return
	}
	h.engine.CheckFailedLogin(ctx, req.UserID, req.IP)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) internal(c *gin.Context, err error) {
	logging.L(c.Request.Context()).Error("admin request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
}
