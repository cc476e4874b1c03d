package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pointtbridge/internal/auth"
)

// LoginManager runs the browser-based authorization flow
type LoginManager interface {
	BeginLogin() string
	CompleteLogin(ctx context.Context, callbackURL string) error
}

// Resumer restarts polling after a successful re-authentication
type Resumer interface {
	Resume()
}

// AuthHandler drives the interactive login flow over the API
type AuthHandler struct {
	manager LoginManager
	resumer Resumer
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(manager LoginManager, resumer Resumer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		manager: manager,
		resumer: resumer,
		logger:  logger,
	}
}

// BeginLogin starts a fresh authorization attempt and returns the URL to
// open in a browser
// POST /v1/auth/url
func (h *AuthHandler) BeginLogin(c *gin.Context) {
	authURL := h.manager.BeginLogin()

	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
	})
}

// CompleteLogin exchanges the pasted callback URL for tokens and resumes
// polling
// POST /v1/auth/callback
func (h *AuthHandler) CompleteLogin(c *gin.Context) {
	var req struct {
		CallbackURL string `json:"callback_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	if err := h.manager.CompleteLogin(c.Request.Context(), req.CallbackURL); err != nil {
		h.logger.Error("Login completion failed",
			"component", "api",
			"error", err,
		)

		switch {
		case errors.Is(err, auth.ErrTransient):
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "Authorization server unreachable, retry with a fresh login",
				"code":  "UPSTREAM_UNAVAILABLE",
			})
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Authorization failed, start a new login attempt",
				"code":  "AUTH_EXCHANGE_FAILED",
			})
		}
		return
	}

	h.resumer.Resume()

	c.JSON(http.StatusOK, gin.H{
		"message": "Authenticated, polling resumed",
	})
}
