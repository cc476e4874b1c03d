package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pointtbridge/internal/auth"
	"pointtbridge/internal/engine"
)

// StatusSource provides the engine status
type StatusSource interface {
	Status() engine.Status
}

// AuthInfo exposes the token manager state for the status endpoint
type AuthInfo interface {
	State() auth.State
	CurrentToken() (auth.Token, bool)
}

// StatusHandler reports engine and auth state
type StatusHandler struct {
	engine StatusSource
	auth   AuthInfo
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(engine StatusSource, auth AuthInfo) *StatusHandler {
	return &StatusHandler{
		engine: engine,
		auth:   auth,
	}
}

// GetStatus returns the engine and auth state
// GET /v1/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	status := h.engine.Status()

	engineView := gin.H{
		"state":                status.State.String(),
		"consecutive_failures": status.ConsecutiveFailures,
		"snapshot_paths":       status.SnapshotPaths,
	}
	if status.LastError != "" {
		engineView["last_error"] = status.LastError
	}
	if !status.SnapshotAsOf.IsZero() {
		engineView["snapshot_as_of"] = status.SnapshotAsOf
	}

	authView := gin.H{
		"state": h.auth.State().String(),
	}
	if token, ok := h.auth.CurrentToken(); ok && !token.ExpiresAt.IsZero() {
		authView["token_expires_at"] = token.ExpiresAt
		authView["token_expires_in"] = time.Until(token.ExpiresAt).Round(time.Second).String()
	}

	c.JSON(http.StatusOK, gin.H{
		"engine": engineView,
		"auth":   authView,
	})
}
