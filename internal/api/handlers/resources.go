package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pointtbridge/internal/auth"
	"pointtbridge/internal/pointt"
)

// ResourceWriter pushes a value to one cloud resource path
type ResourceWriter interface {
	Put(ctx context.Context, path string, value interface{}) (pointt.Value, error)
}

// Refresher schedules a poll cycle outside the regular cadence
type Refresher interface {
	RequestRefresh()
}

// ResourcesHandler handles per-path resource reads and writes
type ResourcesHandler struct {
	source    SnapshotSource
	writer    ResourceWriter
	refresher Refresher
	logger    *slog.Logger
}

// NewResourcesHandler creates a new resources handler
func NewResourcesHandler(source SnapshotSource, writer ResourceWriter, refresher Refresher, logger *slog.Logger) *ResourcesHandler {
	return &ResourcesHandler{
		source:    source,
		writer:    writer,
		refresher: refresher,
		logger:    logger,
	}
}

// GetResource returns one path from the latest snapshot
// GET /v1/resources/*path
func (h *ResourcesHandler) GetResource(c *gin.Context) {
	path := c.Param("path")

	snapshot := h.source.Latest()
	if snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No snapshot published yet",
			"code":  "SNAPSHOT_UNAVAILABLE",
		})
		return
	}

	value, ok := snapshot.Get(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Resource not in snapshot",
			"code":  "RESOURCE_NOT_FOUND",
			"path":  path,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"as_of": snapshot.AsOf,
		"value": value,
	})
}

// PutResource writes a value to the cloud and schedules an immediate poll so
// the snapshot reflects the change without waiting for the next tick
// PUT /v1/resources/*path
func (h *ResourcesHandler) PutResource(c *gin.Context) {
	path := c.Param("path")

	var req struct {
		Value interface{} `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	echoed, err := h.writer.Put(c.Request.Context(), path, req.Value)
	if err != nil {
		h.logger.Error("Resource write failed",
			"component", "api",
			"path", path,
			"error", err,
		)
		status, code := classifyUpstreamError(err)
		c.JSON(status, gin.H{
			"error": "Resource write failed",
			"code":  code,
			"path":  path,
		})
		return
	}

	h.refresher.RequestRefresh()

	response := gin.H{
		"message": "Value written",
		"path":    path,
	}
	if echoed != nil {
		response["value"] = echoed
	}
	c.JSON(http.StatusOK, response)
}

// classifyUpstreamError maps cloud client failures onto API status codes
func classifyUpstreamError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrReauthRequired):
		return http.StatusUnauthorized, "REAUTH_REQUIRED"
	case errors.Is(err, auth.ErrTransient):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
