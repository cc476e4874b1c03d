package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pointtbridge/internal/engine"
)

// SnapshotSource provides the latest published snapshot
type SnapshotSource interface {
	Latest() *engine.Snapshot
}

// SnapshotHandler serves the merged resource snapshot
type SnapshotHandler struct {
	source SnapshotSource
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(source SnapshotSource) *SnapshotHandler {
	return &SnapshotHandler{source: source}
}

// GetSnapshot returns the latest snapshot
// GET /v1/snapshot
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	snapshot := h.source.Latest()
	if snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No snapshot published yet",
			"code":  "SNAPSHOT_UNAVAILABLE",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"as_of":      snapshot.AsOf,
		"last_error": snapshot.LastError.String(),
		"stale":      snapshot.LastError != engine.ErrorNone,
		"paths":      snapshot.Len(),
		"values":     snapshot.Values,
	})
}
