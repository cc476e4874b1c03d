package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pointtbridge/internal/pointt"
)

const redacted = "**REDACTED**"

// DiagnosticsConfig is the configuration view exposed by the diagnostics
// endpoint. Secrets never enter this struct; the device id is redacted at
// render time.
type DiagnosticsConfig struct {
	DeviceID         string
	BaseURL          string
	Roots            []string
	PollInterval     string
	CycleTimeout     string
	FailureThreshold int
}

// DiagnosticsHandler produces a support dump safe to attach to a bug report
type DiagnosticsHandler struct {
	config DiagnosticsConfig
	source SnapshotSource
}

// NewDiagnosticsHandler creates a new diagnostics handler
func NewDiagnosticsHandler(config DiagnosticsConfig, source SnapshotSource) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		config: config,
		source: source,
	}
}

// GetDiagnostics returns redacted config and snapshot data
// GET /v1/diagnostics
func (h *DiagnosticsHandler) GetDiagnostics(c *gin.Context) {
	view := gin.H{
		"config": gin.H{
			"device_id":         redacted,
			"base_url":          h.config.BaseURL,
			"roots":             h.config.Roots,
			"poll_interval":     h.config.PollInterval,
			"cycle_timeout":     h.config.CycleTimeout,
			"failure_threshold": h.config.FailureThreshold,
		},
	}

	snapshot := h.source.Latest()
	if snapshot == nil {
		view["snapshot"] = nil
	} else {
		values := make(map[string]pointt.Value, len(snapshot.Values))
		for path, value := range snapshot.Values {
			values[path] = redactValue(value)
		}
		view["snapshot"] = gin.H{
			"as_of":      snapshot.AsOf,
			"last_error": snapshot.LastError.String(),
			"values":     values,
		}
	}

	c.JSON(http.StatusOK, view)
}

// sensitiveKeys are stripped from resource payloads before they leave the
// diagnostics endpoint.
var sensitiveKeys = map[string]bool{
	"uuid":         true,
	"serialNumber": true,
}

// redactValue masks sensitive fields of one resource payload
func redactValue(value pointt.Value) pointt.Value {
	if value == nil {
		return nil
	}
	out := make(pointt.Value, len(value))
	for key, v := range value {
		if sensitiveKeys[key] {
			out[key] = redacted
			continue
		}
		out[key] = v
	}
	return out
}
