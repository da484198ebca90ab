package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping() error
}

type SystemHandler struct {
	nats    Pinger
	streams interface{ ActiveCount() int }
}

// NewSystemHandler creates the health handlers. nats may be nil when the
// service runs without a broker.
func NewSystemHandler(nats Pinger, streams interface{ ActiveCount() int }) *SystemHandler {
	return &SystemHandler{nats: nats, streams: streams}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"active_streams": h.streams.ActiveCount(),
	})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	checks := map[string]string{}
	healthy := true

	if h.nats == nil {
		checks["nats"] = "disabled"
	} else if err := h.nats.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
