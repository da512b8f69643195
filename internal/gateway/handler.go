// Package gateway is the HTTP boundary: request parsing and validation,
// request-context assembly, and rendering of dispatch outcomes. All
// dispatch semantics live in agent/dispatch.
package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/dispatch"
	"github.com/voiceme/voiceme/internal/config"
	"github.com/voiceme/voiceme/internal/metrics"
)

// Version reported by the root and health endpoints.
const Version = "2.0.0"

// Dispatcher is the slice of the fallback dispatcher the gateway needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, question string, reqCtx *agent.RequestContext) (*dispatch.Result, error)
	LastServedBy() string
	ProviderNames() []string
}

// Handler handles HTTP requests for the gateway
type Handler struct {
	dispatcher Dispatcher
	cfg        *config.Config

	// available maps every known provider to whether it was configured
	// at startup, for health reporting.
	available map[string]bool
}

// NewHandler creates a new Handler. available lists every known provider
// name with its configured state.
func NewHandler(dispatcher Dispatcher, cfg *config.Config, available map[string]bool) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		cfg:        cfg,
		available:  available,
	}
}

// AskRequest is the inbound question payload.
type AskRequest struct {
	Question string `json:"question" binding:"required,max=1000"`
}

// AskResponse is the outbound answer payload.
type AskResponse struct {
	Answer       string  `json:"answer"`
	ModelUsed    string  `json:"model_used"`
	ResponseTime float64 `json:"response_time"`
	Timestamp    string  `json:"timestamp"`
}

// Ask handles POST /ask
func (h *Handler) Ask(c *gin.Context) {
	requestID := c.GetString("request_id")
	start := time.Now()

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "validation_failed",
		}).Warn("Invalid ask request")

		metrics.RequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question cannot be empty or longer than 1000 characters"})
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		metrics.RequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question cannot be empty or whitespace"})
		return
	}

	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()

	reqCtx := agent.NewRequestContext(h.cfg.Persona, time.Now(), h.cfg.MaxTokens, float32(h.cfg.Temperature))

	result, err := h.dispatcher.Dispatch(c.Request.Context(), question, reqCtx)
	if err != nil {
		h.renderDispatchError(c, requestID, err, time.Since(start))
		return
	}

	recordAttempts(result.Attempts)
	elapsed := time.Since(start)
	metrics.AskLatency.WithLabelValues(result.ServedBy).Observe(elapsed.Seconds())
	metrics.RequestsTotal.WithLabelValues("success").Inc()

	log.WithFields(log.Fields{
		"request_id": requestID,
		"provider":   result.ServedBy,
		"attempts":   len(result.Attempts),
		"latency_ms": elapsed.Milliseconds(),
		"event":      "answered",
	}).Info("Question answered")

	c.JSON(http.StatusOK, AskResponse{
		Answer:       result.Answer,
		ModelUsed:    result.ServedBy,
		ResponseTime: math.Round(elapsed.Seconds()*100) / 100,
		Timestamp:    time.Now().Format(time.RFC3339),
	})
}

// renderDispatchError maps dispatch failures to the generic user-facing
// payload. The attempt log stays in operator logs only.
func (h *Handler) renderDispatchError(c *gin.Context, requestID string, err error, elapsed time.Duration) {
	var exhausted *dispatch.ExhaustedError
	if errors.As(err, &exhausted) {
		recordAttempts(exhausted.Attempts)
		metrics.ExhaustedTotal.Inc()
		metrics.RequestsTotal.WithLabelValues("exhausted").Inc()
		metrics.AskLatency.WithLabelValues("").Observe(elapsed.Seconds())

		for _, att := range exhausted.Attempts {
			log.WithFields(log.Fields{
				"request_id": requestID,
				"provider":   att.Provider,
				"attempt":    att.Number,
				"kind":       att.Kind.String(),
				"error":      att.Err.Error(),
				"event":      "attempt_failed",
			}).Warn("Provider attempt failed")
		}
		log.WithFields(log.Fields{
			"request_id": requestID,
			"attempts":   len(exhausted.Attempts),
			"latency_ms": elapsed.Milliseconds(),
			"event":      "exhausted",
		}).Error("All providers exhausted")

		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "All AI services are currently unavailable. Please try again later.",
		})
		return
	}

	// Cancellation or a caller contract violation. The client is likely
	// gone, but answer with the generic payload either way.
	metrics.RequestsTotal.WithLabelValues("cancelled").Inc()
	log.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"event":      "dispatch_aborted",
	}).Warn("Dispatch aborted")

	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "All AI services are currently unavailable. Please try again later.",
	})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"services_available": h.available,
		"last_served_by":     h.dispatcher.LastServedBy(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

// Root handles GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "VoiceMe API",
		"version": Version,
		"status":  "operational",
		"endpoints": gin.H{
			"health":  "/health",
			"ask":     "/ask",
			"metrics": "/metrics",
		},
	})
}

func recordAttempts(attempts []dispatch.Attempt) {
	for _, att := range attempts {
		outcome := "success"
		if !att.OK() {
			outcome = att.Kind.String()
		}
		metrics.AttemptsTotal.WithLabelValues(att.Provider, outcome).Inc()
	}
}
