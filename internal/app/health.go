package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/sentry"
)

// pinger is a dependency pinged by /readyz.
type pinger interface {
	Ping(ctx context.Context) error
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheck pings the message store and, when used, Redis.
// The Tuition API is not pinged: it being down is reported per request.
func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheck)
	defer cancel()

	checks := map[string]string{}
	ready := true

	check := func(name string, p pinger) {
		if err := p.Ping(ctx); err != nil {
			a.logger.WithError(err).WithField("dependency", name).Warn("Readiness check failed")
			checks[name] = "unavailable"
			ready = false
			return
		}
		checks[name] = "connected"
	}

	check("message_store", a.messages)
	if p, ok := a.states.(pinger); ok {
		check("dialogue_state", p)
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"checks":   checks,
		"features": a.features(),
	})
}

func (a *Application) features() map[string]bool {
	return map[string]bool{
		"llm_classifier": a.classifier != nil,
		"redis_state":    a.redis != nil,
		"error_tracking": sentry.IsEnabled(),
	}
}
