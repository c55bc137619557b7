package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"roofcrm/internal/services"
	"roofcrm/internal/workflow"
)

// EventHandler applies a domain event to the lead it concerns.
type EventHandler interface {
	Handle(ctx context.Context, ev workflow.Event) (*services.TransitionResult, error)
}

// IntegrationsHandler receives domain events from the quote, signature,
// invoice and payment subsystems over HTTP.
type IntegrationsHandler struct {
	Events EventHandler
}

func NewIntegrationsHandler(events EventHandler) *IntegrationsHandler {
	return &IntegrationsHandler{Events: events}
}

// LeadEvent accepts one event. Whatever the status engine decides, the
// sender gets 202 with the outcome; only a transient failure yields 503 so
// the sender retries.
func (h *IntegrationsHandler) LeadEvent(c *gin.Context) {
	var ev workflow.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := workflow.ParseEventType(string(ev.Type)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev.LeadID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead_id is required"})
		return
	}

	res, err := h.Events.Handle(c.Request.Context(), ev)
	if err != nil {
		log.Printf("[integrations] event %s for lead %d not processed: %v", ev.Type, ev.LeadID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event not processed, retry later"})
		return
	}
	c.JSON(http.StatusAccepted, res)
}
