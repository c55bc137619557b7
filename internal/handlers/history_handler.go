package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roofcrm/internal/services"
)

type HistoryHandler struct {
	Leads   *services.LeadService
	History *services.HistoryService
}

func NewHistoryHandler(leads *services.LeadService, history *services.HistoryService) *HistoryHandler {
	return &HistoryHandler{Leads: leads, History: history}
}

// List returns one page of the lead's status history, oldest first.
// The response carries next_after_id when more records may follow.
func (h *HistoryHandler) List(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !h.authorize(c, id) {
		return
	}
	f, err := historyFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.History.ListTransitions(c.Request.Context(), id, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyPage(items, f))
}

// Verify replays the history and compares it with the stored stage.
func (h *HistoryHandler) Verify(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !h.authorize(c, id) {
		return
	}
	report, err := h.History.Verify(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *HistoryHandler) authorize(c *gin.Context, leadID int64) bool {
	userID, roleID := getUserAndRole(c)
	lead, err := h.Leads.GetByID(c.Request.Context(), leadID)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !canSee(lead, userID, roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}
