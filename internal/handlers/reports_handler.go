package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roofcrm/internal/models"
	"roofcrm/internal/services"
	"roofcrm/internal/workflow"
)

type ReportHandler struct {
	Leads   *services.LeadService
	History *services.HistoryService
}

func NewReportHandler(leads *services.LeadService, history *services.HistoryService) *ReportHandler {
	return &ReportHandler{Leads: leads, History: history}
}

// Transitions lists status changes across all leads, for audit. Pages are
// resumed with after_id like the per-lead history.
func (h *ReportHandler) Transitions(c *gin.Context) {
	f, err := historyFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if v := c.Query("lead_id"); v != "" {
		if f.LeadID, err = strconv.ParseInt(v, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lead_id"})
			return
		}
	}
	items, err := h.History.ListAll(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyPage(items, f))
}

func (h *ReportHandler) FilterLeads(c *gin.Context) {
	var f models.LeadFilter
	if s := c.Query("status"); s != "" {
		st, err := workflow.ParseStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Status = st
	}
	f.SubStatus = workflow.SubStatus(c.Query("sub_status"))
	f.OwnerID, _ = strconv.Atoi(c.DefaultQuery("owner_id", "0"))
	f.SortBy = c.DefaultQuery("sort_by", "created_at")
	f.Order = c.DefaultQuery("order", "desc")
	f.Limit, f.Offset = pageParams(c)

	leads, err := h.Leads.FilterLeads(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, leads)
}
