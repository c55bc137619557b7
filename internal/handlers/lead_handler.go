package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roofcrm/internal/authz"
	"roofcrm/internal/models"
	"roofcrm/internal/services"
	"roofcrm/internal/workflow"
)

type LeadHandler struct {
	Service *services.LeadService
}

func NewLeadHandler(service *services.LeadService) *LeadHandler {
	return &LeadHandler{Service: service}
}

type leadRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Address     string `json:"address"`
	OwnerID     int    `json:"owner_id"`
}

func (h *LeadHandler) Create(c *gin.Context) {
	var req leadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	userID, roleID := getUserAndRole(c)
	if authz.IsReadOnly(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "read-only role"})
		return
	}

	// owner is the creator unless an elevated role assigns someone else
	lead := models.Leads{Title: req.Title, Description: req.Description, Address: req.Address, OwnerID: userID}
	if req.OwnerID != 0 && authz.IsElevated(roleID) {
		lead.OwnerID = req.OwnerID
	}

	if err := h.Service.Create(c.Request.Context(), &lead, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lead)
}

func (h *LeadHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	userID, roleID := getUserAndRole(c)

	current, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	// sales edit only their own leads
	if current.OwnerID != userID && !authz.IsElevated(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req leadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	current.Title, current.Description, current.Address = req.Title, req.Description, req.Address
	if req.OwnerID != 0 && authz.IsElevated(roleID) {
		current.OwnerID = req.OwnerID
	}

	if err := h.Service.Update(c.Request.Context(), current); err != nil {
		writeError(c, err)
		return
	}
	updated, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *LeadHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	userID, roleID := getUserAndRole(c)

	lead, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !canSee(lead, userID, roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, lead)
}

func (h *LeadHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	userID, roleID := getUserAndRole(c)

	lead, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if lead.OwnerID != userID && !authz.IsElevated(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if err := h.Service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LeadHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	userID, roleID := getUserAndRole(c)

	var (
		leads []*models.Leads
		err   error
	)
	if authz.CanSeeAllLeads(roleID) {
		leads, err = h.Service.ListPaginated(c.Request.Context(), limit, offset)
	} else {
		leads, err = h.Service.ListMy(c.Request.Context(), userID, limit, offset)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, leads)
}

type assignRequest struct {
	AssigneeID int `json:"assignee_id" binding:"required"`
}

func (h *LeadHandler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, roleID := getUserAndRole(c)
	if !authz.IsElevated(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Service.AssignOwner(c.Request.Context(), id, req.AssigneeID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "lead assigned"})
}

type statusRequest struct {
	Status    string `json:"status" binding:"required"`
	SubStatus string `json:"sub_status" binding:"required"`
	Note      string `json:"note"`
}

// UpdateStatus applies a manual transition requested by the current user.
func (h *LeadHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	userID, roleID := getUserAndRole(c)
	if !authz.CanChangeStatus(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if lead.OwnerID != userID && !authz.IsElevated(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	target := workflow.Stage{Status: workflow.Status(req.Status), SubStatus: workflow.SubStatus(req.SubStatus)}
	res, err := h.Service.ChangeStatus(c.Request.Context(), id, target, userID, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AllowedTransitions lists the stages the lead may be moved to by hand.
func (h *LeadHandler) AllowedTransitions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	userID, roleID := getUserAndRole(c)

	lead, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !canSee(lead, userID, roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	current, allowed, err := h.Service.AllowedTransitions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current":  current,
		"allowed":  allowed,
		"terminal": workflow.IsTerminal(current.Status, current.SubStatus),
	})
}
