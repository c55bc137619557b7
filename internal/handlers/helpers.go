package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"roofcrm/internal/authz"
	"roofcrm/internal/models"
	"roofcrm/internal/repositories"
	"roofcrm/internal/workflow"
)

// getIntFromCtx tolerates int, int64, float64 and string claim values.
func getIntFromCtx(c *gin.Context, key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getUserAndRole(c *gin.Context) (userID, roleID int) {
	if id, ok := getIntFromCtx(c, "user_id"); ok {
		userID = id
	}
	if id, ok := getIntFromCtx(c, "role_id"); ok {
		roleID = id
	}
	return
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func canSee(lead *models.Leads, userID, roleID int) bool {
	return lead.OwnerID == userID || authz.CanSeeAllLeads(roleID)
}

func pageParams(c *gin.Context) (limit, offset int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "100"))
	if err != nil || size < 1 {
		size = 100
	}
	return size, (page - 1) * size
}

// historyFilter reads automated, from, to, after_id and limit query parameters.
func historyFilter(c *gin.Context) (repositories.HistoryFilter, error) {
	var f repositories.HistoryFilter
	if v := c.Query("automated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("automated must be true or false")
		}
		f.Automated = &b
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, errors.New(key + " must be an RFC3339 timestamp")
			}
			*dst = t
		}
	}
	if v := c.Query("after_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, errors.New("after_id must be a non-negative integer")
		}
		f.AfterID = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

// historyPage wraps a page of records. next_after_id is set when the page
// is full, so a caller keeps paging until a response comes back without it.
func historyPage(items []workflow.Transition, f repositories.HistoryFilter) gin.H {
	resp := gin.H{"items": items}
	if n := len(items); n > 0 && n == f.EffectiveLimit() {
		resp["next_after_id"] = items[n-1].ID
	}
	return resp
}

// writeError maps service errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	var te *workflow.TransitionError
	switch {
	case errors.Is(err, repositories.ErrLeadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "lead not found"})
	case errors.As(err, &te):
		c.JSON(transitionStatus(te.Code), gin.H{"error": te.Error(), "code": te.Code})
	default:
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func transitionStatus(code workflow.ErrorCode) int {
	switch code {
	case workflow.CodeSchemaViolation, workflow.CodeMissingActor, workflow.CodeInvalidPayload:
		return http.StatusBadRequest
	case workflow.CodeIllegalManualTransition, workflow.CodePreconditionNotMet, workflow.CodeConcurrentModification:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
