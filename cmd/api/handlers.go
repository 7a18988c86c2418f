package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/analytics"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/ledger"
	"rollcall/internal/registry"
)

type handlers struct {
	cfg     config.App
	reg     *registry.Service
	led     *ledger.Service
	reports *analytics.Service
}

// writeErr maps the domain error taxonomy onto HTTP statuses.
func writeErr(c *gin.Context, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, registry.ErrEntityNotFound):
		status, code = http.StatusNotFound, "entity_not_found"
	case errors.Is(err, registry.ErrTenantNotFound):
		status, code = http.StatusNotFound, "tenant_not_found"
	case errors.Is(err, ledger.ErrAlreadyIn):
		status, code = http.StatusConflict, "already_in"
	case errors.Is(err, ledger.ErrAlreadyOut):
		status, code = http.StatusConflict, "already_out"
	case errors.Is(err, ledger.ErrOutBeforeIn):
		status, code = http.StatusConflict, "out_before_in"
	case errors.Is(err, registry.ErrInvalidPayload):
		status, code = http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, ledger.ErrTenantMismatch):
		status, code = http.StatusBadRequest, "tenant_mismatch"
	case errors.Is(err, ledger.ErrInvalidStatus):
		status, code = http.StatusBadRequest, "invalid_status"
	default:
		status, code = http.StatusInternalServerError, "internal"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func (h *handlers) issueToken(c *gin.Context) {
	var req struct {
		Subject  string `json:"subject" binding:"required"`
		Role     string `json:"role" binding:"required"`
		TenantID string `json:"tenant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Role {
	case auth.RoleSchool, auth.RoleGuard, auth.RoleStaff:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	tokens, err := auth.Issue(req.Subject, req.Role, req.TenantID, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *handlers) mark(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req struct {
		EntityID   string `json:"entity_id" binding:"required"`
		EntityType string `json:"entity_type" binding:"required"`
		Status     string `json:"status" binding:"required"`
		Mode       string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode := ledger.Mode(req.Mode)
	if mode == "" {
		mode = ledger.ModeManual
	}

	entityID := req.EntityID
	typ := registry.EntityType(req.EntityType)
	// Guards often know a roll number rather than the system identifier.
	if auth.FromContext(c).Role == auth.RoleGuard {
		ent, err := h.reg.ResolveByRollNoOrID(c.Request.Context(), tenantID, req.EntityID)
		if err != nil {
			writeErr(c, err)
			return
		}
		entityID, typ = ent.ID, ent.Type
	}

	evt, err := h.led.Mark(c.Request.Context(), tenantID, typ, entityID, ledger.Status(req.Status), mode)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (h *handlers) markQR(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req struct {
		Payload    string `json:"payload" binding:"required"`
		EntityID   string `json:"entity_id"`
		EntityType string `json:"entity_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var evt ledger.Event
	var err error
	if req.Payload == registry.SiteQR {
		// Shared gate poster: the scanner's own identity names the entity.
		if req.EntityID == "" || !registry.EntityType(req.EntityType).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity_id and entity_type required for site scan"})
			return
		}
		evt, err = h.led.MarkBySiteScan(c.Request.Context(), tenantID, registry.EntityType(req.EntityType), req.EntityID)
	} else {
		evt, err = h.led.MarkByQRToggle(c.Request.Context(), tenantID, req.Payload)
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": evt, "entity_name": evt.EntityName})
}

func (h *handlers) sweepAbsent(c *gin.Context) {
	count, err := h.led.SweepAbsent(c.Request.Context(), c.Param("tenant"))
	if err != nil && count == 0 {
		writeErr(c, err)
		return
	}
	// Partial failures are logged inside the sweep; the appended count is
	// still the caller's answer.
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *handlers) today(c *gin.Context) {
	entityID := c.Query("entity_id")
	if entityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity_id required"})
		return
	}
	status, err := h.led.LatestStatus(c.Request.Context(), c.Param("tenant"), entityID, time.Now())
	if err != nil {
		writeErr(c, err)
		return
	}
	if status == "" {
		c.JSON(http.StatusOK, gin.H{"entity_id": entityID, "status": "NONE"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity_id": entityID, "status": status})
}

func (h *handlers) history(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	events, err := h.led.History(c.Request.Context(), c.Param("tenant"), c.Param("entity"), limit, offset)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) monthly(c *gin.Context) {
	counts, err := h.reports.MonthlyCounts(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (h *handlers) lateComers(c *gin.Context) {
	counts, err := h.reports.LateComers(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"late_comers": counts})
}

func (h *handlers) frequentAbsentees(c *gin.Context) {
	counts, err := h.reports.FrequentAbsentees(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"frequent_absentees": counts})
}

func (h *handlers) classSummary(c *gin.Context) {
	summaries, err := h.reports.ClassSummaries(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": summaries})
}

func (h *handlers) registerEntity(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req struct {
		ID           string `json:"id"`
		Name         string `json:"name" binding:"required"`
		Type         string `json:"type"`
		Class        string `json:"class"`
		Subject      string `json:"subject"`
		RollNo       string `json:"roll_no"`
		FaceEnrolled bool   `json:"face_enrolled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// PUT routes carry the identifier in the path.
	if id := c.Param("id"); id != "" {
		req.ID = id
	}
	if typ := c.Param("type"); typ != "" {
		req.Type = typ
	}

	ent, err := h.reg.Register(c.Request.Context(), registry.Entity{
		ID:           req.ID,
		Name:         req.Name,
		TenantID:     tenantID,
		Type:         registry.EntityType(req.Type),
		Class:        req.Class,
		Subject:      req.Subject,
		RollNo:       req.RollNo,
		FaceEnrolled: req.FaceEnrolled,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ent)
}

func (h *handlers) deleteEntity(c *gin.Context) {
	err := h.reg.Delete(c.Request.Context(), c.Param("tenant"), registry.EntityType(c.Param("type")), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) getEntity(c *gin.Context) {
	ent, err := h.reg.ResolveByID(c.Request.Context(), c.Param("tenant"), registry.EntityType(c.Param("type")), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (h *handlers) listEntities(c *gin.Context) {
	entities, err := h.reg.List(c.Request.Context(), c.Param("tenant"), registry.EntityType(c.Query("type")))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

func (h *handlers) saveSettings(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		OpeningTime string `json:"opening_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OpeningTime == "" {
		req.OpeningTime = h.cfg.DefaultOpeningTime
	}
	t := registry.Tenant{ID: c.Param("tenant"), Name: req.Name, OpeningTime: req.OpeningTime}
	if err := h.reg.SaveTenant(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}
