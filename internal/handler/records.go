package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
)

func (h *Handler) recordManual(c *gin.Context) {
	var req struct {
		Status attendance.Status `json:"status" binding:"required"`
		Reason string            `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.RecordManual(c.Request.Context(), attendance.ManualEntry{
		SessionID: c.Param("id"),
		StudentID: c.Param("student"),
		Status:    req.Status,
		Actor:     claims(c).Subject,
		Reason:    req.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) getRecord(c *gin.Context) {
	studentID, ok := subjectFor(c, c.Param("student"))
	if !ok {
		return
	}
	rec, err := h.svc.GetRecord(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
