package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/auth"
)

func (h *Handler) fileExcuse(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Reason    string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.svc.FileExcuse(c.Request.Context(), req.SessionID, claims(c).Subject, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) listExcuses(c *gin.Context) {
	f := attendance.ExcuseFilter{
		StudentID: c.Query("student_id"),
		CourseID:  c.Query("course_id"),
		Status:    attendance.ExcuseStatus(c.Query("status")),
	}
	if cl := claims(c); cl.Role == auth.RoleStudent {
		f.StudentID = cl.Subject
	}
	list, err := h.svc.ListExcuses(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"excuses": list})
}

func (h *Handler) updateExcuse(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.svc.UpdateExcuseReason(c.Request.Context(), c.Param("id"), claims(c).Subject, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) withdrawExcuse(c *gin.Context) {
	if err := h.svc.WithdrawExcuse(c.Request.Context(), c.Param("id"), claims(c).Subject); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reviewExcuse(c *gin.Context) {
	var req struct {
		Decision attendance.ExcuseStatus `json:"decision" binding:"required"`
		Comment  string                  `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, rec, err := h.svc.ReviewExcuse(c.Request.Context(), attendance.Review{
		ExcuseID: c.Param("id"),
		Decision: req.Decision,
		Reviewer: claims(c).Subject,
		Comment:  req.Comment,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"excuse": e, "record": rec})
}
