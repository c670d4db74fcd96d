package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
)

func (h *Handler) createSession(c *gin.Context) {
	var req struct {
		CourseID             string               `json:"course_id" binding:"required"`
		Date                 string               `json:"date" binding:"required"`
		Start                attendance.TimeOfDay `json:"start"`
		End                  attendance.TimeOfDay `json:"end"`
		LateToleranceMinutes int                  `json:"late_tolerance_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		fail(c, err)
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(), attendance.NewSession{
		CourseID:      req.CourseID,
		Date:          date,
		Start:         req.Start,
		End:           req.End,
		LateTolerance: time.Duration(req.LateToleranceMinutes) * time.Minute,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) listSessions(c *gin.Context) {
	f := attendance.SessionFilter{CourseID: c.Query("course_id")}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(key); v != "" {
			d, err := attendance.ParseDate(v)
			if err != nil {
				fail(c, err)
				return
			}
			*dst = d
		}
	}
	sessions, err := h.svc.ListSessions(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "state": sess.State(), "late_after": sess.LateAfter(h.svc.Location())})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) startSession(c *gin.Context) {
	res, err := h.svc.StartSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) closeSession(c *gin.Context) {
	sess, err := h.svc.CloseSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) report(c *gin.Context) {
	rep, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) listAttempts(c *gin.Context) {
	if h.attempts == nil {
		unavailable(c, "attempt log")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.GetSession(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	list, err := h.attempts.List(ctx, c.Param("id"), queryInt(c, "limit", 100))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": list})
}

func (h *Handler) studentStats(c *gin.Context) {
	studentID, ok := subjectFor(c, c.Param("id"))
	if !ok {
		return
	}
	st, err := h.svc.StudentStats(c.Request.Context(), studentID, c.Query("course_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
