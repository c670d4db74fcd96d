package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
)

func (h *Handler) createCourse(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	course, err := h.svc.CreateCourse(c.Request.Context(), attendance.NewCourse{
		Code:         req.Code,
		Name:         req.Name,
		InstructorID: claims(c).Subject,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *Handler) getCourse(c *gin.Context) {
	ctx := c.Request.Context()
	course, err := h.svc.GetCourse(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	students, err := h.svc.ListEnrolled(ctx, course.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course, "students": students})
}

func (h *Handler) enroll(c *gin.Context) {
	var req struct {
		StudentIDs []string `json:"student_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.Enroll(ctx, c.Param("id"), req.StudentIDs...); err != nil {
		fail(c, err)
		return
	}
	students, err := h.svc.ListEnrolled(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}
