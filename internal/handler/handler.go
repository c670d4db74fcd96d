// Package handler exposes the attendance engine over HTTP.
package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/attempts"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/faceclient"
	"classattend/internal/identity"
	"classattend/internal/verify"
)

// Uploader stores a registration image and returns its handle.
type Uploader interface {
	UploadBase64(ctx context.Context, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// Handler serves the /v1 API.
type Handler struct {
	svc       *attendance.Service
	vectors   identity.Store
	encoder   faceclient.Encoder
	uploader  Uploader
	verifier  *verify.Processor
	attempts  attempts.Log
	signer    *auth.Signer
	devTokens bool
}

// Deps lists the collaborators of a Handler. Uploader, Verifier and Attempts
// are optional; their routes answer 503 when unset.
type Deps struct {
	Service   *attendance.Service
	Vectors   identity.Store
	Encoder   faceclient.Encoder
	Uploader  Uploader
	Verifier  *verify.Processor
	Attempts  attempts.Log
	Signer    *auth.Signer
	DevTokens bool
}

// New creates a handler.
func New(d Deps) *Handler {
	return &Handler{
		svc:       d.Service,
		vectors:   d.Vectors,
		encoder:   d.Encoder,
		uploader:  d.Uploader,
		verifier:  d.Verifier,
		attempts:  d.Attempts,
		signer:    d.Signer,
		devTokens: d.DevTokens,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	if h.devTokens {
		v1.POST("/auth/token", h.issueToken)
	}
	v1.POST("/auth/refresh", h.refreshToken)

	api := v1.Group("", auth.Bearer(h.signer))
	instructor := api.Group("", auth.RequireRole(auth.RoleInstructor))
	student := api.Group("", auth.RequireRole(auth.RoleStudent))

	instructor.POST("/courses", h.createCourse)
	api.GET("/courses/:id", h.getCourse)
	instructor.POST("/courses/:id/students", h.enroll)

	instructor.POST("/sessions", h.createSession)
	api.GET("/sessions", h.listSessions)
	api.GET("/sessions/:id", h.getSession)
	instructor.DELETE("/sessions/:id", h.deleteSession)
	instructor.POST("/sessions/:id/start", h.startSession)
	instructor.POST("/sessions/:id/close", h.closeSession)
	instructor.GET("/sessions/:id/report", h.report)
	instructor.GET("/sessions/:id/attempts", h.listAttempts)

	instructor.PUT("/sessions/:id/records/:student", h.recordManual)
	api.GET("/sessions/:id/records/:student", h.getRecord)

	api.POST("/faces", h.registerFace)
	api.POST("/faces/upload", h.uploadFace)
	api.GET("/faces/me", h.faceStatus)
	api.POST("/sessions/:id/verify", h.verify)
	api.POST("/sessions/:id/verify/async", h.verifyAsync)
	api.GET("/verifications/:job", h.verification)

	student.POST("/excuses", h.fileExcuse)
	api.GET("/excuses", h.listExcuses)
	student.PATCH("/excuses/:id", h.updateExcuse)
	student.DELETE("/excuses/:id", h.withdrawExcuse)
	instructor.POST("/excuses/:id/review", h.reviewExcuse)

	api.GET("/students/:id/stats", h.studentStats)
}

// fail writes err as JSON. Internal errors are logged and replaced with a
// generic message.
func fail(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}
	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.JSON(statusFor(e.Kind), body)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindState, apperr.KindDuplicate:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindVerification:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// badRequest reports a body that failed to bind.
func badRequest(c *gin.Context, err error) {
	if e, ok := apperr.As(err); ok {
		fail(c, e)
		return
	}
	fail(c, apperr.ErrInvalidInput.Msg("%s", err.Error()))
}

func forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, gin.H{"error": msg, "code": "forbidden"})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not configured", "code": "unavailable"})
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}

// subjectFor resolves whose data a request targets. Students may only act on
// themselves; instructors must name the student.
func subjectFor(c *gin.Context, requested string) (string, bool) {
	cl := claims(c)
	if cl.Role == auth.RoleStudent {
		if requested != "" && requested != cl.Subject {
			forbidden(c, "students may only access their own data")
			return "", false
		}
		return cl.Subject, true
	}
	if requested == "" {
		fail(c, apperr.Invalid("student_id required"))
		return "", false
	}
	return requested, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
